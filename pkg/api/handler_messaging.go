package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentsea/taskara/pkg/promptstore"
)

func (s *Server) postMessageHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req V1PostMessage
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, err := s.tasks.PostMessage(c.Request().Context(), t, req.ThreadID, req.Role, req.Text, req.Images, req.Private, req.Metadata)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) listThreadsHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	threads, err := s.tasks.ListThreads(c.Request().Context(), t)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1Threads{Threads: threads})
}

func (s *Server) createThreadHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req V1CreateThread
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	th, err := s.tasks.CreateThread(c.Request().Context(), t, req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, th)
}

func (s *Server) deleteThreadHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if err := s.tasks.RemoveThread(c.Request().Context(), t, c.Param("thread_id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listMessagesHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	msgs, err := s.tasks.ListMessages(c.Request().Context(), t, c.Param("thread_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1Messages{Messages: msgs})
}

func (s *Server) createPromptHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req V1Prompt
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := s.tasks.StorePrompt(c.Request().Context(), t, &promptstore.Prompt{
		Namespace: req.Namespace, ThreadRef: req.ThreadRef, ResponseMessage: req.ResponseMessage,
		ResponseSchema: req.ResponseSchema, Metadata: req.Metadata, OwnerID: t.OwnerID,
		AgentID: req.AgentID, Model: req.Model,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, idResponse{ID: p.ID})
}

func (s *Server) listPromptsHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	prompts, err := s.tasks.ListPrompts(c.Request().Context(), t)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1Prompts{Prompts: prompts})
}

func (s *Server) approvePromptHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if err := s.tasks.ApprovePrompt(c.Request().Context(), t, c.Param("pid")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) failPromptHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if err := s.tasks.FailPrompt(c.Request().Context(), t, c.Param("pid")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
