package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentsea/taskara/pkg/episode"
	"github.com/agentsea/taskara/pkg/episodestore"
)

func (s *Server) recordActionHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req V1ActionEvent
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	recorded, err := s.tasks.RecordActionEvent(c.Request().Context(), t, &episodestore.ActionEvent{
		State: req.State, ActionName: req.ActionName, ActionParams: req.ActionParams,
		Tool: req.Tool, Result: req.Result, EndState: req.EndState, PromptID: req.PromptID,
		Namespace: req.Namespace, Metadata: req.Metadata, OwnerID: t.OwnerID,
		Model: req.Model, AgentID: req.AgentID,
	})
	if err != nil {
		return respondError(c, err)
	}
	if recorded == nil {
		// hasFinalEnd no-op: the episode already closed, nothing was recorded.
		return c.JSON(http.StatusOK, t)
	}
	return c.JSON(http.StatusCreated, recorded)
}

func (s *Server) listActionsHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	actions, err := s.tasks.ListActions(c.Request().Context(), t)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1ActionEvents{Actions: actions})
}

func (s *Server) deleteAllActionsHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	if t.EpisodeID != "" {
		if err := s.episodes.DeleteAllActions(c.Request().Context(), t.EpisodeID); err != nil {
			return respondError(c, err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) approveActionHandler(c *echo.Context) error {
	return s.reviewActionHandler(c, true)
}

func (s *Server) failActionHandler(c *echo.Context) error {
	return s.reviewActionHandler(c, false)
}

func (s *Server) reviewActionHandler(c *echo.Context, approved bool) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	if _, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	var req V1CreateReview
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := episode.ReviewInput{Reviewer: req.Reviewer, ReviewerType: req.ReviewerType, Reason: req.Reason, Correction: req.Correction}
	var reviewErr error
	if approved {
		reviewErr = s.episodes.ApproveOne(c.Request().Context(), c.Param("aid"), in)
	} else {
		reviewErr = s.episodes.FailOne(c.Request().Context(), c.Param("aid"), in)
	}
	if reviewErr != nil {
		return respondError(c, reviewErr)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) approvePriorHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req V1CreateReview
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := episode.ReviewInput{Reviewer: req.Reviewer, ReviewerType: req.ReviewerType, Reason: req.Reason, Correction: req.Correction}
	if err := s.episodes.ApprovePrior(c.Request().Context(), t.EpisodeID, c.Param("aid"), false, in); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) hideActionHandler(c *echo.Context) error {
	return s.setActionHiddenHandler(c, true)
}

func (s *Server) unhideActionHandler(c *echo.Context) error {
	return s.setActionHiddenHandler(c, false)
}

func (s *Server) setActionHiddenHandler(c *echo.Context, hidden bool) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	if _, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	if err := s.episodes.HideAction(c.Request().Context(), c.Param("aid"), hidden); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) approveAllActionsHandler(c *echo.Context) error {
	return s.bulkReviewActionsHandler(c, true)
}

func (s *Server) failAllActionsHandler(c *echo.Context) error {
	return s.bulkReviewActionsHandler(c, false)
}

func (s *Server) bulkReviewActionsHandler(c *echo.Context, approved bool) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	var req V1ReviewMany
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	in := episode.ReviewInput{Reviewer: req.Reviewer, ReviewerType: req.ReviewerType, Reason: req.Reason, Correction: req.Correction}
	var bulkErr error
	if approved {
		bulkErr = s.episodes.ApproveAll(c.Request().Context(), t.EpisodeID, req.IncludeHidden, in)
	} else {
		bulkErr = s.episodes.FailAll(c.Request().Context(), t.EpisodeID, req.IncludeHidden, in)
	}
	if bulkErr != nil {
		return respondError(c, bulkErr)
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) getEpisodeHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	t, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	ep, err := s.tasks.GetEpisode(c.Request().Context(), t)
	if err != nil {
		return respondError(c, err)
	}
	actions, err := s.tasks.ListActions(c.Request().Context(), t)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1Episode{Episode: ep, Actions: actions})
}
