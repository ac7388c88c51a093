package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

func (s *Server) createAnnotationHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	if _, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	var req V1AnnotationReviewable
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := s.annotations.Create(c.Request().Context(), c.Param("aid"), req.Key, req.Value, req.Annotator, req.AnnotatorType)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, idResponse{ID: a.ID})
}

func (s *Server) listAnnotationsHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	if _, err := s.tasks.Get(c.Request().Context(), principal, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	annotations, err := s.annotations.ListForAction(c.Request().Context(), c.Param("aid"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1Annotations{Annotations: annotations})
}

func (s *Server) reviewAnnotationHandler(c *echo.Context) error {
	if _, err := s.principal(c); err != nil {
		return err
	}
	var req V1CreateAnnotationReview
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.annotations.Review(c.Request().Context(), c.Param("aid"), req.Approved, req.Reviewer, req.ReviewerType, req.Reason, req.Correction); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusOK)
}
