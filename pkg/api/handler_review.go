package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentsea/taskara/pkg/store"
)

// pendingReviewsHandler implements `GET /v1/pending_reviews?agent_id=`
// (spec §6/§4.6): the distinct task ids pending review by either the named
// agent or, absent that, the calling principal as a human reviewer.
func (s *Server) pendingReviewsHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	agentID := c.QueryParam("agent_id")
	userID := ""
	if agentID == "" {
		userID = principal.Email
	}
	taskIDs, err := s.reviews.PendingReviewTaskIDs(c.Request().Context(), userID, agentID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1PendingReviews{Tasks: taskIDs})
}

func (s *Server) pendingReviewersHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	id := c.Param("id")
	if _, err := s.tasks.Get(c.Request().Context(), principal, id); err != nil {
		return respondError(c, err)
	}
	pending, err := s.reviews.PendingReviewers(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, toV1PendingReviewers(id, pending))
}

func toV1PendingReviewers(taskID string, pending []*store.PendingReviewer) V1PendingReviewers {
	out := V1PendingReviewers{TaskID: taskID}
	seenUsers := map[string]bool{}
	seenAgents := map[string]bool{}
	for _, p := range pending {
		if p.UserID != "" && !seenUsers[p.UserID] {
			seenUsers[p.UserID] = true
			out.Users = append(out.Users, p.UserID)
		}
		if p.AgentID != "" && !seenAgents[p.AgentID] {
			seenAgents[p.AgentID] = true
			out.Agents = append(out.Agents, p.AgentID)
		}
	}
	return out
}
