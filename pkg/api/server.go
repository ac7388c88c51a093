// Package api provides the HTTP transport for Taskara (spec §6): a thin
// Echo v5 layer that resolves the caller's principal, binds the request
// body, calls straight into the core services, and maps the result (or
// error) back to JSON. It owns none of the domain invariants itself.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/agentsea/taskara/pkg/annotation"
	"github.com/agentsea/taskara/pkg/authz"
	"github.com/agentsea/taskara/pkg/benchmark"
	"github.com/agentsea/taskara/pkg/database"
	"github.com/agentsea/taskara/pkg/episode"
	"github.com/agentsea/taskara/pkg/review"
	"github.com/agentsea/taskara/pkg/task"
	"github.com/agentsea/taskara/pkg/version"
)

// Server is the HTTP API server for Taskara's task lifecycle and review
// surface.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	dbClient    *database.Client
	tasks       *task.Service
	episodes    *episode.Service
	benchmarks  *benchmark.Service
	annotations *annotation.Service
	reviews     *review.Engine

	// noAuth allows principalFromRequest to fall back to the X-Task-Email /
	// oauth2-proxy header pair when no bearer token is present, for local
	// development and tests (TASK_SERVER_NO_AUTH).
	noAuth bool
}

// NewServer wires every core service into a ready-to-start Echo v5 server.
func NewServer(
	dbClient *database.Client,
	tasks *task.Service,
	episodes *episode.Service,
	benchmarks *benchmark.Service,
	annotations *annotation.Service,
	reviews *review.Engine,
	noAuth bool,
) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		dbClient:    dbClient,
		tasks:       tasks,
		episodes:    episodes,
		benchmarks:  benchmarks,
		annotations: annotations,
		reviews:     reviews,
		noAuth:      noAuth,
	}

	s.setupRoutes()
	return s
}

// principal resolves the caller's authz.Principal for this request. On
// failure it has already written the 401 response; callers propagate the
// returned error unchanged.
func (s *Server) principal(c *echo.Context) (authz.Principal, error) {
	p, err := principalFromRequest(c, s.noAuth)
	if err != nil {
		if werr := respondError(c, err); werr != nil {
			return authz.Principal{}, werr
		}
		return authz.Principal{}, err
	}
	return p, nil
}

// setupRoutes registers every route named in spec §6 under /v1, plus the
// top-level health check.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/v1")

	v1.POST("/tasks", s.createTaskHandler)
	v1.POST("/tasks/search", s.searchTasksHandler)
	v1.GET("/tasks", s.listTasksHandler)
	v1.GET("/tasks/:id", s.getTaskHandler)
	v1.PUT("/tasks/:id", s.updateTaskHandler)
	v1.DELETE("/tasks/:id", s.deleteTaskHandler)
	v1.PUT("/tasks/:id/review", s.reviewTaskHandler)

	v1.POST("/tasks/:id/msg", s.postMessageHandler)
	v1.GET("/tasks/:id/threads", s.listThreadsHandler)
	v1.POST("/tasks/:id/threads", s.createThreadHandler)
	v1.DELETE("/tasks/:id/threads/:thread_id", s.deleteThreadHandler)
	v1.GET("/tasks/:id/threads/:thread_id/messages", s.listMessagesHandler)

	v1.POST("/tasks/:id/prompts", s.createPromptHandler)
	v1.GET("/tasks/:id/prompts", s.listPromptsHandler)
	v1.POST("/tasks/:id/prompts/:pid/approve", s.approvePromptHandler)
	v1.POST("/tasks/:id/prompts/:pid/fail", s.failPromptHandler)

	v1.POST("/tasks/:id/actions", s.recordActionHandler)
	v1.GET("/tasks/:id/actions", s.listActionsHandler)
	v1.DELETE("/tasks/:id/actions", s.deleteAllActionsHandler)
	v1.POST("/tasks/:id/actions/:aid/approve", s.approveActionHandler)
	v1.POST("/tasks/:id/actions/:aid/fail", s.failActionHandler)
	v1.POST("/tasks/:id/actions/:aid/approve_prior", s.approvePriorHandler)
	v1.PUT("/tasks/:id/actions/:aid/hide", s.hideActionHandler)
	v1.PUT("/tasks/:id/actions/:aid/unhide", s.unhideActionHandler)
	v1.POST("/tasks/:id/approve_actions", s.approveAllActionsHandler)
	v1.POST("/tasks/:id/fail_actions", s.failAllActionsHandler)

	v1.GET("/tasks/:id/episode", s.getEpisodeHandler)

	v1.POST("/tasks/:id/actions/:aid/annotations", s.createAnnotationHandler)
	v1.GET("/tasks/:id/actions/:aid/annotations", s.listAnnotationsHandler)
	v1.POST("/annotations/:aid/review", s.reviewAnnotationHandler)

	v1.GET("/pending_reviews", s.pendingReviewsHandler)
	v1.GET("/tasks/:id/pending_reviewers", s.pendingReviewersHandler)

	v1.POST("/benchmarks", s.createBenchmarkHandler)
	v1.GET("/benchmarks", s.listBenchmarksHandler)
	v1.GET("/benchmarks/:id", s.getBenchmarkHandler)
	v1.DELETE("/benchmarks/:id", s.deleteBenchmarkHandler)
	v1.POST("/benchmarks/:id/eval", s.evalBenchmarkHandler)

	v1.POST("/evals", s.createEvalHandler)
	v1.GET("/evals", s.listEvalsHandler)
	v1.GET("/evals/:id", s.getEvalHandler)
	v1.DELETE("/evals/:id", s.deleteEvalHandler)
}

// Start starts the HTTP server on the given address and blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health per spec §6's literal `{"status": "ok"}`
// response, backed by a real database ping rather than a hardcoded value.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := database.Health(reqCtx, s.dbClient.DB()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, statusResponse{Status: "unhealthy"})
	}
	_ = version.Full() // available for future diagnostics; spec's health body is minimal
	return c.JSON(http.StatusOK, statusResponse{Status: "ok"})
}
