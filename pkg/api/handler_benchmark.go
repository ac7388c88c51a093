package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentsea/taskara/pkg/benchmark"
)

func (s *Server) createBenchmarkHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	var req V1Benchmark
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	templates := make([]benchmark.TemplateInput, len(req.Tasks))
	for i, t := range req.Tasks {
		templates[i] = benchmark.TemplateInput{
			Description: t.Description, MaxSteps: t.MaxSteps, DeviceType: t.DeviceType,
			Project: t.Project, Parameters: t.Parameters, Labels: t.Labels, Tags: t.Tags,
		}
	}

	b, err := s.benchmarks.Create(c.Request().Context(), principal, benchmark.CreateInput{
		Name: req.Name, Description: req.Description, OwnerID: req.OwnerID,
		Labels: req.Labels, Tags: req.Tags, Public: req.Public, Templates: templates,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (s *Server) listBenchmarksHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	found, err := s.benchmarks.Find(c.Request().Context(), principal)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1Benchmarks{Benchmarks: found})
}

func (s *Server) getBenchmarkHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	b, err := s.benchmarks.Get(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func (s *Server) deleteBenchmarkHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	if err := s.benchmarks.Delete(c.Request().Context(), principal, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) evalBenchmarkHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	var req V1BenchmarkEval
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := s.benchmarks.Eval(c.Request().Context(), principal, c.Param("id"), req.AssignedTo, req.AssignedType)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// createEvalHandler implements `POST /v1/evals`: the benchmark id is
// carried in the body rather than the path, unlike the nested
// `/v1/benchmarks/{id}/eval` shortcut that evalBenchmarkHandler serves.
func (s *Server) createEvalHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	var req struct {
		Benchmark    string `json:"benchmark"`
		AssignedTo   string `json:"assigned_to"`
		AssignedType string `json:"assigned_type"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := s.benchmarks.Eval(c.Request().Context(), principal, req.Benchmark, req.AssignedTo, req.AssignedType)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (s *Server) listEvalsHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	found, err := s.benchmarks.FindEvals(c.Request().Context(), principal)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, V1Evals{Evals: found})
}

func (s *Server) getEvalHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	e, err := s.benchmarks.GetEval(c.Request().Context(), principal, c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

func (s *Server) deleteEvalHandler(c *echo.Context) error {
	principal, err := s.principal(c)
	if err != nil {
		return err
	}
	if err := s.benchmarks.DeleteEval(c.Request().Context(), principal, c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
