package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"workflow-engine/backend/pkg/models"
)

// GetWorkflow returns a workflow graph by code
// (GET /api/v1/workflows/:code)
func (s *Server) GetWorkflow(c echo.Context) error {
	graph, err := s.definitions.Get(c.Request().Context(), c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, graph)
}

// PutWorkflow creates or replaces a workflow graph
// (PUT /api/v1/workflows)
func (s *Server) PutWorkflow(c echo.Context) error {
	var graph models.WorkflowGraph
	if err := c.Bind(&graph); err != nil {
		return badRequest("Invalid request body: " + err.Error())
	}
	if graph.FlowsCode == "" {
		return badRequest("flows_code is required")
	}

	stored, err := s.definitions.Upsert(c.Request().Context(), &graph)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stored)
}

// NextAction resolves the edge to follow from a source node
// (GET /api/v1/workflows/:code/next?source=&label=)
func (s *Server) NextAction(c echo.Context) error {
	ctx := c.Request().Context()

	graph, err := s.definitions.Get(ctx, c.Param("code"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.navigator.NextStep(ctx, graph, c.QueryParam("source"), c.QueryParam("label")))
}

// WorkflowProgress reports how far an application has moved through a workflow
// (GET /api/v1/workflows/:code/progress/:app_id)
func (s *Server) WorkflowProgress(c echo.Context) error {
	ctx := c.Request().Context()

	graph, err := s.definitions.Get(ctx, c.Param("code"))
	if err != nil {
		return err
	}
	progress, err := s.logs.CalcProgress(ctx, graph, c.Param("app_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, progress)
}
