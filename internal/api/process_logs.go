package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"workflow-engine/backend/internal/services"
	"workflow-engine/backend/pkg/models"
)

// StatusUpdateRequest completes a process log entry.
type StatusUpdateRequest struct {
	UserID string                 `json:"user_id"`
	Status string                 `json:"status"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// LogIDResponse carries the id of a created or updated entry.
type LogIDResponse struct {
	ID string `json:"id"`
}

// DependencyResponse tells whether a prior step was attempted and finished.
type DependencyResponse struct {
	SourceID  string                    `json:"source_id"`
	Attempted bool                      `json:"attempted"`
	Satisfied bool                      `json:"satisfied"`
	State     *services.DependencyState `json:"state,omitempty"`
}

// InsertProcessLog records the start of a step
// (POST /api/v1/process-logs)
func (s *Server) InsertProcessLog(c echo.Context) error {
	var req services.InsertLogRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request body: " + err.Error())
	}
	if strings.TrimSpace(req.AppID) == "" {
		return badRequest("app_id is required")
	}

	id, err := s.logs.Insert(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, LogIDResponse{ID: id})
}

// UpdateProcessLog sets the outcome of a step
// (PATCH /api/v1/process-logs/:id)
func (s *Server) UpdateProcessLog(c echo.Context) error {
	var req StatusUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request body: " + err.Error())
	}

	id, err := s.logs.UpdateStatus(c.Request().Context(), c.Param("id"), req.UserID, req.Status, req.Data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LogIDResponse{ID: id})
}

// DeleteProcessLog removes an entry
// (DELETE /api/v1/process-logs/:id)
func (s *Server) DeleteProcessLog(c echo.Context) error {
	if err := s.logs.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// LatestProcessLog returns the most recent entry of an application
// (GET /api/v1/applications/:app_id/latest)
func (s *Server) LatestProcessLog(c echo.Context) error {
	appID := c.Param("app_id")
	entry, err := s.logs.LatestByAppID(c.Request().Context(), appID)
	if err != nil {
		return err
	}
	if entry == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no process log for application "+appID)
	}
	return c.JSON(http.StatusOK, entry)
}

// ProcessLogHistory lists every entry of an application, newest first
// (GET /api/v1/applications/:app_id/history)
func (s *Server) ProcessLogHistory(c echo.Context) error {
	entries, err := s.logs.History(c.Request().Context(), c.Param("app_id"))
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []*models.ProcessLogEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

// CheckDependency reports whether a source step has finished
// (GET /api/v1/applications/:app_id/dependencies/:source?workflow=)
func (s *Server) CheckDependency(c echo.Context) error {
	workflow := c.QueryParam("workflow")
	if workflow == "" {
		return badRequest("workflow query parameter is required")
	}
	workflowID, err := models.ParseWorkflowID(workflow)
	if err != nil {
		return err
	}

	source := c.Param("source")
	state, err := s.logs.CheckDependency(c.Request().Context(), source, c.Param("app_id"), workflowID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DependencyResponse{
		SourceID:  source,
		Attempted: state != nil,
		Satisfied: state != nil && state.Satisfied,
		State:     state,
	})
}

// RunStep executes one workflow step
// (POST /api/v1/steps)
func (s *Server) RunStep(c echo.Context) error {
	var req services.StepRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request body: " + err.Error())
	}
	if strings.TrimSpace(req.AppID) == "" || strings.TrimSpace(req.WorkflowCode) == "" {
		return badRequest("app_id and workflow_code are required")
	}

	result, err := s.runner.Run(c.Request().Context(), req)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Blocked {
		status = http.StatusConflict
	}
	return c.JSON(status, result)
}
