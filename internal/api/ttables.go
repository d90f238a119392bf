package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/internal/services"
	"workflow-engine/backend/pkg/models"
)

// AppIDResponse carries the key of an upserted TTable.
type AppIDResponse struct {
	AppID string `json:"app_id"`
}

// GetTTable returns the working record of an application
// (GET /api/v1/ttables/:app_id)
func (s *Server) GetTTable(c echo.Context) error {
	ttable, err := s.ttables.Get(c.Request().Context(), c.Param("app_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ttable)
}

// PutTTable replaces the working record of an application
// (PUT /api/v1/ttables/:app_id)
func (s *Server) PutTTable(c echo.Context) error {
	var ttable models.TTable
	if err := c.Bind(&ttable); err != nil {
		return badRequest("Invalid request body: " + err.Error())
	}
	ttable.AppID = c.Param("app_id")

	appID, err := s.ttables.Upsert(c.Request().Context(), &ttable)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, AppIDResponse{AppID: appID})
}

// MergeDecisionResults folds a decision-flow response into the working
// record and returns the merged view before it is persisted
// (POST /api/v1/ttables/:app_id/decision-results)
func (s *Server) MergeDecisionResults(c echo.Context) error {
	ctx := c.Request().Context()
	appID := c.Param("app_id")

	var payload services.Payload
	if err := json.NewDecoder(c.Request().Body).Decode(&payload); err != nil {
		return badRequest("Invalid request body: " + err.Error())
	}
	out, err := services.ParseDecisionFlowOutput(payload)
	if err != nil {
		return badRequest(err.Error())
	}

	ttable, err := s.ttables.Get(ctx, appID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		ttable = models.NewTTable(appID)
	}
	if ttable, err = s.ttables.MergeStageResults(ctx, ttable, out); err != nil {
		return err
	}
	if ttable, err = s.ttables.MergeTempResults(ctx, ttable, out); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, ttable)
}
