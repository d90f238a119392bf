// Package api exposes the workflow engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/internal/services"
	"workflow-engine/backend/pkg/models"
)

const (
	serviceName    = "workflow-engine"
	serviceVersion = "1.0.0"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the HTTP handlers call into.
type Services struct {
	Definitions *services.DefinitionService
	Navigator   *services.Navigator
	Logs        *services.ProcessLogService
	TTables     *services.TTableService
	Runner      *services.StepRunner
	Store       Pinger
	Logger      services.Logger
}

// Server holds the dependencies for the API server.
type Server struct {
	definitions *services.DefinitionService
	navigator   *services.Navigator
	logs        *services.ProcessLogService
	ttables     *services.TTableService
	runner      *services.StepRunner
	store       Pinger
	logger      services.Logger
	now         func() time.Time
}

// NewServer creates a new Server.
func NewServer(deps Services) *Server {
	return &Server{
		definitions: deps.Definitions,
		navigator:   deps.Navigator,
		logs:        deps.Logs,
		ttables:     deps.TTables,
		runner:      deps.Runner,
		store:       deps.Store,
		logger:      orNop(deps.Logger),
		now:         time.Now,
	}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Store     string    `json:"store,omitempty"`
}

// HandleHealth reports service status; an unreachable store yields 503.
// (GET /api/v1/health)
func (s *Server) HandleHealth(c echo.Context) error {
	status := HealthStatus{
		Status:    "ok",
		Timestamp: s.now(),
		Service:   serviceName,
		Version:   serviceVersion,
	}
	if s.store == nil {
		return c.JSON(http.StatusOK, status)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		status.Status = "degraded"
		status.Store = "unreachable"
		return c.JSON(http.StatusServiceUnavailable, status)
	}
	status.Store = "ok"
	return c.JSON(http.StatusOK, status)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(w http.ResponseWriter, status int, title, detail, instance string) {
	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problem)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidWorkflowCode), errors.Is(err, models.ErrInvalidDataKey),
		errors.Is(err, services.ErrUnknownConnector):
		return http.StatusBadRequest
	case services.IsStoreFailure(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrConnector):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorHandler renders every handler error as problem JSON.
func NewErrorHandler(logger services.Logger) echo.HTTPErrorHandler {
	logger = orNop(logger)
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := statusFor(err)
		detail := err.Error()
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			if msg, ok := httpErr.Message.(string); ok {
				detail = msg
			}
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path,
				"status", status, "error", err)
		}
		writeError(c.Response(), status, http.StatusText(status), detail, c.Request().URL.Path)
	}
}

func orNop(logger services.Logger) services.Logger {
	if logger == nil {
		return services.NopLogger()
	}
	return logger
}

func badRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, msg)
}
