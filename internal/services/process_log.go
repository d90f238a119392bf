package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

// GraphSource resolves workflow graphs by code.
type GraphSource interface {
	Get(ctx context.Context, code string) (*models.WorkflowGraph, error)
}

// InsertLogRequest describes the start of a workflow step.
type InsertLogRequest struct {
	AppID        string                 `json:"app_id"`
	TTable       string                 `json:"ttable"`
	UserID       string                 `json:"user_id"`
	SourceID     string                 `json:"source_id"`
	EdgeID       string                 `json:"edge_id"`
	WorkflowCode string                 `json:"workflow_code"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Notes        string                 `json:"notes,omitempty"`
	// Status defaults to "process".
	Status string `json:"status,omitempty"`
}

// DependencyState is the latest recorded state of a prior step.
type DependencyState struct {
	LogID      string     `json:"log_id"`
	EdgeID     string     `json:"edge_id"`
	Status     string     `json:"status"`
	FinishDate *time.Time `json:"finish_date,omitempty"`
	Satisfied  bool       `json:"satisfied"`
}

// Progress reports how far an application has moved through a workflow.
type Progress struct {
	TotalSteps  int `json:"total_steps"`
	CurrentStep int `json:"current_step"`
}

// ProcessLogService records step executions and answers dependency and
// progress queries. Store failures are logged and returned as *StoreError;
// "nothing recorded" is a nil result with a nil error.
type ProcessLogService struct {
	logs    repository.ProcessLogRepository
	graphs  GraphSource
	clock   Clock
	logger  Logger
	newID   func() (string, error)
	metrics *instruments
}

// NewProcessLogService creates a ProcessLogService.
func NewProcessLogService(logs repository.ProcessLogRepository, graphs GraphSource, clock Clock, logger Logger) *ProcessLogService {
	return &ProcessLogService{
		logs:    logs,
		graphs:  graphs,
		clock:   orSystem(clock),
		logger:  orNop(logger),
		newID:   newLogID,
		metrics: newInstruments(),
	}
}

// newLogID returns a time-ordered id so "highest id" means "most recent".
func newLogID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Insert records the start of a step and returns the new log id. The
// workflow id is parsed from the workflow code; a malformed code is
// returned as models.ErrInvalidWorkflowCode. The "start" step stores the
// workflow version in notes instead of the caller's notes.
func (s *ProcessLogService) Insert(ctx context.Context, req InsertLogRequest) (string, error) {
	workflowID, err := models.ParseWorkflowID(req.WorkflowCode)
	if err != nil {
		return "", err
	}
	if err := models.ValidateDataKeys(req.Data); err != nil {
		return "", err
	}

	notes := req.Notes
	if req.SourceID == models.StartSource {
		graph, err := s.graphs.Get(ctx, req.WorkflowCode)
		if err != nil {
			return "", err
		}
		notes = graph.Version
	}

	status := req.Status
	if strings.TrimSpace(status) == "" {
		status = models.StatusProcess
	}

	id, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("failed to generate log id: %w", err)
	}
	now := s.clock.Now()
	entry := &models.ProcessLogEntry{
		ID:             id,
		AppID:          req.AppID,
		TTable:         req.TTable,
		UserID:         req.UserID,
		SourceID:       req.SourceID,
		WorkflowID:     workflowID,
		EdgeID:         req.EdgeID,
		Status:         status,
		ActionDate:     now,
		Data:           req.Data,
		Notes:          notes,
		ProcessingTime: now,
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.logs.InsertLog(ctx, entry); err != nil {
		return "", s.storeFailure(ctx, "insert process log", err, "app_id", req.AppID, "source_id", req.SourceID)
	}
	s.logger.Debug("process log inserted", "log_id", id, "app_id", req.AppID, "source_id", req.SourceID,
		"workflow_id", workflowID, "status", status)
	return id, nil
}

// UpdateStatus completes a step: it sets status and finish date, merges
// data and refreshes processing_time. source_id and edge_id are untouched.
// A blank status means "finished". Data keys containing "." or starting
// with "$" are rejected with models.ErrInvalidDataKey.
func (s *ProcessLogService) UpdateStatus(ctx context.Context, logID, userID, status string, data map[string]interface{}) (string, error) {
	if err := models.ValidateDataKeys(data); err != nil {
		return "", err
	}
	if strings.TrimSpace(status) == "" {
		status = models.StatusFinished
	}
	update := models.StatusUpdate{
		UserID:     userID,
		Status:     status,
		FinishDate: s.clock.Now(),
		Data:       data,
	}
	if err := s.logs.UpdateLogStatus(ctx, logID, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("process log %s: %w", logID, err)
		}
		return "", s.storeFailure(ctx, "update process log", err, "log_id", logID)
	}
	return logID, nil
}

// LatestByAppID returns the most recent entry across all steps of an
// application, or nil when nothing was logged.
func (s *ProcessLogService) LatestByAppID(ctx context.Context, appID string) (*models.ProcessLogEntry, error) {
	entry, err := s.logs.LatestLogByAppID(ctx, appID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, s.storeFailure(ctx, "latest process log", err, "app_id", appID)
	}
	return entry, nil
}

// CheckDependency reports whether sourceID has finished for the
// application. A nil state means the step was never attempted, which is
// distinct from an attempted but unfinished step.
func (s *ProcessLogService) CheckDependency(ctx context.Context, sourceID, appID string, workflowID int) (*DependencyState, error) {
	entry, err := s.logs.LatestLogBySource(ctx, appID, workflowID, sourceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, s.storeFailure(ctx, "check dependency", err, "app_id", appID, "source_id", sourceID)
	}
	return &DependencyState{
		LogID:      entry.ID,
		EdgeID:     entry.EdgeID,
		Status:     entry.Status,
		FinishDate: entry.FinishDate,
		Satisfied:  entry.IsFinished(),
	}, nil
}

// CalcProgress counts the graph's edges as total steps and the distinct
// sources logged for the application as the current step.
func (s *ProcessLogService) CalcProgress(ctx context.Context, graph *models.WorkflowGraph, appID string) (Progress, error) {
	var progress Progress
	if graph != nil {
		progress.TotalSteps = len(graph.Edges)
	}
	sources, err := s.logs.DistinctSources(ctx, appID)
	if err != nil {
		return progress, s.storeFailure(ctx, "calc progress", err, "app_id", appID)
	}
	progress.CurrentStep = len(sources)
	return progress, nil
}

// History returns every entry of an application, newest first.
func (s *ProcessLogService) History(ctx context.Context, appID string) ([]*models.ProcessLogEntry, error) {
	entries, err := s.logs.ListLogsByAppID(ctx, appID)
	if err != nil {
		return nil, s.storeFailure(ctx, "list process logs", err, "app_id", appID)
	}
	return entries, nil
}

// Remove deletes an entry. It exists for administrative clean-up only.
func (s *ProcessLogService) Remove(ctx context.Context, logID string) error {
	if err := s.logs.DeleteLog(ctx, logID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("process log %s: %w", logID, err)
		}
		return s.storeFailure(ctx, "remove process log", err, "log_id", logID)
	}
	s.logger.Info("process log removed", "log_id", logID)
	return nil
}

func (s *ProcessLogService) storeFailure(ctx context.Context, op string, err error, args ...any) error {
	if isCancellation(err) {
		return err
	}
	s.metrics.storeFailures.Add(ctx, 1)
	s.logger.Error(op+" failed", append(args, "error", err)...)
	return &StoreError{Op: op, Err: err}
}
