package repository

import (
	"context"
	"errors"

	"workflow-engine/backend/pkg/models"
)

// ErrNotFound is returned when no document matches a lookup.
var ErrNotFound = errors.New("not found")

// WorkflowRepository persists workflow graph definitions keyed by flows_code.
type WorkflowRepository interface {
	// GetWorkflow returns the graph stored under code.
	GetWorkflow(ctx context.Context, code string) (*models.WorkflowGraph, error)
	// UpsertWorkflow replaces the whole document, creating it when absent.
	UpsertWorkflow(ctx context.Context, graph *models.WorkflowGraph) error
}

// ProcessLogRepository stores the step execution history of applications.
type ProcessLogRepository interface {
	// InsertLog writes a new entry. The write is atomic for the single document.
	InsertLog(ctx context.Context, entry *models.ProcessLogEntry) error
	// UpdateLogStatus sets status, user, finish date and processing time and
	// shallow-merges data into the entry's data.
	UpdateLogStatus(ctx context.Context, id string, update models.StatusUpdate) error
	// LatestLogByAppID returns the entry with the newest processing_time.
	LatestLogByAppID(ctx context.Context, appID string) (*models.ProcessLogEntry, error)
	// LatestLogBySource returns the newest entry, by id, for the source,
	// matching source_id case-insensitively.
	LatestLogBySource(ctx context.Context, appID string, workflowID int, sourceID string) (*models.ProcessLogEntry, error)
	// DistinctSources lists the distinct source ids logged for an application.
	DistinctSources(ctx context.Context, appID string) ([]string, error)
	// ListLogsByAppID returns every entry of an application, newest first.
	ListLogsByAppID(ctx context.Context, appID string) ([]*models.ProcessLogEntry, error)
	// DeleteLog removes an entry.
	DeleteLog(ctx context.Context, id string) error
}

// TTableRepository stores the per-application working records.
type TTableRepository interface {
	GetTTable(ctx context.Context, appID string) (*models.TTable, error)
	UpsertTTable(ctx context.Context, ttable *models.TTable) error
}

// Repository is the full document store used by the engine.
type Repository interface {
	WorkflowRepository
	ProcessLogRepository
	TTableRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
