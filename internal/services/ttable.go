package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

// PersistQueue accepts TTables for background persistence.
type PersistQueue interface {
	Enqueue(ctx context.Context, ttable *models.TTable) error
}

// TTableService reads and writes TTables and folds decision-flow results
// into them.
type TTableService struct {
	repo    repository.TTableRepository
	queue   PersistQueue
	clock   Clock
	logger  Logger
	metrics *instruments
}

// NewTTableService creates a TTableService. Merged tables are handed to queue.
func NewTTableService(repo repository.TTableRepository, queue PersistQueue, clock Clock, logger Logger) *TTableService {
	return &TTableService{
		repo:    repo,
		queue:   queue,
		clock:   orSystem(clock),
		logger:  orNop(logger),
		metrics: newInstruments(),
	}
}

// Get returns the TTable of appID, or repository.ErrNotFound.
func (s *TTableService) Get(ctx context.Context, appID string) (*models.TTable, error) {
	ttable, err := s.repo.GetTTable(ctx, appID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("ttable %s: %w", appID, err)
		}
		return nil, s.storeFailure(ctx, "get ttable", err, appID)
	}
	return ttable, nil
}

// Upsert replaces the whole document keyed by app_id and stamps
// processing_time. It waits for the store.
func (s *TTableService) Upsert(ctx context.Context, ttable *models.TTable) (string, error) {
	if ttable == nil || strings.TrimSpace(ttable.AppID) == "" {
		return "", errors.New("ttable app_id is required")
	}
	stored := ttable.Clone()
	stored.ProcessingTime = s.clock.Now()
	if err := s.repo.UpsertTTable(ctx, stored); err != nil {
		return "", s.storeFailure(ctx, "upsert ttable", err, stored.AppID)
	}
	ttable.ProcessingTime = stored.ProcessingTime
	s.logger.Debug("ttable upserted", "app_id", stored.AppID, "fields", len(stored.Fields))
	return stored.AppID, nil
}

// MergeStageResults folds every data.stages[].result[] field of out into a
// copy of ttable and returns it without waiting for the write. Later stages
// win over earlier ones. The input table is not modified.
func (s *TTableService) MergeStageResults(ctx context.Context, ttable *models.TTable, out DecisionFlowOutput) (*models.TTable, error) {
	return s.merge(ctx, ttable, out.StageFields(), "stages")
}

// MergeTempResults folds the non-blank data.temp_results of out into a copy
// of ttable, the same way MergeStageResults does.
func (s *TTableService) MergeTempResults(ctx context.Context, ttable *models.TTable, out DecisionFlowOutput) (*models.TTable, error) {
	return s.merge(ctx, ttable, out.TempFields(), "temp_results")
}

func (s *TTableService) merge(ctx context.Context, ttable *models.TTable, fields map[string]interface{}, source string) (*models.TTable, error) {
	if ttable == nil {
		return nil, errors.New("ttable is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := ttable.Clone()
	if len(fields) == 0 {
		return merged, nil
	}
	merged.Merge(fields)
	merged.ProcessingTime = s.clock.Now()
	s.metrics.merges.Add(ctx, 1)
	s.logger.Debug("decision flow results merged", "app_id", merged.AppID, "source", source, "fields", len(fields))

	if err := s.queue.Enqueue(ctx, merged.Clone()); err != nil {
		if isCancellation(err) {
			return nil, err
		}
		return merged, &StoreError{Op: "enqueue ttable " + merged.AppID, Err: err}
	}
	return merged, nil
}

func (s *TTableService) storeFailure(ctx context.Context, op string, err error, appID string) error {
	if isCancellation(err) {
		return err
	}
	s.metrics.storeFailures.Add(ctx, 1)
	s.logger.Error(op+" failed", "app_id", appID, "error", err)
	return &StoreError{Op: op, Err: err}
}
