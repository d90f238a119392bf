package services

import (
	"context"
	"errors"
	"fmt"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

// DefinitionService loads and stores workflow graphs by code.
type DefinitionService struct {
	repo   repository.WorkflowRepository
	clock  Clock
	logger Logger
}

// NewDefinitionService creates a DefinitionService. A nil clock uses the system clock.
func NewDefinitionService(repo repository.WorkflowRepository, clock Clock, logger Logger) *DefinitionService {
	return &DefinitionService{repo: repo, clock: orSystem(clock), logger: orNop(logger)}
}

// Get returns the graph for code, normalized to "W<id>". A missing graph
// is reported as repository.ErrNotFound; navigation cannot proceed without it.
func (s *DefinitionService) Get(ctx context.Context, code string) (*models.WorkflowGraph, error) {
	code = models.NormalizeCode(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", models.ErrInvalidWorkflowCode)
	}

	graph, err := s.repo.GetWorkflow(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("workflow %s: %w", code, err)
		}
		if isCancellation(err) {
			return nil, err
		}
		s.logger.Error("failed to load workflow", "flows_code", code, "error", err)
		return nil, &StoreError{Op: "get workflow " + code, Err: err}
	}
	return graph, nil
}

// Upsert replaces the graph stored under its flows_code, creating it if
// absent, and stamps processing_time. The stored copy is returned.
func (s *DefinitionService) Upsert(ctx context.Context, graph *models.WorkflowGraph) (*models.WorkflowGraph, error) {
	if graph == nil {
		return nil, errors.New("workflow graph is required")
	}
	stored := *graph
	stored.FlowsCode = models.NormalizeCode(graph.FlowsCode)
	if _, err := stored.WorkflowID(); err != nil {
		return nil, err
	}
	if stored.Nodes == nil {
		stored.Nodes = []models.Node{}
	}
	if stored.Edges == nil {
		stored.Edges = []models.Edge{}
	}
	stored.ProcessingTime = s.clock.Now()

	if err := s.repo.UpsertWorkflow(ctx, &stored); err != nil {
		if isCancellation(err) {
			return nil, err
		}
		s.logger.Error("failed to upsert workflow", "flows_code", stored.FlowsCode, "error", err)
		return nil, &StoreError{Op: "upsert workflow " + stored.FlowsCode, Err: err}
	}
	s.logger.Info("workflow upserted", "flows_code", stored.FlowsCode, "version", stored.Version,
		"nodes", len(stored.Nodes), "edges", len(stored.Edges))
	return &stored, nil
}
