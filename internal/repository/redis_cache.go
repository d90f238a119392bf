package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"workflow-engine/backend/pkg/models"
)

const workflowCachePrefix = "workflow:graph:"

// CachedWorkflowRepository is a read-through Redis cache in front of a
// WorkflowRepository. Graphs are read-mostly configuration, so entries live
// until the TTL expires or the graph is upserted through this repository.
// Cache errors never fail a read; the underlying repository is authoritative.
type CachedWorkflowRepository struct {
	next   WorkflowRepository
	client redis.Cmdable
	ttl    time.Duration
	logger Logger
}

// Logger receives cache failures, which are never returned to callers.
type Logger interface {
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// NewCachedWorkflowRepository wraps next with a Redis cache. logger may be nil.
func NewCachedWorkflowRepository(next WorkflowRepository, client redis.Cmdable, ttl time.Duration, logger Logger) *CachedWorkflowRepository {
	if logger == nil {
		logger = nopLogger{}
	}
	return &CachedWorkflowRepository{next: next, client: client, ttl: ttl, logger: logger}
}

func (c *CachedWorkflowRepository) GetWorkflow(ctx context.Context, code string) (*models.WorkflowGraph, error) {
	raw, err := c.client.Get(ctx, workflowCachePrefix+code).Bytes()
	if err == nil {
		var graph models.WorkflowGraph
		if json.Unmarshal(raw, &graph) == nil {
			return &graph, nil
		}
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	graph, err := c.next.GetWorkflow(ctx, code)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(graph)
	if err != nil {
		c.logger.Warn("failed to encode workflow for cache", "flows_code", code, "error", err)
		return graph, nil
	}
	if err := c.client.Set(ctx, workflowCachePrefix+code, doc, c.ttl).Err(); err != nil {
		c.logger.Warn("failed to cache workflow", "flows_code", code, "error", err)
	}
	return graph, nil
}

// UpsertWorkflow writes through and drops the cached copy. A failed
// invalidation is logged; the entry then expires with its TTL.
func (c *CachedWorkflowRepository) UpsertWorkflow(ctx context.Context, graph *models.WorkflowGraph) error {
	if err := c.next.UpsertWorkflow(ctx, graph); err != nil {
		return err
	}
	if err := c.client.Del(ctx, workflowCachePrefix+graph.FlowsCode).Err(); err != nil {
		c.logger.Warn("failed to invalidate cached workflow, stale until ttl", "flows_code", graph.FlowsCode,
			"ttl", c.ttl, "error", err)
	}
	return nil
}

// cachedStore swaps the workflow methods of a Repository for a cached view.
type cachedStore struct {
	Repository
	workflows *CachedWorkflowRepository
	client    *redis.Client
}

func (s *cachedStore) GetWorkflow(ctx context.Context, code string) (*models.WorkflowGraph, error) {
	return s.workflows.GetWorkflow(ctx, code)
}

func (s *cachedStore) UpsertWorkflow(ctx context.Context, graph *models.WorkflowGraph) error {
	return s.workflows.UpsertWorkflow(ctx, graph)
}

func (s *cachedStore) Close(ctx context.Context) error {
	return errors.Join(s.Repository.Close(ctx), s.client.Close())
}
