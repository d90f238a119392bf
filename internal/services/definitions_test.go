package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

type failingWorkflows struct{}

func (failingWorkflows) GetWorkflow(context.Context, string) (*models.WorkflowGraph, error) {
	return nil, errStoreDown
}

func (failingWorkflows) UpsertWorkflow(context.Context, *models.WorkflowGraph) error {
	return errStoreDown
}

func TestDefinitionUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Minute)
	svc := NewDefinitionService(repository.NewMemoryStore(), clock, nil)

	graph := sampleGraph()
	graph.FlowsCode = "7"
	stored, err := svc.Upsert(ctx, graph)
	require.NoError(t, err)
	assert.Equal(t, "W7", stored.FlowsCode)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), stored.ProcessingTime)
	assert.Equal(t, "7", graph.FlowsCode, "caller graph must not be modified")

	for _, code := range []string{"W7", "w7", "7"} {
		got, err := svc.Get(ctx, code)
		require.NoError(t, err, code)
		assert.Equal(t, "v3", got.Version)
		assert.Len(t, got.Edges, 3)
	}

	again, err := svc.Upsert(ctx, graph)
	require.NoError(t, err)
	assert.True(t, again.ProcessingTime.After(stored.ProcessingTime))
}

func TestDefinitionUpsertFillsEmptyCollections(t *testing.T) {
	svc := NewDefinitionService(repository.NewMemoryStore(), nil, nil)
	stored, err := svc.Upsert(context.Background(), &models.WorkflowGraph{FlowsCode: "W2"})
	require.NoError(t, err)
	assert.NotNil(t, stored.Nodes)
	assert.NotNil(t, stored.Edges)
}

func TestDefinitionGetMissing(t *testing.T) {
	svc := NewDefinitionService(repository.NewMemoryStore(), nil, nil)
	_, err := svc.Get(context.Background(), "W404")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Contains(t, err.Error(), "W404")
	assert.False(t, IsStoreFailure(err))
}

func TestDefinitionInvalidCode(t *testing.T) {
	svc := NewDefinitionService(repository.NewMemoryStore(), nil, nil)

	_, err := svc.Get(context.Background(), "  ")
	assert.ErrorIs(t, err, models.ErrInvalidWorkflowCode)

	_, err = svc.Upsert(context.Background(), &models.WorkflowGraph{FlowsCode: "Wabc"})
	assert.ErrorIs(t, err, models.ErrInvalidWorkflowCode)

	_, err = svc.Upsert(context.Background(), nil)
	assert.Error(t, err)
}

func TestDefinitionStoreFailure(t *testing.T) {
	svc := NewDefinitionService(failingWorkflows{}, nil, nil)

	_, err := svc.Get(context.Background(), "W1")
	assert.True(t, IsStoreFailure(err))
	assert.ErrorIs(t, err, errStoreDown)

	_, err = svc.Upsert(context.Background(), sampleGraph())
	var storeErr *StoreError
	require.True(t, errors.As(err, &storeErr))
	assert.Equal(t, "upsert workflow W7", storeErr.Op)
}
