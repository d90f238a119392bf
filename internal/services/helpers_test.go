package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

var errStoreDown = errors.New("connection refused")

// testClock returns now and then advances it by step.
type testClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newTestClock(step time.Duration) *testClock {
	return &testClock{now: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), step: step}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// brokenStore fails every process log and TTable call but serves workflows.
type brokenStore struct {
	*repository.MemoryStore
}

func (brokenStore) InsertLog(context.Context, *models.ProcessLogEntry) error { return errStoreDown }
func (brokenStore) UpdateLogStatus(context.Context, string, models.StatusUpdate) error {
	return errStoreDown
}
func (brokenStore) LatestLogByAppID(context.Context, string) (*models.ProcessLogEntry, error) {
	return nil, errStoreDown
}
func (brokenStore) LatestLogBySource(context.Context, string, int, string) (*models.ProcessLogEntry, error) {
	return nil, errStoreDown
}
func (brokenStore) DistinctSources(context.Context, string) ([]string, error) {
	return nil, errStoreDown
}
func (brokenStore) ListLogsByAppID(context.Context, string) ([]*models.ProcessLogEntry, error) {
	return nil, errStoreDown
}
func (brokenStore) DeleteLog(context.Context, string) error { return errStoreDown }
func (brokenStore) GetTTable(context.Context, string) (*models.TTable, error) {
	return nil, errStoreDown
}
func (brokenStore) UpsertTTable(context.Context, *models.TTable) error { return errStoreDown }

// sampleGraph is start -> A ("go"), A -> B ("approve"), A -> C ("reject").
func sampleGraph() *models.WorkflowGraph {
	return &models.WorkflowGraph{
		FlowsCode: "W7",
		Name:      "credit application",
		Version:   "v3",
		Nodes: []models.Node{
			{ID: "start", Type: "input"},
			{ID: "A", Type: "decision_flow"},
			{ID: "B", Type: "notification"},
			{ID: "C", Type: "notification"},
			{ID: "end", Type: "output"},
		},
		Edges: []models.Edge{
			{ID: "e-start-a", Source: "start", Target: "A", Data: models.EdgeData{Label: "go", ID: "d1"}},
			{ID: "e-a-b", Source: "A", Target: "B", Data: models.EdgeData{Label: "approve", ID: "d2"}},
			{ID: "e-a-c", Source: "A", Target: "C", Data: models.EdgeData{Label: "reject", ID: "d3"}},
		},
	}
}

func seedGraph(store repository.WorkflowRepository, graph *models.WorkflowGraph) {
	if err := store.UpsertWorkflow(context.Background(), graph); err != nil {
		panic(err)
	}
}
