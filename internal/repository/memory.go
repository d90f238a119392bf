package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"workflow-engine/backend/pkg/models"
)

// MemoryStore is an in-process Repository. It backs the "memory" store
// driver and the service tests.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*models.WorkflowGraph
	logs      map[string]*models.ProcessLogEntry
	ttables   map[string]*models.TTable
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*models.WorkflowGraph),
		logs:      make(map[string]*models.ProcessLogEntry),
		ttables:   make(map[string]*models.TTable),
	}
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, code string) (*models.WorkflowGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.workflows[code]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGraph(g), nil
}

func (s *MemoryStore) UpsertWorkflow(ctx context.Context, graph *models.WorkflowGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[graph.FlowsCode] = copyGraph(graph)
	return nil
}

func (s *MemoryStore) InsertLog(ctx context.Context, entry *models.ProcessLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[entry.ID] = copyLog(entry)
	return nil
}

func (s *MemoryStore) UpdateLogStatus(ctx context.Context, id string, update models.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.logs[id]
	if !ok {
		return ErrNotFound
	}
	finish := update.FinishDate
	entry.Status = update.Status
	entry.UserID = update.UserID
	entry.FinishDate = &finish
	entry.ProcessingTime = update.FinishDate
	if len(update.Data) > 0 {
		if entry.Data == nil {
			entry.Data = make(map[string]interface{}, len(update.Data))
		}
		for k, v := range update.Data {
			entry.Data[k] = copyValue(v)
		}
	}
	return nil
}

func (s *MemoryStore) LatestLogByAppID(ctx context.Context, appID string) (*models.ProcessLogEntry, error) {
	entries, err := s.ListLogsByAppID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ProcessingTime.Equal(entries[j].ProcessingTime) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].ProcessingTime.After(entries[j].ProcessingTime)
	})
	return entries[0], nil
}

func (s *MemoryStore) LatestLogBySource(ctx context.Context, appID string, workflowID int, sourceID string) (*models.ProcessLogEntry, error) {
	entries, err := s.ListLogsByAppID(ctx, appID)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.WorkflowID == workflowID && strings.EqualFold(e.SourceID, sourceID) {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) DistinctSources(ctx context.Context, appID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var sources []string
	for _, e := range s.logs {
		if e.AppID != appID {
			continue
		}
		if _, ok := seen[e.SourceID]; ok {
			continue
		}
		seen[e.SourceID] = struct{}{}
		sources = append(sources, e.SourceID)
	}
	sort.Strings(sources)
	return sources, nil
}

func (s *MemoryStore) ListLogsByAppID(ctx context.Context, appID string) ([]*models.ProcessLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []*models.ProcessLogEntry
	for _, e := range s.logs {
		if e.AppID == appID {
			entries = append(entries, copyLog(e))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	return entries, nil
}

func (s *MemoryStore) DeleteLog(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.logs[id]; !ok {
		return ErrNotFound
	}
	delete(s.logs, id)
	return nil
}

func (s *MemoryStore) GetTTable(ctx context.Context, appID string) (*models.TTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.ttables[appID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTTable(t), nil
}

func (s *MemoryStore) UpsertTTable(ctx context.Context, ttable *models.TTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ttables[ttable.AppID] = copyTTable(ttable)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func copyGraph(g *models.WorkflowGraph) *models.WorkflowGraph {
	out := *g
	out.Extra = copyMap(g.Extra)
	out.Nodes = make([]models.Node, len(g.Nodes))
	for i, n := range g.Nodes {
		n.Data = copyMap(n.Data)
		n.Extra = copyMap(n.Extra)
		out.Nodes[i] = n
	}
	out.Edges = make([]models.Edge, len(g.Edges))
	for i, e := range g.Edges {
		e.Extra = copyMap(e.Extra)
		e.Data.Extra = copyMap(e.Data.Extra)
		out.Edges[i] = e
	}
	return &out
}

func copyLog(e *models.ProcessLogEntry) *models.ProcessLogEntry {
	out := *e
	out.Data = copyMap(e.Data)
	if e.FinishDate != nil {
		finish := *e.FinishDate
		out.FinishDate = &finish
	}
	return &out
}

func copyTTable(t *models.TTable) *models.TTable {
	out := *t
	out.Fields = copyMap(t.Fields)
	if out.Fields == nil {
		out.Fields = map[string]interface{}{}
	}
	return &out
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
