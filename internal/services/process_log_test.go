package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

type processLogFixture struct {
	store *repository.MemoryStore
	svc   *ProcessLogService
	clock *testClock
}

func newProcessLogFixture(t *testing.T) *processLogFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	clock := newTestClock(time.Second)
	defs := NewDefinitionService(store, clock, nil)
	_, err := defs.Upsert(context.Background(), sampleGraph())
	require.NoError(t, err)
	return &processLogFixture{
		store: store,
		svc:   NewProcessLogService(store, defs, clock, nil),
		clock: clock,
	}
}

func (f *processLogFixture) insert(t *testing.T, appID, source, status string) string {
	t.Helper()
	id, err := f.svc.Insert(context.Background(), InsertLogRequest{
		AppID:        appID,
		TTable:       "t_credit",
		UserID:       "u1",
		SourceID:     source,
		EdgeID:       "edge-" + source,
		WorkflowCode: "W7",
		Status:       status,
	})
	require.NoError(t, err)
	return id
}

func TestInsertStartStoresWorkflowVersion(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	id, err := f.svc.Insert(ctx, InsertLogRequest{
		AppID:        "APP-1",
		SourceID:     models.StartSource,
		WorkflowCode: "W7",
		Notes:        "caller notes",
	})
	require.NoError(t, err)

	entry, err := f.svc.LatestByAppID(ctx, "APP-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, "v3", entry.Notes)
	assert.Equal(t, 7, entry.WorkflowID)
	assert.Equal(t, models.StatusProcess, entry.Status)
	assert.Nil(t, entry.FinishDate)
}

func TestInsertKeepsCallerNotesAfterStart(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	_, err := f.svc.Insert(ctx, InsertLogRequest{AppID: "APP-1", SourceID: "A", WorkflowCode: "7", Notes: "manual"})
	require.NoError(t, err)

	entry, err := f.svc.LatestByAppID(ctx, "APP-1")
	require.NoError(t, err)
	assert.Equal(t, "manual", entry.Notes)
}

func TestInsertInvalidWorkflowCode(t *testing.T) {
	f := newProcessLogFixture(t)
	_, err := f.svc.Insert(context.Background(), InsertLogRequest{AppID: "APP-1", SourceID: "A", WorkflowCode: "Wx"})
	assert.ErrorIs(t, err, models.ErrInvalidWorkflowCode)
	assert.False(t, IsStoreFailure(err))
}

func TestInsertStartWithMissingWorkflow(t *testing.T) {
	f := newProcessLogFixture(t)
	_, err := f.svc.Insert(context.Background(), InsertLogRequest{AppID: "APP-1", SourceID: "start", WorkflowCode: "W99"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInsertCancelledLeavesNoEntry(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Insert(ctx, InsertLogRequest{AppID: "APP-1", SourceID: "A", WorkflowCode: "W7"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsStoreFailure(err))

	entries, err := f.store.ListLogsByAppID(context.Background(), "APP-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdateStatus(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	id, err := f.svc.Insert(ctx, InsertLogRequest{
		AppID:        "APP-1",
		SourceID:     "A",
		EdgeID:       "e-a-b",
		WorkflowCode: "W7",
		Data:         map[string]interface{}{"attempt": 1, "channel": "web"},
	})
	require.NoError(t, err)
	before, err := f.svc.LatestByAppID(ctx, "APP-1")
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, id, "u2", "", map[string]interface{}{"attempt": 2, "score": 710})
	require.NoError(t, err)
	assert.Equal(t, id, got)

	after, err := f.svc.LatestByAppID(ctx, "APP-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinished, after.Status)
	assert.Equal(t, "u2", after.UserID)
	assert.Equal(t, "A", after.SourceID)
	assert.Equal(t, "e-a-b", after.EdgeID)
	require.NotNil(t, after.FinishDate)
	assert.True(t, after.ProcessingTime.After(before.ProcessingTime))
	assert.Equal(t, map[string]interface{}{"attempt": 2, "channel": "web", "score": 710}, after.Data)
}

func TestDataKeysThatWouldBecomePathsAreRejected(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	_, err := f.svc.Insert(ctx, InsertLogRequest{
		AppID:        "APP-1",
		SourceID:     "A",
		WorkflowCode: "W7",
		Data:         map[string]interface{}{"score.final": 1},
	})
	assert.ErrorIs(t, err, models.ErrInvalidDataKey)
	assert.False(t, IsStoreFailure(err))

	id, err := f.svc.Insert(ctx, InsertLogRequest{AppID: "APP-1", SourceID: "A", WorkflowCode: "W7",
		Data: map[string]interface{}{"score": 1}})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, id, "u1", "", map[string]interface{}{"$set": 2})
	assert.ErrorIs(t, err, models.ErrInvalidDataKey)

	entry, err := f.svc.LatestByAppID(ctx, "APP-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcess, entry.Status)
	assert.Equal(t, map[string]interface{}{"score": 1}, entry.Data)
}

func TestUpdateStatusUnknownID(t *testing.T) {
	f := newProcessLogFixture(t)
	_, err := f.svc.UpdateStatus(context.Background(), "nope", "u1", models.StatusFinished, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLatestByAppIDNone(t *testing.T) {
	f := newProcessLogFixture(t)
	entry, err := f.svc.LatestByAppID(context.Background(), "APP-404")
	assert.NoError(t, err)
	assert.Nil(t, entry)
}

func TestLatestByAppIDFollowsProcessingTime(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	first := f.insert(t, "APP-1", "start", "")
	f.insert(t, "APP-1", "A", "")
	_, err := f.svc.UpdateStatus(ctx, first, "u1", models.StatusFinished, nil)
	require.NoError(t, err)

	latest, err := f.svc.LatestByAppID(ctx, "APP-1")
	require.NoError(t, err)
	assert.Equal(t, first, latest.ID)
}

func TestCheckDependency(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	state, err := f.svc.CheckDependency(ctx, "A", "APP-1", 7)
	require.NoError(t, err)
	assert.Nil(t, state, "never attempted")

	id := f.insert(t, "APP-1", "A", "")
	state, err = f.svc.CheckDependency(ctx, "A", "APP-1", 7)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.False(t, state.Satisfied, "attempted but unfinished")
	assert.Equal(t, "edge-A", state.EdgeID)

	_, err = f.svc.UpdateStatus(ctx, id, "u1", "FINISHED", nil)
	require.NoError(t, err)
	state, err = f.svc.CheckDependency(ctx, "a", "APP-1", 7)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Satisfied)
	assert.Equal(t, id, state.LogID)
	assert.NotNil(t, state.FinishDate)

	state, err = f.svc.CheckDependency(ctx, "A", "APP-1", 8)
	require.NoError(t, err)
	assert.Nil(t, state, "other workflow")
}

func TestCheckDependencyUsesMostRecentEntry(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	f.insert(t, "APP-1", "A", models.StatusFinished)
	retry := f.insert(t, "APP-1", "A", "")

	state, err := f.svc.CheckDependency(ctx, "A", "APP-1", 7)
	require.NoError(t, err)
	assert.Equal(t, retry, state.LogID)
	assert.False(t, state.Satisfied)
}

func TestCalcProgressCountsDistinctSources(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	f.insert(t, "APP-1", "start", "")
	for i := 0; i < 3; i++ {
		f.insert(t, "APP-1", "A", "")
	}
	f.insert(t, "APP-2", "B", "")

	progress, err := f.svc.CalcProgress(ctx, sampleGraph(), "APP-1")
	require.NoError(t, err)
	assert.Equal(t, Progress{TotalSteps: 3, CurrentStep: 2}, progress)

	progress, err = f.svc.CalcProgress(ctx, nil, "APP-3")
	require.NoError(t, err)
	assert.Equal(t, Progress{}, progress)
}

func TestHistoryAndRemove(t *testing.T) {
	f := newProcessLogFixture(t)
	ctx := context.Background()

	first := f.insert(t, "APP-1", "start", "")
	second := f.insert(t, "APP-1", "A", "")

	history, err := f.svc.History(ctx, "APP-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second, history[0].ID)
	assert.Equal(t, first, history[1].ID)

	require.NoError(t, f.svc.Remove(ctx, second))
	history, err = f.svc.History(ctx, "APP-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	assert.ErrorIs(t, f.svc.Remove(ctx, second), repository.ErrNotFound)
}

func TestProcessLogStoreFailuresAreDistinguishable(t *testing.T) {
	store := brokenStore{MemoryStore: repository.NewMemoryStore()}
	seedGraph(store, sampleGraph())
	svc := NewProcessLogService(store, NewDefinitionService(store, nil, nil), nil, nil)
	ctx := context.Background()

	_, err := svc.Insert(ctx, InsertLogRequest{AppID: "APP-1", SourceID: "start", WorkflowCode: "W7"})
	assert.True(t, IsStoreFailure(err))
	assert.ErrorIs(t, err, errStoreDown)

	entry, err := svc.LatestByAppID(ctx, "APP-1")
	assert.Nil(t, entry)
	assert.True(t, IsStoreFailure(err))

	state, err := svc.CheckDependency(ctx, "A", "APP-1", 7)
	assert.Nil(t, state)
	assert.True(t, IsStoreFailure(err))

	_, err = svc.CalcProgress(ctx, sampleGraph(), "APP-1")
	assert.True(t, IsStoreFailure(err))

	_, err = svc.UpdateStatus(ctx, "id", "u1", models.StatusFinished, nil)
	assert.True(t, IsStoreFailure(err))

	_, err = svc.History(ctx, "APP-1")
	assert.True(t, IsStoreFailure(err))

	assert.True(t, IsStoreFailure(svc.Remove(ctx, "id")))
}
