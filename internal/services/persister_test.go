package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-engine/backend/internal/config"
	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

// gatedStore blocks UpsertTTable until release is closed.
type gatedStore struct {
	*repository.MemoryStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: repository.NewMemoryStore(),
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (s *gatedStore) UpsertTTable(ctx context.Context, t *models.TTable) error {
	s.once.Do(func() { close(s.started) })
	<-s.release
	return s.MemoryStore.UpsertTTable(ctx, t)
}

func ttableWith(appID string, fields map[string]interface{}) *models.TTable {
	t := models.NewTTable(appID)
	t.Merge(fields)
	return t
}

func TestPersisterWritesAfterFlush(t *testing.T) {
	store := repository.NewMemoryStore()
	p := NewPersister(store, config.PersisterConfig{Workers: 3, QueueSize: 30}, nil)
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Enqueue(ctx, ttableWith(fmt.Sprintf("APP-%d", i), map[string]interface{}{"n": i})))
	}
	p.Flush()

	for i := 0; i < 10; i++ {
		got, err := store.GetTTable(ctx, fmt.Sprintf("APP-%d", i))
		require.NoError(t, err)
		assert.Equal(t, i, got.Fields["n"])
	}
}

func TestPersisterKeepsPerAppOrder(t *testing.T) {
	store := repository.NewMemoryStore()
	p := NewPersister(store, config.PersisterConfig{Workers: 4, QueueSize: 400}, nil)
	defer p.Close()
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, p.Enqueue(ctx, ttableWith("APP-1", map[string]interface{}{"version": i})))
	}
	p.Flush()

	got, err := store.GetTTable(ctx, "APP-1")
	require.NoError(t, err)
	assert.Equal(t, 49, got.Fields["version"])
}

func TestPersisterOutlivesCallerContext(t *testing.T) {
	store := newGatedStore()
	p := NewPersister(store, config.PersisterConfig{Workers: 1, QueueSize: 1, WriteTimeout: time.Second}, nil)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Enqueue(ctx, ttableWith("APP-1", map[string]interface{}{"a": 1})))
	<-store.started
	cancel()
	close(store.release)
	p.Flush()

	got, err := store.GetTTable(context.Background(), "APP-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Fields["a"])
	select {
	case perr := <-p.Errors():
		t.Fatalf("unexpected persist error: %v", perr)
	default:
	}
}

func TestPersisterReportsFailures(t *testing.T) {
	store := brokenStore{MemoryStore: repository.NewMemoryStore()}
	p := NewPersister(store, config.PersisterConfig{Workers: 1, QueueSize: 4}, nil)
	defer p.Close()

	require.NoError(t, p.Enqueue(context.Background(), models.NewTTable("APP-9")))
	p.Flush()

	select {
	case perr := <-p.Errors():
		assert.Equal(t, "APP-9", perr.AppID)
		assert.ErrorIs(t, perr, errStoreDown)
	case <-time.After(time.Second):
		t.Fatal("expected a persist error")
	}
}

func TestPersisterQueueFull(t *testing.T) {
	store := newGatedStore()
	p := NewPersister(store, config.PersisterConfig{Workers: 1, QueueSize: 1}, nil)
	ctx := context.Background()

	require.NoError(t, p.Enqueue(ctx, models.NewTTable("APP-1")))
	<-store.started
	require.NoError(t, p.Enqueue(ctx, models.NewTTable("APP-2")))

	err := p.Enqueue(ctx, models.NewTTable("APP-3"))
	assert.ErrorIs(t, err, ErrPersistQueueFull)

	perr := <-p.Errors()
	assert.Equal(t, "APP-3", perr.AppID)
	assert.ErrorIs(t, perr, ErrPersistQueueFull)

	close(store.release)
	p.Close()
	_, err = store.GetTTable(ctx, "APP-2")
	assert.NoError(t, err, "Close drains queued writes")
}

func TestPersisterFlushWaitsForWritesEnqueuedMeanwhile(t *testing.T) {
	store := newGatedStore()
	p := NewPersister(store, config.PersisterConfig{Workers: 1, QueueSize: 4}, nil)
	defer p.Close()
	ctx := context.Background()

	require.NoError(t, p.Enqueue(ctx, models.NewTTable("APP-1")))
	<-store.started

	flushed := make(chan struct{})
	go func() {
		p.Flush()
		close(flushed)
	}()
	assert.Never(t, func() bool {
		select {
		case <-flushed:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond)

	require.NoError(t, p.Enqueue(ctx, models.NewTTable("APP-2")))
	close(store.release)
	<-flushed

	_, err := store.GetTTable(ctx, "APP-1")
	assert.NoError(t, err)
	_, err = store.GetTTable(ctx, "APP-2")
	assert.NoError(t, err)
}

func TestPersisterFlushConcurrentWithEnqueue(t *testing.T) {
	store := repository.NewMemoryStore()
	p := NewPersister(store, config.PersisterConfig{Workers: 2, QueueSize: 512}, nil)
	defer p.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = p.Enqueue(ctx, ttableWith(fmt.Sprintf("APP-%d", i%8), map[string]interface{}{"n": i}))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			p.Flush()
		}
	}()
	wg.Wait()
	p.Flush()

	got, err := store.GetTTable(ctx, "APP-7")
	require.NoError(t, err)
	assert.Equal(t, 199, got.Fields["n"])
}

func TestPersisterClosed(t *testing.T) {
	p := NewPersister(repository.NewMemoryStore(), config.PersisterConfig{}, nil)
	p.Close()
	p.Close()

	assert.ErrorIs(t, p.Enqueue(context.Background(), models.NewTTable("APP-1")), ErrPersisterClosed)
	_, open := <-p.Errors()
	assert.False(t, open)
}
