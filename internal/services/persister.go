package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"workflow-engine/backend/internal/config"
	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

// PersistError reports a TTable write that did not land.
type PersistError struct {
	AppID string
	Err   error
}

func (e PersistError) Error() string {
	return fmt.Sprintf("persist ttable %s: %v", e.AppID, e.Err)
}

func (e PersistError) Unwrap() error {
	return e.Err
}

type persistJob struct {
	ctx    context.Context
	ttable *models.TTable
}

// Persister writes merged TTables in the background so a merge can return
// before the store acknowledges it. Each application is pinned to one
// worker, so writes for the same app_id land in enqueue order. Failures are
// published on Errors() instead of being dropped silently.
type Persister struct {
	repo    repository.TTableRepository
	queues  []chan persistJob
	errs    chan PersistError
	timeout time.Duration
	logger  Logger
	metrics *instruments

	mu     sync.RWMutex
	closed bool
	group  errgroup.Group

	// pending counts enqueued writes not yet attempted.
	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int
}

// NewPersister starts cfg.Workers writers sharing cfg.QueueSize slots.
func NewPersister(repo repository.TTableRepository, cfg config.PersisterConfig, logger Logger) *Persister {
	workers := max(cfg.Workers, 1)
	perQueue := max(cfg.QueueSize/workers, 1)

	p := &Persister{
		repo:    repo,
		queues:  make([]chan persistJob, workers),
		errs:    make(chan PersistError, max(cfg.QueueSize, 16)),
		timeout: cfg.WriteTimeout,
		logger:  orNop(logger),
		metrics: newInstruments(),
	}
	p.idle = sync.NewCond(&p.pendingMu)
	for i := range p.queues {
		q := make(chan persistJob, perQueue)
		p.queues[i] = q
		p.group.Go(func() error {
			p.run(q)
			return nil
		})
	}
	return p
}

// Enqueue schedules ttable for writing without waiting for the store. The
// write outlives ctx cancellation but keeps its values. A full queue is
// reported both as the return value and on Errors().
func (p *Persister) Enqueue(ctx context.Context, ttable *models.TTable) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPersisterClosed
	}
	job := persistJob{ctx: context.WithoutCancel(ctx), ttable: ttable}
	p.addPending(1)
	select {
	case p.queueFor(ttable.AppID) <- job:
		return nil
	default:
		p.addPending(-1)
		p.report(ctx, ttable.AppID, ErrPersistQueueFull)
		return ErrPersistQueueFull
	}
}

// Errors returns the channel failed writes are published on. It is closed by Close.
func (p *Persister) Errors() <-chan PersistError {
	return p.errs
}

// Flush blocks until no write is waiting or in flight. It may run
// concurrently with Enqueue; writes enqueued while it waits are waited for too.
func (p *Persister) Flush() {
	p.pendingMu.Lock()
	for p.pending > 0 {
		p.idle.Wait()
	}
	p.pendingMu.Unlock()
}

func (p *Persister) addPending(delta int) {
	p.pendingMu.Lock()
	p.pending += delta
	if p.pending == 0 {
		p.idle.Broadcast()
	}
	p.pendingMu.Unlock()
}

// Close stops accepting writes, drains the queues and closes Errors().
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	_ = p.group.Wait()
	close(p.errs)
}

func (p *Persister) run(queue <-chan persistJob) {
	for job := range queue {
		p.write(job)
		p.addPending(-1)
	}
}

func (p *Persister) write(job persistJob) {
	ctx := job.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.repo.UpsertTTable(ctx, job.ttable); err != nil {
		p.report(ctx, job.ttable.AppID, err)
		return
	}
	p.logger.Debug("ttable persisted", "app_id", job.ttable.AppID)
}

func (p *Persister) report(ctx context.Context, appID string, err error) {
	p.metrics.persistFailures.Add(ctx, 1)
	p.logger.Error("failed to persist ttable", "app_id", appID, "error", err)
	select {
	case p.errs <- PersistError{AppID: appID, Err: err}:
	default:
		p.logger.Warn("persist error channel full, dropping report", "app_id", appID)
	}
}

func (p *Persister) queueFor(appID string) chan persistJob {
	h := fnv.New32a()
	h.Write([]byte(appID))
	return p.queues[h.Sum32()%uint32(len(p.queues))]
}
