package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/logger"
)

// Task is the work run for one media id once it holds a slot.
type Task func(ctx context.Context, runID uuid.UUID) error

// ActiveJob is a snapshot of one in-flight id.
type ActiveJob struct {
	ID        string    `json:"id"`
	RunID     uuid.UUID `json:"runId"`
	Started   time.Time `json:"started"`
	Admitted  bool      `json:"admitted"`
	Cancelled bool      `json:"cancelled"`
}

type job struct {
	ActiveJob
	cancel context.CancelFunc
}

// Engine admits at most maxConcurrent tasks at a time and at most one task
// per media id. A second request for an id that is queued or running is
// rejected instead of waiting.
type Engine struct {
	mu sync.Mutex

	sem    *semaphore.Weighted
	active map[string]*job

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	running bool
}

// New creates a new Engine instance
func New(maxConcurrent int) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	ctx, cancelFunc := context.WithCancel(context.Background())

	return &Engine{
		sem:        semaphore.NewWeighted(int64(maxConcurrent)),
		active:     make(map[string]*job),
		ctx:        ctx,
		cancelFunc: cancelFunc,
		running:    true,
	}
}

// Run claims id, waits for a free slot and runs task. The task context is
// cancelled when ctx is done, when Cancel(id) is called or on Shutdown.
func (e *Engine) Run(ctx context.Context, id string, task Task) error {
	j, jobCtx, err := e.claim(ctx, id)
	if err != nil {
		return err
	}
	defer e.release(id, j)

	if err := e.sem.Acquire(jobCtx, 1); err != nil {
		return e.contextError(jobCtx, id)
	}
	defer e.sem.Release(1)

	e.mu.Lock()
	j.Admitted = true
	e.mu.Unlock()

	logger.Debugf("Job %s admitted (run %s)", id, j.RunID)

	return task(jobCtx, j.RunID)
}

func (e *Engine) claim(ctx context.Context, id string) (*job, context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil, nil, errors.NewContextError(errors.ErrShuttingDown, id)
	}

	if prev, ok := e.active[id]; ok {
		return nil, nil, errors.WithDetails(errors.NewConflictError(errors.ErrJobInProgress, id), map[string]interface{}{
			"runId":    prev.RunID.String(),
			"started":  prev.Started.UTC(),
			"admitted": prev.Admitted,
		})
	}

	jobCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)

	j := &job{
		ActiveJob: ActiveJob{
			ID:      id,
			RunID:   uuid.New(),
			Started: time.Now(),
		},
		cancel: func() {
			stop()
			cancel()
		},
	}

	e.active[id] = j
	e.wg.Add(1)

	return j, jobCtx, nil
}

func (e *Engine) release(id string, j *job) {
	e.mu.Lock()
	if cur, ok := e.active[id]; ok && cur == j {
		delete(e.active, id)
	}
	e.mu.Unlock()

	j.cancel()
	e.wg.Done()
}

func (e *Engine) contextError(ctx context.Context, id string) error {
	if e.ctx.Err() != nil {
		return errors.NewContextError(errors.ErrShuttingDown, id)
	}

	return errors.NewContextError(context.Cause(ctx), id)
}

// Cancel stops the job for id if one is queued or running.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	j, ok := e.active[id]
	if ok {
		j.Cancelled = true
	}
	e.mu.Unlock()

	if ok {
		j.cancel()
	}

	return ok
}

// IsActive reports whether id is queued or running.
func (e *Engine) IsActive(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.active[id]
	return ok
}

// Active returns the in-flight jobs ordered by start time.
func (e *Engine) Active() []ActiveJob {
	e.mu.Lock()
	jobs := make([]ActiveJob, 0, len(e.active))
	for _, j := range e.active {
		jobs = append(jobs, j.ActiveJob)
	}
	e.mu.Unlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].Started.Before(jobs[k].Started)
	})

	return jobs
}

// Shutdown rejects new jobs, cancels the running ones and waits for them to
// return or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	n := len(e.active)
	e.mu.Unlock()

	logger.Infof("Shutting down engine, cancelling %d job(s)", n)
	e.cancelFunc()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.NewContextError(ctx.Err(), "engine")
	}
}
