package sched

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FireFunc is the callback invoked when a trigger comes due. It
// receives the job id registered as the trigger payload; the fire path
// re-reads the job from the store, so a stale snapshot is never
// executed. Taking a function here breaks the import cycle with the
// execution envelope.
type FireFunc func(ctx context.Context, jobID uuid.UUID)

// fireQueueSize bounds how many due job ids may wait for a worker
// before producers block.
const fireQueueSize = 256

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLimits sets fire-path admission limits.
func WithLimits(l Limits) EngineOption {
	return func(e *Engine) { e.limits = l.normalized() }
}

// WithEngineClock overrides the engine's clock.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// trigger is the pending timer for one job id.
type trigger struct {
	timer *time.Timer
	at    time.Time
}

// Engine owns at most one live trigger per job id, each backed by a
// time.Timer, and fires due job ids into a bounded worker pool. All
// trigger bookkeeping happens under one mutex so that replace and
// cancel are atomic with respect to a concurrently expiring timer.
type Engine struct {
	fire   FireFunc
	limits Limits
	gate   *Gate
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	triggers map[uuid.UUID]*trigger
	running  bool

	fires  chan uuid.UUID
	stopCh chan struct{}
	wg     sync.WaitGroup

	activeMu    sync.Mutex
	activeFires map[uuid.UUID]context.CancelFunc
}

// NewEngine creates an Engine that invokes fire for each due trigger.
func NewEngine(fire FireFunc, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		fire:        fire,
		limits:      DefaultLimits(),
		logger:      logger,
		now:         time.Now,
		triggers:    make(map[uuid.UUID]*trigger),
		fires:       make(chan uuid.UUID, fireQueueSize),
		stopCh:      make(chan struct{}),
		activeFires: make(map[uuid.UUID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.gate = NewGate(e.limits)
	return e
}

// Start launches the fire workers. It returns immediately.
func (e *Engine) Start(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.running = true

	for range e.limits.Concurrency {
		e.wg.Add(1)
		go e.fireLoop()
	}

	e.logger.Info("scheduler started",
		slog.Int("concurrency", e.limits.Concurrency),
	)
	return nil
}

// Stop cancels all pending triggers and waits for in-flight fires to
// finish. If the context expires first, active fires are cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	for jobID, t := range e.triggers {
		t.timer.Stop()
		delete(e.triggers, jobID)
	}
	e.mu.Unlock()

	close(e.stopCh)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("scheduler stopped")
	case <-ctx.Done():
		e.logger.Warn("scheduler shutdown timed out, cancelling in-flight fires")
		e.cancelActiveFires()
		e.wg.Wait()
	}
	return nil
}

// Install registers a trigger for the job id, replacing any existing
// one. A zero or elapsed fire time hands the job to the workers
// immediately.
func (e *Engine) Install(jobID uuid.UUID, at time.Time) {
	e.mu.Lock()
	if old, ok := e.triggers[jobID]; ok {
		old.timer.Stop()
		delete(e.triggers, jobID)
	}

	now := e.now()
	if at.IsZero() || !at.After(now) {
		e.mu.Unlock()
		// Hand off without holding the lock: the queue may be full, and
		// a blocked Install must not stall its caller or the fire path.
		go e.offer(jobID)
		return
	}

	t := &trigger{at: at}
	t.timer = time.AfterFunc(at.Sub(now), func() { e.expire(jobID, t) })
	e.triggers[jobID] = t
	e.mu.Unlock()
}

// Cancel stops and removes the trigger for the job id, reporting
// whether one existed.
func (e *Engine) Cancel(jobID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.triggers[jobID]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(e.triggers, jobID)
	return true
}

// Scheduled reports whether a pending trigger exists for the job id.
// Fires already handed to the workers no longer count.
func (e *Engine) Scheduled(jobID uuid.UUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.triggers[jobID]
	return ok
}

// TriggerCount returns the number of pending triggers.
func (e *Engine) TriggerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.triggers)
}

// ActiveFires returns how many fires are currently executing.
func (e *Engine) ActiveFires() int { return e.gate.Active() }

// expire runs in the timer goroutine when a trigger comes due.
func (e *Engine) expire(jobID uuid.UUID, t *trigger) {
	e.mu.Lock()
	current, ok := e.triggers[jobID]
	if !ok || current != t {
		// Replaced or cancelled while the timer was firing.
		e.mu.Unlock()
		return
	}
	if remaining := t.at.Sub(e.now()); remaining > 0 {
		// Woke early; re-arm for the remainder.
		t.timer.Reset(remaining)
		e.mu.Unlock()
		return
	}
	delete(e.triggers, jobID)
	e.mu.Unlock()

	e.offer(jobID)
}

// offer hands a due job id to the workers, blocking while the queue is
// full. Ids still queued at shutdown stay Queued in the store and are
// picked up by startup recovery on the next run.
func (e *Engine) offer(jobID uuid.UUID) {
	select {
	case e.fires <- jobID:
	case <-e.stopCh:
		e.logger.Warn("dropping fire at shutdown", slog.String("job_id", jobID.String()))
	}
}

// fireLoop is run by each worker goroutine.
func (e *Engine) fireLoop() {
	defer e.wg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case jobID := <-e.fires:
			e.dispatch(jobID)
		}
	}
}

func (e *Engine) dispatch(jobID uuid.UUID) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.trackFire(jobID, cancel)
	defer e.untrackFire(jobID)

	// Tracked before admission so a shutdown cancel also unblocks a
	// fire still waiting on the rate limiter.
	if err := e.gate.Admit(ctx); err != nil {
		return
	}
	defer e.gate.Done()

	e.fire(ctx, jobID)
}

func (e *Engine) trackFire(jobID uuid.UUID, cancel context.CancelFunc) {
	e.activeMu.Lock()
	e.activeFires[jobID] = cancel
	e.activeMu.Unlock()
}

func (e *Engine) untrackFire(jobID uuid.UUID) {
	e.activeMu.Lock()
	delete(e.activeFires, jobID)
	e.activeMu.Unlock()
}

func (e *Engine) cancelActiveFires() {
	e.activeMu.Lock()
	defer e.activeMu.Unlock()
	for jobID, cancel := range e.activeFires {
		e.logger.Warn("cancelling active fire", slog.String("job_id", jobID.String()))
		cancel()
	}
}
