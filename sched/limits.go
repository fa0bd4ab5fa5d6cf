package sched

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limits configures admission control for the fire path.
type Limits struct {
	// Concurrency is the number of worker goroutines executing fired
	// jobs. Defaults to 10.
	Concurrency int

	// RateLimit is the maximum sustained fires per second admitted to
	// the workers. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// DefaultLimits returns the default admission limits.
func DefaultLimits() Limits {
	return Limits{Concurrency: 10}
}

func (l Limits) normalized() Limits {
	if l.Concurrency <= 0 {
		l.Concurrency = 10
	}
	if l.RateLimit > 0 && l.RateBurst <= 0 {
		l.RateBurst = 1
	}
	return l
}

// Gate enforces Limits on the fire path. Concurrency is bounded by the
// engine's worker count; the gate adds rate smoothing and active-fire
// accounting. Safe for concurrent use.
type Gate struct {
	limiter *rate.Limiter

	mu     sync.Mutex
	active int
}

// NewGate creates a Gate for the given limits.
func NewGate(l Limits) *Gate {
	l = l.normalized()
	g := &Gate{}
	if l.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(l.RateLimit), l.RateBurst)
	}
	return g
}

// Admit blocks until a rate token is available or ctx ends, then
// records the fire as active. The caller MUST call Done when the fire
// completes.
func (g *Gate) Admit(ctx context.Context) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	g.mu.Lock()
	g.active++
	g.mu.Unlock()
	return nil
}

// Done decrements the active fire count.
func (g *Gate) Done() {
	g.mu.Lock()
	if g.active > 0 {
		g.active--
	}
	g.mu.Unlock()
}

// Active returns the number of fires currently executing.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
