package job

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/quartzite/quartzite"
)

// Registry maps job type names to handlers. It has two phases: a mutable
// build phase during wiring, and a frozen serving phase entered via
// Freeze in which lookups are lock-free.
type Registry struct {
	mu       sync.Mutex
	building map[string]Handler
	serving  atomic.Pointer[map[string]Handler]
}

// NewRegistry creates an empty job type registry.
func NewRegistry() *Registry {
	return &Registry{
		building: make(map[string]Handler),
	}
}

// Register maps a job type to its handler. Re-registering a type
// replaces the handler. Registration is only allowed before Freeze.
func (r *Registry) Register(jobType string, h Handler) error {
	if strings.TrimSpace(jobType) == "" {
		return fmt.Errorf("%w: empty job type", quartzite.ErrInvalidJobType)
	}
	if h == nil {
		return fmt.Errorf("%w: job type %q", quartzite.ErrNilHandler, jobType)
	}
	if r.serving.Load() != nil {
		return fmt.Errorf("%w: cannot register %q", quartzite.ErrRegistryFrozen, jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the lock; a concurrent Freeze may have won.
	if r.serving.Load() != nil {
		return fmt.Errorf("%w: cannot register %q", quartzite.ErrRegistryFrozen, jobType)
	}
	r.building[jobType] = h
	return nil
}

// Freeze transitions the registry to its serving phase. After Freeze,
// lookups take no locks and Register returns an error. Freeze is
// idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.serving.Load() != nil {
		return
	}
	m := make(map[string]Handler, len(r.building))
	for name, h := range r.building {
		m[name] = h
	}
	r.serving.Store(&m)
}

// lookup reads from the frozen map when serving, else from the build map
// under the lock.
func (r *Registry) lookup(jobType string) (Handler, bool) {
	if m := r.serving.Load(); m != nil {
		h, ok := (*m)[jobType]
		return h, ok
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.building[jobType]
	return h, ok
}

// Resolve returns the handler for the given job type. An unregistered
// type yields an *UnknownJobTypeError listing every known type, so a
// single log line is enough to spot a typo.
func (r *Registry) Resolve(jobType string) (Handler, error) {
	h, ok := r.lookup(jobType)
	if !ok {
		return nil, &UnknownJobTypeError{JobType: jobType, Known: r.Types()}
	}
	return h, nil
}

// IsValid reports whether the job type is registered.
func (r *Registry) IsValid(jobType string) bool {
	_, ok := r.lookup(jobType)
	return ok
}

// Types returns all registered job type names, sorted.
func (r *Registry) Types() []string {
	var names []string
	if m := r.serving.Load(); m != nil {
		names = make([]string, 0, len(*m))
		for name := range *m {
			names = append(names, name)
		}
	} else {
		r.mu.Lock()
		names = make([]string, 0, len(r.building))
		for name := range r.building {
			names = append(names, name)
		}
		r.mu.Unlock()
	}
	sort.Strings(names)
	return names
}

// UnknownJobTypeError reports a lookup for an unregistered job type
// together with the types that are registered.
type UnknownJobTypeError struct {
	JobType string
	Known   []string
}

// Error implements the error interface.
func (e *UnknownJobTypeError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("quartzite: unknown job type %q (no types registered)", e.JobType)
	}
	return fmt.Sprintf("quartzite: unknown job type %q (known types: %s)", e.JobType, strings.Join(e.Known, ", "))
}

// Unwrap makes errors.Is(err, quartzite.ErrUnknownJobType) work.
func (e *UnknownJobTypeError) Unwrap() error {
	return quartzite.ErrUnknownJobType
}
