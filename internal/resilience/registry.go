package resilience

import (
	"sync"
	"time"
)

// Registry manages independent Breaker instances keyed by dependency name,
// giving C8's olap breaker and C2-adjacent oltp breaker separate state.
type Registry struct {
	mu            sync.Mutex
	breakers      map[string]*Breaker
	failureThresh int
	successThresh int
	openTimeout   time.Duration
	recorder      Recorder
}

// NewRegistry constructs a Registry applying the same thresholds to every
// dependency it creates breakers for.
func NewRegistry(failureThresh, successThresh int, openTimeout time.Duration, recorder Recorder) *Registry {
	return &Registry{
		breakers:      make(map[string]*Breaker),
		failureThresh: failureThresh,
		successThresh: successThresh,
		openTimeout:   openTimeout,
		recorder:      recorder,
	}
}

// GetBreaker returns the breaker for name, creating it on first use.
func (r *Registry) GetBreaker(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewBreaker(name, r.failureThresh, r.successThresh, r.openTimeout, r.recorder)
	r.breakers[name] = b
	return b
}
