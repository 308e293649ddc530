package observability

import "github.com/feedpipeline/feedsvc/internal/resilience"

// BreakerRecorder adapts Metrics to resilience.Recorder so breaker state
// transitions land on circuit_breaker_state/circuit_breaker_transitions_total
// without resilience importing the metrics registry directly.
type BreakerRecorder struct {
	metrics *Metrics
}

// NewBreakerRecorder wraps metrics as a resilience.Recorder.
func NewBreakerRecorder(metrics *Metrics) *BreakerRecorder {
	return &BreakerRecorder{metrics: metrics}
}

// RecordState implements resilience.Recorder.
func (r *BreakerRecorder) RecordState(dep string, state resilience.State) {
	r.metrics.SetCircuitState(dep, int(state))
}

// RecordTransition implements resilience.Recorder.
func (r *BreakerRecorder) RecordTransition(dep string, to resilience.State) {
	r.metrics.IncCircuitTransition(dep, to.String())
}
