// Package observability provides logging, metrics, and tracing.
//
// It integrates with OpenTelemetry for system monitoring and exposes a
// Prometheus registry shared by the HTTP server and both worker binaries.
package observability

import (
	"log/slog"
	"sync"
)

// ScoreDriftMonitor tracks a candidate table's combined_score distribution
// against a baseline average. A refresh job that starts emitting anomalous
// scores (a blend weight regression, a stale affinity join) shows up as
// drift here well before it is visible in the served feed.
type ScoreDriftMonitor struct {
	mu             sync.RWMutex
	table          string
	windowSize     int
	driftThreshold float64
	baseline       float64
	haveBaseline   bool
	recent         []float64
	metrics        *Metrics
}

// NewScoreDriftMonitor creates a drift monitor for one candidate table
// ("followees", "trending", "affinity"). metrics may be nil in tests.
func NewScoreDriftMonitor(table string, windowSize int, driftThreshold float64, metrics *Metrics) *ScoreDriftMonitor {
	if windowSize <= 0 {
		windowSize = 10
	}
	return &ScoreDriftMonitor{
		table:          table,
		windowSize:     windowSize,
		driftThreshold: driftThreshold,
		metrics:        metrics,
	}
}

// UpdateBaseline sets the expected average combined_score for this table.
func (m *ScoreDriftMonitor) UpdateBaseline(avg float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline = avg
	m.haveBaseline = true
}

// GetBaseline returns the configured baseline, if any.
func (m *ScoreDriftMonitor) GetBaseline() (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseline, m.haveBaseline
}

// RecordScore records one job run's average combined_score, recomputes
// drift, and pushes the result to the ranking_score_drift gauge. It warns
// once the rolling window is full and drift exceeds the threshold.
func (m *ScoreDriftMonitor) RecordScore(avgScore float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recent = append(m.recent, avgScore)
	if len(m.recent) > m.windowSize {
		m.recent = m.recent[1:]
	}

	drift := m.calculateDrift()
	if m.metrics != nil {
		m.metrics.SetScoreDrift(m.table, drift)
	}
	if len(m.recent) >= m.windowSize && drift > m.driftThreshold {
		slog.Warn("ranking score drift detected",
			slog.String("table", m.table),
			slog.Float64("drift", drift),
			slog.Float64("threshold", m.driftThreshold))
	}
}

// calculateDrift must be called with m.mu held.
func (m *ScoreDriftMonitor) calculateDrift() float64 {
	if !m.haveBaseline || len(m.recent) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range m.recent {
		sum += v
	}
	avg := sum / float64(len(m.recent))
	drift := avg - m.baseline
	if drift < 0 {
		drift = -drift
	}
	return drift
}

// GetDrift returns the current drift for this table.
func (m *ScoreDriftMonitor) GetDrift() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calculateDrift()
}

// GetRecentScores returns a copy of the rolling window.
func (m *ScoreDriftMonitor) GetRecentScores() []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scores := make([]float64, len(m.recent))
	copy(scores, m.recent)
	return scores
}

// Reset clears the baseline and rolling window.
func (m *ScoreDriftMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.haveBaseline = false
	m.baseline = 0
	m.recent = nil
}

// RankingScoreMonitors groups one ScoreDriftMonitor per candidate table.
// It is built once at startup with an injected *Metrics handle, avoiding
// the lazy global-singleton pattern: each refresh job holds this struct
// and calls RecordScore with the live table's average combined_score
// after each successful swap.
type RankingScoreMonitors struct {
	mu       sync.RWMutex
	monitors map[string]*ScoreDriftMonitor
	metrics  *Metrics
	window   int
	drift    float64
}

// NewRankingScoreMonitors constructs the monitor set. window and
// driftThreshold apply uniformly to every table created on demand.
func NewRankingScoreMonitors(metrics *Metrics, window int, driftThreshold float64) *RankingScoreMonitors {
	return &RankingScoreMonitors{
		monitors: make(map[string]*ScoreDriftMonitor),
		metrics:  metrics,
		window:   window,
		drift:    driftThreshold,
	}
}

// ForTable returns the monitor for table, creating it on first use.
func (r *RankingScoreMonitors) ForTable(table string) *ScoreDriftMonitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.monitors[table]; ok {
		return m
	}
	m := NewScoreDriftMonitor(table, r.window, r.drift, r.metrics)
	r.monitors[table] = m
	return m
}
