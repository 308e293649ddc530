package observability_test

import (
	"testing"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
	"github.com/stretchr/testify/assert"
)

func TestScoreDriftMonitor_NoBaselineNoRecent(t *testing.T) {
	t.Parallel()

	m := observability.NewScoreDriftMonitor("trending", 3, 0.1, nil)
	baseline, exists := m.GetBaseline()
	assert.False(t, exists)
	assert.Equal(t, 0.0, baseline)
	assert.Empty(t, m.GetRecentScores())
	assert.Equal(t, 0.0, m.GetDrift())
}

func TestScoreDriftMonitor_RecordScore_Window(t *testing.T) {
	t.Parallel()

	m := observability.NewScoreDriftMonitor("followees", 3, 0.1, nil)
	m.RecordScore(0.1)
	m.RecordScore(0.2)
	m.RecordScore(0.3)
	m.RecordScore(0.4)
	m.RecordScore(0.5)

	recent := m.GetRecentScores()
	assert.Equal(t, []float64{0.3, 0.4, 0.5}, recent)
}

func TestScoreDriftMonitor_DriftAbsolute(t *testing.T) {
	t.Parallel()

	m := observability.NewScoreDriftMonitor("affinity", 3, 0.1, nil)
	m.UpdateBaseline(0.8)
	m.RecordScore(0.9)
	m.RecordScore(0.9)
	m.RecordScore(0.9)
	assert.InDelta(t, 0.1, m.GetDrift(), 0.0001)

	m.Reset()
	m.UpdateBaseline(0.8)
	m.RecordScore(0.7)
	m.RecordScore(0.7)
	m.RecordScore(0.7)
	assert.InDelta(t, 0.1, m.GetDrift(), 0.0001)
}

func TestScoreDriftMonitor_NoDriftWithoutBaseline(t *testing.T) {
	t.Parallel()

	m := observability.NewScoreDriftMonitor("trending", 3, 0.1, nil)
	m.RecordScore(0.9)
	assert.Equal(t, 0.0, m.GetDrift())
}

func TestRankingScoreMonitors_PerTableIsolation(t *testing.T) {
	t.Parallel()

	monitors := observability.NewRankingScoreMonitors(nil, 3, 0.1)

	followees := monitors.ForTable("followees")
	trending := monitors.ForTable("trending")
	assert.NotSame(t, followees, trending)
	assert.Same(t, followees, monitors.ForTable("followees"))

	followees.UpdateBaseline(0.5)
	followees.RecordScore(0.6)
	assert.InDelta(t, 0.1, followees.GetDrift(), 0.0001)
	assert.Equal(t, 0.0, trending.GetDrift())
}
