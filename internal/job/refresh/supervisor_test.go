package refresh

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedpipeline/feedsvc/internal/adapter/observability"
)

type fakeJob struct {
	key      string
	interval time.Duration
	ticks    int32
	fail     bool
	panics   bool
}

func (f *fakeJob) Key() string             { return f.key }
func (f *fakeJob) Interval() time.Duration { return f.interval }
func (f *fakeJob) Tick(ctx context.Context) error {
	atomic.AddInt32(&f.ticks, 1)
	if f.panics {
		panic("boom")
	}
	if f.fail {
		return errors.New("tick failed")
	}
	return nil
}

func TestSupervisor_FailingJobDoesNotStopSiblings(t *testing.T) {
	t.Parallel()
	good := &fakeJob{key: "good", interval: 10 * time.Millisecond}
	bad := &fakeJob{key: "bad", interval: 10 * time.Millisecond, fail: true}

	sup := NewSupervisor(observability.NewMetrics(), good, bad)

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()
	_ = sup.Run(ctx)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&good.ticks), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&bad.ticks), int32(2))
}

func TestSupervisor_PanicRecoveredAndSiblingContinues(t *testing.T) {
	t.Parallel()
	panicky := &fakeJob{key: "panicky", interval: 10 * time.Millisecond, panics: true}
	good := &fakeJob{key: "good2", interval: 10 * time.Millisecond}

	sup := NewSupervisor(observability.NewMetrics(), panicky, good)

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Millisecond)
	defer cancel()
	err := sup.Run(ctx)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&panicky.ticks), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&good.ticks), int32(2))
}

func TestSupervisor_RunsOnceImmediatelyBeforeFirstTick(t *testing.T) {
	t.Parallel()
	job := &fakeJob{key: "immediate", interval: time.Hour}
	sup := NewSupervisor(observability.NewMetrics(), job)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = sup.Run(ctx)

	assert.Equal(t, int32(1), atomic.LoadInt32(&job.ticks))
}
