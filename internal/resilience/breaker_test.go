package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	transitions []State
}

func (f *fakeRecorder) RecordState(string, State)      {}
func (f *fakeRecorder) RecordTransition(_ string, to State) { f.transitions = append(f.transitions, to) }

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	rec := &fakeRecorder{}
	b := NewBreaker("olap", 3, 3, time.Minute, rec)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 0, boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, StateOpen, b.State())

	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		t.Fatal("wrapped function must not run while open")
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Contains(t, rec.transitions, StateOpen)
}

func TestBreaker_HalfOpenAfterTimeoutThenCloses(t *testing.T) {
	b := NewBreaker("oltp", 1, 2, 10*time.Millisecond, nil)
	boom := errors.New("boom")

	_, _ = Call(context.Background(), b, func(context.Context) (int, error) { return 0, boom })
	require.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)

	_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())

	_, err = Call(context.Background(), b, func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("oltp", 1, 2, 10*time.Millisecond, nil)
	boom := errors.New("boom")

	_, _ = Call(context.Background(), b, func(context.Context) (int, error) { return 0, boom })
	time.Sleep(15 * time.Millisecond)

	_, err := Call(context.Background(), b, func(context.Context) (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateOpen, b.State())
}

func TestRegistry_IndependentPerDependency(t *testing.T) {
	reg := NewRegistry(1, 1, time.Minute, nil)
	olap := reg.GetBreaker("olap")
	oltp := reg.GetBreaker("oltp")
	assert.NotSame(t, olap, oltp)
	assert.Same(t, olap, reg.GetBreaker("olap"))

	boom := errors.New("boom")
	_, _ = Call(context.Background(), olap, func(context.Context) (int, error) { return 0, boom })
	assert.Equal(t, StateOpen, olap.State())
	assert.Equal(t, StateClosed, oltp.State())
}
