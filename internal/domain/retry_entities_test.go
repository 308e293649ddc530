package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryInfo_ShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	t.Run("retryable error under budget", func(t *testing.T) {
		ri := &RetryInfo{}
		assert.True(t, ri.ShouldRetry(errors.New("connection refused"), cfg))
	})

	t.Run("non-retryable error never retried", func(t *testing.T) {
		ri := &RetryInfo{}
		assert.False(t, ri.ShouldRetry(errors.New("schema invalid: missing field"), cfg))
	})

	t.Run("exhausted after max retries", func(t *testing.T) {
		ri := &RetryInfo{AttemptCount: cfg.MaxRetries}
		assert.False(t, ri.ShouldRetry(errors.New("timeout"), cfg))
	})

	t.Run("dlq status never retried", func(t *testing.T) {
		ri := &RetryInfo{RetryStatus: RetryStatusDLQ}
		assert.False(t, ri.ShouldRetry(errors.New("timeout"), cfg))
	})
}

func TestRetryInfo_NextRetryDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
	ri := &RetryInfo{AttemptCount: 0}
	assert.Equal(t, 100*time.Millisecond, ri.NextRetryDelay(cfg))

	ri.AttemptCount = 2
	assert.Equal(t, 400*time.Millisecond, ri.NextRetryDelay(cfg))

	ri.AttemptCount = 10
	assert.Equal(t, 1*time.Second, ri.NextRetryDelay(cfg))
}

func TestRetryInfo_RecordAttempt(t *testing.T) {
	ri := &RetryInfo{}
	ri.RecordAttempt(errors.New("boom"))
	assert.Equal(t, 1, ri.AttemptCount)
	assert.Equal(t, "boom", ri.LastError)
	assert.Len(t, ri.ErrorHistory, 1)
}
