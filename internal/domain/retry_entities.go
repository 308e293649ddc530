// Package domain defines retry and DLQ entities shared by CDC and events
// ingest for the retry-then-dead-letter discipline.
package domain

import (
	"strings"
	"time"
)

// RetryStatus represents the retry state of a batch or record.
type RetryStatus string

// Retry lifecycle states.
const (
	RetryStatusNone      RetryStatus = "none"
	RetryStatusRetrying  RetryStatus = "retrying"
	RetryStatusExhausted RetryStatus = "exhausted"
	RetryStatusDLQ       RetryStatus = "dlq"
)

// RetryConfig defines retry behavior for ingest batch processing.
type RetryConfig struct {
	MaxRetries         int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Multiplier         float64
	Jitter             bool
	RetryableErrors    []string
	NonRetryableErrors []string
}

// DefaultRetryConfig returns the retry configuration used by CDC and events
// ingest when a batch flush fails.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableErrors: []string{
			"context deadline exceeded",
			"connection refused",
			"timeout",
			"temporary failure",
			"circuit open",
			"pool exhausted",
		},
		NonRetryableErrors: []string{
			"invalid argument",
			"not found",
			"conflict",
			"schema invalid",
		},
	}
}

// RetryInfo tracks retry attempts for a batch.
type RetryInfo struct {
	AttemptCount  int
	LastAttemptAt time.Time
	RetryStatus   RetryStatus
	LastError     string
	ErrorHistory  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShouldRetry determines if a batch should be retried based on the error and
// retry config. Unknown errors default to retryable.
func (ri *RetryInfo) ShouldRetry(err error, config RetryConfig) bool {
	if ri.AttemptCount >= config.MaxRetries {
		return false
	}
	if ri.RetryStatus == RetryStatusDLQ {
		return false
	}
	errorStr := strings.ToLower(err.Error())
	for _, nonRetryable := range config.NonRetryableErrors {
		if strings.Contains(errorStr, nonRetryable) {
			return false
		}
	}
	for _, retryable := range config.RetryableErrors {
		if strings.Contains(errorStr, retryable) {
			return true
		}
	}
	return true
}

// NextRetryDelay calculates the delay for the next retry attempt.
func (ri *RetryInfo) NextRetryDelay(config RetryConfig) time.Duration {
	delay := config.InitialDelay
	for i := 0; i < ri.AttemptCount; i++ {
		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
			break
		}
	}
	if config.Jitter {
		delay += time.Duration(float64(delay) * 0.1)
	}
	return delay
}

// RecordAttempt updates the retry info after an attempt.
func (ri *RetryInfo) RecordAttempt(err error) {
	ri.AttemptCount++
	ri.LastAttemptAt = time.Now()
	ri.UpdatedAt = time.Now()
	if err != nil {
		ri.LastError = err.Error()
		ri.ErrorHistory = append(ri.ErrorHistory, err.Error())
	}
}

// MarkExhausted marks the retry info as exhausted.
func (ri *RetryInfo) MarkExhausted() {
	ri.RetryStatus = RetryStatusExhausted
	ri.UpdatedAt = time.Now()
}

// MarkDLQ marks the retry info as moved to the dead-letter sink.
func (ri *RetryInfo) MarkDLQ() {
	ri.RetryStatus = RetryStatusDLQ
	ri.UpdatedAt = time.Now()
}

// MarkRetrying marks the retry info as currently retrying.
func (ri *RetryInfo) MarkRetrying() {
	ri.RetryStatus = RetryStatusRetrying
	ri.UpdatedAt = time.Now()
}

// DLQJob represents a record that has been moved to the dead-letter sink.
type DLQJob struct {
	RecordKey        string
	OriginalPayload  []byte
	RetryInfo        RetryInfo
	FailureReason    string
	MovedToDLQAt     time.Time
	CanBeReprocessed bool
}
