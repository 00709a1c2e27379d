package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.True(t, cfg.CircuitBreakerEnabled)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 2, cfg.SuccessThreshold)
	assert.Equal(t, 30*time.Second, cfg.OpenTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrentCalls)
}

func TestCircuitBreakerClosedState(t *testing.T) {
	t.Run("starts closed and allows requests", func(t *testing.T) {
		cb := NewCircuitBreaker(5, 2, 30*time.Second)
		assert.Equal(t, CircuitClosed, cb.GetState())
		for i := 0; i < 10; i++ {
			assert.NoError(t, cb.Allow())
		}
	})

	t.Run("resets failure count on success", func(t *testing.T) {
		cb := NewCircuitBreaker(5, 2, 30*time.Second)
		cb.RecordFailure()
		cb.RecordFailure()
		_, failures, _ := cb.GetMetrics()
		assert.Equal(t, 2, failures)

		cb.RecordSuccess()
		_, failures, _ = cb.GetMetrics()
		assert.Equal(t, 0, failures)
	})

	t.Run("opens after threshold failures", func(t *testing.T) {
		cb := NewCircuitBreaker(3, 2, 30*time.Second)
		for i := 0; i < 3; i++ {
			cb.RecordFailure()
		}
		assert.Equal(t, CircuitOpen, cb.GetState())
		assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)
	})
}

func TestCircuitBreakerRecovery(t *testing.T) {
	t.Run("half-open after timeout then closed after successes", func(t *testing.T) {
		cb := NewCircuitBreaker(2, 2, 50*time.Millisecond)
		cb.RecordFailure()
		cb.RecordFailure()
		require.Equal(t, CircuitOpen, cb.GetState())

		time.Sleep(60 * time.Millisecond)
		require.NoError(t, cb.Allow())
		require.Equal(t, CircuitHalfOpen, cb.GetState())

		cb.RecordSuccess()
		assert.Equal(t, CircuitHalfOpen, cb.GetState())
		cb.RecordSuccess()
		assert.Equal(t, CircuitClosed, cb.GetState())
	})

	t.Run("reopens on failure while half-open", func(t *testing.T) {
		cb := NewCircuitBreaker(2, 2, 50*time.Millisecond)
		cb.RecordFailure()
		cb.RecordFailure()
		time.Sleep(60 * time.Millisecond)
		require.NoError(t, cb.Allow())

		cb.RecordSuccess()
		cb.RecordFailure()
		assert.Equal(t, CircuitOpen, cb.GetState())
	})
}

func TestCircuitBreakerThreadSafety(t *testing.T) {
	cb := NewCircuitBreaker(10, 2, 100*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cb.Allow()
				if j%3 == 0 {
					cb.RecordSuccess()
				} else if j%7 == 0 {
					cb.RecordFailure()
				}
				cb.GetMetrics()
			}
		}()
	}
	wg.Wait()

	assert.Contains(t, []CircuitState{CircuitClosed, CircuitOpen, CircuitHalfOpen}, cb.GetState())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(42).String())
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"empty response", ErrNoResponse, true},
		{"rate limit text", errors.New("429 Too Many Requests"), true},
		{"server error text", errors.New("503 service unavailable"), true},
		{"gemini quota", errors.New("Error 429, Status: RESOURCE_EXHAUSTED"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"overloaded", errors.New("Overloaded"), true},
		{"bad request text", errors.New("400 invalid request"), false},
		{"unknown", errors.New("something odd"), false},
		{"anthropic 401", &anthropic.Error{StatusCode: 401}, false},
		{"anthropic 529", &anthropic.Error{StatusCode: 529}, true},
		{"openai 429", &openai.APIError{HTTPStatusCode: 429, Message: "slow down"}, true},
		{"openai 400", &openai.APIError{HTTPStatusCode: 400, Message: "bad"}, false},
		{"openai request 502", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableError(tt.err))
		})
	}
}
