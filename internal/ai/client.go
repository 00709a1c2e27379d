package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// defaultMaxTokens is used when a caller passes 0
const defaultMaxTokens = 1024

// Client makes resilient calls to a Provider.
//
// Each call passes through, in order: the concurrency semaphore, the circuit
// breaker, the rate limiter, and a per-attempt timeout. Transient failures are
// retried with exponential backoff.
type Client struct {
	provider       Provider
	model          string
	logger         *zap.Logger
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	limiter        *rate.Limiter
}

var _ Completer = (*Client)(nil)

// Config holds client configuration
type Config struct {
	Model  string      // Model to use (default: the provider's default)
	Retry  RetryConfig // Retry configuration (uses defaults if MaxRetries is 0)
	Logger *zap.Logger
}

// NewClient wraps a provider with retry, circuit breaking and limits
func NewClient(provider Provider, cfg Config) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", provider.Name()))

	model := cfg.Model
	if model == "" {
		model = provider.DefaultModel()
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	if retry.Timeout <= 0 {
		retry.Timeout = DefaultRetryConfig().Timeout
	}

	c := &Client{
		provider: provider,
		model:    model,
		logger:   logger,
		retry:    retry,
	}

	if retry.CircuitBreakerEnabled {
		c.circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
		c.circuitBreaker.logger = logger
	}
	if retry.MaxConcurrentCalls > 0 {
		c.concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	if retry.RequestsPerSecond > 0 {
		burst := retry.MaxConcurrentCalls
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(retry.RequestsPerSecond), burst)
	}

	logger.Debug("AI client initialized",
		zap.String("model", model),
		zap.Bool("circuit_breaker", retry.CircuitBreakerEnabled),
		zap.Int("max_concurrent", retry.MaxConcurrentCalls),
		zap.Float64("rps", retry.RequestsPerSecond))

	return c, nil
}

// Model returns the model used for completions
func (c *Client) Model() string {
	return c.model
}

// Complete sends a single-turn prompt and returns the response text
func (c *Client) Complete(ctx context.Context, operation, prompt string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	start := time.Now()

	var resp *Response
	err := c.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		r, err := c.provider.Generate(attemptCtx, c.model, prompt, maxTokens)
		if err != nil {
			return err
		}
		if strings.TrimSpace(r.Text) == "" {
			return ErrNoResponse
		}
		resp = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%s API call failed: %w", c.provider.Name(), err)
	}

	c.logger.Debug("AI call",
		zap.String("operation", operation),
		zap.Int64("input_tokens", resp.InputTokens),
		zap.Int64("output_tokens", resp.OutputTokens),
		zap.Duration("duration", time.Since(start)))

	return resp.Text, nil
}

// HealthCheck returns an error while the circuit breaker is open
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.circuitBreaker == nil {
		return nil
	}
	state, failures, _ := c.circuitBreaker.GetMetrics()
	if state == CircuitOpen {
		return fmt.Errorf("AI provider unavailable: %w (failures=%d, retry in %v)",
			ErrCircuitOpen, failures, c.retry.OpenTimeout)
	}
	return nil
}

// CircuitState reports the breaker state, CircuitClosed when disabled
func (c *Client) CircuitState() CircuitState {
	if c.circuitBreaker == nil {
		return CircuitClosed
	}
	return c.circuitBreaker.GetState()
}
