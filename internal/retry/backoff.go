// Package retry implements the retry executor used by every outbound call:
// per-attempt timeout, jittered exponential backoff, and retry only on
// transient failures.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealerdesk/internal/errs"
	"github.com/dealerdesk/internal/logging"
)

const (
	minAttemptTimeout = 5 * time.Second
	maxAttemptTimeout = 30 * time.Second
)

// Policy configures retry behavior with exponential backoff
type Policy struct {
	Timeout     time.Duration `json:"timeout"`      // Per-attempt timeout, clamped to 5-30s (default: 10s)
	MaxAttempts int           `json:"max_attempts"` // Total attempts including the first (default: 3)
	BaseDelay   time.Duration `json:"base_delay"`   // Base delay between attempts (default: 500ms)
	MaxDelay    time.Duration `json:"max_delay"`    // Maximum delay between attempts (default: 30s)
	Multiplier  float64       `json:"multiplier"`   // Exponential backoff multiplier (default: 2.0)
	Jitter      bool          `json:"jitter"`       // Add random jitter to prevent thundering herd (default: true)
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int           `json:"attempts"`       // Total number of attempts made
	TotalDuration time.Duration `json:"total_duration"` // Total time spent on all attempts
	LastError     error         `json:"-"`              // Last error encountered
	Success       bool          `json:"success"`        // Whether the operation eventually succeeded
}

// Err returns the terminal failure, nil on success
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return r.LastError
}

// DefaultPolicy returns a policy with sensible defaults
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// SuggestionPolicy returns a policy tuned for LLM requests, which can be slow
func SuggestionPolicy() Policy {
	return Policy{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.5,
		Jitter:      true,
	}
}

// CRMPolicy returns a policy tuned for CRM API calls
func CRMPolicy() Policy {
	return Policy{
		Timeout:     15 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// normalize fills zero values and clamps the per-attempt timeout to the
// allowed 5-30s window
func (p Policy) normalize() Policy {
	def := DefaultPolicy()
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.Timeout < minAttemptTimeout {
		p.Timeout = minAttemptTimeout
	}
	if p.Timeout > maxAttemptTimeout {
		p.Timeout = maxAttemptTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Operation is one attempt of an outbound call. The context carries the
// per-attempt deadline; implementations must honor it.
type Operation func(ctx context.Context) error

// Execute runs op under the policy. Each attempt gets its own deadline;
// exceeding it cancels the in-flight call and counts as a transient failure.
// Non-retryable errors surface immediately. After exhausting attempts the
// result carries the last error and attempt count; callers decide whether
// the failure is fatal or degradable.
func Execute(ctx context.Context, policy Policy, name string, op Operation) Result {
	policy = policy.normalize()
	logger := logging.Component("retry").With().Str("operation", name).Logger()

	startTime := time.Now()
	result := Result{}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		attemptStart := time.Now()
		err := op(attemptCtx)
		attemptDuration := time.Since(attemptStart)
		cancel()

		logAttempt(logger, name, attempt, policy.MaxAttempts, attemptDuration, err)

		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			return result
		}

		// An attempt that hit its own deadline is transient even though the
		// wrapped error says context deadline exceeded.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = errs.Transient(name, err)
		}

		result.LastError = err

		if !Retryable(err) {
			result.TotalDuration = time.Since(startTime)
			return result
		}

		if attempt >= policy.MaxAttempts {
			result.TotalDuration = time.Since(startTime)
			return result
		}

		// Parent cancellation ends the sequence; the caller's ledger entry
		// stays uncommitted so a restart retries rather than skips.
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}

		delay := backoffDelay(policy, attempt)
		logger.Debug().
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("waiting before retry")

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

func logAttempt(logger zerolog.Logger, name string, attempt, max int, d time.Duration, err error) {
	evt := logger.Info()
	if err != nil {
		evt = logger.Warn().Err(err)
	}
	evt.Int("attempt", attempt).
		Int("max_attempts", max).
		Dur("duration", d).
		Bool("success", err == nil).
		Msg("outbound attempt")
}

// backoffDelay computes the delay after the given attempt number (1-based)
// using exponential backoff with optional jitter
func backoffDelay(policy Policy, attempt int) time.Duration {
	delay := float64(policy.BaseDelay) * math.Pow(policy.Multiplier, float64(attempt-1))

	if delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}

	if policy.Jitter {
		// Up to 10% random jitter in either direction
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(policy.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// Retryable determines if an error should be retried. Typed transient errors
// are retried; anything the taxonomy marks as caller-fault is not; unknown
// errors fall back to a network-failure heuristic.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errs.IsTransient(err) {
		return true
	}
	if errs.IsValidation(err) || errs.IsConflict(err) || errs.IsAuth(err) || errs.IsNotFound(err) {
		return false
	}
	return looksTransient(err)
}

// looksTransient matches error text against failure modes that are typically
// retryable
func looksTransient(err error) bool {
	errStr := strings.ToLower(err.Error())

	transientMarkers := []string{
		"connection refused",
		"connection reset",
		"connection timeout",
		"timeout",
		"temporary failure",
		"service unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
		"context deadline exceeded",
	}

	for _, marker := range transientMarkers {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}
