package retry

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"hexwin/internal/logging"
)

// Default retry configuration constants, sized for remote API calls.
const (
	DefaultMaxRetries    = 5
	DefaultInitialDelay  = 1 * time.Second
	DefaultMaxDelay      = 32 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultJitter        = 0.2 // ±20%
)

// Config holds retry configuration
type Config struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// DefaultConfig returns the retry configuration used for workspace API calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    DefaultMaxRetries,
		InitialDelay:  DefaultInitialDelay,
		MaxDelay:      DefaultMaxDelay,
		BackoffFactor: DefaultBackoffFactor,
		Jitter:        DefaultJitter,
	}
}

// DeviceConfig returns a short policy for interrupted local device I/O.
func DeviceConfig() Config {
	return Config{
		MaxRetries:    3,
		InitialDelay:  5 * time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
		BackoffFactor: DefaultBackoffFactor,
	}
}

// IsRetryableStatus returns true if the status code should trigger a retry
func IsRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, // 429
		http.StatusInternalServerError, // 500
		http.StatusBadGateway,          // 502
		http.StatusServiceUnavailable,  // 503
		http.StatusGatewayTimeout:      // 504
		return true
	}
	return false
}

// Delay is the wait before retry number attempt+1: exponential from
// InitialDelay, capped at MaxDelay, then spread by Jitter.
func (c Config) Delay(attempt int) time.Duration {
	delay := float64(c.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.BackoffFactor
	}
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		delay += delay * c.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(delay)
}

// Do runs op until it succeeds, returns an error that retryable rejects, or
// MaxRetries retries are used up. Waiting respects ctx cancellation.
func (c Config) Do(ctx context.Context, name string, retryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.Delay(attempt - 1)
			logging.Debugf("Retry attempt %d/%d after %v for %s: %v",
				attempt, c.MaxRetries, delay, name, lastErr)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("max retries exceeded for %s: %w", name, lastErr)
}
