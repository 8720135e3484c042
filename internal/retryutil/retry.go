package retryutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultRetryDelay    = 2 * time.Second
	defaultRetryAttempts = 3
)

// Permanent marks an error that must not be retried.
type Permanent struct {
	Err error
}

func (p *Permanent) Error() string {
	if p == nil || p.Err == nil {
		return "permanent error"
	}
	return p.Err.Error()
}

func (p *Permanent) Unwrap() error {
	if p == nil {
		return nil
	}
	return p.Err
}

// Do calls fn until it succeeds, returns a *Permanent error, runs out of
// attempts, or ctx is done. The delay doubles after each failed attempt.
func Do(ctx context.Context, logger *slog.Logger, name string, attempts int, delay time.Duration, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if attempts <= 0 {
		attempts = defaultRetryAttempts
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 && logger != nil {
				logger.Info(name+"_retry_ok", "attempt", attempt)
			}
			return nil
		}
		var perm *Permanent
		if errors.As(err, &perm) {
			return perm.Err
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if logger != nil {
			logger.Warn(name+"_retry_scheduled", "attempt", attempt, "delay", delay.String(), "error", err.Error())
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), lastErr)
		case <-timer.C:
		}
		delay *= 2
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempts, lastErr)
}
