// Package executors holds the external collaborators steps run against:
// the node agent, the provider API client, the DNS manager and the
// database RPC client. Executors are idempotent or internally retry-safe;
// transient-network-sensitive calls retry here with bounded exponential
// backoff, never in the step group queue.
package executors

import (
	"context"
	"fmt"
	"time"

	"universed/internal/config"
)

// Backoff runs fn up to policy.MaxAttempts times with exponential delay.
// It returns the last error once attempts are exhausted or the context
// ends, whichever comes first.
func Backoff(ctx context.Context, policy config.RetryConfig, fn func(ctx context.Context) error) error {
	delay := policy.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("retry interrupted after attempt %d: %w", attempt, ctx.Err())
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", policy.MaxAttempts, lastErr)
}
