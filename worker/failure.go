package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/maxpert/slotsync/cfg"
	"github.com/maxpert/slotsync/latch"
	"github.com/maxpert/slotsync/telemetry"
)

// runCycle executes one cycle and applies the failure policy to errors.
// A nil return means the loop goes back to waiting. Once started, a unit of
// work runs to completion: cancelling ctx only cuts retry backoff short.
func (w *Worker) runCycle(ctx context.Context) error {
	cycleCtx := context.WithoutCancel(ctx)
	policy := w.snapshot.Failure
	delay := time.Duration(policy.RetryInitialMS) * time.Millisecond
	maxDelay := time.Duration(policy.RetryMaxMS) * time.Millisecond
	attempts := 0

	for {
		_, err := w.execute(cycleCtx)
		if err == nil {
			return nil
		}

		switch policy.Policy {
		case cfg.FailureSkip:
			w.logger.Error().Err(err).Msg("Cycle failed, skipping to next interval")
			return nil

		case cfg.FailureRetry:
			attempts++
			if policy.MaxRetries > 0 && attempts >= policy.MaxRetries {
				return fmt.Errorf("%w: exhausted max retries (%d): %w", ErrFatal, policy.MaxRetries, err)
			}

			w.logger.Warn().
				Err(err).
				Int("attempt", attempts).
				Dur("retry_delay", delay).
				Msg("Cycle failed, retrying")
			telemetry.RetriesTotal.With(w.variant.Name).Inc()

			reason := w.latch.Wait(ctx, delay, w.config.Host.Dead())
			if reason.Has(latch.WokenByHostDeath) {
				return ErrHostDied
			}
			if !reason.Has(latch.WokenByTimeout) {
				// Hand the request to the loop; re-arm so it does not wait first
				if reason.Has(latch.WokenBySet) {
					w.latch.Set()
				}
				return nil
			}

			// Exponential backoff
			delay = time.Duration(float64(delay) * policy.RetryMultiplier)
			if delay > maxDelay {
				delay = maxDelay
			}

		default:
			return fmt.Errorf("%w: %w", ErrFatal, err)
		}
	}
}
