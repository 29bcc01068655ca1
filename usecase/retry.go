package usecase

import (
	"context"
	"time"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/logger"
)

// RetryPolicy retries transient provider failures with exponential backoff, up to MaxRetries
// times after the first attempt. A Retry-After hint longer than the computed delay wins, capped at MaxBackoff.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}
}

func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil || !model.IsTransient(err) || attempt > p.MaxRetries {
			return err
		}
		wait := p.Backoff(attempt, model.RetryAfterOf(err))
		logger.GetLogger().WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err,
		}).Warn("Transient failure, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

// Backoff returns the delay before the attempt following the given one.
func (p RetryPolicy) Backoff(attempt int, hint time.Duration) time.Duration {
	wait := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		wait *= 2
		if p.MaxBackoff > 0 && wait >= p.MaxBackoff {
			break
		}
	}
	if hint > wait {
		wait = hint
	}
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	return wait
}
