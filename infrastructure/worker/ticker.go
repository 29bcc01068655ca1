package worker

import (
	"context"
	"fmt"
	"time"

	"growth-automation/infrastructure/logger"
)

// RunEvery calls fn once per interval until ctx is cancelled. Each run gets its own
// deadline of one interval; errors and panics are logged and never stop the loop.
func RunEvery(ctx context.Context, interval time.Duration, name string, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("worker %s: interval must be positive", name)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.GetLogger().WithFields(map[string]interface{}{
		"worker":   name,
		"interval": interval.String(),
	}).Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.GetLogger().WithField("worker", name).Info("Worker stopped")
			return ctx.Err()
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			runOnce(runCtx, name, fn)
			cancel()
		}
	}
}

func runOnce(ctx context.Context, name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().WithFields(map[string]interface{}{
				"worker": name,
				"panic":  fmt.Sprint(r),
			}).Error("Worker run panicked")
		}
	}()
	start := time.Now()
	if err := fn(ctx); err != nil {
		logger.GetLogger().WithFields(map[string]interface{}{
			"worker": name,
			"error":  err,
		}).Error("Worker run failed")
		return
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"worker":   name,
		"duration": time.Since(start).String(),
	}).Debug("Worker run finished")
}
