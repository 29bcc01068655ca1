package platform

import (
	"context"
	"fmt"
	"time"

	"growth-automation/domain/model"
)

// PollState is the processing state of an asynchronous provider upload.
type PollState int

const (
	PollInit PollState = iota
	PollPolling
	PollReady
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollInit:
		return "init"
	case PollPolling:
		return "polling"
	case PollReady:
		return "ready"
	case PollFailed:
		return "failed"
	}
	return "unknown"
}

// Poller drives a bounded Init→Polling→Ready|Failed loop.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
}

// CheckFunc reports the current state and, on failure, the provider's reason.
type CheckFunc func(ctx context.Context) (PollState, string, error)

// Wait polls until the upload is ready. A failed state is a permanent media error;
// running out of attempts is reported as provider unavailability so the tick may retry.
func (p Poller) Wait(ctx context.Context, platform model.Platform, check CheckFunc) error {
	state := PollInit
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if state == PollPolling {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Interval):
			}
		}
		next, reason, err := check(ctx)
		if err != nil {
			return err
		}
		switch next {
		case PollReady:
			return nil
		case PollFailed:
			return fmt.Errorf("%w: %s processing failed: %s", model.ErrMediaUpload, platform, reason)
		}
		state = PollPolling
	}
	return &model.ProviderError{
		Platform: platform,
		Op:       "poll upload",
		Kind:     model.ErrProviderUnavailable,
		Message:  fmt.Sprintf("not ready after %d checks", p.MaxAttempts),
	}
}
