package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"growth-automation/domain/model"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}

	assert.Equal(t, 2*time.Second, p.Backoff(1, 0))
	assert.Equal(t, 4*time.Second, p.Backoff(2, 0))
	assert.Equal(t, 8*time.Second, p.Backoff(3, 0))
	assert.Equal(t, 30*time.Second, p.Backoff(10, 0))
	assert.Equal(t, 12*time.Second, p.Backoff(1, 12*time.Second), "longer hint wins")
	assert.Equal(t, 30*time.Second, p.Backoff(1, time.Hour), "hint is capped")
}

func TestRetryPolicy_RetriesOnlyTransient(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &model.ProviderError{Platform: model.PlatformTwitter, StatusCode: 429, Kind: model.ErrRateLimited}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return model.ErrContentRejected
	})
	assert.ErrorIs(t, err, model.ErrContentRejected)
	assert.Equal(t, 1, calls)

	calls = 0
	err = p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return model.ErrProviderUnavailable
	})
	assert.ErrorIs(t, err, model.ErrProviderUnavailable)
	assert.Equal(t, 4, calls, "first attempt plus three retries")

	calls = 0
	err = RetryPolicy{}.Do(context.Background(), "op", func(context.Context) error {
		calls++
		return model.ErrProviderUnavailable
	})
	assert.ErrorIs(t, err, model.ErrProviderUnavailable)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryPolicy_RetriesThreeTimes(t *testing.T) {
	assert.Equal(t, 3, DefaultRetryPolicy().MaxRetries)
}

func TestRetryPolicy_StopsWhenContextDone(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, BaseBackoff: time.Hour, MaxBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, "op", func(context.Context) error {
			calls++
			return model.ErrProviderUnavailable
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, model.ErrProviderUnavailable))
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}
