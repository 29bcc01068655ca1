package repository

import (
	"context"
	"time"

	"growth-automation/domain/model"
)

// IScheduledItem persists scheduled items. Every state change is a conditional update on status.
type IScheduledItem interface {
	Create(ctx context.Context, items []*model.ScheduledItem) error
	Get(ctx context.Context, id string) (*model.ScheduledItem, error)
	ListByTenant(ctx context.Context, tenantID string, status model.ItemStatus, limit int) ([]*model.ScheduledItem, error)
	// LastScheduledAt returns the latest scheduled time for a tenant and platform, or zero.
	LastScheduledAt(ctx context.Context, tenantID string, platform model.Platform) (time.Time, error)
	// ReclaimExpiredLeases moves publishing items whose lease ended back to scheduled.
	// Items already claimed maxClaims times are failed instead.
	ReclaimExpiredLeases(ctx context.Context, now time.Time, maxClaims int) (int, error)
	FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledItem, error)
	// Claim moves a scheduled item to publishing. It reports false when another worker won.
	Claim(ctx context.Context, id string, leaseUntil time.Time) (bool, error)
	MarkPublished(ctx context.Context, id string, result model.PublishResult, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	// Retry moves a failed item back to scheduled at the given time.
	Retry(ctx context.Context, id string, at time.Time) (bool, error)
	Reschedule(ctx context.Context, id string, at time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// MakeDue pulls a draft or scheduled item forward to now.
	MakeDue(ctx context.Context, id string, now time.Time) (bool, error)
}
