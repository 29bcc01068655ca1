package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
)

// ScheduledItemRepository persists the publishing queue in PostgreSQL.
type ScheduledItemRepository struct{ db *sql.DB }

func NewScheduledItemRepository(db *sql.DB) *ScheduledItemRepository {
	return &ScheduledItemRepository{db: db}
}

const scheduledItemSchema = `CREATE TABLE IF NOT EXISTS scheduled_items (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	kind TEXT NOT NULL,
	payload JSONB NOT NULL,
	scheduled_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	lease_expires_at TIMESTAMPTZ NULL,
	attempts INT NOT NULL DEFAULT 0,
	external_id TEXT NULL,
	external_url TEXT NULL,
	last_error TEXT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	published_at TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS idx_scheduled_items_due ON scheduled_items (status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_scheduled_items_tenant ON scheduled_items (tenant_id, platform, scheduled_at)`

// EnsureScheduledItemSchema creates the scheduled_items table and its indexes.
func EnsureScheduledItemSchema(db *sql.DB) error {
	if _, err := db.Exec(scheduledItemSchema); err != nil {
		return fmt.Errorf("create scheduled_items: %w", err)
	}
	return nil
}

const (
	insertItemQuery = `INSERT INTO scheduled_items (id, tenant_id, platform, kind, payload, scheduled_at, status, attempts, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,$8,$8)`
	selectItemColumns    = `SELECT id, tenant_id, platform, kind, payload, scheduled_at, status, lease_expires_at, attempts, external_id, external_url, last_error, created_at, updated_at, published_at FROM scheduled_items`
	getItemQuery         = selectItemColumns + ` WHERE id=$1`
	listItemsQuery       = selectItemColumns + ` WHERE tenant_id=$1 AND ($2='' OR status=$2) ORDER BY scheduled_at LIMIT $3`
	lastScheduledAtQuery = `SELECT MAX(scheduled_at) FROM scheduled_items WHERE tenant_id=$1 AND platform=$2 AND status IN ('scheduled','publishing','published')`
	reclaimLeasesQuery   = `UPDATE scheduled_items SET
			status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'scheduled' END,
			last_error = CASE WHEN attempts >= $2 THEN 'publishing lease expired' ELSE last_error END,
			lease_expires_at = NULL,
			updated_at = $1
		WHERE status='publishing' AND lease_expires_at < $1`
	fetchDueQuery  = selectItemColumns + ` WHERE status='scheduled' AND scheduled_at <= $1 ORDER BY scheduled_at LIMIT $2`
	claimItemQuery = `UPDATE scheduled_items SET status='publishing', lease_expires_at=$2, attempts=attempts+1, updated_at=$3
		WHERE id=$1 AND status='scheduled'`
	markPublishedQuery = `UPDATE scheduled_items SET status='published', external_id=$2, external_url=$3, published_at=$4, lease_expires_at=NULL, last_error=NULL, updated_at=$4
		WHERE id=$1 AND status='publishing'`
	markFailedQuery = `UPDATE scheduled_items SET status='failed', last_error=$2, lease_expires_at=NULL, updated_at=$3
		WHERE id=$1 AND status='publishing'`
	retryItemQuery = `UPDATE scheduled_items SET status='scheduled', scheduled_at=$2, attempts=0, last_error=NULL, updated_at=$3
		WHERE id=$1 AND status='failed'`
	rescheduleItemQuery = `UPDATE scheduled_items SET scheduled_at=$2, updated_at=$3
		WHERE id=$1 AND status IN ('draft','scheduled')`
	deleteItemQuery = `DELETE FROM scheduled_items WHERE id=$1 AND status IN ('draft','scheduled','failed')`
	makeDueQuery    = `UPDATE scheduled_items SET status='scheduled', scheduled_at=$2, updated_at=$2
		WHERE id=$1 AND status IN ('draft','scheduled')`
)

func (r *ScheduledItemRepository) Create(ctx context.Context, items []*model.ScheduledItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, it := range items {
		payload, err := json.Marshal(it.Payload)
		if err != nil {
			return fmt.Errorf("encode payload %s: %w", it.ID, err)
		}
		it.CreatedAt, it.UpdatedAt = now, now
		if _, err := tx.ExecContext(ctx, insertItemQuery,
			it.ID, it.TenantID, string(it.Platform), string(it.Kind), payload, it.ScheduledAt.UTC(), string(it.Status), now); err != nil {
			return fmt.Errorf("insert scheduled item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

func (r *ScheduledItemRepository) Get(ctx context.Context, id string) (*model.ScheduledItem, error) {
	it, err := scanItem(r.db.QueryRowContext(ctx, getItemQuery, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return it, err
}

func (r *ScheduledItemRepository) ListByTenant(ctx context.Context, tenantID string, status model.ItemStatus, limit int) ([]*model.ScheduledItem, error) {
	return r.queryItems(ctx, listItemsQuery, tenantID, string(status), limit)
}

func (r *ScheduledItemRepository) LastScheduledAt(ctx context.Context, tenantID string, platform model.Platform) (time.Time, error) {
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, lastScheduledAtQuery, tenantID, string(platform)).Scan(&last); err != nil {
		return time.Time{}, err
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time, nil
}

func (r *ScheduledItemRepository) ReclaimExpiredLeases(ctx context.Context, now time.Time, maxClaims int) (int, error) {
	res, err := r.db.ExecContext(ctx, reclaimLeasesQuery, now.UTC(), maxClaims)
	if err != nil {
		return 0, fmt.Errorf("reclaim leases: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *ScheduledItemRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledItem, error) {
	return r.queryItems(ctx, fetchDueQuery, now.UTC(), limit)
}

func (r *ScheduledItemRepository) Claim(ctx context.Context, id string, leaseUntil time.Time) (bool, error) {
	return r.execAffected(ctx, claimItemQuery, id, leaseUntil.UTC(), time.Now().UTC())
}

func (r *ScheduledItemRepository) MarkPublished(ctx context.Context, id string, result model.PublishResult, at time.Time) error {
	var url sql.NullString
	if result.URL != "" {
		url = sql.NullString{String: result.URL, Valid: true}
	}
	ok, err := r.execAffected(ctx, markPublishedQuery, id, result.ExternalID, url, at.UTC())
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrInvalidTransition
	}
	return nil
}

func (r *ScheduledItemRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	ok, err := r.execAffected(ctx, markFailedQuery, id, reason, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrInvalidTransition
	}
	return nil
}

func (r *ScheduledItemRepository) Retry(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.execAffected(ctx, retryItemQuery, id, at.UTC(), time.Now().UTC())
}

func (r *ScheduledItemRepository) Reschedule(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.execAffected(ctx, rescheduleItemQuery, id, at.UTC(), time.Now().UTC())
}

func (r *ScheduledItemRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.execAffected(ctx, deleteItemQuery, id)
}

func (r *ScheduledItemRepository) MakeDue(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.execAffected(ctx, makeDueQuery, id, now.UTC())
}

func (r *ScheduledItemRepository) execAffected(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ScheduledItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]*model.ScheduledItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.ScheduledItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanItem(row rowScanner) (*model.ScheduledItem, error) {
	it := &model.ScheduledItem{}
	var (
		platform, kind, status             string
		payload                            []byte
		lease, published                   sql.NullTime
		externalID, externalURL, lastError sql.NullString
	)
	if err := row.Scan(&it.ID, &it.TenantID, &platform, &kind, &payload, &it.ScheduledAt, &status, &lease, &it.Attempts,
		&externalID, &externalURL, &lastError, &it.CreatedAt, &it.UpdatedAt, &published); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &it.Payload); err != nil {
		return nil, fmt.Errorf("decode payload %s: %w", it.ID, err)
	}
	it.Platform = model.Platform(platform)
	it.Kind = model.ItemKind(kind)
	it.Status = model.ItemStatus(status)
	it.LeaseExpiresAt = timePtr(lease)
	it.PublishedAt = timePtr(published)
	it.ExternalID = stringPtr(externalID)
	it.ExternalURL = stringPtr(externalURL)
	it.LastError = stringPtr(lastError)
	return it, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

var _ repository.IScheduledItem = (*ScheduledItemRepository)(nil)
