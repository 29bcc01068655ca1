package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
)

// ConnectionRepository stores platform connections in PostgreSQL.
type ConnectionRepository struct{ db *sql.DB }

func NewConnectionRepository(db *sql.DB) *ConnectionRepository { return &ConnectionRepository{db: db} }

const connectionSchema = `CREATE TABLE IF NOT EXISTS platform_connections (
	id BIGSERIAL PRIMARY KEY,
	tenant_id TEXT NOT NULL,
	platform TEXT NOT NULL,
	external_account_id TEXT NOT NULL DEFAULT '',
	external_account_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	credential_blob TEXT NOT NULL DEFAULT '',
	version BIGINT NOT NULL DEFAULT 1,
	last_error TEXT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ NULL,
	UNIQUE (tenant_id, platform)
)`

// EnsureConnectionSchema creates the platform_connections table if it does not exist.
func EnsureConnectionSchema(db *sql.DB) error {
	if _, err := db.Exec(connectionSchema); err != nil {
		return fmt.Errorf("create platform_connections: %w", err)
	}
	return nil
}

const (
	upsertConnectionQuery = `INSERT INTO platform_connections (tenant_id, platform, external_account_id, external_account_name, status, credential_blob, version, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,1,NULL,$7,$7)
		ON CONFLICT (tenant_id, platform) DO UPDATE SET
			external_account_id=EXCLUDED.external_account_id,
			external_account_name=EXCLUDED.external_account_name,
			status=EXCLUDED.status,
			credential_blob=EXCLUDED.credential_blob,
			version=platform_connections.version+1,
			last_error=NULL,
			updated_at=EXCLUDED.updated_at,
			deleted_at=NULL
		RETURNING id, version, created_at`
	selectConnectionColumns = `SELECT id, tenant_id, platform, external_account_id, external_account_name, status, credential_blob, version, last_error, created_at, updated_at FROM platform_connections`
	getConnectionQuery      = selectConnectionColumns + ` WHERE tenant_id=$1 AND platform=$2 AND deleted_at IS NULL`
	listConnectionsQuery    = selectConnectionColumns + ` WHERE tenant_id=$1 AND deleted_at IS NULL ORDER BY platform`
	swapCredentialQuery     = `UPDATE platform_connections SET credential_blob=$1, status=$2, last_error=NULL, version=version+1, updated_at=$3
		WHERE tenant_id=$4 AND platform=$5 AND version=$6 AND deleted_at IS NULL RETURNING version`
	setConnectionStatusQuery = `UPDATE platform_connections SET status=$1, last_error=$2, version=version+1, updated_at=$3
		WHERE tenant_id=$4 AND platform=$5 AND version=$6 AND deleted_at IS NULL`
	softDeleteConnectionQuery = `UPDATE platform_connections SET status='revoked', credential_blob='', version=version+1, updated_at=$1, deleted_at=$1
		WHERE tenant_id=$2 AND platform=$3 AND deleted_at IS NULL`
)

func (r *ConnectionRepository) Upsert(ctx context.Context, c *model.PlatformConnection) error {
	now := time.Now().UTC()
	c.UpdatedAt = now
	row := r.db.QueryRowContext(ctx, upsertConnectionQuery,
		c.TenantID, string(c.Platform), c.ExternalAccountID, c.ExternalAccountName, string(c.Status), c.CredentialBlob, now)
	if err := row.Scan(&c.ID, &c.Version, &c.CreatedAt); err != nil {
		return fmt.Errorf("upsert connection: %w", err)
	}
	c.LastError = nil
	c.DeletedAt = nil
	return nil
}

func (r *ConnectionRepository) Get(ctx context.Context, tenantID string, platform model.Platform) (*model.PlatformConnection, error) {
	row := r.db.QueryRowContext(ctx, getConnectionQuery, tenantID, string(platform))
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return c, err
}

func (r *ConnectionRepository) ListByTenant(ctx context.Context, tenantID string) ([]*model.PlatformConnection, error) {
	rows, err := r.db.QueryContext(ctx, listConnectionsQuery, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.PlatformConnection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ConnectionRepository) SwapCredential(ctx context.Context, tenantID string, platform model.Platform, expectedVersion int64, blob string, status model.ConnectionStatus) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, swapCredentialQuery, blob, string(status), time.Now().UTC(), tenantID, string(platform), expectedVersion).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("swap credential: %w", err)
	}
	return version, nil
}

func (r *ConnectionRepository) SetStatus(ctx context.Context, tenantID string, platform model.Platform, expectedVersion int64, status model.ConnectionStatus, lastError *string) error {
	res, err := r.db.ExecContext(ctx, setConnectionStatusQuery, string(status), nullString(lastError), time.Now().UTC(), tenantID, string(platform), expectedVersion)
	if err != nil {
		return fmt.Errorf("set connection status: %w", err)
	}
	return expectOneRow(res, model.ErrConflict)
}

func (r *ConnectionRepository) SoftDelete(ctx context.Context, tenantID string, platform model.Platform) error {
	res, err := r.db.ExecContext(ctx, softDeleteConnectionQuery, time.Now().UTC(), tenantID, string(platform))
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return expectOneRow(res, model.ErrNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*model.PlatformConnection, error) {
	c := &model.PlatformConnection{}
	var platform, status string
	var lastError sql.NullString
	if err := row.Scan(&c.ID, &c.TenantID, &platform, &c.ExternalAccountID, &c.ExternalAccountName, &status, &c.CredentialBlob, &c.Version, &lastError, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Platform = model.Platform(platform)
	c.Status = model.ConnectionStatus(status)
	if lastError.Valid {
		v := lastError.String
		c.LastError = &v
	}
	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func expectOneRow(res sql.Result, otherwise error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return otherwise
	}
	return nil
}

var _ repository.IPlatformConnection = (*ConnectionRepository)(nil)
