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

// ConnectionRepositoryMSSQL stores platform connections in SQL Server.
type ConnectionRepositoryMSSQL struct{ db *sql.DB }

func NewConnectionRepositoryMSSQL(db *sql.DB) *ConnectionRepositoryMSSQL {
	return &ConnectionRepositoryMSSQL{db: db}
}

// EnsureConnectionSchemaMSSQL creates the platform_connections table for SQL Server if it does not exist.
func EnsureConnectionSchemaMSSQL(db *sql.DB) error {
	ddl := `IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.platform_connections') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[platform_connections] (
        id BIGINT IDENTITY(1,1) PRIMARY KEY,
        tenant_id NVARCHAR(128) NOT NULL,
        platform NVARCHAR(32) NOT NULL,
        external_account_id NVARCHAR(128) NOT NULL DEFAULT '',
        external_account_name NVARCHAR(255) NOT NULL DEFAULT '',
        status NVARCHAR(16) NOT NULL,
        credential_blob NVARCHAR(MAX) NOT NULL DEFAULT '',
        version BIGINT NOT NULL DEFAULT 1,
        last_error NVARCHAR(1024) NULL,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL,
        deleted_at DATETIME2 NULL
    );
    CREATE UNIQUE INDEX UX_platform_connections_tenant_platform ON dbo.[platform_connections](tenant_id, platform);
END`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create platform_connections (mssql): %w", err)
	}
	return nil
}

const (
	mergeConnectionQueryMSSQL = `MERGE dbo.[platform_connections] AS target
USING (VALUES (@p1, @p2)) AS src(tenant_id, platform)
ON target.tenant_id = src.tenant_id AND target.platform = src.platform
WHEN MATCHED THEN UPDATE SET
    external_account_id=@p3,
    external_account_name=@p4,
    status=@p5,
    credential_blob=@p6,
    version=target.version+1,
    last_error=NULL,
    updated_at=@p7,
    deleted_at=NULL
WHEN NOT MATCHED THEN
    INSERT (tenant_id, platform, external_account_id, external_account_name, status, credential_blob, version, created_at, updated_at)
    VALUES (@p1,@p2,@p3,@p4,@p5,@p6,1,@p7,@p7)
OUTPUT inserted.id, inserted.version, inserted.created_at;`
	selectConnectionColumnsMSSQL = `SELECT id, tenant_id, platform, external_account_id, external_account_name, status, credential_blob, version, last_error, created_at, updated_at FROM dbo.[platform_connections]`
	swapCredentialQueryMSSQL     = `UPDATE dbo.[platform_connections] SET credential_blob=@p1, status=@p2, last_error=NULL, version=version+1, updated_at=@p3
OUTPUT inserted.version
WHERE tenant_id=@p4 AND platform=@p5 AND version=@p6 AND deleted_at IS NULL`
	setConnectionStatusQueryMSSQL = `UPDATE dbo.[platform_connections] SET status=@p1, last_error=@p2, version=version+1, updated_at=@p3
WHERE tenant_id=@p4 AND platform=@p5 AND version=@p6 AND deleted_at IS NULL`
	softDeleteConnectionQueryMSSQL = `UPDATE dbo.[platform_connections] SET status='revoked', credential_blob='', version=version+1, updated_at=@p1, deleted_at=@p1
WHERE tenant_id=@p2 AND platform=@p3 AND deleted_at IS NULL`
)

func (r *ConnectionRepositoryMSSQL) Upsert(ctx context.Context, c *model.PlatformConnection) error {
	now := time.Now().UTC()
	c.UpdatedAt = now
	row := r.db.QueryRowContext(ctx, mergeConnectionQueryMSSQL,
		c.TenantID, string(c.Platform), c.ExternalAccountID, c.ExternalAccountName, string(c.Status), c.CredentialBlob, now)
	if err := row.Scan(&c.ID, &c.Version, &c.CreatedAt); err != nil {
		return fmt.Errorf("upsert connection (mssql): %w", err)
	}
	c.LastError = nil
	c.DeletedAt = nil
	return nil
}

func (r *ConnectionRepositoryMSSQL) Get(ctx context.Context, tenantID string, platform model.Platform) (*model.PlatformConnection, error) {
	row := r.db.QueryRowContext(ctx, selectConnectionColumnsMSSQL+` WHERE tenant_id=@p1 AND platform=@p2 AND deleted_at IS NULL`, tenantID, string(platform))
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return c, err
}

func (r *ConnectionRepositoryMSSQL) ListByTenant(ctx context.Context, tenantID string) ([]*model.PlatformConnection, error) {
	rows, err := r.db.QueryContext(ctx, selectConnectionColumnsMSSQL+` WHERE tenant_id=@p1 AND deleted_at IS NULL ORDER BY platform`, tenantID)
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

func (r *ConnectionRepositoryMSSQL) SwapCredential(ctx context.Context, tenantID string, platform model.Platform, expectedVersion int64, blob string, status model.ConnectionStatus) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, swapCredentialQueryMSSQL, blob, string(status), time.Now().UTC(), tenantID, string(platform), expectedVersion).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrConflict
	}
	if err != nil {
		return 0, fmt.Errorf("swap credential (mssql): %w", err)
	}
	return version, nil
}

func (r *ConnectionRepositoryMSSQL) SetStatus(ctx context.Context, tenantID string, platform model.Platform, expectedVersion int64, status model.ConnectionStatus, lastError *string) error {
	res, err := r.db.ExecContext(ctx, setConnectionStatusQueryMSSQL, string(status), nullString(lastError), time.Now().UTC(), tenantID, string(platform), expectedVersion)
	if err != nil {
		return fmt.Errorf("set connection status (mssql): %w", err)
	}
	return expectOneRow(res, model.ErrConflict)
}

func (r *ConnectionRepositoryMSSQL) SoftDelete(ctx context.Context, tenantID string, platform model.Platform) error {
	res, err := r.db.ExecContext(ctx, softDeleteConnectionQueryMSSQL, time.Now().UTC(), tenantID, string(platform))
	if err != nil {
		return fmt.Errorf("delete connection (mssql): %w", err)
	}
	return expectOneRow(res, model.ErrNotFound)
}

var _ repository.IPlatformConnection = (*ConnectionRepositoryMSSQL)(nil)
