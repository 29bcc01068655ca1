package repository

import (
	"context"
	"time"

	"growth-automation/domain/model"
)

// IPlatformConnection persists tenant connections. Rows are unique per (tenant, platform).
type IPlatformConnection interface {
	// Upsert inserts or replaces the live connection and bumps its version.
	Upsert(ctx context.Context, conn *model.PlatformConnection) error
	// Get returns the non-deleted connection or model.ErrNotFound.
	Get(ctx context.Context, tenantID string, platform model.Platform) (*model.PlatformConnection, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.PlatformConnection, error)
	// SwapCredential replaces the blob only if the stored version still equals expectedVersion.
	// It returns model.ErrConflict when the version moved.
	SwapCredential(ctx context.Context, tenantID string, platform model.Platform, expectedVersion int64, blob string, status model.ConnectionStatus) (int64, error)
	// SetStatus records a status change and optional error text, guarded by the version.
	SetStatus(ctx context.Context, tenantID string, platform model.Platform, expectedVersion int64, status model.ConnectionStatus, lastError *string) error
	// SoftDelete marks the connection revoked and deleted regardless of version.
	SoftDelete(ctx context.Context, tenantID string, platform model.Platform) error
}

// ICredentialStore is the encrypting facade over IPlatformConnection.
type ICredentialStore interface {
	Save(ctx context.Context, tenantID string, platform model.Platform, account model.AccountIdentity, cred *model.Credential) (*model.PlatformConnection, error)
	// Load returns the connection and its decrypted credential.
	Load(ctx context.Context, tenantID string, platform model.Platform) (*model.PlatformConnection, *model.Credential, error)
	Swap(ctx context.Context, conn *model.PlatformConnection, cred *model.Credential) (*model.PlatformConnection, error)
	MarkStatus(ctx context.Context, conn *model.PlatformConnection, status model.ConnectionStatus, reason string) error
	Delete(ctx context.Context, tenantID string, platform model.Platform) error
	List(ctx context.Context, tenantID string) ([]*model.PlatformConnection, error)
}

// IStateStore holds single use authorization states with a TTL.
type IStateStore interface {
	Put(ctx context.Context, state model.StateToken, ttl time.Duration) error
	// Consume atomically reads and deletes the state. Missing or expired states yield model.ErrInvalidState.
	Consume(ctx context.Context, nonce string) (*model.StateToken, error)
}
