package credstore

import (
	"context"
	"encoding/json"
	"fmt"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
	"growth-automation/infrastructure/security"
)

// Store encrypts credentials on the way into the connection table and decrypts them on the way out.
// Plaintext tokens never reach the repository.
type Store struct {
	repo   repository.IPlatformConnection
	cipher security.ISecretCipher
}

func NewStore(repo repository.IPlatformConnection, cipher security.ISecretCipher) *Store {
	return &Store{repo: repo, cipher: cipher}
}

func (s *Store) seal(cred *model.Credential) (string, error) {
	raw, err := json.Marshal(cred)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	blob, err := s.cipher.Encrypt(raw)
	if err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	return blob, nil
}

func (s *Store) open(blob string) (*model.Credential, error) {
	raw, err := s.cipher.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential: %w", err)
	}
	var cred model.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &cred, nil
}

func (s *Store) Save(ctx context.Context, tenantID string, platform model.Platform, account model.AccountIdentity, cred *model.Credential) (*model.PlatformConnection, error) {
	blob, err := s.seal(cred)
	if err != nil {
		return nil, err
	}
	conn := &model.PlatformConnection{
		TenantID:            tenantID,
		Platform:            platform,
		ExternalAccountID:   account.ID,
		ExternalAccountName: account.Name,
		Status:              model.ConnectionConnected,
		CredentialBlob:      blob,
	}
	if err := s.repo.Upsert(ctx, conn); err != nil {
		return nil, err
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"tenant":   tenantID,
		"platform": platform,
		"version":  conn.Version,
	}).Info("Connection stored")
	return conn, nil
}

func (s *Store) Load(ctx context.Context, tenantID string, platform model.Platform) (*model.PlatformConnection, *model.Credential, error) {
	conn, err := s.repo.Get(ctx, tenantID, platform)
	if err != nil {
		return nil, nil, err
	}
	if conn.CredentialBlob == "" {
		return conn, nil, model.ErrReauthorizationRequired
	}
	cred, err := s.open(conn.CredentialBlob)
	if err != nil {
		return nil, nil, err
	}
	return conn, cred, nil
}

// Swap replaces the credential if conn.Version is still current and returns the connection at its new version.
func (s *Store) Swap(ctx context.Context, conn *model.PlatformConnection, cred *model.Credential) (*model.PlatformConnection, error) {
	blob, err := s.seal(cred)
	if err != nil {
		return nil, err
	}
	version, err := s.repo.SwapCredential(ctx, conn.TenantID, conn.Platform, conn.Version, blob, model.ConnectionConnected)
	if err != nil {
		return nil, err
	}
	next := *conn
	next.CredentialBlob = blob
	next.Version = version
	next.Status = model.ConnectionConnected
	next.LastError = nil
	return &next, nil
}

func (s *Store) MarkStatus(ctx context.Context, conn *model.PlatformConnection, status model.ConnectionStatus, reason string) error {
	var lastErr *string
	if reason != "" {
		lastErr = &reason
	}
	return s.repo.SetStatus(ctx, conn.TenantID, conn.Platform, conn.Version, status, lastErr)
}

func (s *Store) Delete(ctx context.Context, tenantID string, platform model.Platform) error {
	return s.repo.SoftDelete(ctx, tenantID, platform)
}

func (s *Store) List(ctx context.Context, tenantID string) ([]*model.PlatformConnection, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

var _ repository.ICredentialStore = (*Store)(nil)
