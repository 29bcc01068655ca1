package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
	"growth-automation/infrastructure/security"
)

// ICredentialUsecase owns the lifecycle of platform credentials. Every provider call made by
// other usecases goes through Do.
type ICredentialUsecase interface {
	BeginAuthorization(ctx context.Context, tenantID string, platform model.Platform) (string, error)
	CompleteAuthorization(ctx context.Context, platform model.Platform, code, state string) (*model.ConnectionSummary, error)
	Refresh(ctx context.Context, tenantID string, platform model.Platform) (*model.Credential, error)
	GetValidCredential(ctx context.Context, tenantID string, platform model.Platform) (*model.Credential, error)
	Revoke(ctx context.Context, tenantID string, platform model.Platform) error
	Do(ctx context.Context, tenantID string, platform model.Platform, fn func(ctx context.Context, auth model.ClientAuth) error) error
	ListConnections(ctx context.Context, tenantID string) ([]model.ConnectionSummary, error)
}

type CredentialConfig struct {
	RefreshMargin       time.Duration
	StateTTL            time.Duration
	ProviderConcurrency int64
	CallTimeout         time.Duration
}

type credentialUsecase struct {
	registry repository.IPlatformRegistry
	store    repository.ICredentialStore
	states   repository.IStateStore
	signer   *security.StateSigner
	events   repository.IEventPublisher
	notifier repository.INotifier
	cfg      CredentialConfig
	sem      *semaphore.Weighted
	flight   singleflight.Group
	now      func() time.Time
}

func NewCredentialUsecase(
	registry repository.IPlatformRegistry,
	store repository.ICredentialStore,
	states repository.IStateStore,
	signer *security.StateSigner,
	events repository.IEventPublisher,
	notifier repository.INotifier,
	cfg CredentialConfig,
) ICredentialUsecase {
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = 2 * time.Minute
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = 10 * time.Minute
	}
	if cfg.ProviderConcurrency <= 0 {
		cfg.ProviderConcurrency = 16
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &credentialUsecase{
		registry: registry,
		store:    store,
		states:   states,
		signer:   signer,
		events:   events,
		notifier: notifier,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(cfg.ProviderConcurrency),
		now:      time.Now,
	}
}

func (u *credentialUsecase) BeginAuthorization(ctx context.Context, tenantID string, platform model.Platform) (string, error) {
	oauth, err := u.registry.OAuth(platform)
	if err != nil {
		return "", err
	}
	nonce, err := security.NewNonce()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := model.StateToken{Nonce: nonce, TenantID: tenantID, Platform: platform, IssuedAt: u.now().UTC()}
	if err := u.states.Put(ctx, state, u.cfg.StateTTL); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return oauth.AuthCodeURL(u.signer.Sign(nonce)), nil
}

func (u *credentialUsecase) CompleteAuthorization(ctx context.Context, platform model.Platform, code, state string) (*model.ConnectionSummary, error) {
	nonce, ok := u.signer.Verify(state)
	if !ok {
		return nil, model.ErrInvalidState
	}
	st, err := u.states.Consume(ctx, nonce)
	if err != nil {
		return nil, err
	}
	if st.Platform != platform {
		return nil, fmt.Errorf("state issued for %s: %w", st.Platform, model.ErrInvalidState)
	}
	if code == "" {
		return nil, fmt.Errorf("missing authorization code: %w", model.ErrInvalidState)
	}
	oauth, err := u.registry.OAuth(platform)
	if err != nil {
		return nil, err
	}
	client, err := u.registry.Client(platform)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()
	cred, err := oauth.Exchange(callCtx, code)
	if err != nil {
		return nil, err
	}
	account, err := client.GetAccount(callCtx, model.ClientAuth{TenantID: st.TenantID, Token: cred})
	if err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	// page scoped platforms publish with the account token
	if account.Token != "" {
		cred.AccessToken = account.Token
	}

	conn, err := u.store.Save(ctx, st.TenantID, platform, *account, cred)
	if err != nil {
		return nil, err
	}
	u.publish(ctx, model.DomainEvent{
		Type:     model.EventConnectionConnected,
		TenantID: st.TenantID,
		Platform: platform,
		Status:   string(model.ConnectionConnected),
	})
	summary := conn.Summary()
	return &summary, nil
}

// Refresh forces a token refresh regardless of expiry.
func (u *credentialUsecase) Refresh(ctx context.Context, tenantID string, platform model.Platform) (*model.Credential, error) {
	v, err, _ := u.flight.Do(flightKey(tenantID, platform), func() (interface{}, error) {
		conn, cred, err := u.store.Load(ctx, tenantID, platform)
		if err != nil {
			return nil, err
		}
		if cred.RefreshToken == "" && !cred.ExpiresWithin(u.now(), 0) {
			return nil, fmt.Errorf("%s credential: %w", platform, model.ErrNoRefreshToken)
		}
		return u.refresh(ctx, conn, cred)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Credential), nil
}

func (u *credentialUsecase) GetValidCredential(ctx context.Context, tenantID string, platform model.Platform) (*model.Credential, error) {
	_, cred, err := u.validCredential(ctx, tenantID, platform, "")
	return cred, err
}

// validCredential returns a credential that is not about to expire. When rejected is set the
// stored token is refreshed if it still equals the rejected one.
func (u *credentialUsecase) validCredential(ctx context.Context, tenantID string, platform model.Platform, rejected string) (*model.PlatformConnection, *model.Credential, error) {
	conn, cred, err := u.store.Load(ctx, tenantID, platform)
	if err != nil {
		return nil, nil, err
	}
	if conn.Status == model.ConnectionExpired {
		return nil, nil, fmt.Errorf("%s connection expired: %w", platform, model.ErrReauthorizationRequired)
	}
	if !u.stale(cred, rejected) {
		return conn, cred, nil
	}

	type loaded struct {
		conn *model.PlatformConnection
		cred *model.Credential
	}
	v, err, _ := u.flight.Do(flightKey(tenantID, platform), func() (interface{}, error) {
		// a caller ahead of us may already have refreshed
		conn, cred, err := u.store.Load(ctx, tenantID, platform)
		if err != nil {
			return nil, err
		}
		if !u.stale(cred, rejected) {
			return loaded{conn, cred}, nil
		}
		next, err := u.refresh(ctx, conn, cred)
		if err != nil {
			return nil, err
		}
		return loaded{conn, next}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	res := v.(loaded)
	return res.conn, res.cred, nil
}

func (u *credentialUsecase) stale(cred *model.Credential, rejected string) bool {
	if rejected != "" && cred.AccessToken == rejected {
		return true
	}
	return cred.ExpiresWithin(u.now(), u.cfg.RefreshMargin)
}

func (u *credentialUsecase) refresh(ctx context.Context, conn *model.PlatformConnection, cred *model.Credential) (*model.Credential, error) {
	lg := logger.GetLogger().WithFields(map[string]interface{}{
		"tenant":   conn.TenantID,
		"platform": conn.Platform,
	})
	if cred.RefreshToken == "" {
		if !cred.ExpiresWithin(u.now(), 0) {
			// still usable until it actually expires
			return cred, nil
		}
		u.expire(ctx, conn, model.ErrNoRefreshToken.Error())
		return nil, fmt.Errorf("%w: %w", model.ErrReauthorizationRequired, model.ErrNoRefreshToken)
	}
	oauth, err := u.registry.OAuth(conn.Platform)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
	defer cancel()
	next, err := oauth.Refresh(callCtx, cred.RefreshToken)
	if err != nil {
		if errors.Is(err, model.ErrReauthorizationRequired) {
			u.expire(ctx, conn, err.Error())
		}
		lg.WithField("error", err).Warn("Token refresh failed")
		return nil, err
	}
	if next.RefreshToken == "" && oauth.PreserveRefreshToken() {
		next.RefreshToken = cred.RefreshToken
	}
	if len(next.Scopes) == 0 {
		next.Scopes = cred.Scopes
	}

	if _, err := u.store.Swap(ctx, conn, next); err != nil {
		if !errors.Is(err, model.ErrConflict) {
			return nil, err
		}
		// lost the race; the winner's credential is current
		_, latest, lerr := u.store.Load(ctx, conn.TenantID, conn.Platform)
		if lerr != nil {
			return nil, lerr
		}
		lg.Info("Concurrent refresh detected, using stored credential")
		return latest, nil
	}
	lg.WithField("expires_at", next.ExpiresAt).Info("Token refreshed")
	return next, nil
}

func (u *credentialUsecase) expire(ctx context.Context, conn *model.PlatformConnection, reason string) {
	if err := u.store.MarkStatus(ctx, conn, model.ConnectionExpired, reason); err != nil {
		logger.GetLogger().WithFields(map[string]interface{}{
			"tenant":   conn.TenantID,
			"platform": conn.Platform,
			"error":    err,
		}).Warn("Failed to mark connection expired")
	}
	u.publish(ctx, model.DomainEvent{
		Type:     model.EventConnectionExpired,
		TenantID: conn.TenantID,
		Platform: conn.Platform,
		Status:   string(model.ConnectionExpired),
		Error:    reason,
	})
	if u.notifier != nil {
		_ = u.notifier.Notify(ctx, fmt.Sprintf("%s connection of tenant %s needs reauthorization: %s", conn.Platform, conn.TenantID, reason))
	}
}

// Revoke asks the provider to invalidate the token and then removes the connection
// even when the provider call fails.
func (u *credentialUsecase) Revoke(ctx context.Context, tenantID string, platform model.Platform) error {
	_, cred, err := u.store.Load(ctx, tenantID, platform)
	if errors.Is(err, model.ErrNotFound) {
		return err
	}
	lg := logger.GetLogger().WithFields(map[string]interface{}{"tenant": tenantID, "platform": platform})
	if err != nil {
		lg.WithField("error", err).Warn("Credential unreadable, skipping provider revocation")
	}
	if cred != nil {
		if oauth, oerr := u.registry.OAuth(platform); oerr == nil {
			callCtx, cancel := context.WithTimeout(ctx, u.cfg.CallTimeout)
			if rerr := oauth.Revoke(callCtx, cred); rerr != nil {
				lg.WithField("error", rerr).Warn("Provider revocation failed")
			}
			cancel()
		}
	}
	if err := u.store.Delete(ctx, tenantID, platform); err != nil {
		return err
	}
	lg.Info("Connection revoked")
	return nil
}

// Do runs fn with a valid credential under the global provider concurrency cap. A provider
// rejection of the credential triggers one refresh and one retry. The refresh runs without a
// provider slot held.
func (u *credentialUsecase) Do(ctx context.Context, tenantID string, platform model.Platform, fn func(ctx context.Context, auth model.ClientAuth) error) error {
	conn, cred, err := u.validCredential(ctx, tenantID, platform, "")
	if err != nil {
		return err
	}
	auth := model.ClientAuth{TenantID: tenantID, AccountID: conn.ExternalAccountID, Token: cred}
	err = u.call(ctx, auth, fn)
	if !errors.Is(err, model.ErrUnauthorized) {
		return err
	}

	logger.GetLogger().WithFields(map[string]interface{}{
		"tenant":   tenantID,
		"platform": platform,
	}).Info("Provider rejected credential, refreshing once")
	_, cred, rerr := u.validCredential(ctx, tenantID, platform, cred.AccessToken)
	if rerr != nil {
		return rerr
	}
	auth.Token = cred
	return u.call(ctx, auth, fn)
}

// call runs fn while holding one provider slot.
func (u *credentialUsecase) call(ctx context.Context, auth model.ClientAuth, fn func(ctx context.Context, auth model.ClientAuth) error) error {
	if err := u.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer u.sem.Release(1)
	return fn(ctx, auth)
}

func (u *credentialUsecase) ListConnections(ctx context.Context, tenantID string) ([]model.ConnectionSummary, error) {
	conns, err := u.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]model.ConnectionSummary, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.Summary())
	}
	return out, nil
}

func (u *credentialUsecase) publish(ctx context.Context, evt model.DomainEvent) {
	if u.events == nil {
		return
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = u.now().UTC()
	}
	if err := u.events.Publish(ctx, evt); err != nil {
		logger.GetLogger().WithFields(map[string]interface{}{
			"type":  evt.Type,
			"error": err,
		}).Warn("Event publish failed")
	}
}

func flightKey(tenantID string, platform model.Platform) string {
	return tenantID + "|" + string(platform)
}
