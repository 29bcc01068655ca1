package model

import (
	"strings"
	"time"
)

// Platform identifies a third-party provider an adapter is registered for.
type Platform string

const (
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformMastodon  Platform = "mastodon"
)

// Platforms lists every platform with a built-in adapter.
var Platforms = []Platform{
	PlatformFacebook,
	PlatformInstagram,
	PlatformTikTok,
	PlatformLinkedIn,
	PlatformTwitter,
	PlatformYouTube,
	PlatformMastodon,
}

// ParsePlatform normalizes a user supplied platform tag. "x" is accepted as twitter.
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if p == "x" {
		p = PlatformTwitter
	}
	for _, known := range Platforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

type ConnectionStatus string

const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConnected ConnectionStatus = "connected"
	ConnectionExpired   ConnectionStatus = "expired"
	ConnectionRevoked   ConnectionStatus = "revoked"
	ConnectionError     ConnectionStatus = "error"
)

// PlatformConnection is the durable record of a tenant's link to one platform.
// CredentialBlob is ciphertext; it is never decoded outside the credential store.
type PlatformConnection struct {
	ID                  int64            `json:"id"`
	TenantID            string           `json:"tenant_id"`
	Platform            Platform         `json:"platform"`
	ExternalAccountID   string           `json:"external_account_id"`
	ExternalAccountName string           `json:"external_account_name"`
	Status              ConnectionStatus `json:"status"`
	CredentialBlob      string           `json:"-"`
	Version             int64            `json:"version"`
	LastError           *string          `json:"last_error,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	DeletedAt           *time.Time       `json:"deleted_at,omitempty"`
}

// Credential is the decrypted token material. It only lives in memory.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
}

// ExpiresWithin reports whether the credential expires before now+margin.
// A zero expiry means the token does not expire.
func (c *Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c == nil {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !c.ExpiresAt.After(now.Add(margin))
}

// StateToken binds an in-flight authorization to a tenant and platform.
type StateToken struct {
	Nonce    string    `json:"nonce"`
	TenantID string    `json:"tenant_id"`
	Platform Platform  `json:"platform"`
	IssuedAt time.Time `json:"issued_at"`
}

// AccountIdentity is what a platform reports about the authorized account.
type AccountIdentity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	// Token is set when the platform issues an account scoped token, e.g. a Facebook page token.
	Token string `json:"-"`
}

// ClientAuth is passed into every platform call. Adapters never hold tokens of their own.
type ClientAuth struct {
	TenantID  string
	AccountID string
	Token     *Credential
}

func (a ClientAuth) AccessToken() string {
	if a.Token == nil {
		return ""
	}
	return a.Token.AccessToken
}

// ConnectionSummary is the token free view returned to API callers.
type ConnectionSummary struct {
	Platform    Platform         `json:"platform"`
	AccountID   string           `json:"account_id"`
	AccountName string           `json:"account_name"`
	Status      ConnectionStatus `json:"status"`
	LastError   *string          `json:"last_error,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (c *PlatformConnection) Summary() ConnectionSummary {
	return ConnectionSummary{
		Platform:    c.Platform,
		AccountID:   c.ExternalAccountID,
		AccountName: c.ExternalAccountName,
		Status:      c.Status,
		LastError:   c.LastError,
		UpdatedAt:   c.UpdatedAt,
	}
}
