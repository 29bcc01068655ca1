package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConfiguration           = errors.New("platform not configured")
	ErrInvalidState            = errors.New("invalid or expired authorization state")
	ErrNoRefreshToken          = errors.New("no refresh token available")
	ErrReauthorizationRequired = errors.New("reauthorization required")
	ErrMediaUpload             = errors.New("media upload failed")
	ErrContentTooLong          = errors.New("content too long")
	ErrProviderUnavailable     = errors.New("provider unavailable")
	ErrRateLimited             = errors.New("rate limited")
	ErrUnauthorized            = errors.New("provider rejected credentials")
	ErrContentRejected         = errors.New("content rejected by provider")
	ErrNotFound                = errors.New("not found")
	ErrConflict                = errors.New("conflict")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrUnsupportedPlatform     = errors.New("unsupported platform")
	ErrValidation              = errors.New("invalid request")
)

// ProviderError describes a failed call to a platform API.
type ProviderError struct {
	Platform   Platform
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Kind       error
	Message    string
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Platform, e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Kind }

// IsTransient reports whether err is worth retrying within the same tick.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrRateLimited)
}

// RetryAfterOf extracts a provider supplied backoff hint, if any.
func RetryAfterOf(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}
