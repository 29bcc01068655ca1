package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/configuration"
)

// OAuthProvider wraps one platform's authorization server with x/oauth2.
type OAuthProvider struct {
	platform   model.Platform
	config     *oauth2.Config
	revokeURL  string
	httpClient *http.Client
	preserve   bool
}

func NewOAuthProvider(platform model.Platform, p configuration.Provider, httpClient *http.Client) *OAuthProvider {
	authURL, tokenURL, revokeURL := p.AuthURL, p.TokenURL, p.RevokeURL
	// federated servers expose the standard paths on the instance
	if p.Server != "" {
		server := strings.TrimRight(p.Server, "/")
		if authURL == "" {
			authURL = server + "/oauth/authorize"
		}
		if tokenURL == "" {
			tokenURL = server + "/oauth/token"
		}
		if revokeURL == "" {
			revokeURL = server + "/oauth/revoke"
		}
	}
	if httpClient == nil {
		httpClient = newHTTPClient(0)
	}
	preserve := true
	if p.KeepRefreshToken != nil {
		preserve = *p.KeepRefreshToken
	}
	return &OAuthProvider{
		platform: platform,
		config: &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURI,
			Scopes:       p.Scopes,
			Endpoint:     oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL},
		},
		revokeURL:  revokeURL,
		httpClient: httpClient,
		preserve:   preserve,
	}
}

func (o *OAuthProvider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

func (o *OAuthProvider) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (o *OAuthProvider) Exchange(ctx context.Context, code string) (*model.Credential, error) {
	tok, err := o.config.Exchange(o.withClient(ctx), code)
	if err != nil {
		return nil, o.tokenError("exchange code", err, model.ErrUnauthorized)
	}
	return tokenToCredential(tok), nil
}

func (o *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (*model.Credential, error) {
	if refreshToken == "" {
		return nil, model.ErrNoRefreshToken
	}
	tok, err := o.config.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, o.tokenError("refresh token", err, model.ErrReauthorizationRequired)
	}
	cred := tokenToCredential(tok)
	// x/oauth2 copies the submitted refresh token when the response has none
	if !o.preserve && cred.RefreshToken == refreshToken {
		cred.RefreshToken = ""
	}
	return cred, nil
}

func (o *OAuthProvider) PreserveRefreshToken() bool { return o.preserve }

// Revoke asks the provider to invalidate the refresh token, or the access token when there is none.
func (o *OAuthProvider) Revoke(ctx context.Context, cred *model.Credential) error {
	if o.revokeURL == "" || cred == nil {
		return nil
	}
	token, hint := cred.RefreshToken, "refresh_token"
	if token == "" {
		token, hint = cred.AccessToken, "access_token"
	}
	form := url.Values{
		"token":           {token},
		"token_type_hint": {hint},
		"client_id":       {o.config.ClientID},
		"client_secret":   {o.config.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return &model.ProviderError{Platform: o.platform, Op: "revoke", Kind: model.ErrProviderUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return StatusError(o.platform, "revoke", resp.StatusCode, resp.Header.Get("Retry-After"), strings.TrimSpace(string(body)))
	}
	return nil
}

// tokenError classifies token endpoint failures. A 4xx answer is a rejection of the grant.
func (o *OAuthProvider) tokenError(op string, err error, rejected error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		pe := &model.ProviderError{Platform: o.platform, Op: op, StatusCode: status, Message: re.ErrorCode}
		if pe.Message == "" {
			pe.Message = strings.TrimSpace(string(re.Body))
		}
		switch {
		case status == http.StatusTooManyRequests:
			pe.Kind = model.ErrRateLimited
			pe.RetryAfter = parseRetryAfter(re.Response.Header.Get("Retry-After"), time.Now())
		case status >= 400 && status < 500:
			pe.Kind = rejected
		default:
			pe.Kind = model.ErrProviderUnavailable
		}
		return pe
	}
	return &model.ProviderError{Platform: o.platform, Op: op, Kind: model.ErrProviderUnavailable, Message: fmt.Sprint(err)}
}

func tokenToCredential(tok *oauth2.Token) *model.Credential {
	cred := &model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		TokenType:    tok.TokenType,
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		cred.Scopes = strings.FieldsFunc(scope, func(r rune) bool { return r == ' ' || r == ',' })
	}
	return cred
}
