package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"growth-automation/domain/model"
)

const (
	maxErrorBody = 4 << 10
	maxMediaSize = 512 << 20

	defaultCallTimeout = 30 * time.Second
)

// httpAPI is the shared JSON transport of the HTTP adapters. Every response is classified
// into the provider error taxonomy before it reaches the adapter.
type httpAPI struct {
	platform model.Platform
	client   *http.Client
	timeout  time.Duration
}

func newHTTPAPI(platform model.Platform, client *http.Client, timeout time.Duration) *httpAPI {
	if client == nil {
		client = newHTTPClient(timeout)
	}
	return &httpAPI{platform: platform, client: client, timeout: timeout}
}

// newHTTPClient returns a client bounded by timeout, or by defaultCallTimeout when none is set.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &http.Client{Timeout: timeout}
}

type apiCall struct {
	op          string
	method      string
	url         string
	bearer      string
	body        io.Reader
	contentType string
	headers     map[string]string
}

func (a *httpAPI) do(ctx context.Context, c apiCall, out any) (http.Header, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, c.body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", a.platform, c.op, err)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &model.ProviderError{Platform: a.platform, Op: c.op, Kind: model.ErrProviderUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.Header, StatusError(a.platform, c.op, resp.StatusCode, resp.Header.Get("Retry-After"), strings.TrimSpace(string(body)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.Header, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.Header, &model.ProviderError{Platform: a.platform, Op: c.op, StatusCode: resp.StatusCode, Kind: model.ErrProviderUnavailable, Message: "decode response: " + err.Error()}
	}
	return resp.Header, nil
}

func (a *httpAPI) getJSON(ctx context.Context, op, url, bearer string, out any) error {
	_, err := a.do(ctx, apiCall{op: op, method: http.MethodGet, url: url, bearer: bearer}, out)
	return err
}

func (a *httpAPI) postJSON(ctx context.Context, op, url, bearer string, in, out any) (http.Header, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("%s %s: encode body: %w", a.platform, op, err)
	}
	return a.do(ctx, apiCall{op: op, method: http.MethodPost, url: url, bearer: bearer, body: bytes.NewReader(raw), contentType: "application/json"}, out)
}

// fetchMedia downloads a media URL so it can be re-uploaded to the platform.
func (a *httpAPI) fetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", model.ErrMediaUpload, mediaURL, err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch %s: %v", model.ErrMediaUpload, mediaURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: fetch %s: status %d", model.ErrMediaUpload, mediaURL, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %v", model.ErrMediaUpload, mediaURL, err)
	}
	if len(data) > maxMediaSize {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", model.ErrMediaUpload, mediaURL, maxMediaSize)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}

// StatusError maps a provider HTTP status onto the shared error taxonomy.
func StatusError(platform model.Platform, op string, status int, retryAfter, body string) error {
	pe := &model.ProviderError{Platform: platform, Op: op, StatusCode: status, Message: body}
	switch {
	case status == http.StatusUnauthorized:
		pe.Kind = model.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		pe.Kind = model.ErrRateLimited
		pe.RetryAfter = parseRetryAfter(retryAfter, time.Now())
	case status >= 500, status == http.StatusRequestTimeout:
		pe.Kind = model.ErrProviderUnavailable
		pe.RetryAfter = parseRetryAfter(retryAfter, time.Now())
	default:
		pe.Kind = model.ErrContentRejected
	}
	return pe
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func isVideo(contentType, mediaURL string) bool {
	if strings.HasPrefix(contentType, "video/") {
		return true
	}
	lower := strings.ToLower(mediaURL)
	for _, ext := range []string{".mp4", ".mov", ".webm", ".m4v"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
