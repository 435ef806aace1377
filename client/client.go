// Package client implements the authenticated HTTP client for the MedBuddy
// admin API. Every outgoing request re-reads the stored access token and
// attaches it as a bearer credential; a 401 response triggers the refresh
// protocol, during which concurrent failures queue behind a single token
// exchange and replay once it settles.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"medadmin/store"
)

// Backend endpoint paths consumed by the auth protocol.
const (
	loginPath   = "/auth/login"
	logoutPath  = "/auth/logout"
	refreshPath = "/auth/refresh-token"
	profilePath = "/users/profile"
)

// Options configures a Client.
type Options struct {
	// BaseURL of the MedBuddy backend, scheme included.
	BaseURL string
	// Store holds the credential pair and cached profile.
	Store store.Store
	// Logger receives structured client diagnostics.
	Logger *slog.Logger
	// RequestTimeout bounds ordinary API calls.
	RequestTimeout time.Duration
	// RefreshTimeout bounds the token exchange.
	RefreshTimeout time.Duration
	// OnAuthFailure runs after a terminal auth failure, once the local
	// credentials have been purged. Optional.
	OnAuthFailure func()
	// Transport overrides the HTTP transport. Tests use this.
	Transport http.RoundTripper
}

// Client is the authenticated API client. It is safe for concurrent use;
// the refresh protocol is single-flight across all goroutines.
type Client struct {
	baseURL       string
	http          *http.Client
	refreshHTTP   *http.Client
	creds         store.Credentials
	logger        *slog.Logger
	onAuthFailure func()
	refresh       refreshGroup
}

// New constructs a Client. The refresh exchange uses a separate bare HTTP
// client so a 401 from the refresh endpoint itself can never re-enter the
// interceptor.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("client: credential store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	requestTimeout := opts.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	refreshTimeout := opts.RefreshTimeout
	if refreshTimeout <= 0 {
		refreshTimeout = 10 * time.Second
	}

	return &Client{
		baseURL:       opts.BaseURL,
		http:          &http.Client{Timeout: requestTimeout, Transport: opts.Transport},
		refreshHTTP:   &http.Client{Timeout: refreshTimeout, Transport: opts.Transport},
		creds:         store.Credentials{Store: opts.Store},
		logger:        logger,
		onAuthFailure: opts.OnAuthFailure,
	}, nil
}

// Credentials exposes the typed credential view backing this client.
func (c *Client) Credentials() store.Credentials {
	return c.creds
}

// SetAuthFailureHook registers fn to run after a terminal auth failure.
// Call during wiring, before the client is shared between goroutines.
func (c *Client) SetAuthFailureHook(fn func()) {
	c.onAuthFailure = fn
}

// Do performs an authenticated JSON request against the backend. A 401 is
// recovered once via the refresh protocol and the request replayed with
// the new token; a second 401, or any non-401 failure, passes through to
// the caller unmodified. When out is non-nil the 2xx response body is
// decoded into it.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
	}

	retried := false
	for {
		status, raw, err := c.send(ctx, method, path, query, payload)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized && !retried {
			retried = true
			if path == refreshPath {
				// A rejected refresh is terminal; never refresh to retry a
				// refresh.
				c.failSession()
				return fmt.Errorf("%s rejected: %w", refreshPath, ErrSessionExpired)
			}
			if _, err := c.refreshAccessToken(ctx); err != nil {
				return err
			}
			// Replay with the rotated token, which send re-reads from the
			// store.
			continue
		}

		if status < 200 || status >= 300 {
			return &APIError{Status: status, Message: errorMessage(raw)}
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("decode %s %s response: %w", method, path, err)
			}
		}
		return nil
	}
}

// send issues a single attempt. Each attempt builds a fresh request so a
// replay never reuses a consumed body, and re-reads the access token so a
// refresh that completed in between is always picked up.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, payload []byte) (int, []byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	c.attachAuth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s response: %w", method, path, err)
	}
	return resp.StatusCode, raw, nil
}

// attachAuth sets the bearer header from the store. Requests made while no
// token is stored pass through untouched.
func (c *Client) attachAuth(req *http.Request) {
	if token := c.creds.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// errorMessage pulls a human-readable message out of an error response
// body, falling back to empty when the body is not the usual envelope.
func errorMessage(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return firstString(body, "message", "error")
}

// get is a small convenience wrapper used by the typed services.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *Client) delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}
