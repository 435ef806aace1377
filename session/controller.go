// Package session owns the process-wide authentication state: the current
// user, the current access token, and the checking/loading lifecycle
// flags. It never fails loudly; every operation converts errors into a
// result value or a silent no-op, leaving the one destructive side effect
// (credential purge on unrecoverable failure) to the client layer.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"medadmin/client"
	"medadmin/store"
)

// State is a point-in-time snapshot of the session.
type State struct {
	// User is the cached profile, nil when unknown. Treat as read-only.
	User map[string]any
	// AccessToken is the last token a login or refresh produced. A
	// non-empty value does not guarantee validity; expiry is checked
	// lazily.
	AccessToken string
	// Loading is true during an explicit login or logout.
	Loading bool
	// Checking is true only during the initial bootstrap window, before
	// the process knows whether its stored token is usable.
	Checking bool
}

// LoginResult reports a login attempt without ever raising an error.
type LoginResult struct {
	OK    bool
	Error string
}

// Controller drives the session lifecycle: bootstrap at startup, explicit
// login/logout, silent refresh, and the proactive background refresh.
// Safe for concurrent use.
type Controller struct {
	mu     sync.RWMutex
	state  State
	api    *client.Client
	creds  store.Credentials
	logger *slog.Logger

	checkInterval time.Duration
	expiryBuffer  time.Duration
}

// New constructs a Controller over the given client and store, seeding
// state from whatever credentials survived the last run. It registers
// itself as the client's auth-failure hook so a terminal refresh failure
// resets the session to logged-out.
func New(api *client.Client, st store.Store, checkInterval, expiryBuffer time.Duration, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	creds := store.Credentials{Store: st}
	c := &Controller{
		state: State{
			User:        creds.User(),
			AccessToken: creds.AccessToken(),
			Checking:    true,
		},
		api:           api,
		creds:         creds,
		logger:        logger,
		checkInterval: checkInterval,
		expiryBuffer:  expiryBuffer,
	}
	api.SetAuthFailureHook(c.reset)
	return c
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Bootstrap establishes the session at process start: validate a stored
// access token by fetching the profile, or fall back to a silent refresh.
// Checking clears on every path, so the guard can start making
// authoritative decisions once this returns.
func (c *Controller) Bootstrap(ctx context.Context) {
	c.setChecking(true)
	defer c.setChecking(false)

	if c.creds.AccessToken() != "" {
		c.fetchProfile(ctx)
		return
	}
	if !c.Refresh(ctx) {
		c.logger.Debug("bootstrap found no usable session")
	}
}

// Login authenticates with the backend. Failures of every kind come back
// as LoginResult, never as an error or panic.
func (c *Controller) Login(ctx context.Context, email, password string) LoginResult {
	c.setLoading(true)
	defer c.setLoading(false)

	payload, err := c.api.Login(ctx, email, password)
	if err != nil {
		c.logger.Warn("login request failed", "error", err)
		return LoginResult{Error: "login failed: " + err.Error()}
	}

	switch {
	case payload.Usable():
		c.creds.SetTokens(payload.AccessToken, payload.RefreshToken)
		c.setAccessToken(payload.AccessToken)
		if payload.User != nil {
			c.setUser(payload.User)
		} else {
			c.fetchProfile(ctx)
		}
		return LoginResult{OK: true}
	case payload.Success:
		// Token travels in an httpOnly cookie on some deployments; the
		// profile fetch confirms the session took.
		c.fetchProfile(ctx)
		return LoginResult{OK: true}
	default:
		msg := payload.Message
		if msg == "" {
			msg = "login failed"
		}
		return LoginResult{Error: msg}
	}
}

// Logout tells the backend the session is over (best-effort) and then
// unconditionally clears every local credential.
func (c *Controller) Logout(ctx context.Context) {
	c.setLoading(true)
	defer c.setLoading(false)

	if err := c.api.Logout(ctx); err != nil {
		c.logger.Debug("logout request failed, clearing locally anyway", "error", err)
	}
	c.creds.Clear()
	c.reset()
}

// Refresh silently exchanges the refresh token for a new access token.
// Returns false on any failure; it never propagates an error.
func (c *Controller) Refresh(ctx context.Context) bool {
	if err := c.api.Refresh(ctx); err != nil {
		c.logger.Debug("silent refresh failed", "error", err)
		return false
	}
	c.setAccessToken(c.creds.AccessToken())
	if c.Snapshot().User == nil {
		c.fetchProfile(ctx)
	}
	return true
}

// StartAutoRefresh launches the proactive refresh task: every
// checkInterval it inspects the stored access token and refreshes when
// the token expires within expiryBuffer. A zero interval disables the
// task. The goroutine exits when stop closes.
func (c *Controller) StartAutoRefresh(stop <-chan struct{}) {
	if c.checkInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(c.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.refreshIfExpiring()
			case <-stop:
				return
			}
		}
	}()
}

// refreshIfExpiring is one background check: only sessions that hold both
// tokens are considered, and only a token inside the expiry buffer
// triggers an exchange. Shares the client's single-flight group, so it
// can never race a 401-triggered refresh.
func (c *Controller) refreshIfExpiring() {
	access := c.creds.AccessToken()
	if access == "" || c.creds.RefreshToken() == "" {
		return
	}
	if !store.ExpiresWithin(access, c.expiryBuffer) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if !c.Refresh(ctx) {
		c.logger.Warn("proactive refresh failed")
	}
}

// fetchProfile populates the user from the backend, caching it alongside
// the tokens. A failure keeps the token but leaves the profile empty.
func (c *Controller) fetchProfile(ctx context.Context) {
	profile, err := c.api.Profile(ctx)
	if err != nil {
		c.logger.Debug("profile fetch failed", "error", err)
		c.setUser(nil)
		return
	}
	c.creds.SaveUser(profile)
	c.setUser(profile)
}

// reset drops the in-memory session to logged-out. Invoked on logout and
// by the client's terminal auth-failure hook.
func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.User = nil
	c.state.AccessToken = ""
}

func (c *Controller) setChecking(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Checking = v
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Loading = v
}

func (c *Controller) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AccessToken = token
}

func (c *Controller) setUser(profile map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.User = profile
}
