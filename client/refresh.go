package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// refreshOutcome is what every member of a refresh cohort receives once
// the in-flight token exchange settles.
type refreshOutcome struct {
	accessToken string
	err         error
}

// refreshGroup serializes token refreshes: at most one exchange is in
// flight process-wide, and every request that hits a 401 while it runs
// joins the cohort instead of starting its own. The cohort is settled
// exactly once per attempt, all waiters together.
type refreshGroup struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan refreshOutcome
}

// join registers the caller with the group. The first caller while no
// exchange is running becomes the leader (leader==true) and must call
// settle exactly once; every other caller receives a channel that yields
// the leader's outcome.
func (g *refreshGroup) join() (leader bool, wait <-chan refreshOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight {
		ch := make(chan refreshOutcome, 1)
		g.waiters = append(g.waiters, ch)
		return false, ch
	}
	g.inFlight = true
	return true, nil
}

// settle publishes the outcome to the whole cohort and reopens the group.
// Channels are buffered so a waiter that already gave up never blocks the
// drain.
func (g *refreshGroup) settle(outcome refreshOutcome) {
	g.mu.Lock()
	waiters := g.waiters
	g.waiters = nil
	g.inFlight = false
	g.mu.Unlock()

	for _, ch := range waiters {
		ch <- outcome
	}
}

// refreshing reports whether an exchange is currently in flight.
func (g *refreshGroup) refreshing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Refresh exchanges the stored refresh token for a new access token,
// sharing the single-flight group with the 401 interceptor: if an
// exchange is already running this call simply waits for its outcome.
// On terminal failure the credentials are purged, the auth-failure hook
// fires, and ErrSessionExpired is returned.
func (c *Client) Refresh(ctx context.Context) error {
	_, err := c.refreshAccessToken(ctx)
	return err
}

// refreshAccessToken runs the refresh protocol and returns the new access
// token. Exactly one caller performs the HTTP exchange; the rest wait.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	leader, wait := c.refresh.join()
	if !leader {
		select {
		case outcome := <-wait:
			return outcome.accessToken, outcome.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	token, err := c.performRefresh(ctx)
	// The group settles in every leader path, success or failure, so later
	// 401s are never stuck queueing behind a finished exchange.
	c.refresh.settle(refreshOutcome{accessToken: token, err: err})
	return token, err
}

// performRefresh is the leader's half of the protocol: read the stored
// refresh token, call the refresh endpoint with the interceptor-free
// client, persist the rotated pair. Any failure is terminal for the
// session.
func (c *Client) performRefresh(ctx context.Context) (string, error) {
	refreshToken := c.creds.RefreshToken()
	if refreshToken == "" {
		c.failSession()
		return "", fmt.Errorf("no refresh token stored: %w", ErrSessionExpired)
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		c.failSession()
		return "", fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, bytes.NewReader(body))
	if err != nil {
		c.failSession()
		return "", fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.refreshHTTP.Do(req)
	if err != nil {
		c.failSession()
		return "", fmt.Errorf("refresh request failed: %w", ErrSessionExpired)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.failSession()
		return "", fmt.Errorf("read refresh response: %w", ErrSessionExpired)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("refresh rejected", "status", resp.StatusCode)
		c.failSession()
		return "", fmt.Errorf("refresh endpoint returned %d: %w", resp.StatusCode, ErrSessionExpired)
	}

	payload := normalizeAuthPayload(raw)
	if !payload.Usable() {
		c.logger.Warn("refresh response carried no usable token")
		c.failSession()
		return "", fmt.Errorf("refresh returned no usable token: %w", ErrSessionExpired)
	}

	c.creds.SetTokens(payload.AccessToken, payload.RefreshToken)
	c.logger.Debug("access token refreshed")
	return payload.AccessToken, nil
}

// failSession is the one destructive action in the module: purge local
// credentials and hand off to the configured auth-failure hook (the
// process equivalent of the SPA's hard redirect to the login screen).
func (c *Client) failSession() {
	c.creds.Clear()
	if c.onAuthFailure != nil {
		c.onAuthFailure()
	}
}
