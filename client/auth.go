package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Login posts credentials to the login endpoint and returns the
// normalized payload. It deliberately bypasses the 401 interceptor: a 401
// here means the credentials were wrong, not that a token expired, so the
// failure message comes back in the payload for the session layer to
// surface. Login never persists anything; that is the controller's job.
func (c *Client) Login(ctx context.Context, email, password string) (AuthPayload, error) {
	body := map[string]string{"email": email, "password": password}
	payload, err := c.postBare(ctx, loginPath, body)
	if err != nil {
		return AuthPayload{}, err
	}
	return payload, nil
}

// Logout notifies the backend that the session is ending. Best-effort by
// contract: callers ignore the error and clear local state regardless.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, logoutPath, nil, nil)
}

// Profile fetches the authenticated user's profile, unwrapping the
// backend's data envelope. Runs through the interceptor, so an expired
// access token is refreshed transparently.
func (c *Client) Profile(ctx context.Context) (map[string]any, error) {
	var body map[string]any
	if err := c.get(ctx, profilePath, nil, &body); err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if data, ok := body["data"].(map[string]any); ok {
		if user := extractUser(data); user != nil {
			return user, nil
		}
		return data, nil
	}
	if user := extractUser(body); user != nil {
		return user, nil
	}
	return body, nil
}

// postBare issues a single uninstrumented attempt and normalizes whatever
// came back, success or failure. Used for the auth entry points where the
// error body is part of the contract.
func (c *Client) postBare(ctx context.Context, path string, body any) (AuthPayload, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = marshalBody(path, body)
		if err != nil {
			return AuthPayload{}, err
		}
	}
	status, raw, err := c.send(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return AuthPayload{}, err
	}

	normalized := normalizeAuthPayload(raw)
	if status < 200 || status >= 300 {
		normalized.Success = false
		normalized.AccessToken = ""
		normalized.RefreshToken = ""
		if normalized.Message == "" {
			normalized.Message = http.StatusText(status)
		}
	}
	return normalized, nil
}

func marshalBody(path string, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", path, err)
	}
	return raw, nil
}
