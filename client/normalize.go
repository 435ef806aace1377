package client

import "encoding/json"

// AuthPayload is the canonical shape of the backend's auth responses. The
// MedBuddy API has shipped several field spellings for the same data
// (accessToken vs access_token vs token, flat vs nested under data);
// normalizeAuthPayload maps all of them onto this one type so the rest of
// the codebase never probes response shapes.
type AuthPayload struct {
	AccessToken  string
	RefreshToken string
	User         map[string]any
	Success      bool
	Message      string
}

// Usable reports whether the payload carries a token the client can act on.
func (p AuthPayload) Usable() bool {
	return p.AccessToken != ""
}

// normalizeAuthPayload decodes raw JSON from a login or refresh response
// into the canonical AuthPayload. Unknown shapes decode to a zero payload
// rather than an error; the caller treats that as "no usable token".
func normalizeAuthPayload(raw []byte) AuthPayload {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return AuthPayload{}
	}

	payload := AuthPayload{
		AccessToken:  findString(body, "accessToken", "access_token", "token"),
		RefreshToken: findString(body, "refreshToken", "refresh_token"),
		User:         extractUser(body),
		Message:      firstString(body, "message", "error"),
	}
	if ok, isBool := body["success"].(bool); isBool {
		payload.Success = ok
	} else {
		payload.Success = payload.AccessToken != ""
	}
	return payload
}

// findString looks keys up at the top level and then one level down under
// "data", covering both flat and enveloped responses.
func findString(body map[string]any, keys ...string) string {
	if v := firstString(body, keys...); v != "" {
		return v
	}
	if nested, ok := body["data"].(map[string]any); ok {
		return firstString(nested, keys...)
	}
	return ""
}

func firstString(body map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := body[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// identityKeys are fields that mark an arbitrary object as a user profile.
var identityKeys = []string{"_id", "id", "email", "fullName", "name"}

// extractUser digs a user object out of an auth response: an explicit
// "user" field wins, then the same search one level down under "data",
// then a heuristic match on identity-like fields.
func extractUser(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	if user, ok := body["user"].(map[string]any); ok {
		return user
	}
	if nested, ok := body["data"].(map[string]any); ok {
		if user := extractUser(nested); user != nil {
			return user
		}
	}
	for _, key := range identityKeys {
		if _, ok := body[key]; ok {
			return body
		}
	}
	return nil
}
