package client

import "testing"

func TestNormalizeAuthPayloadShapes(t *testing.T) {
	cases := []struct {
		name        string
		body        string
		wantAccess  string
		wantRefresh string
	}{
		{"camelCase", `{"accessToken":"a1","refreshToken":"r1"}`, "a1", "r1"},
		{"snake_case", `{"access_token":"a2","refresh_token":"r2"}`, "a2", "r2"},
		{"bare token", `{"token":"a3"}`, "a3", ""},
		{"nested under data", `{"data":{"accessToken":"a4","refreshToken":"r4"}}`, "a4", "r4"},
		{"flat wins over nested", `{"accessToken":"a5","data":{"accessToken":"shadowed"}}`, "a5", ""},
		{"no token", `{"success":false,"message":"nope"}`, "", ""},
		{"not json", `<html>`, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalizeAuthPayload([]byte(tc.body))
			if got.AccessToken != tc.wantAccess {
				t.Fatalf("access = %q, want %q", got.AccessToken, tc.wantAccess)
			}
			if got.RefreshToken != tc.wantRefresh {
				t.Fatalf("refresh = %q, want %q", got.RefreshToken, tc.wantRefresh)
			}
			if got.Usable() != (tc.wantAccess != "") {
				t.Fatalf("Usable = %v with access %q", got.Usable(), got.AccessToken)
			}
		})
	}
}

func TestNormalizeAuthPayloadSuccessFlag(t *testing.T) {
	explicit := normalizeAuthPayload([]byte(`{"success":true}`))
	if !explicit.Success {
		t.Fatalf("explicit success flag dropped")
	}
	implied := normalizeAuthPayload([]byte(`{"accessToken":"a1"}`))
	if !implied.Success {
		t.Fatalf("a usable token implies success")
	}
	neither := normalizeAuthPayload([]byte(`{"message":"bad credentials"}`))
	if neither.Success {
		t.Fatalf("no token and no flag must not read as success")
	}
	if neither.Message != "bad credentials" {
		t.Fatalf("message lost: %q", neither.Message)
	}
}

func TestExtractUserShapes(t *testing.T) {
	explicit := normalizeAuthPayload([]byte(`{"user":{"email":"a@b.c","role":"admin"}}`))
	if explicit.User == nil || explicit.User["role"] != "admin" {
		t.Fatalf("explicit user field not extracted: %v", explicit.User)
	}

	nested := normalizeAuthPayload([]byte(`{"data":{"user":{"_id":"u1"}}}`))
	if nested.User == nil || nested.User["_id"] != "u1" {
		t.Fatalf("nested user not extracted: %v", nested.User)
	}

	heuristic := normalizeAuthPayload([]byte(`{"data":{"_id":"u2","fullName":"Jane"}}`))
	if heuristic.User == nil || heuristic.User["_id"] != "u2" {
		t.Fatalf("identity-shaped object not treated as user: %v", heuristic.User)
	}

	none := normalizeAuthPayload([]byte(`{"data":{"count":3}}`))
	if none.User != nil {
		t.Fatalf("non-identity object misread as user: %v", none.User)
	}
}
