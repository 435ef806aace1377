package session

import "testing"

func TestGuardPrecedence(t *testing.T) {
	adminUser := map[string]any{"role": "admin"}

	cases := []struct {
		name  string
		state State
		roles []string
		want  Decision
	}{
		{"checking defers even with a token", State{Checking: true, AccessToken: "t1", User: adminUser}, []string{"admin"}, DecisionPending},
		{"checking defers without a token", State{Checking: true}, nil, DecisionPending},
		{"no token redirects regardless of roles", State{User: adminUser}, []string{"admin"}, DecisionLogin},
		{"no token redirects with no roles", State{}, nil, DecisionLogin},
		{"token without role requirement allows", State{AccessToken: "t1"}, nil, DecisionAllow},
		{"matching role allows", State{AccessToken: "t1", User: adminUser}, []string{"admin"}, DecisionAllow},
		{"role match is case-insensitive", State{AccessToken: "t1", User: map[string]any{"role": "Admin"}}, []string{"ADMIN"}, DecisionAllow},
		{"wrong role is forbidden, not a redirect", State{AccessToken: "t1", User: map[string]any{"role": "user"}}, []string{"admin"}, DecisionForbidden},
		{"missing role field is forbidden", State{AccessToken: "t1", User: map[string]any{"email": "a@b.c"}}, []string{"admin"}, DecisionForbidden},
		{"nil user with role requirement is forbidden", State{AccessToken: "t1"}, []string{"admin"}, DecisionForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Guard(tc.state, "/admin/users", tc.roles...)
			if got.Decision != tc.want {
				t.Fatalf("Guard = %v, want %v", got.Decision, tc.want)
			}
		})
	}
}

func TestGuardPreservesRequestedLocation(t *testing.T) {
	got := Guard(State{}, "/packages/stats")
	if got.Decision != DecisionLogin {
		t.Fatalf("expected login redirect, got %v", got.Decision)
	}
	if got.ReturnTo != "/packages/stats" {
		t.Fatalf("requested location lost: %q", got.ReturnTo)
	}

	allowed := Guard(State{AccessToken: "t1"}, "/packages/stats")
	if allowed.ReturnTo != "" {
		t.Fatalf("ReturnTo should only be set on redirect, got %q", allowed.ReturnTo)
	}
}

func TestExtractRolePriorityOrder(t *testing.T) {
	cases := []struct {
		name    string
		profile map[string]any
		want    string
	}{
		{"role wins", map[string]any{"role": "admin", "type": "user", "roleName": "staff"}, "admin"},
		{"type is second", map[string]any{"type": "user", "roleName": "staff"}, "user"},
		{"roleName is last", map[string]any{"roleName": "staff"}, "staff"},
		{"non-string role skipped", map[string]any{"role": 7, "type": "user"}, "user"},
		{"nothing found", map[string]any{"email": "a@b.c"}, ""},
		{"nil profile", nil, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractRole(tc.profile); got != tc.want {
				t.Fatalf("ExtractRole = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecisionString(t *testing.T) {
	for d, want := range map[Decision]string{
		DecisionPending:   "pending",
		DecisionLogin:     "login",
		DecisionForbidden: "forbidden",
		DecisionAllow:     "allow",
		Decision(99):      "unknown",
	} {
		if got := d.String(); got != want {
			t.Fatalf("Decision(%d).String() = %q, want %q", d, got, want)
		}
	}
}
