package session

import "strings"

// Decision is the guard's verdict for a protected view.
type Decision int

const (
	// DecisionPending defers: bootstrap has not finished, render a
	// neutral loading state.
	DecisionPending Decision = iota
	// DecisionLogin redirects an unauthenticated caller to the login
	// entry point.
	DecisionLogin
	// DecisionForbidden blocks an authenticated caller whose role is not
	// in the allowed set. Distinct from DecisionLogin: the user is logged
	// in, just lacks permission, so no credentials are touched.
	DecisionForbidden
	// DecisionAllow renders the protected content.
	DecisionAllow
)

func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionLogin:
		return "login"
	case DecisionForbidden:
		return "forbidden"
	case DecisionAllow:
		return "allow"
	default:
		return "unknown"
	}
}

// GuardResult is the full guard verdict.
type GuardResult struct {
	Decision Decision
	// ReturnTo preserves the originally requested location so the
	// controller can send the user back there after a successful login.
	// Set only for DecisionLogin.
	ReturnTo string
}

// Guard decides whether a protected view may render. Precedence is fixed:
// a pending bootstrap defers everything, a missing access token redirects
// regardless of roles, and only then is role membership enforced.
func Guard(s State, requested string, allowedRoles ...string) GuardResult {
	if s.Checking {
		return GuardResult{Decision: DecisionPending}
	}
	if s.AccessToken == "" {
		return GuardResult{Decision: DecisionLogin, ReturnTo: requested}
	}
	if len(allowedRoles) > 0 {
		role := ExtractRole(s.User)
		if role == "" || !containsFold(allowedRoles, role) {
			return GuardResult{Decision: DecisionForbidden}
		}
	}
	return GuardResult{Decision: DecisionAllow}
}

// roleKeys is the documented lookup order for the role field. Backend
// responses have carried all three spellings at different times.
var roleKeys = []string{"role", "type", "roleName"}

// ExtractRole pulls the authorization role out of a loosely-typed profile,
// returning "" when none of the known fields holds a string.
func ExtractRole(profile map[string]any) string {
	if profile == nil {
		return ""
	}
	for _, key := range roleKeys {
		if v, ok := profile[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func containsFold(set []string, want string) bool {
	for _, v := range set {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
