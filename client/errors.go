package client

import (
	"errors"
	"fmt"
)

// ErrSessionExpired marks a terminal authentication failure: the refresh
// protocol was exhausted (missing refresh token, refresh endpoint rejected
// the exchange, or the exchange returned no usable token) and the local
// credentials have been purged. Callers must send the user back through
// login.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.Status)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
