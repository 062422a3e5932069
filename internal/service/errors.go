package service

import "fmt"

// AuthorizationError reports a role or ownership mismatch. The operation is
// rejected before any mutation.
type AuthorizationError struct {
	UserID string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %s not authorized: %s", e.UserID, e.Reason)
}
