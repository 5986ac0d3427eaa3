package auth

import "fmt"

// AuthError is returned when the authorization endpoint rejects the
// credentials. It is fatal for the run.
type AuthError struct {
	Status int
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("authentication rejected (status %d); %v", e.Status, e.Err)
	}
	return fmt.Sprintf("authentication failed; %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Retryable reports false.
func (e *AuthError) Retryable() bool { return false }

// TransientAuthError is returned when the token exchange failed for a reason
// that may go away: network errors, 5xx or 429 responses.
type TransientAuthError struct {
	Status int
	Err    error
}

func (e *TransientAuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("token exchange unavailable (status %d); %v", e.Status, e.Err)
	}
	return fmt.Sprintf("token exchange unavailable; %v", e.Err)
}

func (e *TransientAuthError) Unwrap() error { return e.Err }

// Retryable reports true.
func (e *TransientAuthError) Retryable() bool { return true }
