package main

import "fmt"

// ReauthHint is appended to authentication failures so the end user knows how
// to recover; a revoked refresh token can only be fixed by re-authorizing.
const ReauthHint = "Re-authorize the application with cmd/get_token and update STRAVA_REFRESH_TOKEN."

// AuthError indicates the refresh token was rejected or the API refused our
// credentials even after a forced refresh. Not retryable.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError indicates a transient transport or upstream failure, eligible
// for a bounded retry with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("network error during %s", e.Op)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError indicates an out-of-range tool parameter. Rejected with a
// clear message rather than silently corrected.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Param, e.Message)
}
