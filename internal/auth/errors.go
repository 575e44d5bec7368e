package auth

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Domain errors are operational: their messages are safe to return to the
// caller. Anything else surfaces as a generic 500 with internals logged.
var (
	ErrMissingCredentials  = errors.New("identifier and password are required")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailNotVerified    = errors.New("verify your email address first")
	ErrRegistrationFailed  = errors.New("registration failed")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrAlreadyVerified     = errors.New("email is already verified")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrTokenRevoked        = errors.New("token has been revoked")
	ErrAccountNotFound     = errors.New("account not found")
	ErrInvalidProfile      = errors.New("invalid external profile")
	ErrDuplicateAccount    = errors.New("account already exists")
)

// LockedError reports an active lockout. The remaining time is rounded up
// so the caller never retries before the lock clears.
type LockedError struct {
	Until time.Time
}

func (e LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", e.MinutesRemaining())
}

func (e LockedError) MinutesRemaining() int {
	remaining := time.Until(e.Until)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}
