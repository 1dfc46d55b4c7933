package domain

import "errors"

var (
	// Credential failures. Deliberately uniform: callers never learn which
	// step failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidOrExpired   = errors.New("invalid or expired")
	ErrChallengeExpired   = errors.New("challenge expired")

	// Policy failures. Safe to surface verbatim.
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrNotAMember         = errors.New("not a member of this team")
	ErrSSORequired        = errors.New("single sign-on required for this team")
	ErrStepUpRequired     = errors.New("multi-factor verification required")
	ErrNoPendingStepUp    = errors.New("no pending multi-factor verification")
	ErrMFANotConfigured   = errors.New("multi-factor method not configured")

	// Resolution failures.
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrHostnameNotFound   = errors.New("hostname not found")
	ErrHostnameUnverified = errors.New("hostname not verified")

	ErrLastHostname = errors.New("cannot delete the last hostname of a tenant")
)
