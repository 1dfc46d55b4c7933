package service

import (
	"context"
	"time"

	"identity/internal/domain"
)

// TokenService owns the bearer-token lifecycle. Client-visible tokens are
// "<id>|<secret>"; the secret is shown once and stored only as a salted
// hash.
type TokenService interface {
	// Issue creates a token row. attemptID links login/mfa tokens to
	// their audit attempt; api_token passes nil.
	Issue(ctx context.Context, owner *domain.User, typ domain.TokenType, name string, attemptID *domain.AttemptID, ttl time.Duration) (plaintext string, tok *domain.AccessToken, err error)

	// Authenticate parses and verifies a presented bearer string. Expired
	// tokens are deleted lazily here; the caller sees the same
	// ErrInvalidOrExpired a wrong secret produces.
	Authenticate(ctx context.Context, bearer string) (*domain.AccessToken, error)

	// Promote flips an mfa_token to login in place, preserving id, secret,
	// attempt linkage and expiry. Returns ErrNoPendingStepUp when the
	// token is not (or no longer) pending.
	Promote(ctx context.Context, id domain.TokenID) error

	Revoke(ctx context.Context, id domain.TokenID) error
}
