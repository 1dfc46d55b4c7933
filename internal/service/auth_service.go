package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

// AuthService coordinates one authentication attempt: credential
// verification, the audit attempt row, token issuance and event
// signalling. It is the single entry point other layers call.
type AuthService interface {
	// LoginWithPassword runs the password verifier then Login.
	LoginWithPassword(ctx context.Context, r dto.LoginRequest, tenant *domain.Tenant, client ClientInfo) (*dto.TokenResponse, error)

	// Login turns a verifier success into an attempt row plus a bearer
	// token: mfa_token when the user has a configured second factor,
	// login otherwise.
	Login(ctx context.Context, res VerifierResult, tenant *domain.Tenant, client ClientInfo) (*dto.TokenResponse, error)

	// CompleteStepUp verifies the pending second factor and promotes the
	// presented mfa_token in place. It never creates a second attempt row.
	CompleteStepUp(ctx context.Context, bearer string, r dto.StepUpRequest, client ClientInfo) (*dto.TokenResponse, error)

	Logout(ctx context.Context, bearer string) error
}
