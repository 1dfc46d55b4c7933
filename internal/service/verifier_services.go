package service

import (
	"context"

	"identity/internal/domain"
	"identity/internal/dto"
)

// PasswordVerifier checks a password against the newest row of the
// user's password history. Failure never discloses whether the user or
// the password was at fault.
type PasswordVerifier interface {
	Verify(ctx context.Context, tenant *domain.Tenant, r dto.LoginRequest, client ClientInfo) (VerifierResult, error)
}

// WebAuthnService orchestrates the passkey ceremonies. Challenges live in
// the single-use challenge store for ChallengeTTL; any failing pipeline
// step aborts the whole ceremony without persisting anything.
type WebAuthnService interface {
	BeginRegistration(ctx context.Context, user *domain.User) (*dto.CredentialCreationOptions, error)
	FinishRegistration(ctx context.Context, user *domain.User, r dto.RegistrationResponse) (*domain.Passkey, error)
	BeginLogin(ctx context.Context, email string) (*dto.CredentialRequestOptions, error)
	FinishLogin(ctx context.Context, r dto.AssertionResponse) (VerifierResult, error)
	// Passkeys lists the user's registered credentials.
	Passkeys(ctx context.Context, user *domain.User) ([]domain.Passkey, error)
	// RenamePasskey relabels one of the user's own credentials.
	RenamePasskey(ctx context.Context, user *domain.User, id domain.PasskeyID, name string) error
}

// MultiFactorService owns second factors: TOTP, emailed codes and
// recovery codes.
type MultiFactorService interface {
	ProvisionTOTP(ctx context.Context, user *domain.User) (otpURI string, err error)
	// RequestEmailCode generates and dispatches the short numeric code,
	// storing only its hash with an absolute expiry.
	RequestEmailCode(ctx context.Context, user *domain.User) error
	// VerifyCode checks one code for the given method. Emailed codes are
	// cleared on first success; a matched recovery code is rotated to a
	// fresh value.
	VerifyCode(ctx context.Context, user *domain.User, method domain.MFAMethod, code string) (bool, error)
	GenerateRecoveryCodes(ctx context.Context, user *domain.User, n int) ([]string, error)
	SetPreferred(ctx context.Context, user *domain.User, method domain.MFAMethod) error
	// Methods lists the user's configured factors, preferred first.
	Methods(ctx context.Context, userID domain.UserID) ([]domain.MultiFactorAuth, error)
}

// MagicLinkService constructs signed, expiring login URLs and consumes
// them exactly once.
type MagicLinkService interface {
	Request(ctx context.Context, tenant *domain.Tenant, email string) error
	Consume(ctx context.Context, token string) (VerifierResult, error)
}

// SSOService exchanges a provider callback for a local identity,
// honouring the tenant's auto-provisioning policy.
type SSOService interface {
	RedirectURL(ctx context.Context, tenant *domain.Tenant) (string, error)
	HandleCallback(ctx context.Context, tenant *domain.Tenant, params map[string]string) (VerifierResult, error)
}
