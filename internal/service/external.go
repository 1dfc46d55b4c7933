package service

import (
	"context"

	"identity/internal/events"
)

// Boundary contracts implemented outside this service.

type Location struct {
	City     string
	Region   string
	Country  string
	Lat      float64
	Long     float64
	Timezone string
}

// Geolocator is best effort; a nil Location or an error must never block
// authentication.
type Geolocator interface {
	Locate(ctx context.Context, ip string) (*Location, error)
}

// Notifier dispatches outbound mail; the core only constructs payloads.
type Notifier interface {
	SendMagicLink(ctx context.Context, to, url string) error
	SendOTPCode(ctx context.Context, to, code string) error
	SendDomainVerification(ctx context.Context, to, host, token string) error
}

// EventPublisher receives at-least-once notifications of successful state
// transitions, never of failures.
type EventPublisher interface {
	LoggedIn(ctx context.Context, ev events.LoggedIn)
	LoggedOut(ctx context.Context, ev events.LoggedOut)
}

type SSOIdentity struct {
	Email      string
	Name       string
	ExternalID string
}

// IdentityExchanger is the delegated OAuth/OIDC capability; the core only
// consumes it per tenant-selected provider config.
type IdentityExchanger interface {
	RedirectURL(providerConfig []byte) (string, error)
	Exchange(ctx context.Context, providerConfig []byte, params map[string]string) (*SSOIdentity, error)
}

// SignatureVerifier is the trusted WebAuthn signature capability. The
// ceremony pipeline validates everything around the signature and calls
// in here last.
type SignatureVerifier interface {
	// VerifyAssertion checks sig over authData || SHA-256(clientDataJSON)
	// with the stored credential public key (SubjectPublicKeyInfo DER,
	// which names its own algorithm).
	VerifyAssertion(publicKey, authData, clientDataJSON, sig []byte) error
	// VerifyAttestation checks the registration self-attestation.
	VerifyAttestation(publicKey, authData, clientDataJSON, sig []byte) error
}
