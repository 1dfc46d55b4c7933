package impl

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"

	"identity/internal/challenge"
	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/observability/metrics"
	"identity/internal/service"
	"identity/internal/store"
)

const (
	webauthnChallengeBytes = 32

	scopeRegistration   = "wan:reg"
	scopeAuthentication = "wan:login"

	clientDataTypeCreate = "webauthn.create"
	clientDataTypeGet    = "webauthn.get"
)

// COSE algorithm identifiers accepted from authenticators.
var allowedAlgorithms = map[int]bool{
	-7:   true, // ES256
	-257: true, // RS256
}

type WebAuthnConfig struct {
	RPID         string
	RPName       string
	Origin       string
	ChallengeTTL time.Duration
	Timeout      time.Duration
}

type WebAuthnServiceImpl struct {
	store      *store.Store
	challenges *challenge.Store
	verifier   service.SignatureVerifier
	cfg        WebAuthnConfig
}

func NewWebAuthnServiceImpl(st *store.Store, ch *challenge.Store, verifier service.SignatureVerifier, cfg WebAuthnConfig) *WebAuthnServiceImpl {
	if cfg.ChallengeTTL == 0 {
		cfg.ChallengeTTL = 300 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &WebAuthnServiceImpl{store: st, challenges: ch, verifier: verifier, cfg: cfg}
}

func (w *WebAuthnServiceImpl) BeginRegistration(ctx context.Context, user *domain.User) (*dto.CredentialCreationOptions, error) {
	chal, err := newChallenge()
	if err != nil {
		return nil, err
	}
	// Keyed by user id: the user is already authenticated when
	// registering a passkey.
	if err := w.challenges.Save(ctx, scopeRegistration, user.ID.String(), chal, w.cfg.ChallengeTTL); err != nil {
		return nil, err
	}

	existing, err := w.store.Passkeys().ListByUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	exclude := make([]string, 0, len(existing))
	for _, pk := range existing {
		exclude = append(exclude, b64Encode(pk.CredentialID))
	}

	return &dto.CredentialCreationOptions{
		Challenge: b64Encode(chal),
		RPID:      w.cfg.RPID,
		RPName:    w.cfg.RPName,
		UserID:    b64Encode(user.ID[:]),
		UserName:  user.Username,
		PubKeyCredParams: []dto.PubKeyCredParam{
			{Type: "public-key", Alg: -7},
			{Type: "public-key", Alg: -257},
		},
		ExcludeIDs: exclude,
		Timeout:    w.cfg.Timeout.Milliseconds(),
	}, nil
}

// FinishRegistration runs the ordered verification pipeline; any failing
// step aborts the ceremony and nothing is persisted.
func (w *WebAuthnServiceImpl) FinishRegistration(ctx context.Context, user *domain.User, r dto.RegistrationResponse) (*domain.Passkey, error) {
	result := "failure"
	defer func() {
		metrics.CeremoniesTotal.WithLabelValues("registration", result).Inc()
	}()

	stored, err := w.challenges.Pull(ctx, scopeRegistration, user.ID.String())
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return nil, domain.ErrChallengeExpired
		}
		return nil, err
	}

	clientDataRaw, err := b64Decode(r.ClientDataJSON)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	authDataRaw, err := b64Decode(r.AuthData)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	credentialID, err := b64Decode(r.CredentialID)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	publicKey, err := b64Decode(r.PublicKey)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	sig, err := b64Decode(r.Signature)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	cd, err := parseClientData(clientDataRaw)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	// 1. challenge match
	if cd.Type != clientDataTypeCreate ||
		subtle.ConstantTimeCompare([]byte(cd.Challenge), []byte(b64Encode(stored))) != 1 {
		return nil, domain.ErrInvalidCredentials
	}
	// 2. origin match
	if !strings.EqualFold(cd.Origin, w.cfg.Origin) {
		return nil, domain.ErrInvalidCredentials
	}
	// 3. signature algorithm allow-list
	if !allowedAlgorithms[r.PublicKeyAlg] {
		return nil, domain.ErrInvalidCredentials
	}
	// 4–6. credential-id consistency, presence/verification flags and
	// attested-credential-data structure.
	ad, err := parseAuthenticatorData(authDataRaw, true)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !bytes.Equal(ad.CredentialID, credentialID) {
		return nil, domain.ErrInvalidCredentials
	}
	if ad.Flags&flagUserPresent == 0 || ad.Flags&flagUserVerified == 0 {
		return nil, domain.ErrInvalidCredentials
	}
	if !ad.matchesRPID(w.cfg.RPID) {
		return nil, domain.ErrInvalidCredentials
	}
	// 7. signature, delegated to the trusted capability.
	if err := w.verifier.VerifyAttestation(publicKey, authDataRaw, clientDataRaw, sig); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	name := r.Name
	if name == "" {
		name = "passkey"
	}
	pk := &domain.Passkey{
		UserID:       user.ID,
		Name:         name,
		CredentialID: credentialID,
		PublicKey:    publicKey,
		AAGUID:       ad.AAGUID,
		Transports:   strings.Join(r.Transports, ","),
		SignCount:    ad.SignCount,
	}
	if err := w.store.Passkeys().Upsert(ctx, pk); err != nil {
		return nil, err
	}

	result = "success"
	slog.Info("registered passkey", "user_id", user.ID, "passkey_id", pk.ID)
	return pk, nil
}

func (w *WebAuthnServiceImpl) BeginLogin(ctx context.Context, email string) (*dto.CredentialRequestOptions, error) {
	chal, err := newChallenge()
	if err != nil {
		return nil, err
	}
	// Keyed by the claimed email: the user is not known yet.
	if err := w.challenges.Save(ctx, scopeAuthentication, loginChallengeKey(email), chal, w.cfg.ChallengeTTL); err != nil {
		return nil, err
	}

	// Allowed credential ids are only offered for known users; an unknown
	// email still receives well-formed options so enumeration stays hard.
	var allow []string
	if usr, err := w.store.Users().GetByEmail(ctx, email); err == nil {
		if pks, err := w.store.Passkeys().ListByUser(ctx, usr.ID); err == nil {
			for _, pk := range pks {
				allow = append(allow, b64Encode(pk.CredentialID))
			}
		}
	}

	return &dto.CredentialRequestOptions{
		Challenge: b64Encode(chal),
		RPID:      w.cfg.RPID,
		AllowIDs:  allow,
		Timeout:   w.cfg.Timeout.Milliseconds(),
	}, nil
}

func (w *WebAuthnServiceImpl) FinishLogin(ctx context.Context, r dto.AssertionResponse) (service.VerifierResult, error) {
	result := "failure"
	defer func() {
		metrics.CeremoniesTotal.WithLabelValues("authentication", result).Inc()
	}()

	var zero service.VerifierResult

	stored, err := w.challenges.Pull(ctx, scopeAuthentication, loginChallengeKey(r.Email))
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return zero, domain.ErrChallengeExpired
		}
		return zero, err
	}

	clientDataRaw, err := b64Decode(r.ClientDataJSON)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	authDataRaw, err := b64Decode(r.AuthData)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	credentialID, err := b64Decode(r.CredentialID)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	sig, err := b64Decode(r.Signature)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}

	cd, err := parseClientData(clientDataRaw)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	if cd.Type != clientDataTypeGet ||
		subtle.ConstantTimeCompare([]byte(cd.Challenge), []byte(b64Encode(stored))) != 1 {
		return zero, domain.ErrInvalidCredentials
	}
	if !strings.EqualFold(cd.Origin, w.cfg.Origin) {
		return zero, domain.ErrInvalidCredentials
	}

	ad, err := parseAuthenticatorData(authDataRaw, false)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	if ad.Flags&flagUserPresent == 0 || ad.Flags&flagUserVerified == 0 {
		return zero, domain.ErrInvalidCredentials
	}
	if !ad.matchesRPID(w.cfg.RPID) {
		return zero, domain.ErrInvalidCredentials
	}

	pk, err := w.store.Passkeys().GetByCredentialID(ctx, credentialID)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	usr, err := w.store.Users().GetByEmail(ctx, r.Email)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	// Cross-checks: the credential must belong to the resolved user and
	// the user handle, when present, must name the same user.
	if pk.UserID != usr.ID {
		return zero, domain.ErrInvalidCredentials
	}
	if r.UserHandle != "" {
		handle, err := b64Decode(r.UserHandle)
		if err != nil || !bytes.Equal(handle, usr.ID[:]) {
			return zero, domain.ErrInvalidCredentials
		}
	}
	// A non-increasing counter suggests a cloned authenticator.
	if ad.SignCount != 0 && ad.SignCount <= pk.SignCount {
		return zero, domain.ErrInvalidCredentials
	}

	if err := w.verifier.VerifyAssertion(pk.PublicKey, authDataRaw, clientDataRaw, sig); err != nil {
		return zero, domain.ErrInvalidCredentials
	}

	if err := w.store.Passkeys().TouchUsed(ctx, pk.ID, ad.SignCount, time.Now().UTC()); err != nil {
		slog.Warn("passkey last_used update failed", "passkey_id", pk.ID, "error", err)
	}

	result = "success"
	return service.VerifierResult{User: usr, Email: r.Email, Method: domain.LoginMethodPasskey}, nil
}

func (w *WebAuthnServiceImpl) Passkeys(ctx context.Context, user *domain.User) ([]domain.Passkey, error) {
	return w.store.Passkeys().ListByUser(ctx, user.ID)
}

// RenamePasskey relabels one of the caller's credentials. A passkey id
// owned by someone else reads as not found.
func (w *WebAuthnServiceImpl) RenamePasskey(ctx context.Context, user *domain.User, id domain.PasskeyID, name string) error {
	ok, err := w.store.Passkeys().Rename(ctx, id, user.ID, name)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrRecordNotFound
	}
	return nil
}

func newChallenge() ([]byte, error) {
	buf := make([]byte, webauthnChallengeBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func loginChallengeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
