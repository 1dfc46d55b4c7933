package impl

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/events"
	"identity/internal/netutil"
	"identity/internal/observability/metrics"
	"identity/internal/service"
	"identity/internal/store"
)

// suspiciousWindow bounds how far back the fingerprint comparison looks.
const suspiciousWindow = 30 * 24 * time.Hour

type AuthServiceConfig struct {
	// RecordFailures writes failed attempts to the audit trail.
	RecordFailures bool
	// TokenTTL applies to login and mfa tokens alike; the clock set at
	// issuance survives promotion.
	TokenTTL time.Duration
}

type AuthServiceImpl struct {
	store     *store.Store
	passwords service.PasswordVerifier
	mfa       service.MultiFactorService
	tokens    service.TokenService
	geo       service.Geolocator
	publisher service.EventPublisher
	cfg       AuthServiceConfig
}

func NewAuthServiceImpl(
	st *store.Store,
	passwords service.PasswordVerifier,
	mfa service.MultiFactorService,
	tokens service.TokenService,
	geo service.Geolocator,
	publisher service.EventPublisher,
	cfg AuthServiceConfig,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		store:     st,
		passwords: passwords,
		mfa:       mfa,
		tokens:    tokens,
		geo:       geo,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (a *AuthServiceImpl) LoginWithPassword(ctx context.Context, r dto.LoginRequest, tenant *domain.Tenant, client service.ClientInfo) (*dto.TokenResponse, error) {
	res, err := a.passwords.Verify(ctx, tenant, r, client)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) && a.cfg.RecordFailures {
			a.recordFailure(ctx, tenant, r.EmailOrUsername, domain.LoginMethodPassword, client)
		}
		metrics.LoginsTotal.WithLabelValues(string(domain.LoginMethodPassword), "failure").Inc()
		return nil, err
	}
	return a.Login(ctx, res, tenant, client)
}

// Login turns one verifier success into exactly one attempt row and one
// bearer token. The attempt row is committed before the token referencing
// it is returned, so no token ever points at a missing attempt.
func (a *AuthServiceImpl) Login(ctx context.Context, res service.VerifierResult, tenant *domain.Tenant, client service.ClientInfo) (*dto.TokenResponse, error) {
	method := res.Method
	if !res.User.Active {
		metrics.LoginsTotal.WithLabelValues(string(method), "failure").Inc()
		return nil, domain.ErrAccountDeactivated
	}

	pendingMFA, err := a.pendingMethod(ctx, res.User.ID)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(string(method), "failure").Inc()
		return nil, err
	}

	attempt := a.newAttempt(ctx, tenant, res, client)
	attempt.IsSuccess = pendingMFA == nil
	if err := a.store.Attempts().Create(ctx, attempt); err != nil {
		metrics.LoginsTotal.WithLabelValues(string(method), "failure").Inc()
		return nil, err
	}

	typ := domain.TokenTypeLogin
	if pendingMFA != nil {
		typ = domain.TokenTypeMFA
	}
	plaintext, tok, err := a.tokens.Issue(ctx, res.User, typ, string(method), &attempt.ID, a.cfg.TokenTTL)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(string(method), "failure").Inc()
		return nil, err
	}

	metrics.LoginsTotal.WithLabelValues(string(method), "success").Inc()
	slog.Info("login",
		"user_id", res.User.ID,
		"method", method,
		"token_type", typ,
		"attempt_id", attempt.ID,
		"suspicious", attempt.IsSuspicious,
	)

	ev := events.LoggedIn{
		UserID:    res.User.ID.String(),
		AttemptID: attempt.ID.String(),
		Method:    string(method),
		At:        time.Now().UTC(),
	}
	if tenant != nil {
		ev.TenantID = &tenant.ID
	}
	a.publisher.LoggedIn(ctx, ev)

	resp := &dto.TokenResponse{
		Token:     plaintext,
		TokenType: string(tok.Type),
	}
	if pendingMFA != nil {
		resp.MFAMethod = string(pendingMFA.Method)
	}
	if tok.ExpiresAt != nil {
		resp.ExpiresIn = int64(time.Until(*tok.ExpiresAt).Seconds())
	}
	return resp, nil
}

// CompleteStepUp re-validates the second factor and promotes the
// presented mfa_token in place: same row, same secret, same attempt
// linkage, same expiry clock. The original attempt row is updated, never
// duplicated.
func (a *AuthServiceImpl) CompleteStepUp(ctx context.Context, bearer string, r dto.StepUpRequest, client service.ClientInfo) (*dto.TokenResponse, error) {
	tok, err := a.tokens.Authenticate(ctx, bearer)
	if err != nil {
		return nil, err
	}
	if tok.Type != domain.TokenTypeMFA {
		return nil, domain.ErrNoPendingStepUp
	}

	usr, err := a.store.Users().GetByID(ctx, tok.OwnerID)
	if err != nil {
		return nil, domain.ErrInvalidOrExpired
	}
	if !usr.Active {
		return nil, domain.ErrAccountDeactivated
	}

	method := domain.MFAMethod(r.Method)
	if method == "" {
		pending, err := a.pendingMethod(ctx, usr.ID)
		if err != nil {
			return nil, err
		}
		if pending != nil {
			method = pending.Method
		}
	}

	ok, err := a.mfa.VerifyCode(ctx, usr, method, r.Code)
	if err != nil && !errors.Is(err, domain.ErrMFANotConfigured) {
		metrics.StepUpsTotal.WithLabelValues(string(method), "failure").Inc()
		return nil, err
	}
	if err != nil || !ok {
		metrics.StepUpsTotal.WithLabelValues(string(method), "failure").Inc()
		return nil, domain.ErrInvalidOrExpired
	}

	if err := a.tokens.Promote(ctx, tok.ID); err != nil {
		metrics.StepUpsTotal.WithLabelValues(string(method), "failure").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	if tok.AttemptID != nil {
		if err := a.store.Attempts().MarkStepUp(ctx, *tok.AttemptID, method, now); err != nil {
			slog.Warn("attempt step-up update failed", "attempt_id", tok.AttemptID, "error", err)
		}
	}

	metrics.StepUpsTotal.WithLabelValues(string(method), "success").Inc()
	slog.Info("step-up completed", "user_id", usr.ID, "token_id", tok.ID, "mfa_method", method)

	ev := events.LoggedIn{
		UserID:    usr.ID.String(),
		Method:    tok.Name,
		MFAMethod: string(method),
		At:        now,
	}
	if tok.AttemptID != nil {
		ev.AttemptID = tok.AttemptID.String()
	}
	a.publisher.LoggedIn(ctx, ev)

	resp := &dto.TokenResponse{
		Token:     bearer,
		TokenType: string(domain.TokenTypeLogin),
	}
	if tok.ExpiresAt != nil {
		resp.ExpiresIn = int64(time.Until(*tok.ExpiresAt).Seconds())
	}
	return resp, nil
}

func (a *AuthServiceImpl) Logout(ctx context.Context, bearer string) error {
	tok, err := a.tokens.Authenticate(ctx, bearer)
	if err != nil {
		return err
	}
	if err := a.tokens.Revoke(ctx, tok.ID); err != nil {
		return err
	}
	a.publisher.LoggedOut(ctx, events.LoggedOut{
		UserID:  tok.OwnerID.String(),
		TokenID: tok.ID,
		At:      time.Now().UTC(),
	})
	return nil
}

// pendingMethod picks the second factor a fresh login must still pass:
// the preferred configured method, else the first configured, never the
// recovery pool on its own. An unreadable configuration fails the login;
// treating it as "no factor" would hand out a full token for a user who
// has one.
func (a *AuthServiceImpl) pendingMethod(ctx context.Context, userID domain.UserID) (*domain.MultiFactorAuth, error) {
	methods, err := a.mfa.Methods(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range methods {
		if methods[i].Method != domain.MFAMethodRecovery {
			return &methods[i], nil
		}
	}
	return nil, nil
}

func (a *AuthServiceImpl) newAttempt(ctx context.Context, tenant *domain.Tenant, res service.VerifierResult, client service.ClientInfo) *domain.LoginAttempt {
	fp := netutil.ParseFingerprint(client.UserAgent)
	ip := normalizeIP(client.IP)

	attempt := &domain.LoginAttempt{
		UserID:       &res.User.ID,
		EmailAddress: strings.ToLower(res.Email),
		Method:       res.Method,
		Platform:     fp.Platform,
		Browser:      fp.Browser,
		Device:       fp.Device,
		IP:           ip,
	}
	if tenant != nil {
		attempt.TenantID = &tenant.ID
	}

	// Geolocation is best effort and must never block the login.
	if a.geo != nil {
		if loc, err := a.geo.Locate(ctx, ip); err == nil && loc != nil {
			attempt.City = loc.City
			attempt.Country = loc.Country
		}
	}

	// A first sighting of this ip/device pair is only suspicious when the
	// user has a success history to compare against.
	hasAny, err := a.store.Attempts().HasAnySuccess(ctx, res.User.ID)
	if err == nil && hasAny {
		seen, err := a.store.Attempts().HasRecentSuccessFrom(ctx, res.User.ID, ip, fp.Device, time.Now().UTC().Add(-suspiciousWindow))
		if err == nil && !seen {
			attempt.IsSuspicious = true
		}
	}
	return attempt
}

func (a *AuthServiceImpl) recordFailure(ctx context.Context, tenant *domain.Tenant, identifier string, method domain.LoginMethod, client service.ClientInfo) {
	fp := netutil.ParseFingerprint(client.UserAgent)
	ip := normalizeIP(client.IP)

	attempt := &domain.LoginAttempt{
		EmailAddress: strings.ToLower(strings.TrimSpace(identifier)),
		Method:       method,
		Platform:     fp.Platform,
		Browser:      fp.Browser,
		Device:       fp.Device,
		IP:           ip,
	}
	if tenant != nil {
		attempt.TenantID = &tenant.ID
	}
	if a.geo != nil {
		if loc, err := a.geo.Locate(ctx, ip); err == nil && loc != nil {
			attempt.City = loc.City
			attempt.Country = loc.Country
		}
	}
	// Audit recording must never fail the primary request.
	if err := a.store.Attempts().Create(ctx, attempt); err != nil {
		slog.Warn("failed attempt not recorded", "error", err)
	}
}

func normalizeIP(ip string) string {
	if normalized, ok := netutil.NormalizeIP(ip); ok {
		return normalized
	}
	return strings.TrimSpace(ip)
}
