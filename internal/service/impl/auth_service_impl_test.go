package impl_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/service"
	"identity/internal/service/impl"
	"identity/internal/store"
)

type authStack struct {
	st        *store.Store
	auth      *impl.AuthServiceImpl
	tokens    *impl.TokenServiceImpl
	mfa       *impl.MFAServiceImpl
	notifier  *captureNotifier
	publisher *capturePublisher
}

func newAuthStack(t *testing.T) *authStack {
	t.Helper()
	st := setupStore(t)
	notifier := &captureNotifier{}
	publisher := &capturePublisher{}
	tokens := impl.NewTokenServiceImpl(st)
	mfa := newMFAService(st, notifier)
	passwords := impl.NewPasswordServiceArgon2id()
	verifier := impl.NewPasswordVerifierImpl(st, passwords, impl.PasswordVerifierConfig{})
	auth := impl.NewAuthServiceImpl(st, verifier, mfa, tokens, nil, publisher, impl.AuthServiceConfig{
		RecordFailures: true,
		TokenTTL:       time.Hour,
	})
	return &authStack{st: st, auth: auth, tokens: tokens, mfa: mfa, notifier: notifier, publisher: publisher}
}

var testClient = service.ClientInfo{IP: "203.0.113.7", UserAgent: "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0"}

func TestLoginWithPasswordNoSecondFactor(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "plain@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	resp, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "plain@example.com", Password: "s3cret"}, nil, testClient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.TokenType != string(domain.TokenTypeLogin) {
		t.Fatalf("expected login token, got %s", resp.TokenType)
	}
	if resp.MFAMethod != "" {
		t.Fatalf("no pending factor expected, got %q", resp.MFAMethod)
	}
	if resp.ExpiresIn <= 0 {
		t.Fatalf("expected positive expiry, got %d", resp.ExpiresIn)
	}

	tok, err := s.tokens.Authenticate(ctx, resp.Token)
	if err != nil {
		t.Fatalf("authenticate issued token: %v", err)
	}
	if tok.AttemptID == nil {
		t.Fatalf("token not linked to an attempt")
	}
	attempt, err := s.st.Attempts().GetByID(ctx, *tok.AttemptID)
	if err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if !attempt.IsSuccess || attempt.EmailAddress != "plain@example.com" || attempt.Method != domain.LoginMethodPassword {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	if attempt.Browser != "chrome" || attempt.Platform != "windows" {
		t.Fatalf("fingerprint not recorded: %+v", attempt)
	}

	if len(s.publisher.logins) != 1 || s.publisher.logins[0].UserID != usr.ID.String() {
		t.Fatalf("login event not published: %+v", s.publisher.logins)
	}
}

func TestLoginWithPendingSecondFactor(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "mfa@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	if err := s.st.MFA().Create(ctx, &domain.MultiFactorAuth{UserID: usr.ID, Method: domain.MFAMethodEmail}); err != nil {
		t.Fatalf("configure email factor: %v", err)
	}

	resp, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "mfa@example.com", Password: "s3cret"}, nil, testClient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.TokenType != string(domain.TokenTypeMFA) {
		t.Fatalf("expected mfa_token, got %s", resp.TokenType)
	}
	if resp.MFAMethod != string(domain.MFAMethodEmail) {
		t.Fatalf("expected pending email factor, got %q", resp.MFAMethod)
	}

	tok, err := s.tokens.Authenticate(ctx, resp.Token)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	attempt, err := s.st.Attempts().GetByID(ctx, *tok.AttemptID)
	if err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if attempt.IsSuccess {
		t.Fatalf("attempt must stay pending until the step-up completes")
	}
}

func TestCompleteStepUpPromotesInPlace(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "stepup@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	if err := s.st.MFA().Create(ctx, &domain.MultiFactorAuth{UserID: usr.ID, Method: domain.MFAMethodEmail}); err != nil {
		t.Fatalf("configure email factor: %v", err)
	}

	first, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "stepup@example.com", Password: "s3cret"}, nil, testClient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.mfa.RequestEmailCode(ctx, usr); err != nil {
		t.Fatalf("request code: %v", err)
	}

	second, err := s.auth.CompleteStepUp(ctx, first.Token, dto.StepUpRequest{Code: s.notifier.otpCode}, testClient)
	if err != nil {
		t.Fatalf("step-up: %v", err)
	}
	// The bearer string survives; only the row's type changes.
	if second.Token != first.Token {
		t.Fatalf("promotion must not mint a new bearer")
	}
	if second.TokenType != string(domain.TokenTypeLogin) {
		t.Fatalf("expected login after promotion, got %s", second.TokenType)
	}

	tok, err := s.tokens.Authenticate(ctx, second.Token)
	if err != nil {
		t.Fatalf("authenticate promoted token: %v", err)
	}
	if tok.Type != domain.TokenTypeLogin {
		t.Fatalf("row not promoted: %s", tok.Type)
	}
	attempt, err := s.st.Attempts().GetByID(ctx, *tok.AttemptID)
	if err != nil {
		t.Fatalf("load attempt: %v", err)
	}
	if !attempt.IsSuccess {
		t.Fatalf("attempt not marked successful")
	}
	if attempt.MultiFactorMethod == nil || *attempt.MultiFactorMethod != domain.MFAMethodEmail {
		t.Fatalf("second factor not recorded on the attempt: %+v", attempt.MultiFactorMethod)
	}

	// The same bearer cannot be stepped up twice.
	if _, err := s.auth.CompleteStepUp(ctx, second.Token, dto.StepUpRequest{Code: s.notifier.otpCode}, testClient); !errors.Is(err, domain.ErrNoPendingStepUp) {
		t.Fatalf("expected ErrNoPendingStepUp, got %v", err)
	}
}

func TestCompleteStepUpRejectsWrongCode(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "wrongcode@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	if err := s.st.MFA().Create(ctx, &domain.MultiFactorAuth{UserID: usr.ID, Method: domain.MFAMethodEmail}); err != nil {
		t.Fatalf("configure email factor: %v", err)
	}
	resp, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "wrongcode@example.com", Password: "s3cret"}, nil, testClient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.mfa.RequestEmailCode(ctx, usr); err != nil {
		t.Fatalf("request code: %v", err)
	}

	if _, err := s.auth.CompleteStepUp(ctx, resp.Token, dto.StepUpRequest{Code: "000000"}, testClient); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
	}
	// The token stays pending; the right code still works.
	if _, err := s.auth.CompleteStepUp(ctx, resp.Token, dto.StepUpRequest{Code: s.notifier.otpCode}, testClient); err != nil {
		t.Fatalf("step-up after failed try: %v", err)
	}
}

func TestCompleteStepUpWithLoginToken(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "nostepup@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	resp, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "nostepup@example.com", Password: "s3cret"}, nil, testClient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := s.auth.CompleteStepUp(ctx, resp.Token, dto.StepUpRequest{Code: "123456"}, testClient); !errors.Is(err, domain.ErrNoPendingStepUp) {
		t.Fatalf("expected ErrNoPendingStepUp, got %v", err)
	}
}

func TestLoginDeactivatedAccount(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "gone@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	if err := s.st.DB.Model(&domain.User{}).Where("id = ?", usr.ID).Update("active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "gone@example.com", Password: "s3cret"}, nil, testClient); !errors.Is(err, domain.ErrAccountDeactivated) {
		t.Fatalf("expected ErrAccountDeactivated, got %v", err)
	}
}

func TestFailedLoginIsRecorded(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "audit@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	if _, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "audit@example.com", Password: "wrong"}, nil, testClient); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	var attempts []domain.LoginAttempt
	if err := s.st.DB.Where("email_address = ?", "audit@example.com").Find(&attempts).Error; err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].IsSuccess {
		t.Fatalf("expected one failed attempt row, got %+v", attempts)
	}
}

func TestSuspiciousFlagOnNewFingerprint(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "roam@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()
	req := dto.LoginRequest{EmailOrUsername: "roam@example.com", Password: "s3cret"}

	// First ever success is never suspicious; there is no history yet.
	first, err := s.auth.LoginWithPassword(ctx, req, nil, testClient)
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	tok, _ := s.tokens.Authenticate(ctx, first.Token)
	attempt, _ := s.st.Attempts().GetByID(ctx, *tok.AttemptID)
	if attempt.IsSuspicious {
		t.Fatalf("first login must not be suspicious")
	}

	// Same fingerprint again: still fine.
	second, err := s.auth.LoginWithPassword(ctx, req, nil, testClient)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	tok, _ = s.tokens.Authenticate(ctx, second.Token)
	attempt, _ = s.st.Attempts().GetByID(ctx, *tok.AttemptID)
	if attempt.IsSuspicious {
		t.Fatalf("known fingerprint flagged")
	}

	// New ip and device with a success history behind it.
	elsewhere := service.ClientInfo{IP: "198.51.100.9", UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1"}
	third, err := s.auth.LoginWithPassword(ctx, req, nil, elsewhere)
	if err != nil {
		t.Fatalf("third login: %v", err)
	}
	tok, _ = s.tokens.Authenticate(ctx, third.Token)
	attempt, _ = s.st.Attempts().GetByID(ctx, *tok.AttemptID)
	if !attempt.IsSuspicious {
		t.Fatalf("unseen fingerprint should be flagged")
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newAuthStack(t)
	usr := seedUser(t, s.st, "bye@example.com")
	seedPassword(t, s.st, usr, "s3cret")
	ctx := context.Background()

	resp, err := s.auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "bye@example.com", Password: "s3cret"}, nil, testClient)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := s.auth.Logout(ctx, resp.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := s.tokens.Authenticate(ctx, resp.Token); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Fatalf("revoked token still authenticates: %v", err)
	}
	if len(s.publisher.logouts) != 1 || s.publisher.logouts[0].UserID != usr.ID.String() {
		t.Fatalf("logout event not published: %+v", s.publisher.logouts)
	}
}

// unreliableMFA fails every lookup, standing in for a second-factor
// store outage.
type unreliableMFA struct {
	err error
}

func (u *unreliableMFA) ProvisionTOTP(ctx context.Context, user *domain.User) (string, error) {
	return "", u.err
}

func (u *unreliableMFA) RequestEmailCode(ctx context.Context, user *domain.User) error {
	return u.err
}

func (u *unreliableMFA) VerifyCode(ctx context.Context, user *domain.User, method domain.MFAMethod, code string) (bool, error) {
	return false, u.err
}

func (u *unreliableMFA) GenerateRecoveryCodes(ctx context.Context, user *domain.User, n int) ([]string, error) {
	return nil, u.err
}

func (u *unreliableMFA) SetPreferred(ctx context.Context, user *domain.User, method domain.MFAMethod) error {
	return u.err
}

func (u *unreliableMFA) Methods(ctx context.Context, userID domain.UserID) ([]domain.MultiFactorAuth, error) {
	return nil, u.err
}

func TestLoginFailsClosedWhenMFALookupErrors(t *testing.T) {
	st := setupStore(t)
	usr := seedUser(t, st, "outage@example.com")
	seedPassword(t, st, usr, "s3cret")
	ctx := context.Background()

	lookupErr := errors.New("factor storage unavailable")
	tokens := impl.NewTokenServiceImpl(st)
	passwords := impl.NewPasswordServiceArgon2id()
	verifier := impl.NewPasswordVerifierImpl(st, passwords, impl.PasswordVerifierConfig{})
	auth := impl.NewAuthServiceImpl(st, verifier, &unreliableMFA{err: lookupErr}, tokens, nil, &capturePublisher{}, impl.AuthServiceConfig{TokenTTL: time.Hour})

	_, err := auth.LoginWithPassword(ctx, dto.LoginRequest{EmailOrUsername: "outage@example.com", Password: "s3cret"}, nil, testClient)
	if !errors.Is(err, lookupErr) {
		t.Fatalf("expected the lookup failure to surface, got %v", err)
	}

	// Guessing "no factor configured" here would hand out a full login
	// token, so nothing may be issued at all.
	var count int64
	if err := st.DB.Model(&domain.AccessToken{}).Count(&count).Error; err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if count != 0 {
		t.Fatalf("token issued while factor configuration was unreadable")
	}
}
