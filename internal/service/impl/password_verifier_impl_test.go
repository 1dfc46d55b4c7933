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

func seedPassword(t *testing.T, st *store.Store, usr *domain.User, password string) {
	t.Helper()
	pw, err := impl.NewPasswordServiceArgon2id().Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	pw.UserID = usr.ID
	if err := st.Users().AddPassword(context.Background(), pw); err != nil {
		t.Fatalf("add password: %v", err)
	}
}

func TestPasswordVerifierByEmail(t *testing.T) {
	st := setupStore(t)
	verifier := impl.NewPasswordVerifierImpl(st, impl.NewPasswordServiceArgon2id(), impl.PasswordVerifierConfig{})
	usr := seedUser(t, st, "alice@example.com")
	seedPassword(t, st, usr, "s3cret")
	ctx := context.Background()

	res, err := verifier.Verify(ctx, nil, dto.LoginRequest{EmailOrUsername: "alice@example.com", Password: "s3cret"}, service.ClientInfo{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.User.ID != usr.ID || res.Method != domain.LoginMethodPassword {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := verifier.Verify(ctx, nil, dto.LoginRequest{EmailOrUsername: "alice@example.com", Password: "wrong"}, service.ClientInfo{}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestPasswordVerifierUniformFailures(t *testing.T) {
	st := setupStore(t)
	verifier := impl.NewPasswordVerifierImpl(st, impl.NewPasswordServiceArgon2id(), impl.PasswordVerifierConfig{})
	usr := seedUser(t, st, "nopass@example.com")
	_ = usr // user exists but has no password history
	ctx := context.Background()

	cases := []dto.LoginRequest{
		{EmailOrUsername: "", Password: "x"},
		{EmailOrUsername: "someone@example.com", Password: ""},
		{EmailOrUsername: "unknown@example.com", Password: "x"},
		{EmailOrUsername: "nopass@example.com", Password: "x"},
	}
	for _, r := range cases {
		if _, err := verifier.Verify(ctx, nil, r, service.ClientInfo{}); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("%q: expected ErrInvalidCredentials, got %v", r.EmailOrUsername, err)
		}
	}
}

func TestPasswordVerifierUsernameLogin(t *testing.T) {
	st := setupStore(t)
	usr := seedUser(t, st, "bob@example.com")
	seedPassword(t, st, usr, "hunter2")
	ctx := context.Background()

	// Disabled by default.
	off := impl.NewPasswordVerifierImpl(st, impl.NewPasswordServiceArgon2id(), impl.PasswordVerifierConfig{})
	usernameReq := dto.LoginRequest{EmailOrUsername: "bobuser", Password: "hunter2"}
	if err := st.DB.Model(&domain.User{}).Where("id = ?", usr.ID).Update("username", "bobuser").Error; err != nil {
		t.Fatalf("set username: %v", err)
	}
	if _, err := off.Verify(ctx, nil, usernameReq, service.ClientInfo{}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("username login should be off by default, got %v", err)
	}

	on := impl.NewPasswordVerifierImpl(st, impl.NewPasswordServiceArgon2id(), impl.PasswordVerifierConfig{LoginWithUsername: true})
	res, err := on.Verify(ctx, nil, usernameReq, service.ClientInfo{})
	if err != nil {
		t.Fatalf("username login: %v", err)
	}
	// The audit trail records the primary email, not the username.
	if res.Email != "bob@example.com" {
		t.Fatalf("expected primary email in result, got %q", res.Email)
	}
}

func TestPasswordVerifierSSOTenantRefuses(t *testing.T) {
	st := setupStore(t)
	verifier := impl.NewPasswordVerifierImpl(st, impl.NewPasswordServiceArgon2id(), impl.PasswordVerifierConfig{})
	usr := seedUser(t, st, "sso@example.com")
	seedPassword(t, st, usr, "s3cret")

	tn := seedTenant(t, st, "ssocorp")
	if err := st.DB.Model(&domain.Tenant{}).Where("id = ?", tn.ID).Update("auth_method", domain.AuthMethodSSO).Error; err != nil {
		t.Fatalf("set auth method: %v", err)
	}
	tn.AuthMethod = domain.AuthMethodSSO

	_, err := verifier.Verify(context.Background(), tn, dto.LoginRequest{EmailOrUsername: "sso@example.com", Password: "s3cret"}, service.ClientInfo{})
	if !errors.Is(err, domain.ErrSSORequired) {
		t.Fatalf("expected ErrSSORequired, got %v", err)
	}
}

func TestPasswordVerifierRehashAppendsHistory(t *testing.T) {
	st := setupStore(t)
	passwords := impl.NewPasswordServiceArgon2id()
	verifier := impl.NewPasswordVerifierImpl(st, passwords, impl.PasswordVerifierConfig{})
	usr := seedUser(t, st, "legacy@example.com")
	ctx := context.Background()

	pw, err := passwords.Hash("oldpass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	pw.UserID = usr.ID
	pw.Ver = 0 // predates the current policy
	if err := st.Users().AddPassword(ctx, pw); err != nil {
		t.Fatalf("add password: %v", err)
	}
	// Backdate so the rehash row is unambiguously the newest.
	if err := st.DB.Model(&domain.Password{}).Where("id = ?", pw.ID).
		Update("created_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	if _, err := verifier.Verify(ctx, nil, dto.LoginRequest{EmailOrUsername: "legacy@example.com", Password: "oldpass"}, service.ClientInfo{}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	var count int64
	if err := st.DB.Model(&domain.Password{}).Where("user_id = ?", usr.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected a fresh history row after rehash, got %d rows", count)
	}
	latest, err := st.Users().LatestPassword(ctx, usr.ID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Ver != 1 {
		t.Fatalf("latest row should carry the current version, got %d", latest.Ver)
	}
}
