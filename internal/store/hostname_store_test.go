package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity/internal/domain"
	"identity/internal/store"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Tenant{}, &domain.Membership{}, &domain.Hostname{},
		&domain.User{}, &domain.Email{}, &domain.Password{},
		&domain.Passkey{}, &domain.MultiFactorAuth{}, &domain.RecoveryCode{},
		&domain.LoginAttempt{}, &domain.AccessToken{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return store.New(db)
}

func seedHostname(t *testing.T, st *store.Store, tenantID domain.TenantID, host string, verified, primary bool) *domain.Hostname {
	t.Helper()
	hn := &domain.Hostname{TenantID: tenantID, Host: host, IsPrimary: primary}
	if verified {
		now := time.Now().UTC()
		hn.VerifiedAt = &now
	}
	if err := st.Hostnames().Create(context.Background(), hn); err != nil {
		t.Fatalf("create hostname %s: %v", host, err)
	}
	return hn
}

func TestGetVerifiedByHostIgnoresUnverified(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	seedHostname(t, st, 1, "pending.example.com", false, false)
	seedHostname(t, st, 1, "live.example.com", true, false)

	if _, err := st.Hostnames().GetVerifiedByHost(ctx, "pending.example.com"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("unverified host must not resolve, got %v", err)
	}

	hn, err := st.Hostnames().GetVerifiedByHost(ctx, "live.example.com")
	if err != nil {
		t.Fatalf("verified host: %v", err)
	}
	if hn.Host != "live.example.com" {
		t.Fatalf("unexpected host %q", hn.Host)
	}
}

func TestMarkPrimaryMovesFlag(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	a := seedHostname(t, st, 1, "a.example.com", true, true)
	b := seedHostname(t, st, 1, "b.example.com", true, false)
	other := seedHostname(t, st, 2, "c.example.org", true, true)

	if err := st.Hostnames().MarkPrimary(ctx, b); err != nil {
		t.Fatalf("mark primary: %v", err)
	}

	n, err := st.Hostnames().CountPrimary(ctx, 1)
	if err != nil {
		t.Fatalf("count primary: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one primary, got %d", n)
	}

	got, err := st.Hostnames().GetPrimary(ctx, 1)
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	if got.ID != b.ID {
		t.Fatalf("primary did not move: got %s want %s", got.Host, b.Host)
	}

	// The old primary lost the flag; the other tenant is untouched.
	reloaded, err := st.Hostnames().GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload a: %v", err)
	}
	if reloaded.IsPrimary {
		t.Fatalf("previous primary still flagged")
	}
	if n, _ := st.Hostnames().CountPrimary(ctx, other.TenantID); n != 1 {
		t.Fatalf("other tenant's primary disturbed")
	}
}

func TestSetVerifiedClearsToken(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	token := "a1b2c3"
	hn := &domain.Hostname{TenantID: 1, Host: "v.example.com", VerificationToken: &token}
	if err := st.Hostnames().Create(ctx, hn); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := st.Hostnames().SetVerified(ctx, hn.ID, time.Now().UTC()); err != nil {
		t.Fatalf("set verified: %v", err)
	}

	reloaded, err := st.Hostnames().GetByID(ctx, hn.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.VerificationToken != nil {
		t.Fatalf("verification token must be cleared once consumed")
	}
	if !reloaded.Verified() {
		t.Fatalf("hostname should be verified")
	}
}

func TestDeleteLastHostnameRejected(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	only := seedHostname(t, st, 1, "only.example.com", true, true)

	if err := st.Hostnames().Delete(ctx, only); !errors.Is(err, domain.ErrLastHostname) {
		t.Fatalf("expected ErrLastHostname, got %v", err)
	}
	if _, err := st.Hostnames().GetByID(ctx, only.ID); err != nil {
		t.Fatalf("hostname should survive the rejected delete: %v", err)
	}
}

func TestDeletePrimaryReassignsOldestVerified(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	primary := seedHostname(t, st, 1, "p.example.com", true, true)
	second := seedHostname(t, st, 1, "s.example.com", true, false)
	second.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if err := st.DB.Save(second).Error; err != nil {
		t.Fatalf("backdate second: %v", err)
	}
	seedHostname(t, st, 1, "unv.example.com", false, false)

	if err := st.Hostnames().Delete(ctx, primary); err != nil {
		t.Fatalf("delete primary: %v", err)
	}

	got, err := st.Hostnames().GetPrimary(ctx, 1)
	if err != nil {
		t.Fatalf("get primary after delete: %v", err)
	}
	if got.ID != second.ID {
		t.Fatalf("expected oldest verified hostname promoted, got %s", got.Host)
	}
	if n, _ := st.Hostnames().CountPrimary(ctx, 1); n != 1 {
		t.Fatalf("expected exactly one primary, got %d", n)
	}
}

func TestDeleteNonPrimaryLeavesPrimaryAlone(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	primary := seedHostname(t, st, 1, "keep.example.com", true, true)
	extra := seedHostname(t, st, 1, "extra.example.com", true, false)

	if err := st.Hostnames().Delete(ctx, extra); err != nil {
		t.Fatalf("delete extra: %v", err)
	}

	got, err := st.Hostnames().GetPrimary(ctx, 1)
	if err != nil {
		t.Fatalf("get primary: %v", err)
	}
	if got.ID != primary.ID {
		t.Fatalf("primary changed unexpectedly")
	}
}
