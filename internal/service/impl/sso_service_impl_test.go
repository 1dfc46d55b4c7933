package impl_test

import (
	"context"
	"errors"
	"testing"

	"identity/internal/domain"
	"identity/internal/service"
	"identity/internal/service/impl"
	"identity/internal/store"
)

// stubExchanger returns a canned identity without talking to a provider.
type stubExchanger struct {
	redirect string
	identity *service.SSOIdentity
	err      error
}

func (s *stubExchanger) RedirectURL(_ []byte) (string, error) { return s.redirect, nil }

func (s *stubExchanger) Exchange(_ context.Context, _ []byte, _ map[string]string) (*service.SSOIdentity, error) {
	return s.identity, s.err
}

func seedSSOTenant(t *testing.T, st *store.Store, slug string, autoProvision bool) *domain.Tenant {
	t.Helper()
	tn := seedTenant(t, st, slug)
	if err := st.DB.Model(&domain.Tenant{}).Where("id = ?", tn.ID).
		Updates(map[string]any{
			"auth_method":    domain.AuthMethodSSO,
			"sso_provider":   []byte(`{"clientId":"cid","authUrl":"https://idp/auth","tokenUrl":"https://idp/token"}`),
			"auto_provision": autoProvision,
		}).Error; err != nil {
		t.Fatalf("configure sso tenant: %v", err)
	}
	got, err := st.Tenants().GetByID(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("reload tenant: %v", err)
	}
	return got
}

func TestSSOCallbackExistingMember(t *testing.T) {
	st := setupStore(t)
	tn := seedSSOTenant(t, st, "ssocorp", false)
	usr := seedUser(t, st, "member@ssocorp.com")
	ctx := context.Background()

	if err := st.Tenants().CreateMembership(ctx, &domain.Membership{TenantID: tn.ID, UserID: usr.ID}); err != nil {
		t.Fatalf("create membership: %v", err)
	}

	svc := impl.NewSSOServiceImpl(st, &stubExchanger{identity: &service.SSOIdentity{Email: "Member@SSOCorp.com", Name: "Member"}})
	res, err := svc.HandleCallback(ctx, tn, map[string]string{"code": "abc"})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if res.User.ID != usr.ID || res.Method != domain.LoginMethodSSO {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Email != "member@ssocorp.com" {
		t.Fatalf("provider email should be lowercased, got %q", res.Email)
	}
}

func TestSSOCallbackAutoProvisions(t *testing.T) {
	st := setupStore(t)
	tn := seedSSOTenant(t, st, "opencorp", true)
	ctx := context.Background()

	svc := impl.NewSSOServiceImpl(st, &stubExchanger{identity: &service.SSOIdentity{Email: "new@opencorp.com", Name: "New Hire"}})
	res, err := svc.HandleCallback(ctx, tn, map[string]string{"code": "abc"})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if res.User.Name != "New Hire" {
		t.Fatalf("unexpected user: %+v", res.User)
	}
	if _, err := st.Tenants().GetMembership(ctx, tn.ID, res.User.ID); err != nil {
		t.Fatalf("membership not created: %v", err)
	}
	if _, err := st.Users().GetByEmail(ctx, "new@opencorp.com"); err != nil {
		t.Fatalf("user not reachable by email: %v", err)
	}
}

func TestSSOCallbackStrangerWithoutAutoProvision(t *testing.T) {
	st := setupStore(t)
	tn := seedSSOTenant(t, st, "closedcorp", false)
	ctx := context.Background()

	svc := impl.NewSSOServiceImpl(st, &stubExchanger{identity: &service.SSOIdentity{Email: "stranger@example.com"}})
	if _, err := svc.HandleCallback(ctx, tn, map[string]string{"code": "abc"}); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	// The refusal provisions nothing.
	if _, err := st.Users().GetByEmail(ctx, "stranger@example.com"); !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("no user should exist, got %v", err)
	}
}

func TestSSOCallbackNonMemberUser(t *testing.T) {
	st := setupStore(t)
	tn := seedSSOTenant(t, st, "strictcorp", false)
	seedUser(t, st, "outsider@example.com")

	svc := impl.NewSSOServiceImpl(st, &stubExchanger{identity: &service.SSOIdentity{Email: "outsider@example.com"}})
	if _, err := svc.HandleCallback(context.Background(), tn, map[string]string{"code": "abc"}); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember for a user outside the tenant, got %v", err)
	}
}

func TestSSOCallbackExchangeFailure(t *testing.T) {
	st := setupStore(t)
	tn := seedSSOTenant(t, st, "failcorp", true)

	svc := impl.NewSSOServiceImpl(st, &stubExchanger{err: errors.New("provider said no")})
	if _, err := svc.HandleCallback(context.Background(), tn, map[string]string{"code": "abc"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSSOWithoutProviderConfig(t *testing.T) {
	st := setupStore(t)
	tn := seedTenant(t, st, "plaincorp")

	svc := impl.NewSSOServiceImpl(st, &stubExchanger{redirect: "https://idp/auth"})
	if _, err := svc.RedirectURL(context.Background(), tn); err == nil {
		t.Fatalf("tenant without provider config must not redirect")
	}
	if _, err := svc.HandleCallback(context.Background(), tn, nil); err == nil {
		t.Fatalf("tenant without provider config must not accept callbacks")
	}
}
