package impl

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"identity/internal/domain"
	"identity/internal/service"
	"identity/internal/store"
)

var errNoSSOProvider = errors.New("tenant has no sso provider configured")

type SSOServiceImpl struct {
	store     *store.Store
	exchanger service.IdentityExchanger
}

func NewSSOServiceImpl(st *store.Store, exchanger service.IdentityExchanger) *SSOServiceImpl {
	return &SSOServiceImpl{store: st, exchanger: exchanger}
}

func (s *SSOServiceImpl) RedirectURL(ctx context.Context, tenant *domain.Tenant) (string, error) {
	if tenant == nil || len(tenant.SSOProvider) == 0 {
		return "", errNoSSOProvider
	}
	return s.exchanger.RedirectURL(tenant.SSOProvider)
}

// HandleCallback exchanges the provider callback for an identity and
// resolves it to a local user. Auto-provisioning of both the user and the
// tenant membership is gated by the tenant policy; with the policy off,
// a missing user or membership fails with ErrNotAMember and creates
// nothing.
func (s *SSOServiceImpl) HandleCallback(ctx context.Context, tenant *domain.Tenant, params map[string]string) (service.VerifierResult, error) {
	var zero service.VerifierResult

	if tenant == nil || len(tenant.SSOProvider) == 0 {
		return zero, errNoSSOProvider
	}
	ident, err := s.exchanger.Exchange(ctx, tenant.SSOProvider, params)
	if err != nil {
		return zero, domain.ErrInvalidCredentials
	}
	email := strings.ToLower(strings.TrimSpace(ident.Email))
	if email == "" {
		return zero, domain.ErrInvalidCredentials
	}

	var out service.VerifierResult
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		usr, err := tx.Users().GetByEmail(ctx, email)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrRecordNotFound):
			if !tenant.AutoProvision {
				return domain.ErrNotAMember
			}
			usr = &domain.User{
				Name:     ident.Name,
				Username: email,
				Active:   true,
			}
			if err := tx.Users().Create(ctx, usr); err != nil {
				return err
			}
			if err := tx.Users().CreateEmail(ctx, &domain.Email{
				UserID:    usr.ID,
				Address:   email,
				IsPrimary: true,
			}); err != nil {
				return err
			}
			slog.Info("auto-provisioned user", "tenant_id", tenant.ID, "user_id", usr.ID)
		default:
			return err
		}

		_, err = tx.Tenants().GetMembership(ctx, tenant.ID, usr.ID)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrRecordNotFound):
			if !tenant.AutoProvision {
				return domain.ErrNotAMember
			}
			if err := tx.Tenants().CreateMembership(ctx, &domain.Membership{
				TenantID: tenant.ID,
				UserID:   usr.ID,
			}); err != nil {
				return err
			}
		default:
			return err
		}

		out = service.VerifierResult{User: usr, Email: email, Method: domain.LoginMethodSSO}
		return nil
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}
