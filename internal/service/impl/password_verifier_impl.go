package impl

import (
	"context"
	"errors"
	"strings"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/service"
	"identity/internal/store"
)

type PasswordVerifierConfig struct {
	// LoginWithUsername lets a bare username stand in for the email; it
	// is translated to the user's primary email for the audit trail.
	LoginWithUsername bool
}

type PasswordVerifierImpl struct {
	store     *store.Store
	passwords service.PasswordService
	cfg       PasswordVerifierConfig
}

func NewPasswordVerifierImpl(st *store.Store, passwords service.PasswordService, cfg PasswordVerifierConfig) *PasswordVerifierImpl {
	return &PasswordVerifierImpl{store: st, passwords: passwords, cfg: cfg}
}

// Verify resolves the user and compares against the newest password row.
// Every negative path returns the same ErrInvalidCredentials; user-not-
// found and wrong-password are indistinguishable to the caller.
func (p *PasswordVerifierImpl) Verify(ctx context.Context, tenant *domain.Tenant, r dto.LoginRequest, client service.ClientInfo) (service.VerifierResult, error) {
	var zero service.VerifierResult

	if r.EmailOrUsername == "" || r.Password == "" {
		return zero, domain.ErrInvalidCredentials
	}
	if tenant != nil && tenant.AuthMethod == domain.AuthMethodSSO {
		return zero, domain.ErrSSORequired
	}

	identifier := strings.TrimSpace(r.EmailOrUsername)
	var (
		usr   *domain.User
		email string
		err   error
	)
	if strings.ContainsRune(identifier, '@') {
		email = identifier
		usr, err = p.store.Users().GetByEmail(ctx, identifier)
	} else if p.cfg.LoginWithUsername {
		usr, err = p.store.Users().GetByUsername(ctx, identifier)
		if err == nil {
			var em *domain.Email
			em, err = p.store.Users().PrimaryEmail(ctx, usr.ID)
			if err == nil {
				email = em.Address
			}
		}
	} else {
		return zero, domain.ErrInvalidCredentials
	}
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return zero, domain.ErrInvalidCredentials
		}
		return zero, err
	}

	pw, err := p.store.Users().LatestPassword(ctx, usr.ID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return zero, domain.ErrInvalidCredentials
		}
		return zero, err
	}

	rehash, ok := p.passwords.Verify(r.Password, pw)
	if !ok {
		return zero, domain.ErrInvalidCredentials
	}
	if rehash {
		// Policy upgraded since the hash was written; transparently
		// append a fresh history row.
		if fresh, herr := p.passwords.Hash(r.Password); herr == nil {
			fresh.UserID = usr.ID
			_ = p.store.Users().AddPassword(ctx, fresh)
		}
	}

	return service.VerifierResult{User: usr, Email: email, Method: domain.LoginMethodPassword}, nil
}
