package impl

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"identity/internal/domain"
	"identity/internal/service"
	"identity/internal/store"

	"github.com/google/uuid"
)

const verificationTokenBytes = 20

type RegistryImpl struct {
	store    *store.Store
	notifier service.Notifier
}

func NewRegistryImpl(st *store.Store, notifier service.Notifier) *RegistryImpl {
	return &RegistryImpl{store: st, notifier: notifier}
}

func (r *RegistryImpl) Register(ctx context.Context, tenantID domain.TenantID, host, notifyEmail string) (*domain.Hostname, error) {
	buf := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(buf)

	hn := &domain.Hostname{
		TenantID:          tenantID,
		Host:              host,
		VerificationToken: &token,
	}
	if err := r.store.Hostnames().Create(ctx, hn); err != nil {
		return nil, err
	}

	if notifyEmail != "" {
		// Delivery is external and best effort; the token stays readable
		// through a management surface until verified.
		if err := r.notifier.SendDomainVerification(ctx, notifyEmail, host, token); err != nil {
			slog.Warn("domain verification dispatch failed", "host", host, "error", err)
		}
	}
	return hn, nil
}

// Verify consumes the single-use proof. A mismatch leaves the row
// untouched and returns false, nil.
func (r *RegistryImpl) Verify(ctx context.Context, hostnameID uuid.UUID, proof string) (bool, error) {
	hn, err := r.store.Hostnames().GetByID(ctx, hostnameID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return false, domain.ErrHostnameNotFound
		}
		return false, err
	}
	if hn.VerificationToken == nil {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(*hn.VerificationToken), []byte(proof)) != 1 {
		return false, nil
	}
	now := time.Now().UTC()
	if err := r.store.Hostnames().SetVerified(ctx, hn.ID, now); err != nil {
		return false, err
	}
	slog.Info("hostname verified", "host", hn.Host, "tenant_id", hn.TenantID)
	return true, nil
}

func (r *RegistryImpl) MarkPrimary(ctx context.Context, hostnameID uuid.UUID) error {
	hn, err := r.store.Hostnames().GetByID(ctx, hostnameID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrHostnameNotFound
		}
		return err
	}
	if hn.IsPrimary {
		return nil
	}
	return r.store.Hostnames().MarkPrimary(ctx, hn)
}

func (r *RegistryImpl) ResolveByHost(ctx context.Context, host string) (*domain.Hostname, error) {
	hn, err := r.store.Hostnames().GetVerifiedByHost(ctx, host)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrHostnameNotFound
		}
		return nil, err
	}
	return hn, nil
}

func (r *RegistryImpl) PrimaryForTenant(ctx context.Context, tenantID domain.TenantID) (*domain.Hostname, error) {
	hn, err := r.store.Hostnames().GetPrimary(ctx, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrHostnameNotFound
		}
		return nil, err
	}
	return hn, nil
}

func (r *RegistryImpl) Delete(ctx context.Context, hostnameID uuid.UUID) error {
	hn, err := r.store.Hostnames().GetByID(ctx, hostnameID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return domain.ErrHostnameNotFound
		}
		return err
	}
	return r.store.Hostnames().Delete(ctx, hn)
}
