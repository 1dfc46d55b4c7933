package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HostnameStore struct{ db *gorm.DB }

func (s *Store) Hostnames() *HostnameStore { return &HostnameStore{db: s.DB} }

func (h *HostnameStore) Create(ctx context.Context, hn *domain.Hostname) error {
	now := time.Now().UTC()
	if hn.ID == uuid.Nil {
		hn.ID = uuid.New()
	}
	if hn.CreatedAt.IsZero() {
		hn.CreatedAt = now
	}
	hn.UpdatedAt = now
	return h.db.WithContext(ctx).Create(hn).Error
}

func (h *HostnameStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Hostname, error) {
	var hn domain.Hostname
	if err := h.db.WithContext(ctx).First(&hn, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &hn, nil
}

// GetVerifiedByHost returns the hostname row only when its verification
// proof has been consumed. Unverified rows never resolve a tenant.
func (h *HostnameStore) GetVerifiedByHost(ctx context.Context, host string) (*domain.Hostname, error) {
	var hn domain.Hostname
	err := h.db.WithContext(ctx).
		First(&hn, "host = ? AND verified_at IS NOT NULL", host).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &hn, nil
}

func (h *HostnameStore) GetPrimary(ctx context.Context, tenantID domain.TenantID) (*domain.Hostname, error) {
	var hn domain.Hostname
	err := h.db.WithContext(ctx).
		First(&hn, "tenant_id = ? AND is_primary AND verified_at IS NOT NULL", tenantID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &hn, nil
}

func (h *HostnameStore) SetVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	return h.db.WithContext(ctx).Model(&domain.Hostname{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"verified_at":        at,
			"verification_token": nil,
			"updated_at":         at,
		}).Error
}

// MarkPrimary unsets is_primary on every other hostname of the tenant and
// sets it on the target, in one transaction.
func (h *HostnameStore) MarkPrimary(ctx context.Context, hn *domain.Hostname) error {
	now := time.Now().UTC()
	return (&Store{DB: h.db}).WithTx(ctx, func(tx *Store) error {
		if err := tx.DB.Model(&domain.Hostname{}).
			Where("tenant_id = ? AND id <> ? AND is_primary", hn.TenantID, hn.ID).
			Updates(map[string]any{"is_primary": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.DB.Model(&domain.Hostname{}).
			Where("id = ?", hn.ID).
			Updates(map[string]any{"is_primary": true, "updated_at": now}).Error
	})
}

// Delete removes a hostname. Deleting the current primary reassigns
// is_primary to another verified hostname of the same tenant inside the
// same transaction; deleting the tenant's last hostname is rejected.
func (h *HostnameStore) Delete(ctx context.Context, hn *domain.Hostname) error {
	now := time.Now().UTC()
	return (&Store{DB: h.db}).WithTx(ctx, func(tx *Store) error {
		var remaining int64
		if err := tx.DB.Model(&domain.Hostname{}).
			Where("tenant_id = ? AND id <> ?", hn.TenantID, hn.ID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return domain.ErrLastHostname
		}
		if err := tx.DB.Where("id = ?", hn.ID).Delete(&domain.Hostname{}).Error; err != nil {
			return err
		}
		if !hn.IsPrimary {
			return nil
		}
		var next domain.Hostname
		err := tx.DB.
			Where("tenant_id = ? AND verified_at IS NOT NULL", hn.TenantID).
			Order("created_at ASC").
			First(&next).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil // no verified hostname left to promote
			}
			return err
		}
		return tx.DB.Model(&domain.Hostname{}).
			Where("id = ?", next.ID).
			Updates(map[string]any{"is_primary": true, "updated_at": now}).Error
	})
}

func (h *HostnameStore) CountPrimary(ctx context.Context, tenantID domain.TenantID) (int64, error) {
	var n int64
	err := h.db.WithContext(ctx).Model(&domain.Hostname{}).
		Where("tenant_id = ? AND is_primary", tenantID).
		Count(&n).Error
	return n, err
}
