package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"gorm.io/gorm"
)

type TenantStore struct{ db *gorm.DB }

func (s *Store) Tenants() *TenantStore { return &TenantStore{db: s.DB} }

func (t *TenantStore) Create(ctx context.Context, tn *domain.Tenant) error {
	now := time.Now().UTC()
	if tn.CreatedAt.IsZero() {
		tn.CreatedAt = now
	}
	tn.UpdatedAt = now
	return t.db.WithContext(ctx).Create(tn).Error
}

func (t *TenantStore) GetByID(ctx context.Context, id domain.TenantID) (*domain.Tenant, error) {
	var tn domain.Tenant
	if err := t.db.WithContext(ctx).First(&tn, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &tn, nil
}

func (t *TenantStore) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var tn domain.Tenant
	if err := t.db.WithContext(ctx).First(&tn, "slug = ?", slug).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &tn, nil
}

func (t *TenantStore) GetMembership(ctx context.Context, tenantID domain.TenantID, userID domain.UserID) (*domain.Membership, error) {
	var m domain.Membership
	err := t.db.WithContext(ctx).
		First(&m, "tenant_id = ? AND user_id = ?", tenantID, userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (t *TenantStore) CreateMembership(ctx context.Context, m *domain.Membership) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return t.db.WithContext(ctx).Create(m).Error
}

// FirstTenantForUser returns the membership tenant used as the active team
// when a token owner has exactly one team context to offer.
func (t *TenantStore) FirstTenantForUser(ctx context.Context, userID domain.UserID) (*domain.Tenant, error) {
	var tn domain.Tenant
	err := t.db.WithContext(ctx).
		Joins("JOIN memberships ON memberships.tenant_id = tenants.id").
		Where("memberships.user_id = ?", userID).
		Order("memberships.created_at ASC").
		First(&tn).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &tn, nil
}
