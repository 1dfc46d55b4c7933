package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MFAStore struct{ db *gorm.DB }

func (s *Store) MFA() *MFAStore { return &MFAStore{db: s.DB} }

func (m *MFAStore) Create(ctx context.Context, cfg *domain.MultiFactorAuth) error {
	now := time.Now().UTC()
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	return m.db.WithContext(ctx).Create(cfg).Error
}

func (m *MFAStore) GetByUserAndMethod(ctx context.Context, userID domain.UserID, method domain.MFAMethod) (*domain.MultiFactorAuth, error) {
	var cfg domain.MultiFactorAuth
	err := m.db.WithContext(ctx).
		First(&cfg, "user_id = ? AND method = ?", userID, method).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// ListByUser returns the user's configured methods, preferred first, then
// oldest first. The coordinator picks the head for pending-MFA issuance.
func (m *MFAStore) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.MultiFactorAuth, error) {
	var out []domain.MultiFactorAuth
	err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("preferred DESC, created_at ASC").
		Find(&out).Error
	return out, err
}

// SetPreferred marks one method preferred and clears the flag on every
// other method of the user in the same transaction.
func (m *MFAStore) SetPreferred(ctx context.Context, userID domain.UserID, method domain.MFAMethod) error {
	now := time.Now().UTC()
	return (&Store{DB: m.db}).WithTx(ctx, func(tx *Store) error {
		if err := tx.DB.Model(&domain.MultiFactorAuth{}).
			Where("user_id = ? AND method <> ? AND preferred", userID, method).
			Updates(map[string]any{"preferred": false, "updated_at": now}).Error; err != nil {
			return err
		}
		return tx.DB.Model(&domain.MultiFactorAuth{}).
			Where("user_id = ? AND method = ?", userID, method).
			Updates(map[string]any{"preferred": true, "updated_at": now}).Error
	})
}

// SetEphemeralOTP stores the hashed emailed code and its absolute expiry.
func (m *MFAStore) SetEphemeralOTP(ctx context.Context, id uuid.UUID, otpHash []byte, expiresAt time.Time) error {
	return m.db.WithContext(ctx).Model(&domain.MultiFactorAuth{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"otp_hash":   otpHash,
			"expires_at": expiresAt,
			"updated_at": time.Now().UTC(),
		}).Error
}

// ConsumeEphemeralOTP removes the one-time code after its single use.
// The hash in the WHERE is the concurrency guard: two racing consumers
// cannot both observe the stored hash, so only one caller sees
// rowsAffected = 1.
func (m *MFAStore) ConsumeEphemeralOTP(ctx context.Context, id uuid.UUID, otpHash []byte, usedAt time.Time) (bool, error) {
	res := m.db.WithContext(ctx).Model(&domain.MultiFactorAuth{}).
		Where("id = ? AND otp_hash = ?", id, otpHash).
		Updates(map[string]any{
			"otp_hash":     nil,
			"expires_at":   nil,
			"last_used_at": usedAt,
			"updated_at":   usedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (m *MFAStore) TouchUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.db.WithContext(ctx).Model(&domain.MultiFactorAuth{}).
		Where("id = ?", id).
		Updates(map[string]any{"last_used_at": at, "updated_at": at}).Error
}

func (m *MFAStore) CreateRecoveryCode(ctx context.Context, rc *domain.RecoveryCode) error {
	now := time.Now().UTC()
	if rc.ID == uuid.Nil {
		rc.ID = uuid.New()
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = now
	}
	rc.UpdatedAt = now
	return m.db.WithContext(ctx).Create(rc).Error
}

func (m *MFAStore) ListUnusedRecoveryCodes(ctx context.Context, userID domain.UserID) ([]domain.RecoveryCode, error) {
	var out []domain.RecoveryCode
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND used_at IS NULL", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// RotateRecoveryCode replaces a spent code's hash with a fresh one in
// place so the user always holds the same number of live codes. The old
// hash in the WHERE guards against two racing consumers of the same
// code: only one rotation sees rowsAffected = 1.
func (m *MFAStore) RotateRecoveryCode(ctx context.Context, id uuid.UUID, oldHash, newHash []byte) (bool, error) {
	now := time.Now().UTC()
	res := m.db.WithContext(ctx).Model(&domain.RecoveryCode{}).
		Where("id = ? AND code_hash = ?", id, oldHash).
		Updates(map[string]any{"code_hash": newHash, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
