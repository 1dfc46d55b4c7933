package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttemptStore struct{ db *gorm.DB }

func (s *Store) Attempts() *AttemptStore { return &AttemptStore{db: s.DB} }

func (a *AttemptStore) Create(ctx context.Context, at *domain.LoginAttempt) error {
	now := time.Now().UTC()
	if at.ID == uuid.Nil {
		at.ID = uuid.New()
	}
	if at.CreatedAt.IsZero() {
		at.CreatedAt = now
	}
	at.UpdatedAt = now
	return a.db.WithContext(ctx).Create(at).Error
}

func (a *AttemptStore) GetByID(ctx context.Context, id domain.AttemptID) (*domain.LoginAttempt, error) {
	var at domain.LoginAttempt
	if err := a.db.WithContext(ctx).First(&at, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &at, nil
}

// MarkStepUp records the completed second factor on the original attempt
// row. Guarded on is_success = false: a successful attempt is immutable.
func (a *AttemptStore) MarkStepUp(ctx context.Context, id domain.AttemptID, method domain.MFAMethod, at time.Time) error {
	return a.db.WithContext(ctx).Model(&domain.LoginAttempt{}).
		Where("id = ? AND NOT is_success", id).
		Updates(map[string]any{
			"multi_factor_method": method,
			"is_success":          true,
			"updated_at":          at,
		}).Error
}

func (a *AttemptStore) HasAnySuccess(ctx context.Context, userID domain.UserID) (bool, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&domain.LoginAttempt{}).
		Where("user_id = ? AND is_success", userID).
		Count(&n).Error
	return n > 0, err
}

// HasRecentSuccessFrom reports whether the user has a recent successful
// attempt from the same ip or device fingerprint; a miss marks the new
// attempt suspicious.
func (a *AttemptStore) HasRecentSuccessFrom(ctx context.Context, userID domain.UserID, ip, device string, since time.Time) (bool, error) {
	var n int64
	err := a.db.WithContext(ctx).Model(&domain.LoginAttempt{}).
		Where("user_id = ? AND is_success AND created_at >= ?", userID, since).
		Where("ip = ? OR device = ?", ip, device).
		Count(&n).Error
	return n > 0, err
}
