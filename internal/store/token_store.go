package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"gorm.io/gorm"
)

type TokenStore struct{ db *gorm.DB }

func (s *Store) Tokens() *TokenStore { return &TokenStore{db: s.DB} }

func (t *TokenStore) Create(ctx context.Context, tok *domain.AccessToken) error {
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	return t.db.WithContext(ctx).Create(tok).Error
}

func (t *TokenStore) GetByID(ctx context.Context, id domain.TokenID) (*domain.AccessToken, error) {
	var tok domain.AccessToken
	if err := t.db.WithContext(ctx).First(&tok, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &tok, nil
}

// Promote flips an mfa_token to login in place. The conditional WHERE is
// the concurrency guard: two racing step-ups cannot both observe the
// pending state, so only one caller sees rowsAffected = 1.
func (t *TokenStore) Promote(ctx context.Context, id domain.TokenID) (bool, error) {
	res := t.db.WithContext(ctx).Model(&domain.AccessToken{}).
		Where("id = ? AND token_type = ?", id, domain.TokenTypeMFA).
		Update("token_type", domain.TokenTypeLogin)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (t *TokenStore) TouchUsed(ctx context.Context, id domain.TokenID, at time.Time) error {
	return t.db.WithContext(ctx).Model(&domain.AccessToken{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}

func (t *TokenStore) Delete(ctx context.Context, id domain.TokenID) error {
	return t.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.AccessToken{}).Error
}
