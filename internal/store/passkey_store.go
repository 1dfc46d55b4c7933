package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PasskeyStore struct{ db *gorm.DB }

func (s *Store) Passkeys() *PasskeyStore { return &PasskeyStore{db: s.DB} }

// Upsert writes the ceremony result. A re-registration of a known
// credential id replaces the public key, transports and aaguid for the
// same row. Requires the unique index on passkeys.credential_id.
func (p *PasskeyStore) Upsert(ctx context.Context, pk *domain.Passkey) error {
	now := time.Now().UTC()
	if pk.ID == uuid.Nil {
		pk.ID = uuid.New()
	}
	if pk.CreatedAt.IsZero() {
		pk.CreatedAt = now
	}
	pk.UpdatedAt = now
	return p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "credential_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"public_key", "transports", "aaguid", "sign_count", "updated_at"}),
	}).Create(pk).Error
}

func (p *PasskeyStore) GetByCredentialID(ctx context.Context, credentialID []byte) (*domain.Passkey, error) {
	var pk domain.Passkey
	if err := p.db.WithContext(ctx).First(&pk, "credential_id = ?", credentialID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &pk, nil
}

func (p *PasskeyStore) ListByUser(ctx context.Context, userID domain.UserID) ([]domain.Passkey, error) {
	var out []domain.Passkey
	err := p.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (p *PasskeyStore) TouchUsed(ctx context.Context, id domain.PasskeyID, signCount uint32, at time.Time) error {
	return p.db.WithContext(ctx).Model(&domain.Passkey{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sign_count":   signCount,
			"last_used_at": at,
			"updated_at":   at,
		}).Error
}

// Rename relabels one credential. The user id in the WHERE scopes the
// update to the caller's own passkeys.
func (p *PasskeyStore) Rename(ctx context.Context, id domain.PasskeyID, userID domain.UserID, name string) (bool, error) {
	res := p.db.WithContext(ctx).Model(&domain.Passkey{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
