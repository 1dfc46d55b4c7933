package store

import (
	"context"
	"time"

	"identity/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	now := time.Now().UTC()
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = now
	}
	usr.UpdatedAt = now
	return u.db.WithContext(ctx).Create(usr).Error
}

func (u *UserStore) GetByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByEmail(ctx context.Context, address string) (*domain.User, error) {
	var user domain.User
	err := u.db.WithContext(ctx).
		Joins("JOIN emails ON emails.user_id = users.id").
		Where("emails.address = ?", address).
		First(&user).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) PrimaryEmail(ctx context.Context, userID domain.UserID) (*domain.Email, error) {
	var em domain.Email
	err := u.db.WithContext(ctx).
		First(&em, "user_id = ? AND is_primary", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &em, nil
}

func (u *UserStore) CreateEmail(ctx context.Context, em *domain.Email) error {
	if em.ID == uuid.Nil {
		em.ID = uuid.New()
	}
	if em.CreatedAt.IsZero() {
		em.CreatedAt = time.Now().UTC()
	}
	return u.db.WithContext(ctx).Create(em).Error
}

// LatestPassword returns the newest row of the user's password history,
// the only one credentials are compared against.
func (u *UserStore) LatestPassword(ctx context.Context, userID domain.UserID) (*domain.Password, error) {
	var pw domain.Password
	err := u.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		First(&pw).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &pw, nil
}

func (u *UserStore) AddPassword(ctx context.Context, pw *domain.Password) error {
	if pw.ID == uuid.Nil {
		pw.ID = uuid.New()
	}
	if pw.CreatedAt.IsZero() {
		pw.CreatedAt = time.Now().UTC()
	}
	return u.db.WithContext(ctx).Create(pw).Error
}
