package domain

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        UserID    `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Name      string    `gorm:"type:text;not null" db:"name" json:"name"`
	Username  string    `gorm:"type:citext;uniqueIndex:ux_users_username" db:"username" json:"username"`
	Active    bool      `gorm:"not null;default:true" db:"active" json:"active"`
	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

type Email struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID     UserID     `gorm:"type:uuid;not null;index" db:"user_id" json:"userId"`
	Address    string     `gorm:"type:citext;uniqueIndex:ux_emails_address" db:"address" json:"address"`
	IsPrimary  bool       `gorm:"not null;default:false" db:"is_primary" json:"isPrimary"`
	VerifiedAt *time.Time `gorm:"type:timestamptz" db:"verified_at" json:"verifiedAt"`
	CreatedAt  time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (Email) TableName() string { return "emails" }

// Password rows form an append-only history; the newest row is the one
// credentials are compared against.
type Password struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" db:"id"`
	UserID     UserID    `gorm:"type:uuid;not null;index" db:"user_id"`
	Algo       string    `gorm:"type:text;not null" db:"algo"`
	Hash       []byte    `gorm:"type:bytea;not null" db:"hash"`
	Salt       []byte    `gorm:"type:bytea;not null" db:"salt"`
	ParamsJSON []byte    `gorm:"type:jsonb;not null" db:"params_json"`
	Ver        int       `gorm:"not null;default:1" db:"ver"`
	CreatedAt  time.Time `gorm:"not null" db:"created_at"`
}

func (Password) TableName() string { return "passwords" }
