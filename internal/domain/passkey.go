package domain

import "time"

type Passkey struct {
	ID           PasskeyID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID       UserID     `gorm:"type:uuid;not null;index" db:"user_id" json:"userId"`
	Name         string     `gorm:"type:text;not null" db:"name" json:"name"`
	CredentialID []byte     `gorm:"type:bytea;uniqueIndex:ux_passkeys_credid" db:"credential_id" json:"-"`
	PublicKey    []byte     `gorm:"type:bytea;not null" db:"public_key" json:"-"`
	AAGUID       []byte     `gorm:"type:bytea" db:"aaguid" json:"-"`
	Transports   string     `gorm:"type:text" db:"transports" json:"transports"`
	SignCount    uint32     `gorm:"not null;default:0" db:"sign_count" json:"-"`
	LastUsedAt   *time.Time `gorm:"type:timestamptz" db:"last_used_at" json:"lastUsedAt"`
	CreatedAt    time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (Passkey) TableName() string { return "passkeys" }
