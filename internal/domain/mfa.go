package domain

import (
	"time"

	"github.com/google/uuid"
)

type MFAMethod string

const (
	MFAMethodAuthenticator MFAMethod = "authenticator"
	MFAMethodEmail         MFAMethod = "email"
	MFAMethodRecovery      MFAMethod = "recovery"
)

// MultiFactorAuth holds one configured second factor per method per user.
// For the authenticator method Secret is the TOTP seed; for the email
// method OTPHash/ExpiresAt carry the ephemeral emailed code, cleared on
// first successful use.
type MultiFactorAuth struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID     UserID     `gorm:"type:uuid;not null;uniqueIndex:ux_mfa_user_method" db:"user_id" json:"userId"`
	Method     MFAMethod  `gorm:"type:text;not null;uniqueIndex:ux_mfa_user_method" db:"method" json:"method"`
	Secret     []byte     `gorm:"type:bytea" db:"secret" json:"-"`
	OTPHash    []byte     `gorm:"type:bytea" db:"otp_hash" json:"-"`
	ExpiresAt  *time.Time `gorm:"type:timestamptz" db:"expires_at" json:"-"`
	Preferred  bool       `gorm:"not null;default:false" db:"preferred" json:"preferred"`
	LastUsedAt *time.Time `gorm:"type:timestamptz" db:"last_used_at" json:"lastUsedAt"`
	CreatedAt  time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (MultiFactorAuth) TableName() string { return "multi_factor_auths" }

type RecoveryCode struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id"`
	UserID    UserID     `gorm:"type:uuid;not null;index" db:"user_id"`
	CodeHash  []byte     `gorm:"type:bytea;not null" db:"code_hash"`
	UsedAt    *time.Time `gorm:"type:timestamptz" db:"used_at"`
	CreatedAt time.Time  `gorm:"not null" db:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" db:"updated_at"`
}

func (RecoveryCode) TableName() string { return "recovery_codes" }
