package domain

import "time"

type TokenType string

const (
	// TokenTypeLogin authorizes general authenticated access.
	TokenTypeLogin TokenType = "login"
	// TokenTypeMFA proves factor-one success only; it authorizes exactly
	// one action, completing the pending step-up, after which the same row
	// is promoted to TokenTypeLogin.
	TokenTypeMFA TokenType = "mfa_token"
	// TokenTypeAPI is issued independently and never transitions.
	TokenTypeAPI TokenType = "api_token"
)

// AccessToken is an opaque bearer credential. The client-visible form is
// "<id>|<secret>"; only the salted hash of the secret is stored. Promotion
// from mfa_token to login mutates this row in place so the attempt linkage
// and the expiry clock set at creation survive the transition.
type AccessToken struct {
	ID         TokenID    `gorm:"primaryKey;autoIncrement" db:"id" json:"id"`
	OwnerID    UserID     `gorm:"type:uuid;not null;index" db:"owner_id" json:"ownerId"`
	Name       string     `gorm:"type:text;not null" db:"name" json:"name"`
	Type       TokenType  `gorm:"type:text;not null" db:"token_type" json:"tokenType"`
	SecretHash []byte     `gorm:"type:bytea;not null" db:"secret_hash" json:"-"`
	Salt       []byte     `gorm:"type:bytea;not null" db:"salt" json:"-"`
	AttemptID  *AttemptID `gorm:"type:uuid;index" db:"attempt_id" json:"attemptId"`
	ExpiresAt  *time.Time `gorm:"type:timestamptz" db:"expires_at" json:"expiresAt"`
	LastUsedAt *time.Time `gorm:"type:timestamptz" db:"last_used_at" json:"lastUsedAt"`
	CreatedAt  time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (AccessToken) TableName() string { return "access_tokens" }

func (t *AccessToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}
