package domain

import "time"

type LoginMethod string

const (
	LoginMethodPassword  LoginMethod = "password"
	LoginMethodPasskey   LoginMethod = "passkey"
	LoginMethodMagicLink LoginMethod = "magic_link"
	LoginMethodOTP       LoginMethod = "otp"
	LoginMethodSSO       LoginMethod = "sso"
)

// LoginAttempt is the audit record for one logical login. The password
// step and the later MFA step share a single row: the step-up updates
// MultiFactorMethod and IsSuccess in place instead of inserting a second
// attempt. Once IsSuccess is set the row is never mutated again.
type LoginAttempt struct {
	ID                AttemptID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	TenantID          *TenantID   `gorm:"index" db:"tenant_id" json:"tenantId"`
	UserID            *UserID     `gorm:"type:uuid;index" db:"user_id" json:"userId"`
	EmailAddress      string      `gorm:"type:citext" db:"email_address" json:"emailAddress"`
	Method            LoginMethod `gorm:"type:text;not null" db:"method" json:"method"`
	MultiFactorMethod *MFAMethod  `gorm:"type:text" db:"multi_factor_method" json:"multiFactorMethod"`
	Platform          string      `gorm:"type:text" db:"platform" json:"platform"`
	Browser           string      `gorm:"type:text" db:"browser" json:"browser"`
	Device            string      `gorm:"type:text" db:"device" json:"device"`
	IP                string      `gorm:"type:text" db:"ip" json:"ip"`
	City              string      `gorm:"type:text" db:"city" json:"city"`
	Country           string      `gorm:"type:text" db:"country" json:"country"`
	IsSuccess         bool        `gorm:"not null;default:false" db:"is_success" json:"isSuccess"`
	IsSuspicious      bool        `gorm:"not null;default:false" db:"is_suspicious" json:"isSuspicious"`
	CreatedAt         time.Time   `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time   `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (LoginAttempt) TableName() string { return "login_attempts" }
