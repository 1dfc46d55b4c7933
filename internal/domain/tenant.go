package domain

import "time"

type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodSSO      AuthMethod = "sso"
)

type Tenant struct {
	ID            TenantID   `gorm:"primaryKey;autoIncrement" db:"id" json:"id"`
	Name          string     `gorm:"type:text;not null" db:"name" json:"name"`
	Slug          string     `gorm:"type:citext;uniqueIndex:ux_tenants_slug" db:"slug" json:"slug"`
	AuthMethod    AuthMethod `gorm:"type:text;not null;default:password" db:"auth_method" json:"authMethod"`
	SSOProvider   []byte     `gorm:"type:jsonb" db:"sso_provider" json:"-"`
	AutoProvision bool       `gorm:"not null;default:false" db:"auto_provision" json:"autoProvision"`
	CreatedAt     time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (Tenant) TableName() string { return "tenants" }

type Membership struct {
	TenantID  TenantID  `gorm:"primaryKey" db:"tenant_id"`
	UserID    UserID    `gorm:"type:uuid;primaryKey" db:"user_id"`
	CreatedAt time.Time `gorm:"not null" db:"created_at"`
}

func (Membership) TableName() string { return "memberships" }
