package domain

import (
	"time"

	"github.com/google/uuid"
)

// Hostname maps a DNS name to a tenant. Custom hostnames require an
// out-of-band verification proof before they resolve anything; the
// verification token is single use and cleared once consumed.
type Hostname struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	TenantID          TenantID   `gorm:"not null;index" db:"tenant_id" json:"tenantId"`
	Host              string     `gorm:"type:citext;uniqueIndex:ux_hostnames_host" db:"host" json:"host"`
	VerificationToken *string    `gorm:"type:text" db:"verification_token" json:"-"`
	VerifiedAt        *time.Time `gorm:"type:timestamptz" db:"verified_at" json:"verifiedAt"`
	IsPrimary         bool       `gorm:"not null;default:false" db:"is_primary" json:"isPrimary"`
	Enforce           bool       `gorm:"not null;default:false" db:"enforce" json:"enforce"`
	CreatedAt         time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (Hostname) TableName() string { return "hostnames" }

func (h *Hostname) Verified() bool { return h != nil && h.VerifiedAt != nil }
