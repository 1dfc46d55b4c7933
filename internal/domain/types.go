package domain

import "github.com/google/uuid"

type UserID = uuid.UUID
type PasskeyID = uuid.UUID
type AttemptID = uuid.UUID

// Tenants and access tokens carry numeric identifiers because both travel
// on the wire: the tenant-selector header accepts a numeric id, and the
// bearer token format is "<id>|<secret>".
type TenantID = uint64
type TokenID = uint64
