package service

import (
	"context"

	"identity/internal/domain"

	"github.com/google/uuid"
)

// DomainRegistry owns hostname-to-tenant mappings, their verification
// proofs and the at-most-one-primary invariant.
type DomainRegistry interface {
	// Register creates a hostname with a fresh single-use verification
	// token and hands the token to the notifier for out-of-band delivery.
	Register(ctx context.Context, tenantID domain.TenantID, host, notifyEmail string) (*domain.Hostname, error)

	// Verify compares proof against the stored token in constant time; a
	// match sets verified_at, clears the token and returns true. A
	// mismatch is a normal negative result.
	Verify(ctx context.Context, hostnameID uuid.UUID, proof string) (bool, error)

	// MarkPrimary atomically moves the primary flag to the target.
	MarkPrimary(ctx context.Context, hostnameID uuid.UUID) error

	// ResolveByHost returns only verified hostnames.
	ResolveByHost(ctx context.Context, host string) (*domain.Hostname, error)

	// PrimaryForTenant returns the tenant's primary verified hostname.
	PrimaryForTenant(ctx context.Context, tenantID domain.TenantID) (*domain.Hostname, error)

	// Delete removes a hostname, reassigning primary atomically; deleting
	// the tenant's last hostname fails with ErrLastHostname.
	Delete(ctx context.Context, hostnameID uuid.UUID) error
}
