// Package tenant owns per-request tenant resolution and the request-scoped
// identity context.
package tenant

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"identity/internal/domain"
	"identity/internal/store"
)

// Via names the resolution signal that won.
type Via string

const (
	ViaNone         Via = ""
	ViaHeader       Via = "header"
	ViaSubdomain    Via = "subdomain"
	ViaCustomDomain Via = "custom_domain"
)

type ResolverConfig struct {
	// Header is the tenant-selector header name, e.g. "X-Tenant".
	Header string
	// SubdomainSuffix is the platform-issued suffix, e.g. "example.app";
	// a host "acme.example.app" resolves the tenant with slug "acme".
	SubdomainSuffix string
}

type resolverStore interface {
	TenantByID(ctx context.Context, id domain.TenantID) (*domain.Tenant, error)
	TenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	VerifiedHostname(ctx context.Context, host string) (*domain.Hostname, error)
}

// Resolver resolves one request to a tenant. It is instance-scoped: the
// middleware constructs a fresh Resolver per request and the resolved state
// never outlives it.
type Resolver struct {
	store resolverStore
	cfg   ResolverConfig

	tenant   *domain.Tenant
	via      Via
	hostname *domain.Hostname
}

func NewResolver(st *store.Store, cfg ResolverConfig) *Resolver {
	return &Resolver{store: storeAdapter{st: st}, cfg: cfg}
}

type storeAdapter struct{ st *store.Store }

func (a storeAdapter) TenantByID(ctx context.Context, id domain.TenantID) (*domain.Tenant, error) {
	return a.st.Tenants().GetByID(ctx, id)
}

func (a storeAdapter) TenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return a.st.Tenants().GetBySlug(ctx, slug)
}

func (a storeAdapter) VerifiedHostname(ctx context.Context, host string) (*domain.Hostname, error) {
	return a.st.Hostnames().GetVerifiedByHost(ctx, host)
}

// Resolve evaluates the three signals in fixed precedence: explicit
// header, then platform subdomain, then verified custom hostname. The
// first match wins even when a later signal would name a different
// tenant. A nil return with no error means no signal matched (the
// caller's required/optional mode decides what that means).
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*domain.Tenant, error) {
	r.Clear()

	if v := strings.TrimSpace(req.Header.Get(r.cfg.Header)); v != "" {
		tn, err := r.byHeader(ctx, v)
		if err != nil {
			return nil, err
		}
		r.tenant, r.via = tn, ViaHeader
		return tn, nil
	}

	host := requestHost(req)

	if r.cfg.SubdomainSuffix != "" {
		if slug, ok := subdomainLabel(host, r.cfg.SubdomainSuffix); ok {
			tn, err := r.store.TenantBySlug(ctx, slug)
			if err != nil {
				if errors.Is(err, store.ErrRecordNotFound) {
					// A host under the platform suffix always claims a tenant,
					// so an unknown label is an error even when resolution is
					// optional. Only an unmatched custom domain below falls
					// through to (nil, nil).
					return nil, domain.ErrTenantNotFound
				}
				return nil, err
			}
			r.tenant, r.via = tn, ViaSubdomain
			return tn, nil
		}
	}

	hn, err := r.store.VerifiedHostname(ctx, host)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	tn, err := r.store.TenantByID(ctx, hn.TenantID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	r.tenant, r.via, r.hostname = tn, ViaCustomDomain, hn
	return tn, nil
}

func (r *Resolver) byHeader(ctx context.Context, v string) (*domain.Tenant, error) {
	var (
		tn  *domain.Tenant
		err error
	)
	if id, perr := strconv.ParseUint(v, 10, 64); perr == nil {
		tn, err = r.store.TenantByID(ctx, id)
	} else {
		tn, err = r.store.TenantBySlug(ctx, v)
	}
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return tn, nil
}

func (r *Resolver) Tenant() *domain.Tenant     { return r.tenant }
func (r *Resolver) Via() Via                   { return r.via }
func (r *Resolver) Hostname() *domain.Hostname { return r.hostname }

// DomainVerified is what downstream authorization must consult before
// trusting the tenant boundary. Header and subdomain resolution are
// platform-issued and trusted by construction; custom domains reflect
// their stored verification state.
func (r *Resolver) DomainVerified() bool {
	switch r.via {
	case ViaHeader, ViaSubdomain:
		return true
	case ViaCustomDomain:
		return r.hostname.Verified()
	default:
		return false
	}
}

// Clear resets resolution state between requests.
func (r *Resolver) Clear() {
	r.tenant, r.via, r.hostname = nil, ViaNone, nil
}

func requestHost(req *http.Request) string {
	host := req.Host
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		if _, err := strconv.Atoi(host[i+1:]); err == nil {
			host = host[:i]
		}
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// subdomainLabel extracts the leading label when host is exactly one
// label under the platform suffix.
func subdomainLabel(host, suffix string) (string, bool) {
	suffix = strings.ToLower(suffix)
	if !strings.HasSuffix(host, "."+suffix) {
		return "", false
	}
	label := strings.TrimSuffix(host, "."+suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	return label, true
}
