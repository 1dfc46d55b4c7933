package tenant

import (
	"context"

	"identity/internal/domain"
)

// RequestContext is the request-scoped {tenant, team, user} container.
// It is mutable only until Bind is called; any setter after that is a
// programming error and panics. It is not shared across requests; the
// write-once guarantee exists to prevent re-entrant mutation within one.
type RequestContext struct {
	tenant *domain.Tenant
	team   *domain.Tenant
	user   *domain.User
	bound  bool
}

func NewRequestContext() *RequestContext { return &RequestContext{} }

func (c *RequestContext) SetTenant(t *domain.Tenant) {
	c.mustMutable("SetTenant")
	c.tenant = t
}

func (c *RequestContext) SetTeam(t *domain.Tenant) {
	c.mustMutable("SetTeam")
	c.team = t
}

func (c *RequestContext) SetUser(u *domain.User) {
	c.mustMutable("SetUser")
	c.user = u
}

// Bind freezes the context. It must be called exactly once, after all
// resolution middleware has run and before handler logic executes; a
// second Bind is a programming error.
func (c *RequestContext) Bind() {
	if c.bound {
		panic("tenant: RequestContext already bound")
	}
	c.bound = true
}

// Clear resets everything including the bound flag. It exists for
// request-lifecycle cleanup and tests only.
func (c *RequestContext) Clear() {
	*c = RequestContext{}
}

func (c *RequestContext) Tenant() *domain.Tenant { return c.tenant }
func (c *RequestContext) Team() *domain.Tenant   { return c.team }
func (c *RequestContext) User() *domain.User     { return c.user }
func (c *RequestContext) Bound() bool            { return c.bound }

func (c *RequestContext) mustMutable(op string) {
	if c.bound {
		panic("tenant: " + op + " on bound RequestContext")
	}
}

type ctxKey struct{}

func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the request context, or nil when the request never
// passed through the resolution middleware.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(ctxKey{}).(*RequestContext)
	return rc
}
