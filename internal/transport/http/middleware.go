package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"identity/internal/domain"
	"identity/internal/observability/metrics"
	"identity/internal/service"
	"identity/internal/store"
	"identity/internal/tenant"

	"github.com/prometheus/client_golang/prometheus"
)

type authKey struct{}

// authState is what the identity middleware learned from the
// Authorization header. err is kept so protected handlers can answer 401
// without re-parsing the bearer string.
type authState struct {
	bearer string
	token  *domain.AccessToken
	user   *domain.User
	err    error
}

func authFromContext(ctx context.Context) *authState {
	st, _ := ctx.Value(authKey{}).(*authState)
	return st
}

// withIdentity resolves the tenant, optionally authenticates the bearer
// token and freezes the request context before any handler runs.
func withIdentity(st *store.Store, tokens service.TokenService, cfg RouterConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolver := tenant.NewResolver(st, cfg.Resolver)

		tn, err := resolver.Resolve(r.Context(), r)
		if err != nil {
			if errors.Is(err, domain.ErrTenantNotFound) {
				metrics.TenantResolutionsTotal.WithLabelValues("", "failure").Inc()
				http.Error(w, "tenant not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if tn == nil && cfg.RequireTenant {
			metrics.TenantResolutionsTotal.WithLabelValues("", "failure").Inc()
			http.Error(w, "tenant required", http.StatusBadRequest)
			return
		}
		if tn != nil {
			metrics.TenantResolutionsTotal.WithLabelValues(string(resolver.Via()), "success").Inc()
		}

		rc := tenant.NewRequestContext()
		rc.SetTenant(tn)

		ctx := r.Context()
		if bearer := bearerToken(r); bearer != "" {
			auth := &authState{bearer: bearer}
			auth.token, auth.err = tokens.Authenticate(ctx, bearer)
			if auth.err == nil && auth.token.Type != domain.TokenTypeMFA {
				auth.user, auth.err = st.Users().GetByID(ctx, auth.token.OwnerID)
				if auth.err == nil {
					rc.SetUser(auth.user)
					if tn == nil {
						if team, terr := st.Tenants().FirstTenantForUser(ctx, auth.user.ID); terr == nil {
							rc.SetTeam(team)
						}
					}
				}
			}
			ctx = context.WithValue(ctx, authKey{}, auth)
		}

		rc.Bind()
		next.ServeHTTP(w, r.WithContext(tenant.NewContext(ctx, rc)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

// requireUser returns the fully authenticated caller. A pending mfa_token
// does not count; only the step-up endpoints accept one.
func requireUser(r *http.Request) (*domain.User, *domain.AccessToken, error) {
	auth := authFromContext(r.Context())
	if auth == nil || auth.err != nil {
		return nil, nil, domain.ErrInvalidOrExpired
	}
	if auth.token.Type == domain.TokenTypeMFA {
		return nil, nil, domain.ErrStepUpRequired
	}
	return auth.user, auth.token, nil
}

// requireAnyUser additionally accepts an mfa_token holder. The step-up
// email-code endpoint needs this: the caller has proven factor one only.
func requireAnyUser(r *http.Request, st *store.Store) (*domain.User, *domain.AccessToken, error) {
	auth := authFromContext(r.Context())
	if auth == nil || auth.err != nil && auth.token == nil {
		return nil, nil, domain.ErrInvalidOrExpired
	}
	if auth.user != nil {
		return auth.user, auth.token, nil
	}
	if auth.token == nil {
		return nil, nil, domain.ErrInvalidOrExpired
	}
	usr, err := st.Users().GetByID(r.Context(), auth.token.OwnerID)
	if err != nil {
		return nil, nil, domain.ErrInvalidOrExpired
	}
	return usr, auth.token, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		metrics.HTTPRequestsTotal.With(prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": strconv.Itoa(rec.status),
		}).Inc()
		metrics.HTTPRequestDurationSeconds.With(prometheus.Labels{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Observe(time.Since(start).Seconds())
	})
}
