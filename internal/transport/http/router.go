package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"identity/internal/domain"
	"identity/internal/dto"
	"identity/internal/netutil"
	"identity/internal/service"
	"identity/internal/store"
	"identity/internal/tenant"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Deps struct {
	Store      *store.Store
	Auth       service.AuthService
	Tokens     service.TokenService
	WebAuthn   service.WebAuthnService
	MFA        service.MultiFactorService
	MagicLinks service.MagicLinkService
	SSO        service.SSOService
	Registry   service.DomainRegistry
}

type RouterConfig struct {
	Resolver      tenant.ResolverConfig
	RequireTenant bool
	TrustProxy    bool
	APITokenTTL   time.Duration
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		// XFF can be a list: client, proxy1, proxy2...
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ip := strings.TrimSpace(strings.Split(xff, ",")[0])
			if normalized, ok := netutil.NormalizeIP(ip); ok {
				return normalized
			}
		}
		if xr := r.Header.Get("X-Real-IP"); xr != "" {
			if normalized, ok := netutil.NormalizeIP(xr); ok {
				return normalized
			}
		}
	}
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}

func NewRouter(d Deps, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	client := func(r *http.Request) service.ClientInfo {
		return service.ClientInfo{
			IP:        clientIP(r, cfg.TrustProxy),
			UserAgent: netutil.TruncateUserAgent(r.UserAgent()),
		}
	}
	currentTenant := func(r *http.Request) *domain.Tenant {
		if rc := tenant.FromContext(r.Context()); rc != nil {
			return rc.Tenant()
		}
		return nil
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req dto.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := d.Auth.LoginWithPassword(r.Context(), req, currentTenant(r), client(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/v1/auth/step-up", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		bearer := bearerToken(r)
		if bearer == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		var req dto.StepUpRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		res, err := d.Auth.CompleteStepUp(r.Context(), bearer, req, client(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		bearer := bearerToken(r)
		if bearer == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if err := d.Auth.Logout(r.Context(), bearer); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/auth/magic-link/request", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req dto.MagicLinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// Unknown addresses answer the same as known ones.
		if err := d.MagicLinks.Request(r.Context(), currentTenant(r), req.Email); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/v1/auth/magic-link/consume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusBadRequest)
			return
		}
		vr, err := d.MagicLinks.Consume(r.Context(), token)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := d.Auth.Login(r.Context(), vr, currentTenant(r), client(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/v1/auth/otp/request", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req dto.OTPRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		// Accepted either way; an unknown address must look identical.
		if usr, err := d.Store.Users().GetByEmail(r.Context(), req.Email); err == nil {
			_ = d.MFA.RequestEmailCode(r.Context(), usr)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/v1/auth/otp/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Email string `json:"email"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		usr, err := d.Store.Users().GetByEmail(r.Context(), body.Email)
		if err != nil {
			writeError(w, domain.ErrInvalidCredentials)
			return
		}
		ok, err := d.MFA.VerifyCode(r.Context(), usr, domain.MFAMethodEmail, body.Code)
		if err != nil || !ok {
			writeError(w, domain.ErrInvalidCredentials)
			return
		}
		res, err := d.Auth.Login(r.Context(), service.VerifierResult{
			User:   usr,
			Email:  strings.ToLower(strings.TrimSpace(body.Email)),
			Method: domain.LoginMethodOTP,
		}, currentTenant(r), client(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/v1/auth/webauthn/register/begin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		opts, err := d.WebAuthn.BeginRegistration(r.Context(), usr)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, opts)
	})

	mux.HandleFunc("/v1/auth/webauthn/register/finish", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req dto.RegistrationResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		pk, err := d.WebAuthn.FinishRegistration(r.Context(), usr, req)
		if err != nil {
			writeError(w, err)
			return
		}
		resp := struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}{ID: pk.ID.String(), Name: pk.Name}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/v1/auth/webauthn/login/begin", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req dto.BeginLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		opts, err := d.WebAuthn.BeginLogin(r.Context(), req.Email)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, opts)
	})

	mux.HandleFunc("/v1/auth/webauthn/login/finish", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req dto.AssertionResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		vr, err := d.WebAuthn.FinishLogin(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := d.Auth.Login(r.Context(), vr, currentTenant(r), client(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/v1/auth/sso/redirect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tn := currentTenant(r)
		if tn == nil {
			http.Error(w, "tenant required", http.StatusBadRequest)
			return
		}
		url, err := d.SSO.RedirectURL(r.Context(), tn)
		if err != nil {
			writeError(w, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	})

	mux.HandleFunc("/v1/auth/sso/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		tn := currentTenant(r)
		if tn == nil {
			http.Error(w, "tenant required", http.StatusBadRequest)
			return
		}
		params := make(map[string]string, len(r.URL.Query()))
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				params[k] = vs[0]
			}
		}
		vr, err := d.SSO.HandleCallback(r.Context(), tn, params)
		if err != nil {
			writeError(w, err)
			return
		}
		res, err := d.Auth.Login(r.Context(), vr, tn, client(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/v1/mfa/totp/provision", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		uri, err := d.MFA.ProvisionTOTP(r.Context(), usr)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			URI string `json:"uri"`
		}{URI: uri})
	})

	mux.HandleFunc("/v1/mfa/email/request", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		// An mfa_token holder must be able to request their step-up code.
		usr, _, err := requireAnyUser(r, d.Store)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := d.MFA.RequestEmailCode(r.Context(), usr); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("/v1/mfa/recovery/generate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var body struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		codes, err := d.MFA.GenerateRecoveryCodes(r.Context(), usr, body.Count)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Codes []string `json:"codes"`
		}{Codes: codes})
	})

	mux.HandleFunc("/v1/mfa/preferred", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var body struct {
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := d.MFA.SetPreferred(r.Context(), usr, domain.MFAMethod(body.Method)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/mfa/methods", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		methods, err := d.MFA.Methods(r.Context(), usr.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		type methodInfo struct {
			Method    string `json:"method"`
			Preferred bool   `json:"preferred"`
		}
		out := make([]methodInfo, 0, len(methods))
		for _, m := range methods {
			out = append(out, methodInfo{Method: string(m.Method), Preferred: m.Preferred})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("/v1/passkeys", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		pks, err := d.WebAuthn.Passkeys(r.Context(), usr)
		if err != nil {
			writeError(w, err)
			return
		}
		type passkeyInfo struct {
			ID         domain.PasskeyID `json:"id"`
			Name       string           `json:"name"`
			CreatedAt  time.Time        `json:"createdAt"`
			LastUsedAt *time.Time       `json:"lastUsedAt,omitempty"`
		}
		out := make([]passkeyInfo, 0, len(pks))
		for _, pk := range pks {
			out = append(out, passkeyInfo{ID: pk.ID, Name: pk.Name, CreatedAt: pk.CreatedAt, LastUsedAt: pk.LastUsedAt})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("/v1/passkeys/rename", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var body struct {
			ID   domain.PasskeyID `json:"id"`
			Name string           `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(body.Name) == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		if err := d.WebAuthn.RenamePasskey(r.Context(), usr, body.ID, body.Name); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req dto.APITokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		plaintext, tok, err := d.Tokens.Issue(r.Context(), usr, domain.TokenTypeAPI, req.Name, nil, cfg.APITokenTTL)
		if err != nil {
			writeError(w, err)
			return
		}
		resp := dto.TokenResponse{Token: plaintext, TokenType: string(tok.Type)}
		if tok.ExpiresAt != nil {
			resp.ExpiresIn = int64(time.Until(*tok.ExpiresAt).Seconds())
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/v1/tokens/revoke", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		usr, _, err := requireUser(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var body struct {
			ID domain.TokenID `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		tok, err := d.Store.Tokens().GetByID(r.Context(), body.ID)
		if err != nil || tok.OwnerID != usr.ID {
			writeError(w, domain.ErrInvalidOrExpired)
			return
		}
		if err := d.Tokens.Revoke(r.Context(), tok.ID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/domains", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, _, err := requireUser(r); err != nil {
			writeError(w, err)
			return
		}
		tn := currentTenant(r)
		if tn == nil {
			http.Error(w, "tenant required", http.StatusBadRequest)
			return
		}
		var body struct {
			Host        string `json:"host"`
			NotifyEmail string `json:"notifyEmail"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		hn, err := d.Registry.Register(r.Context(), tn.ID, body.Host, body.NotifyEmail)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, hn)
	})

	mux.HandleFunc("/v1/domains/verify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, _, err := requireUser(r); err != nil {
			writeError(w, err)
			return
		}
		id, proof, ok := hostnameIDAndField(w, r, "proof")
		if !ok {
			return
		}
		verified, err := d.Registry.Verify(r.Context(), id, proof)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Verified bool `json:"verified"`
		}{Verified: verified})
	})

	mux.HandleFunc("/v1/domains/primary", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			if _, _, err := requireUser(r); err != nil {
				writeError(w, err)
				return
			}
			id, _, ok := hostnameIDAndField(w, r, "")
			if !ok {
				return
			}
			if err := d.Registry.MarkPrimary(r.Context(), id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			tn := currentTenant(r)
			if tn == nil {
				http.Error(w, "tenant required", http.StatusBadRequest)
				return
			}
			hn, err := d.Registry.PrimaryForTenant(r.Context(), tn.ID)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, hn)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/domains/delete", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if _, _, err := requireUser(r); err != nil {
			writeError(w, err)
			return
		}
		id, _, ok := hostnameIDAndField(w, r, "")
		if !ok {
			return
		}
		if err := d.Registry.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return withHTTPMetrics(withIdentity(d.Store, d.Tokens, cfg, mux))
}

// hostnameIDAndField decodes the {id, <field>} body shared by the domain
// management endpoints, writing the 400 itself on failure.
func hostnameIDAndField(w http.ResponseWriter, r *http.Request, field string) (uuid.UUID, string, bool) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return uuid.UUID{}, "", false
	}
	id, err := uuid.Parse(strings.TrimSpace(body["id"]))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.UUID{}, "", false
	}
	return id, body[field], true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, domain.ErrInvalidOrExpired),
		errors.Is(err, domain.ErrChallengeExpired),
		errors.Is(err, domain.ErrNoPendingStepUp):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrAccountDeactivated),
		errors.Is(err, domain.ErrNotAMember),
		errors.Is(err, domain.ErrStepUpRequired):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSSORequired):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrTenantNotFound),
		errors.Is(err, domain.ErrHostnameNotFound),
		errors.Is(err, store.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrHostnameUnverified),
		errors.Is(err, domain.ErrLastHostname):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}
