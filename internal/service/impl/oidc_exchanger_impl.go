package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"identity/internal/service"

	"golang.org/x/oauth2"
)

// providerConfig is the per-team SSO provider document stored on the
// tenant row.
type providerConfig struct {
	ClientID     string   `json:"clientId"`
	ClientSecret string   `json:"clientSecret"`
	AuthURL      string   `json:"authUrl"`
	TokenURL     string   `json:"tokenUrl"`
	UserInfoURL  string   `json:"userInfoUrl"`
	RedirectURL  string   `json:"redirectUrl"`
	Scopes       []string `json:"scopes"`
}

// OIDCExchangerImpl runs the authorization-code exchange against the
// provider a team configured. It never persists anything; the caller
// decides what the returned identity means locally.
type OIDCExchangerImpl struct {
	httpClient *http.Client
}

func NewOIDCExchangerImpl(httpClient *http.Client) *OIDCExchangerImpl {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OIDCExchangerImpl{httpClient: httpClient}
}

func (e *OIDCExchangerImpl) RedirectURL(raw []byte) (string, error) {
	cfg, _, err := parseProviderConfig(raw)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL("", oauth2.AccessTypeOnline), nil
}

func (e *OIDCExchangerImpl) Exchange(ctx context.Context, raw []byte, params map[string]string) (*service.SSOIdentity, error) {
	cfg, pc, err := parseProviderConfig(raw)
	if err != nil {
		return nil, err
	}
	code := params["code"]
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	if pc.UserInfoURL == "" {
		return nil, fmt.Errorf("provider config missing userinfo endpoint")
	}
	resp, err := cfg.Client(ctx, tok).Get(pc.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var claims struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("userinfo response missing email")
	}

	return &service.SSOIdentity{
		Email:      strings.ToLower(claims.Email),
		Name:       claims.Name,
		ExternalID: claims.Sub,
	}, nil
}

func parseProviderConfig(raw []byte) (*oauth2.Config, providerConfig, error) {
	var pc providerConfig
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, pc, fmt.Errorf("provider config: %w", err)
	}
	if pc.ClientID == "" || pc.AuthURL == "" || pc.TokenURL == "" {
		return nil, pc, fmt.Errorf("provider config incomplete")
	}
	return &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURL:  pc.RedirectURL,
		Scopes:       pc.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  pc.AuthURL,
			TokenURL: pc.TokenURL,
		},
	}, pc, nil
}
