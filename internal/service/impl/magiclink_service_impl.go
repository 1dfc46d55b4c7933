package impl

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"identity/internal/challenge"
	"identity/internal/domain"
	"identity/internal/service"
	"identity/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const scopeMagicLink = "mlink"

type MagicLinkConfig struct {
	BaseURL    string
	TTL        time.Duration
	SigningKey []byte
	Issuer     string
}

type magicLinkClaims struct {
	TenantID *domain.TenantID `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// MagicLinkServiceImpl signs expiring login URLs. The jti is parked in
// the single-use challenge store so a link works exactly once even while
// its signature is still valid.
type MagicLinkServiceImpl struct {
	store      *store.Store
	challenges *challenge.Store
	notifier   service.Notifier
	cfg        MagicLinkConfig
}

func NewMagicLinkServiceImpl(st *store.Store, ch *challenge.Store, notifier service.Notifier, cfg MagicLinkConfig) *MagicLinkServiceImpl {
	if cfg.TTL == 0 {
		cfg.TTL = 15 * time.Minute
	}
	return &MagicLinkServiceImpl{store: st, challenges: ch, notifier: notifier, cfg: cfg}
}

func (m *MagicLinkServiceImpl) Request(ctx context.Context, tenant *domain.Tenant, email string) error {
	// An unknown email gets a silent success; the mailbox decides.
	usr, err := m.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			slog.Info("magic link requested for unknown email")
			return nil
		}
		return err
	}
	if !usr.Active {
		return nil
	}

	now := time.Now().UTC()
	jti := uuid.NewString()
	claims := magicLinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}
	if tenant != nil {
		claims.TenantID = &tenant.ID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.SigningKey)
	if err != nil {
		return err
	}

	if err := m.challenges.Save(ctx, scopeMagicLink, jti, []byte(email), m.cfg.TTL); err != nil {
		return err
	}

	link := m.cfg.BaseURL + "?token=" + url.QueryEscape(signed)
	return m.notifier.SendMagicLink(ctx, email, link)
}

func (m *MagicLinkServiceImpl) Consume(ctx context.Context, token string) (service.VerifierResult, error) {
	var zero service.VerifierResult

	claims := &magicLinkClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.SigningKey, nil
	})
	if err != nil || !parsed.Valid || claims.Issuer != m.cfg.Issuer {
		return zero, domain.ErrInvalidOrExpired
	}

	// Single use: pulling the jti deletes it; replays land here.
	stored, err := m.challenges.Pull(ctx, scopeMagicLink, claims.ID)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return zero, domain.ErrInvalidOrExpired
		}
		return zero, err
	}
	if string(stored) != claims.Subject {
		return zero, domain.ErrInvalidOrExpired
	}

	usr, err := m.store.Users().GetByEmail(ctx, claims.Subject)
	if err != nil {
		return zero, domain.ErrInvalidOrExpired
	}
	return service.VerifierResult{User: usr, Email: claims.Subject, Method: domain.LoginMethodMagicLink}, nil
}
