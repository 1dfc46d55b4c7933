package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"identity/internal/challenge"
	"identity/internal/config"
	"identity/internal/events"
	"identity/internal/observability/logging"
	"identity/internal/observability/metrics"
	"identity/internal/observability/middleware"
	"identity/internal/otp"
	impl "identity/internal/service/impl"
	"identity/internal/store"
	"identity/internal/tenant"
	httpx "identity/internal/transport/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "identity",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})

	slog.SetDefault(logger)

	logger.Info("starting service")

	cfg := config.Load()

	metrics.MustRegister("identity")

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	st := &store.Store{DB: gdb}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	challenges := challenge.NewStore(rdb)

	notifier := impl.NewLogNotifierImpl()
	publisher := events.NewRedisPublisher(rdb)

	passwords := impl.NewPasswordServiceArgon2id()
	tokens := impl.NewTokenServiceImpl(st)
	totp := otp.NewManager(otp.Config{
		Issuer: cfg.Issuer,
		Digits: cfg.OTPDigits,
		Skew:   cfg.OTPSkew,
	})
	mfa := impl.NewMFAServiceImpl(st, totp, notifier, impl.MFAConfig{
		EmailOTPTTL: cfg.EmailOTPTTL,
	})
	verifier := impl.NewPasswordVerifierImpl(st, passwords, impl.PasswordVerifierConfig{
		LoginWithUsername: cfg.LoginWithUsername,
	})
	webauthn := impl.NewWebAuthnServiceImpl(st, challenges, impl.NewSignatureVerifierImpl(), impl.WebAuthnConfig{
		RPID:         cfg.RPID,
		RPName:       cfg.Issuer,
		Origin:       cfg.Origin,
		ChallengeTTL: cfg.ChallengeTTL,
	})
	magicLinks := impl.NewMagicLinkServiceImpl(st, challenges, notifier, impl.MagicLinkConfig{
		BaseURL:    cfg.MagicLinkBase,
		TTL:        cfg.MagicLinkTTL,
		SigningKey: []byte(cfg.SigningKey),
		Issuer:     cfg.Issuer,
	})
	sso := impl.NewSSOServiceImpl(st, impl.NewOIDCExchangerImpl(nil))
	registry := impl.NewRegistryImpl(st, notifier)

	// Geolocation stays nil until an upstream provider is wired in; the
	// coordinator treats it as best effort either way.
	auth := impl.NewAuthServiceImpl(st, verifier, mfa, tokens, nil, publisher, impl.AuthServiceConfig{
		RecordFailures: cfg.RecordFailures,
		TokenTTL:       cfg.TokenTTL,
	})

	router := httpx.NewRouter(httpx.Deps{
		Store:      st,
		Auth:       auth,
		Tokens:     tokens,
		WebAuthn:   webauthn,
		MFA:        mfa,
		MagicLinks: magicLinks,
		SSO:        sso,
		Registry:   registry,
	}, httpx.RouterConfig{
		Resolver: tenant.ResolverConfig{
			Header:          cfg.TenantHeader,
			SubdomainSuffix: cfg.SubdomainSuffix,
		},
		RequireTenant: cfg.RequireTenant,
		TrustProxy:    cfg.TrustProxy,
		APITokenTTL:   cfg.APITokenTTL,
	})

	handler := middleware.WithRequestAndTrace(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("identity service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
