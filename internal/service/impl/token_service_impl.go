package impl

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"identity/internal/domain"
	"identity/internal/observability/metrics"
	"identity/internal/store"
)

const (
	tokenSecretLength = 40
	tokenSaltBytes    = 16
	tokenDelimiter    = "|"
)

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type TokenServiceImpl struct {
	store *store.Store
}

func NewTokenServiceImpl(st *store.Store) *TokenServiceImpl {
	return &TokenServiceImpl{store: st}
}

func (t *TokenServiceImpl) Issue(
	ctx context.Context,
	owner *domain.User,
	typ domain.TokenType,
	name string,
	attemptID *domain.AttemptID,
	ttl time.Duration,
) (string, *domain.AccessToken, error) {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues(string(typ), result).Inc()
	}()

	secret, err := randomSecret(tokenSecretLength)
	if err != nil {
		result = "failure"
		return "", nil, err
	}
	salt := make([]byte, tokenSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		result = "failure"
		return "", nil, err
	}

	now := time.Now().UTC()
	tok := &domain.AccessToken{
		OwnerID:    owner.ID,
		Name:       name,
		Type:       typ,
		SecretHash: hashSecret(salt, secret),
		Salt:       salt,
		AttemptID:  attemptID,
		CreatedAt:  now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		tok.ExpiresAt = &exp
	}
	if err := t.store.Tokens().Create(ctx, tok); err != nil {
		result = "failure"
		return "", nil, err
	}

	slog.Info("issued token", "token_id", tok.ID, "token_type", typ, "user_id", owner.ID)
	return strconv.FormatUint(tok.ID, 10) + tokenDelimiter + secret, tok, nil
}

// Authenticate resolves a presented "<id>|<secret>" bearer string. Every
// negative outcome, wrong format, unknown id, wrong secret or expiry,
// collapses into ErrInvalidOrExpired so the response is not an oracle.
func (t *TokenServiceImpl) Authenticate(ctx context.Context, bearer string) (*domain.AccessToken, error) {
	idPart, secret, found := strings.Cut(bearer, tokenDelimiter)
	if !found || secret == "" {
		return nil, domain.ErrInvalidOrExpired
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return nil, domain.ErrInvalidOrExpired
	}

	tok, err := t.store.Tokens().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrInvalidOrExpired
		}
		return nil, err
	}

	now := time.Now().UTC()
	if tok.Expired(now) {
		// Lazy cleanup; no sweep is relied upon.
		if derr := t.store.Tokens().Delete(ctx, tok.ID); derr != nil {
			slog.Warn("expired token delete failed", "token_id", tok.ID, "error", derr)
		}
		return nil, domain.ErrInvalidOrExpired
	}
	if subtle.ConstantTimeCompare(hashSecret(tok.Salt, secret), tok.SecretHash) != 1 {
		return nil, domain.ErrInvalidOrExpired
	}

	if err := t.store.Tokens().TouchUsed(ctx, tok.ID, now); err != nil {
		slog.Warn("token last_used update failed", "token_id", tok.ID, "error", err)
	}
	tok.LastUsedAt = &now
	return tok, nil
}

func (t *TokenServiceImpl) Promote(ctx context.Context, id domain.TokenID) error {
	result := "success"
	defer func() {
		metrics.TokensIssuedTotal.WithLabelValues("promotion", result).Inc()
	}()
	ok, err := t.store.Tokens().Promote(ctx, id)
	if err != nil {
		result = "failure"
		return err
	}
	if !ok {
		result = "failure"
		return domain.ErrNoPendingStepUp
	}
	slog.Info("promoted token", "token_id", id)
	return nil
}

func (t *TokenServiceImpl) Revoke(ctx context.Context, id domain.TokenID) error {
	return t.store.Tokens().Delete(ctx, id)
}

func hashSecret(salt []byte, secret string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return h.Sum(nil)
}

func randomSecret(n int) (string, error) {
	// Rejection sampling keeps the alphabet distribution uniform.
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= 256-(256%len(secretAlphabet)) {
				continue
			}
			out = append(out, secretAlphabet[int(b)%len(secretAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
