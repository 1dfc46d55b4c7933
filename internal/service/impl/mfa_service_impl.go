package impl

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"identity/internal/domain"
	"identity/internal/otp"
	"identity/internal/service"
	"identity/internal/store"
)

const recoveryCodeBytes = 10

type MFAConfig struct {
	EmailOTPTTL time.Duration
}

type MFAServiceImpl struct {
	store    *store.Store
	totp     *otp.Manager
	notifier service.Notifier
	cfg      MFAConfig
}

func NewMFAServiceImpl(st *store.Store, totp *otp.Manager, notifier service.Notifier, cfg MFAConfig) *MFAServiceImpl {
	if cfg.EmailOTPTTL == 0 {
		cfg.EmailOTPTTL = 10 * time.Minute
	}
	return &MFAServiceImpl{store: st, totp: totp, notifier: notifier, cfg: cfg}
}

func (m *MFAServiceImpl) ProvisionTOTP(ctx context.Context, user *domain.User) (string, error) {
	secret, secretB32, err := m.totp.GenerateSecret()
	if err != nil {
		return "", err
	}
	cfg := &domain.MultiFactorAuth{
		UserID: user.ID,
		Method: domain.MFAMethodAuthenticator,
		Secret: secret,
	}
	if err := m.store.MFA().Create(ctx, cfg); err != nil {
		return "", err
	}
	return m.totp.ProvisionURI(secretB32, user.Username), nil
}

func (m *MFAServiceImpl) RequestEmailCode(ctx context.Context, user *domain.User) error {
	cfg, err := m.mfaRow(ctx, user.ID, domain.MFAMethodEmail)
	if err != nil {
		return err
	}
	em, err := m.store.Users().PrimaryEmail(ctx, user.ID)
	if err != nil {
		return err
	}

	code, err := otp.NumericCode(6)
	if err != nil {
		return err
	}
	hash := hashOTP(code)
	expires := time.Now().UTC().Add(m.cfg.EmailOTPTTL)
	if err := m.store.MFA().SetEphemeralOTP(ctx, cfg.ID, hash, expires); err != nil {
		return err
	}
	return m.notifier.SendOTPCode(ctx, em.Address, code)
}

// VerifyCode checks one submitted second-factor code. It is pure on
// failure; success clears ephemeral state (email) or rotates the spent
// code (recovery).
func (m *MFAServiceImpl) VerifyCode(ctx context.Context, user *domain.User, method domain.MFAMethod, code string) (bool, error) {
	now := time.Now().UTC()
	switch method {
	case domain.MFAMethodAuthenticator:
		cfg, err := m.mfaRow(ctx, user.ID, method)
		if err != nil {
			return false, err
		}
		ok, err := m.totp.Verify(cfg.Secret, code, now)
		if err != nil || !ok {
			return false, err
		}
		if err := m.store.MFA().TouchUsed(ctx, cfg.ID, now); err != nil {
			slog.Warn("mfa last_used update failed", "user_id", user.ID, "error", err)
		}
		return true, nil

	case domain.MFAMethodEmail:
		cfg, err := m.mfaRow(ctx, user.ID, method)
		if err != nil {
			return false, err
		}
		if cfg.OTPHash == nil || cfg.ExpiresAt == nil || now.After(*cfg.ExpiresAt) {
			return false, nil
		}
		if subtle.ConstantTimeCompare(hashOTP(code), cfg.OTPHash) != 1 {
			return false, nil
		}
		// One-time use: success requires winning the conditional clear. A
		// racing verification that already consumed the code reads as a
		// plain mismatch.
		consumed, err := m.store.MFA().ConsumeEphemeralOTP(ctx, cfg.ID, cfg.OTPHash, now)
		if err != nil {
			return false, err
		}
		return consumed, nil

	case domain.MFAMethodRecovery:
		return m.verifyRecovery(ctx, user, code, now)

	default:
		return false, domain.ErrMFANotConfigured
	}
}

func (m *MFAServiceImpl) verifyRecovery(ctx context.Context, user *domain.User, code string, now time.Time) (bool, error) {
	codes, err := m.store.MFA().ListUnusedRecoveryCodes(ctx, user.ID)
	if err != nil {
		return false, err
	}
	hash := hashOTP(code)
	for _, rc := range codes {
		if subtle.ConstantTimeCompare(hash, rc.CodeHash) != 1 {
			continue
		}
		// Single use: the matched code is replaced by a fresh one so the
		// pool size stays constant. Losing the conditional rotation means
		// another verification spent this code first.
		fresh, err := randomSecret(recoveryCodeBytes)
		if err != nil {
			return false, err
		}
		rotated, err := m.store.MFA().RotateRecoveryCode(ctx, rc.ID, rc.CodeHash, hashOTP(fresh))
		if err != nil {
			return false, err
		}
		return rotated, nil
	}
	return false, nil
}

func (m *MFAServiceImpl) GenerateRecoveryCodes(ctx context.Context, user *domain.User, n int) ([]string, error) {
	out := make([]string, 0, n)
	err := m.store.WithTx(ctx, func(tx *store.Store) error {
		for i := 0; i < n; i++ {
			code, err := randomSecret(recoveryCodeBytes)
			if err != nil {
				return err
			}
			rc := &domain.RecoveryCode{
				UserID:   user.ID,
				CodeHash: hashOTP(code),
			}
			if err := tx.MFA().CreateRecoveryCode(ctx, rc); err != nil {
				return err
			}
			out = append(out, code)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MFAServiceImpl) SetPreferred(ctx context.Context, user *domain.User, method domain.MFAMethod) error {
	if _, err := m.mfaRow(ctx, user.ID, method); err != nil {
		return err
	}
	return m.store.MFA().SetPreferred(ctx, user.ID, method)
}

func (m *MFAServiceImpl) Methods(ctx context.Context, userID domain.UserID) ([]domain.MultiFactorAuth, error) {
	return m.store.MFA().ListByUser(ctx, userID)
}

func (m *MFAServiceImpl) mfaRow(ctx context.Context, userID domain.UserID, method domain.MFAMethod) (*domain.MultiFactorAuth, error) {
	cfg, err := m.store.MFA().GetByUserAndMethod(ctx, userID, method)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, domain.ErrMFANotConfigured
		}
		return nil, err
	}
	return cfg, nil
}

func hashOTP(code string) []byte {
	sum := sha256.Sum256([]byte(code))
	return sum[:]
}
