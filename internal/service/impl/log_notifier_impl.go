package impl

import (
	"context"
	"log/slog"
)

// LogNotifierImpl stands in where no mail transport is configured. It
// never logs the secret material itself, only that a send happened.
type LogNotifierImpl struct{}

func NewLogNotifierImpl() *LogNotifierImpl { return &LogNotifierImpl{} }

func (LogNotifierImpl) SendMagicLink(ctx context.Context, to, url string) error {
	slog.Info("magic link dispatched", "to", to)
	return nil
}

func (LogNotifierImpl) SendOTPCode(ctx context.Context, to, code string) error {
	slog.Info("otp code dispatched", "to", to)
	return nil
}

func (LogNotifierImpl) SendDomainVerification(ctx context.Context, to, host, token string) error {
	slog.Info("domain verification dispatched", "to", to, "host", host)
	return nil
}
