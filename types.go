package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock returns the current time. Tests inject fixed clocks.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// Notifier delivers out-of-band messages carrying one-time tokens.
type Notifier interface {
	SendEmailVerification(ctx context.Context, user *User, token *EmailVerificationToken) error
	SendPasswordReset(ctx context.Context, user *User, token *PasswordResetToken) error
}

type logNotifier struct {
	logger Logger
}

func (n logNotifier) SendEmailVerification(_ context.Context, user *User, token *EmailVerificationToken) error {
	n.logger.Info("email verification for %s expires at %s", user.Email, token.ExpiresAt.Format(time.RFC3339))
	return nil
}

func (n logNotifier) SendPasswordReset(_ context.Context, user *User, token *PasswordResetToken) error {
	n.logger.Info("password reset for %s expires at %s", user.Email, token.ExpiresAt.Format(time.RFC3339))
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
