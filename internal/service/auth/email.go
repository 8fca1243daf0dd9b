// internal/service/auth/email.go
package auth

import (
	"context"
	"fmt"
	"html"
	"time"

	"dashboard-service/internal/service/email"

	"go.uber.org/zap"
)

// CodeDelivery hands reset codes and notices to the out-of-band channel.
type CodeDelivery interface {
	DeliverResetCode(ctx context.Context, to, name, code string, expiresAt time.Time) error
	NotifyPasswordChanged(ctx context.Context, to, name string) error
}

// EmailHelper handles email template generation and sending
type EmailHelper struct {
	sender email.Sender
	logger *zap.Logger
	async  bool
}

// NewEmailHelper returns a helper that sends in the background so request
// latency does not depend on the SMTP server.
func NewEmailHelper(sender email.Sender, logger *zap.Logger) *EmailHelper {
	return &EmailHelper{sender: sender, logger: logger, async: true}
}

// ========== Password Reset ==========

// ResetCodeEmail builds the email carrying a one-time reset code.
func (h *EmailHelper) ResetCodeEmail(name, code string, validFor time.Duration) (string, string) {
	subject := "Your password reset code"
	body := fmt.Sprintf(`
		<h2>Password reset</h2>
		<p>Hello %s,</p>
		<p>Use this code to reset your dashboard password:</p>
		<div class="code">%s</div>
		<p>The code expires in %d minutes and can be used once.</p>
		<p>If you did not request a reset you can ignore this email.</p>
	`, html.EscapeString(name), code, int(validFor.Round(time.Minute).Minutes()))

	return subject, body
}

func (h *EmailHelper) DeliverResetCode(ctx context.Context, to, name, code string, expiresAt time.Time) error {
	subject, body := h.ResetCodeEmail(name, code, time.Until(expiresAt))
	return h.send(to, subject, body, "password reset code")
}

// ========== Password Changed Notification ==========

// PasswordChangedEmail notifies user of password change
func (h *EmailHelper) PasswordChangedEmail(name string) (string, string) {
	subject := "Your password was changed"
	body := fmt.Sprintf(`
		<h2>Password changed</h2>
		<p>Hello %s,</p>
		<p>Your dashboard password has been changed and every existing session was signed out.</p>
		<p>If you did not make this change, contact an administrator immediately.</p>
	`, html.EscapeString(name))

	return subject, body
}

func (h *EmailHelper) NotifyPasswordChanged(ctx context.Context, to, name string) error {
	subject, body := h.PasswordChangedEmail(name)
	return h.send(to, subject, body, "password changed notification")
}

func (h *EmailHelper) send(to, subject, body, kind string) error {
	deliver := func() error {
		if err := h.sender.Send(to, subject, body); err != nil {
			h.logger.Error("failed to send "+kind,
				zap.String("email", to),
				zap.Error(err),
			)
			return err
		}
		h.logger.Info(kind+" sent", zap.String("email", to))
		return nil
	}

	if !h.async {
		return deliver()
	}
	go func() { _ = deliver() }()
	return nil
}
