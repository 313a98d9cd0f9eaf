package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dashpad/authd/pkg/logger"
	"github.com/dashpad/authd/pkg/mail"
	"github.com/dashpad/authd/pkg/metrics"
)

const (
	purposeRegister = "register"
	purposeEmail    = "email"
	purposeReset    = "reset"
)

// OTPNotifier delivers one-time codes to users.
type OTPNotifier interface {
	SendEmailVerification(ctx context.Context, to string, otp string) error
	SendPasswordReset(ctx context.Context, to []string, otp string) error
}

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html>
<body style="background-color:#f2f2f2;padding:20px;font-family:sans-serif">
  <div style="background-color:#ffffff;padding:20px">
    <p style="font-size:20px;font-weight:600;color:#1a1a1a">{{.Heading}}</p>
    <p style="font-size:16px;color:#1a1a1a">The one-time password (OTP) to complete your action is:</p>
    <p style="font-size:20px;font-weight:600;color:red">{{.OTP}}</p>
    <p style="font-size:16px;color:#1a1a1a"><strong>Please note:</strong> Do not share this OTP with anyone.</p>
  </div>
  <div style="background-color:#1a1a1a;padding:15px 20px;text-align:center;color:#cccccc;font-size:14px">
    This communication is confidential and is directed to and for the use of the addressee only.
  </div>
</body>
</html>`))

// MailNotifier renders OTP emails and hands them to a mail transport.
type MailNotifier struct {
	mailer mail.Mailer
	log    *zap.Logger
}

// NewMailNotifier constructs a MailNotifier. A nil mailer yields a notifier that drops every message.
func NewMailNotifier(mailer mail.Mailer) *MailNotifier {
	return &MailNotifier{
		mailer: mailer,
		log:    logger.WithModule("notifier"),
	}
}

// SendEmailVerification mails an OTP confirming ownership of an address.
func (n *MailNotifier) SendEmailVerification(ctx context.Context, to string, otp string) error {
	return n.send(ctx, []string{to}, fmt.Sprintf("OTP for email verification - %s", otp), "Verify your email", otp)
}

// SendPasswordReset mails a password reset OTP to each recipient.
func (n *MailNotifier) SendPasswordReset(ctx context.Context, to []string, otp string) error {
	var errs error
	for _, rcpt := range to {
		if err := n.send(ctx, []string{rcpt}, fmt.Sprintf("OTP for password reset - %s", otp), "Reset your password", otp); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (n *MailNotifier) send(ctx context.Context, to []string, subject, heading, otp string) error {
	if n.mailer == nil {
		return nil
	}

	var html bytes.Buffer
	if err := otpTemplate.Execute(&html, struct{ Heading, OTP string }{heading, otp}); err != nil {
		return fmt.Errorf("notifier: render template: %w", err)
	}

	err := n.mailer.Send(ctx, mail.Message{
		To:       to,
		Subject:  subject,
		Body:     fmt.Sprintf("%s\n\nThe one-time password (OTP) to complete your action is: %s\n\nDo not share this OTP with anyone.\n", heading, otp),
		HTMLBody: html.String(),
	})
	if errors.Is(err, mail.ErrDeliveryDisabled) {
		n.log.Debug("mail delivery disabled, notification dropped",
			zap.String("subject_kind", heading), logger.MaskedEmails("recipients", to))
		return nil
	}
	return err
}

// notify runs a delivery after state has been persisted. Failures never roll back
// the flow; they are logged and counted.
func notify(ctx context.Context, log *zap.Logger, purpose string, send func(context.Context) error) {
	if err := send(ctx); err != nil {
		metrics.NotificationFailures.WithLabelValues(purpose).Inc()
		log.Warn("otp notification failed", zap.String("purpose", purpose), zap.Error(err))
	}
}
