package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/dashpad/authd/pkg/mail"
)

const (
	EmailProviderSMTP = "smtp"
	EmailProviderSES  = "ses"
)

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// SESSettings converts EmailConfig to the SES transport representation.
func (c EmailConfig) SESSettings() mail.SESSettings {
	return mail.SESSettings{
		Enabled:         c.SES.Enabled,
		Region:          c.SES.Region,
		AccessKeyID:     c.SES.AccessKeyID,
		SecretAccessKey: c.SES.SecretAccessKey,
		From:            c.From,
		Endpoint:        c.SES.Endpoint,
	}
}

// NewMailer builds the transport selected by email.provider.
func (c EmailConfig) NewMailer(ctx context.Context) (mail.Mailer, error) {
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "", EmailProviderSMTP:
		return mail.NewSMTPMailer(c.SMTPSettings())
	case EmailProviderSES:
		return mail.NewSESMailer(ctx, c.SESSettings())
	default:
		return nil, fmt.Errorf("email: unsupported provider %q", c.Provider)
	}
}
