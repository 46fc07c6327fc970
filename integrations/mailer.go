package integrations

import (
	"context"
	"fmt"

	"fieldcrm/config"

	"gopkg.in/gomail.v2"
)

// Mailer sends HTML mail over SMTP
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer returns nil when no SMTP host is configured.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	if cfg.Host == "" {
		return nil
	}
	return &Mailer{cfg: cfg}
}

func (m *Mailer) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	if m.cfg.FromName != "" {
		msg.SetAddressHeader("From", m.cfg.FromEmail, m.cfg.FromName)
	} else {
		msg.SetHeader("From", m.cfg.FromEmail)
	}
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}
	return nil
}
