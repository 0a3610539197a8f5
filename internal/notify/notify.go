// Package notify sends optional account emails. The flow treats every
// notifier failure as non-fatal: login never breaks on a mail outage.
package notify

import (
	"context"
	"fmt"

	gomail "github.com/go-mail/mail"

	"github.com/Puvox/sign-in-with-essentials/internal/directory"
)

// Notifier is called after a brand-new account is provisioned.
type Notifier interface {
	WelcomeNewUser(ctx context.Context, user *directory.LocalUser) error
}

// SMTPConfig configures the mailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	SiteName string
}

// Mailer sends the welcome mail over SMTP.
type Mailer struct {
	cfg    SMTPConfig
	dialer *gomail.Dialer
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (m *Mailer) WelcomeNewUser(_ context.Context, user *directory.LocalUser) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", user.Email)
	msg.SetHeader("Subject", fmt.Sprintf("Welcome to %s", m.cfg.SiteName))
	msg.SetBody("text/plain", fmt.Sprintf(
		"An account has been created for %s using your sign-in provider.\n"+
			"You can log in again any time with the same provider button.\n", user.Email))
	return m.dialer.DialAndSend(msg)
}
