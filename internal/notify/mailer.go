package notify

import (
	"context"
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// Mailer sends over SMTP. With no credentials configured it runs in
// disabled mode: sends are logged and reported as successful so dev
// environments can run the sweep without a mail account.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func NewMailer(cfg SMTPConfig) *Mailer {
	if cfg.User == "" || cfg.Pass == "" {
		log.Println("SMTP credentials not set; email dispatch disabled")
		return &Mailer{dialer: nil, from: cfg.From}
	}

	return &Mailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:   cfg.From,
	}
}

func (m *Mailer) Send(ctx context.Context, to, subject, templateID string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if m.dialer == nil {
		log.Printf("email dispatch disabled; would send %q to %s (template %s)", subject, to, templateID)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", renderRecoveryBody(templateID, data))

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email to %s: %w", to, err)
	}
	return nil
}
