// Package mailer sends dead-letter alert emails via SMTP. Adapted from
// caasmo/restinpieces/mail.Mailer: same mailyak/v3 + net/smtp connection
// setup and ctx-bounded Send goroutine, generalized from "email
// verification" content to "delivery give-up" content.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"

	"github.com/domodwyer/mailyak/v3"

	"github.com/caasmo/newsletterd/notify"
)

// Options configures the Mailer's SMTP connection.
type Options struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	To          string
	AuthMethod  string // "plain" (default), "login", "cram-md5", "none"
	UseTLS      bool
}

// Mailer implements notify.Notifier over SMTP.
type Mailer struct {
	opts Options
}

func New(opts Options) *Mailer {
	return &Mailer{opts: opts}
}

func (m *Mailer) auth() smtp.Auth {
	switch m.opts.AuthMethod {
	case "login":
		return &loginAuth{username: m.opts.Username, password: m.opts.Password}
	case "cram-md5":
		return smtp.CRAMMD5Auth(m.opts.Username, m.opts.Password)
	case "none":
		return nil
	default:
		return smtp.PlainAuth("", m.opts.Username, m.opts.Password, m.opts.Host)
	}
}

// Send implements notify.Notifier. It blocks on the SMTP round trip itself
// but honors ctx cancellation while waiting; worker calls this from a
// goroutine of its own so the queue loop is never stalled by it.
func (m *Mailer) Send(ctx context.Context, dl notify.DeadLetter) error {
	mail, err := mailyak.NewWithTLS(fmt.Sprintf("%s:%d", m.opts.Host, m.opts.Port), m.auth(), &tls.Config{
		ServerName:         m.opts.Host,
		InsecureSkipVerify: !m.opts.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("mailer: create mail client: %w", err)
	}

	mail.To(m.opts.To)
	mail.From(m.opts.From)
	mail.Subject(fmt.Sprintf("delivery give-up: issue %s", dl.NewsletterIssueID))
	mail.Plain().Set(fmt.Sprintf(
		"newsletter issue %s gave up delivering to %s after %d attempts.\n\nlast error: %s\n",
		dl.NewsletterIssueID, dl.SubscriberEmail, dl.AttemptsMade, dl.LastError))

	done := make(chan error, 1)
	go func() { done <- mail.Send() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mailer: send dead-letter alert: %w", err)
		}
	}
	return nil
}
