package outbox

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"owlery.ink/envcfg"
)

// Envelope is the SMTP envelope computed from a sidecar's cached
// headers: MAIL FROM plus the ordered RCPT TO set.
type Envelope struct {
	From       string
	Recipients []string
}

// Transport relays a fully formed message. Implementations must
// tolerate duplicate sends; a crash between artifact moves makes the
// engine re-attempt.
type Transport interface {
	Send(msg []byte, env Envelope) error
}

// SMTPRelay submits messages to the configured relay host.
type SMTPRelay struct {
	host     string
	port     uint16
	username string
	password string
	startTLS bool
}

func NewSMTPRelay(cfg envcfg.Config) *SMTPRelay {
	return &SMTPRelay{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		startTLS: cfg.SMTPStartTLS,
	}
}

func (r *SMTPRelay) Send(msg []byte, env Envelope) error {
	if len(env.Recipients) == 0 {
		return fmt.Errorf("outbox: envelope has no recipients")
	}
	addr := net.JoinHostPort(r.host, strconv.Itoa(int(r.port)))
	c, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("outbox: dial %s: %w", addr, err)
	}
	defer c.Close()

	if r.startTLS {
		if err := c.StartTLS(&tls.Config{ServerName: r.host}); err != nil {
			return fmt.Errorf("outbox: starttls: %w", err)
		}
	}
	if r.username != "" && r.password != "" {
		if err := c.Auth(sasl.NewPlainClient("", r.username, r.password)); err != nil {
			return fmt.Errorf("outbox: auth: %w", err)
		}
	}
	if err := c.Mail(env.From, nil); err != nil {
		return fmt.Errorf("outbox: mail from: %w", err)
	}
	for _, rcpt := range env.Recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("outbox: rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("outbox: data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("outbox: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("outbox: %w", err)
	}
	return c.Quit()
}
