package notify

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"openclaw/internal/config"
)

// ErrMailDisabled is returned when email delivery is not configured.
var ErrMailDisabled = errors.New("mail delivery is not configured")

// sendTimeout bounds one SMTP conversation end to end.
const sendTimeout = 15 * time.Second

// Mailer submits mail through a configured SMTP relay using STARTTLS and
// PLAIN authentication.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewMailer returns a Mailer, or nil when the smtp section is disabled.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	if !cfg.Enabled {
		return nil
	}
	from := cfg.From
	if from == "" {
		from = cfg.Username
	}
	return &Mailer{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     from,
	}
}

// Send delivers one plain-text message. The error is descriptive but safe
// to log; it never contains credentials.
func (m *Mailer) Send(to, subject, body string) error {
	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))

	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", m.from)
	fmt.Fprintf(&sb, "To: %s\r\n", to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", subject)
	sb.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(body)

	c, err := smtp.DialStartTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	defer c.Close()

	c.CommandTimeout = sendTimeout
	c.SubmissionTimeout = sendTimeout

	if m.username != "" {
		if err := c.Auth(sasl.NewPlainClient("", m.username, m.password)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.SendMail(m.from, []string{to}, strings.NewReader(sb.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return c.Quit()
}
