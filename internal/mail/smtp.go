package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"natours/internal/config"
	"natours/internal/logger"
)

// SMTP delivers through a relay such as Mailtrap in development.
type SMTP struct {
	cfg  config.EmailConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg config.EmailConfig) *SMTP {
	return &SMTP{cfg: cfg, send: smtp.SendMail}
}

// New picks SMTP when a host is configured and LogMailer otherwise.
func New(cfg config.EmailConfig) Mailer {
	if cfg.Host == "" {
		logger.Warn("mail_log_only", nil)
		return LogMailer{}
	}
	return NewSMTP(cfg)
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	if err := s.send(addr, auth, s.cfg.From, []string{msg.To}, s.render(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	logger.Info("mail_sent", map[string]any{"to": msg.To, "subject": msg.Subject})
	return nil
}

func (s *SMTP) render(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: Natours <%s>\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Text, "\n", "\r\n"))
	return b.Bytes()
}
