package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/dhernos/vestri-auth/internal/config"
)

// Sender delivers messages over SMTP. Secure selects implicit TLS; otherwise
// STARTTLS is used whenever the server offers it.
type Sender struct {
	cfg    config.EmailConfig
	dialer net.Dialer
}

func NewSender(cfg config.EmailConfig) *Sender {
	return &Sender{cfg: cfg, dialer: net.Dialer{Timeout: 10 * time.Second}}
}

func (s *Sender) Send(ctx context.Context, m Message) error {
	if !s.cfg.Enabled() {
		return fmt.Errorf("email is not configured")
	}

	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := s.deliver(client, m); err != nil {
		return err
	}
	return client.Quit()
}

func (s *Sender) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	tlsCfg := &tls.Config{ServerName: s.cfg.Host}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.Secure {
		conn, err = (&tls.Dialer{NetDialer: &s.dialer, Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = s.dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}

	if !s.cfg.Secure {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				client.Close()
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	return client, nil
}

func (s *Sender) deliver(client *smtp.Client, m Message) error {
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(m.To); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMIME(s.cfg.From, m)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}

func buildMIME(from string, m Message) []byte {
	body := m.HTML
	contentType := "text/html"
	if strings.TrimSpace(body) == "" {
		body = m.Text
		contentType = "text/plain"
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", m.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", m.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: %s; charset=\"UTF-8\"\r\n\r\n", contentType))
	msg.WriteString(body)
	return []byte(msg.String())
}
