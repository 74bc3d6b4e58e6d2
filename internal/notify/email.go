package notify

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"

	"github.com/coffer-fs/coffer/internal/domain"
)

// EmailConfig describes the SMTP relay used for code delivery.
type EmailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	// Security is one of "starttls" (default), "ssl" or "none".
	Security string
}

// Email delivers verification codes over SMTP.
type Email struct {
	cfg    EmailConfig
	logger *slog.Logger
}

// NewEmail normalizes the config and returns the channel. An incomplete
// config still constructs; Available reports false.
func NewEmail(cfg EmailConfig, logger *slog.Logger) *Email {
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.Port = strings.TrimSpace(cfg.Port)
	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.From = strings.TrimSpace(cfg.From)
	cfg.Security = strings.ToLower(strings.TrimSpace(cfg.Security))
	if cfg.Security == "" {
		cfg.Security = "starttls"
	}
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Email{cfg: cfg, logger: logger}
}

func (e *Email) Kind() domain.ChannelKind {
	return domain.ChannelEmail
}

func (e *Email) Available() bool {
	return e.cfg.Host != "" && e.cfg.From != ""
}

func (e *Email) Send(address, code string, minutes int) error {
	body := fmt.Sprintf(
		"A password reset was requested for your vault.\n\nVerification code: %s\n\nThe code expires in %d minutes. If you did not request this, ignore the message.",
		code, minutes)
	msg := message(e.cfg.From, address, "Your vault recovery code", body)

	switch e.cfg.Security {
	case "ssl", "smtps":
		return e.sendSSL(address, msg)
	case "none":
		return smtp.SendMail(e.addr(), nil, e.cfg.From, []string{address}, msg)
	default:
		return e.sendStartTLS(address, msg)
	}
}

func (e *Email) sendStartTLS(to string, msg []byte) error {
	addr := e.addr()
	host, _, _ := net.SplitHostPort(addr)

	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return err
		}
	}
	if e.cfg.Username != "" && e.cfg.Password != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	return e.transmit(client, to, msg)
}

func (e *Email) sendSSL(to string, msg []byte) error {
	conn, err := tls.Dial("tcp", e.addr(), &tls.Config{ServerName: e.cfg.Host})
	if err != nil {
		return err
	}
	client, err := smtp.NewClient(conn, e.cfg.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if e.cfg.Username != "" && e.cfg.Password != "" {
		auth := smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}
	return e.transmit(client, to, msg)
}

func (e *Email) transmit(client *smtp.Client, to string, msg []byte) error {
	if err := client.Mail(e.cfg.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (e *Email) addr() string {
	return net.JoinHostPort(e.cfg.Host, e.cfg.Port)
}

func message(from, to, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

var _ Channel = (*Email)(nil)
