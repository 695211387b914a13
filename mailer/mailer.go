package mailer

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/template/django/v3"
	"gopkg.in/gomail.v2"

	auth "github.com/goliatone/go-library-auth"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	passwordResetTemplate     = "password_reset"
	emailVerificationTemplate = "email_verification"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	// BaseURL prefixes the links put in outgoing mail.
	BaseURL string
}

// Configured reports whether mail can be delivered.
func (c Config) Configured() bool {
	return c.Host != "" && c.From != ""
}

// Sender delivers composed messages. *gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPMailer delivers password reset and verification tokens by mail.
type SMTPMailer struct {
	cfg    Config
	sender Sender
	views  *django.Engine
	logger auth.Logger
}

var _ auth.Mailer = (*SMTPMailer)(nil)

func New(cfg Config) *SMTPMailer {
	_, logger := auth.ResolveLogger("auth.mailer", nil, nil)
	return &SMTPMailer{
		cfg:    cfg,
		sender: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		views:  newViews(),
		logger: logger,
	}
}

func newViews() *django.Engine {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(fmt.Sprintf("mailer templates: %v", err))
	}
	return django.NewPathForwardingFileSystem(http.FS(sub), ".", ".html")
}

func (m *SMTPMailer) WithLogger(logger auth.Logger) *SMTPMailer {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *SMTPMailer) WithSender(sender Sender) *SMTPMailer {
	if sender != nil {
		m.sender = sender
	}
	return m
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, to, username, token string) error {
	body, err := m.render(passwordResetTemplate, map[string]any{
		"username": username,
		"link":     m.link("/api/auth/reset-password/", token),
		"ttl":      "10 minutes",
	})
	if err != nil {
		return err
	}

	return m.send(ctx, "password_reset", to, "Password reset", body)
}

func (m *SMTPMailer) SendEmailVerification(ctx context.Context, to, username, token string) error {
	body, err := m.render(emailVerificationTemplate, map[string]any{
		"username": username,
		"link":     m.link("/api/auth/verify-email/", token),
		"ttl":      "24 hours",
	})
	if err != nil {
		return err
	}

	return m.send(ctx, "email_verification", to, "Confirm your email", body)
}

// render fills the named template. Values are HTML escaped.
func (m *SMTPMailer) render(name string, data map[string]any) (string, error) {
	buf := new(bytes.Buffer)
	if err := m.views.Render(buf, name, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}

func (m *SMTPMailer) send(ctx context.Context, kind, to, subject, body string) error {
	if !m.cfg.Configured() {
		m.logger.Warn("email config missing, skip mail", "kind", kind, "to", to)
		return nil
	}

	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("send %s email: empty recipient", kind)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %s email: %w", kind, err)
	}

	m.logger.Info("email sent", "kind", kind, "to", to)
	return nil
}

func (m *SMTPMailer) link(path, token string) string {
	base := strings.TrimRight(m.cfg.BaseURL, "/")
	return base + path + url.PathEscape(token)
}
