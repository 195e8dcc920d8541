package accounts

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
)

// Mailer delivers account lifecycle mail. Implementations must be safe for
// concurrent use.
type Mailer interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
}

// SMTPConfig holds connection settings for the outbound mail server.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	BaseURL   string
}

var verificationTmpl = template.Must(template.New("verification").Parse(
	`From: {{.FromName}} <{{.FromEmail}}>
To: {{.To}}
Subject: Verify your email

Welcome! Confirm your email address to activate your account:

{{.BaseURL}}/verify-email?token={{.Token}}

If you did not create an account, ignore this message.
`))

var passwordResetTmpl = template.Must(template.New("reset").Parse(
	`From: {{.FromName}} <{{.FromEmail}}>
To: {{.To}}
Subject: Reset your password

A password reset was requested for your account. The link expires in one hour:

{{.BaseURL}}/reset-password?token={{.Token}}

If you did not request this, ignore this message.
`))

type mailData struct {
	FromName  string
	FromEmail string
	To        string
	Token     string
	BaseURL   string
}

// SMTPMailer sends plain-text mail over SMTP.
type SMTPMailer struct {
	cfg  SMTPConfig
	auth smtp.Auth
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{cfg: cfg, auth: auth}
}

func (m *SMTPMailer) SendVerification(_ context.Context, to, token string) error {
	return m.send(to, token, verificationTmpl)
}

func (m *SMTPMailer) SendPasswordReset(_ context.Context, to, token string) error {
	return m.send(to, token, passwordResetTmpl)
}

func (m *SMTPMailer) send(to, token string, tmpl *template.Template) error {
	var buf bytes.Buffer
	data := mailData{
		FromName:  m.cfg.FromName,
		FromEmail: m.cfg.FromEmail,
		To:        to,
		Token:     token,
		BaseURL:   m.cfg.BaseURL,
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render mail: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := smtp.SendMail(addr, m.auth, m.cfg.FromEmail, []string{to}, buf.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
