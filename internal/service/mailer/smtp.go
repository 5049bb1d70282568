package mailer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
)

const (
	defaultSMTPPort    = 587
	defaultSendTimeout = 15 * time.Second
)

type SMTPConfig struct {
	Host     string
	Port     int // 587 if zero
	Username string
	Password string
	From     string

	// Allow plain connection when server does not offer STARTTLS. Local development only
	AllowInsecure bool
}

// SMTPMailer delivers mails through SMTP server with STARTTLS
type SMTPMailer struct {
	from    string
	options []mail.Option
	host    string
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host must not be empty")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender must not be empty")
	}
	if cfg.Port == 0 {
		cfg.Port = defaultSMTPPort
	}

	policy := mail.TLSMandatory
	if cfg.AllowInsecure {
		policy = mail.TLSOpportunistic
	}

	options := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(policy),
		mail.WithTimeout(defaultSendTimeout),
	}
	if cfg.Username != "" {
		options = append(options,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &SMTPMailer{from: cfg.From, options: options, host: cfg.Host}, nil
}

func (m *SMTPMailer) SendResetPassword(ctx context.Context, to string, name string, link string) error {
	msg, err := resetPasswordMessage(m.from, to, name, link)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.host, m.options...)
	if err != nil {
		return fmt.Errorf("error while creating smtp client. Err: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("error while sending mail. Err: %w", err)
	}
	return nil
}
