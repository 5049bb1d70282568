package mailer

import (
	"context"
	"fmt"
	"html/template"

	"github.com/wneessen/go-mail"

	"github.com/nkiryanov/brokeroffice/internal/logger"
)

const resetPasswordSubject = "Password reset"

var resetPasswordBody = template.Must(template.New("reset").Parse(`<html>
<body>
<p>Hello{{ with .Name }} {{ . }}{{ end }},</p>
<p>We received a request to reset your password. Follow the link below to set a new one:</p>
<p><a href="{{ .Link }}">Reset password</a></p>
<p>The link expires soon and can be used once. If you did not request a reset, ignore this email.</p>
</body>
</html>`))

// LogMailer does not send anything, it only records that a mail would be sent.
// The link is never logged, it carries the reset token
type LogMailer struct {
	logger logger.Logger
}

func NewLogMailer(l logger.Logger) *LogMailer {
	return &LogMailer{logger: l}
}

func (m *LogMailer) SendResetPassword(_ context.Context, to string, _ string, _ string) error {
	m.logger.Warn("SMTP is not configured, reset password mail is not sent", "to", to)
	return nil
}

// Greeting falls back to plain "Hello" if name is empty
func resetPasswordMessage(from string, to string, name string, link string) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithEncoding(mail.NoEncoding))

	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address. Err: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address. Err: %w", err)
	}
	msg.Subject(resetPasswordSubject)
	msg.SetDate()
	msg.SetMessageID()

	data := struct {
		Name string
		Link template.URL
	}{Name: name, Link: template.URL(link)}
	if err := msg.SetBodyHTMLTemplate(resetPasswordBody, data); err != nil {
		return nil, fmt.Errorf("error while rendering reset mail. Err: %w", err)
	}

	return msg, nil
}
