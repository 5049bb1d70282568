package mailer

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/brokeroffice/internal/logger"
)

func Test_resetPasswordMessage(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		link := "http://localhost:3000/reset-password?token=abc_DEF-123"

		msg, err := resetPasswordMessage("office@broker.test", "jdoe@broker.test", "Jane Doe", link)
		require.NoError(t, err)

		buf := &bytes.Buffer{}
		_, err = msg.WriteTo(buf)
		require.NoError(t, err)
		raw := buf.String()

		assert.Contains(t, raw, "office@broker.test")
		assert.Contains(t, raw, "jdoe@broker.test")
		assert.Contains(t, raw, "Subject: Password reset")
		assert.Contains(t, raw, "text/html")
		assert.Contains(t, raw, `href="`+link+`"`)
		assert.Contains(t, raw, "Hello Jane Doe,")
		assert.NotContains(t, raw, "Hello jdoe@broker.test")
	})

	t.Run("no name", func(t *testing.T) {
		msg, err := resetPasswordMessage("office@broker.test", "jdoe@broker.test", "", "http://x")
		require.NoError(t, err)

		buf := &bytes.Buffer{}
		_, err = msg.WriteTo(buf)
		require.NoError(t, err)

		assert.Contains(t, buf.String(), "Hello,")
	})

	t.Run("invalid addresses", func(t *testing.T) {
		_, err := resetPasswordMessage("not an address", "jdoe@broker.test", "", "http://x")
		require.Error(t, err)

		_, err = resetPasswordMessage("office@broker.test", "not an address", "", "http://x")
		require.Error(t, err)
	})
}

func Test_NewSMTPMailer(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.broker.test", From: "office@broker.test"})

		require.NoError(t, err)
		assert.Equal(t, "smtp.broker.test", m.host)
		assert.Len(t, m.options, 3, "no auth options without username")
	})

	t.Run("with auth", func(t *testing.T) {
		m, err := NewSMTPMailer(SMTPConfig{Host: "smtp.broker.test", From: "office@broker.test", Username: "u", Password: "p"})

		require.NoError(t, err)
		assert.Len(t, m.options, 6)
	})

	t.Run("required fields", func(t *testing.T) {
		_, err := NewSMTPMailer(SMTPConfig{From: "office@broker.test"})
		require.Error(t, err)

		_, err = NewSMTPMailer(SMTPConfig{Host: "smtp.broker.test"})
		require.Error(t, err)
	})
}

type loggerFunc func(level slog.Level, msg string, args ...any)

func (f loggerFunc) Debug(msg string, args ...any) { f(slog.LevelDebug, msg, args...) }
func (f loggerFunc) Info(msg string, args ...any)  { f(slog.LevelInfo, msg, args...) }
func (f loggerFunc) Warn(msg string, args ...any)  { f(slog.LevelWarn, msg, args...) }
func (f loggerFunc) Error(msg string, args ...any) { f(slog.LevelError, msg, args...) }
func (f loggerFunc) With(args ...any) logger.Logger { return f }
func (f loggerFunc) WithGroup(string) logger.Logger { return f }

func Test_LogMailer(t *testing.T) {
	var logged []any
	l := loggerFunc(func(_ slog.Level, msg string, args ...any) {
		logged = append(logged, msg)
		logged = append(logged, args...)
	})

	err := NewLogMailer(l).SendResetPassword(t.Context(), "jdoe@broker.test", "Jane Doe", "http://x/reset?token=secret-token")

	require.NoError(t, err)
	require.NotEmpty(t, logged)
	assert.Contains(t, logged, "jdoe@broker.test")
	for _, v := range logged {
		s, _ := v.(string)
		assert.NotContains(t, s, "secret-token", "reset token must never be logged")
	}
}
