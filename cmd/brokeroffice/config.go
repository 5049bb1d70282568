package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/brokeroffice/internal/logger"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Address of prometheus metrics listener. Metrics are not served if empty
	MetricsAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key to sign JWT tokens with
	SecretKey string

	// Environment (dev, prod)
	Environment string

	// Token settings. Zero values mean defaults of token manager and auth service
	TokenIssuer   string
	TokenAudience string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RememberTTL   time.Duration
	ResetTTL      time.Duration
	TokenLeeway   time.Duration

	// Shared blacklist of revoked access tokens. In-memory one is used if empty
	RedisURL string

	// Set 'Secure' attribute on refresh cookie
	CookieSecure bool

	// Reset password link base per client type
	ResetURLWeb    string
	ResetURLMobile string

	// Reset links are logged instead of sent if host is empty
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:     defaultLoggingLevel,
		ListenAddr:   defaultListenAddr,
		Environment:  defaultEnvironment,
		CookieSecure: true,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			i, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = i
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":       setString(&c.ListenAddr),
		"METRICS_ADDRESS":   setString(&c.MetricsAddr),
		"DATABASE_URI":      setString(&c.DatabaseDSN),
		"SECRET_KEY":        setString(&c.SecretKey),
		"LOG_LEVEL":         setString(&c.LogLevel),
		"ENVIRONMENT":       setString(&c.Environment),
		"TOKEN_ISSUER":      setString(&c.TokenIssuer),
		"TOKEN_AUDIENCE":    setString(&c.TokenAudience),
		"ACCESS_TOKEN_TTL":  setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL": setDuration(&c.RefreshTTL),
		"REMEMBER_ME_TTL":   setDuration(&c.RememberTTL),
		"RESET_TOKEN_TTL":   setDuration(&c.ResetTTL),
		"TOKEN_LEEWAY":      setDuration(&c.TokenLeeway),
		"REDIS_URL":         setString(&c.RedisURL),
		"COOKIE_SECURE":     setBool(&c.CookieSecure),
		"RESET_URL_WEB":     setString(&c.ResetURLWeb),
		"RESET_URL_MOBILE":  setString(&c.ResetURLMobile),
		"SMTP_HOST":         setString(&c.SMTPHost),
		"SMTP_PORT":         setInt(&c.SMTPPort),
		"SMTP_USERNAME":     setString(&c.SMTPUsername),
		"SMTP_PASSWORD":     setString(&c.SMTPPassword),
		"SMTP_FROM":         setString(&c.SMTPFrom),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s. Err: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("brokeroffice", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.MetricsAddr, "metrics-address", "m", c.MetricsAddr, "Metrics listen address (disabled if empty)")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.TokenIssuer, "token-issuer", c.TokenIssuer, "Issuer of JWT tokens")
	fs.StringVar(&c.TokenAudience, "token-audience", c.TokenAudience, "Audience of JWT tokens")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.DurationVar(&c.RememberTTL, "remember-ttl", c.RememberTTL, "Refresh token lifetime with 'remember me'")
	fs.DurationVar(&c.ResetTTL, "reset-ttl", c.ResetTTL, "Password reset token lifetime")
	fs.DurationVar(&c.TokenLeeway, "token-leeway", c.TokenLeeway, "Allowed clock skew on token expiry")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis url for token blacklist (in-memory if empty)")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Set 'Secure' attribute on refresh cookie")
	fs.StringVar(&c.ResetURLWeb, "reset-url-web", c.ResetURLWeb, "Reset password link for web client")
	fs.StringVar(&c.ResetURLMobile, "reset-url-mobile", c.ResetURLMobile, "Reset password link for mobile client")
	fs.StringVar(&c.SMTPHost, "smtp-host", c.SMTPHost, "SMTP server host (links are logged if empty)")
	fs.IntVar(&c.SMTPPort, "smtp-port", c.SMTPPort, "SMTP server port")
	fs.StringVar(&c.SMTPUsername, "smtp-username", c.SMTPUsername, "SMTP username")
	fs.StringVar(&c.SMTPPassword, "smtp-password", c.SMTPPassword, "SMTP password")
	fs.StringVar(&c.SMTPFrom, "smtp-from", c.SMTPFrom, "Sender of reset password mails")

	return fs.Parse(args)
}
