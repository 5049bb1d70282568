package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nkiryanov/brokeroffice/internal/db"
	"github.com/nkiryanov/brokeroffice/internal/handlers"
	"github.com/nkiryanov/brokeroffice/internal/logger"
	"github.com/nkiryanov/brokeroffice/internal/metrics"
	"github.com/nkiryanov/brokeroffice/internal/repository"
	"github.com/nkiryanov/brokeroffice/internal/repository/memory"
	"github.com/nkiryanov/brokeroffice/internal/repository/postgres"
	"github.com/nkiryanov/brokeroffice/internal/repository/redis"
	"github.com/nkiryanov/brokeroffice/internal/service/auth"
	"github.com/nkiryanov/brokeroffice/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/brokeroffice/internal/service/mailer"
	"github.com/nkiryanov/brokeroffice/internal/service/user"
)

const shutdownTimeout = 5 * time.Second

type mailSender interface {
	SendResetPassword(ctx context.Context, to string, name string, link string) error
}

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	// Prometheus scrape endpoint. Kept off the api listener
	MetricsAddr    string
	MetricsHandler http.Handler

	logger  logger.Logger
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (app *ServerApp, err error) {
	app = &ServerApp{ListenAddr: c.ListenAddr, MetricsAddr: c.MetricsAddr}

	// Release what was opened if initialization fails halfway
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	// Initialize logger
	app.logger, err = logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return app, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Token manager goes first: no reason to touch db with bad secret
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:   c.SecretKey,
		Issuer:      c.TokenIssuer,
		Audience:    c.TokenAudience,
		AccessTTL:   c.AccessTTL,
		RefreshTTL:  c.RefreshTTL,
		RememberTTL: c.RememberTTL,
		Leeway:      c.TokenLeeway,
	})
	if err != nil {
		return app, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return app, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	var blacklist repository.BlacklistRepo
	if c.RedisURL != "" {
		client, err := redis.Connect(ctx, c.RedisURL)
		if err != nil {
			return app, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		app.closers = append(app.closers, func() { _ = client.Close() })
		blacklist = redis.NewBlacklist(client)
	} else {
		app.logger.Warn("REDIS_URL is not set, revoked tokens are kept in memory of this instance")
		blacklist = memory.NewBlacklist()
	}

	var mail mailSender
	if c.SMTPHost != "" {
		mail, err = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:          c.SMTPHost,
			Port:          c.SMTPPort,
			Username:      c.SMTPUsername,
			Password:      c.SMTPPassword,
			From:          c.SMTPFrom,
			AllowInsecure: c.Environment == logger.EnvDevelopment,
		})
		if err != nil {
			return app, fmt.Errorf("error while creating smtp mailer. Err: %w", err)
		}
	} else {
		app.logger.Warn("SMTP_HOST is not set, reset password mails are logged only")
		mail = mailer.NewLogMailer(app.logger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(registry)
	if err != nil {
		return app, fmt.Errorf("error while registering metrics. Err: %w", err)
	}

	// Initialize services
	userService := user.NewService(auth.DefaultHasher, storage)
	authService, err := auth.NewService(auth.Config{
		ResetTokenTTL: c.ResetTTL,
		ResetURLs: map[string]string{
			auth.ResetTargetWeb:    c.ResetURLWeb,
			auth.ResetTargetMobile: c.ResetURLMobile,
		},
		InsecureCookie: !c.CookieSecure,
		Logger:         app.logger,
		Metrics:        m,
	}, tokenManager, storage, blacklist, mail)
	if err != nil {
		return app, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(authService, userService, m, app.logger)
	app.MetricsHandler = m.Handler()

	return app, nil
}

// Close releases connections in reverse order of opening
func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http servers and closes them gracefully on context cancellation.
// Metrics server is started only if MetricsAddr is set; failure of any server stops both
func (s *ServerApp) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsErr := make(chan error, 1)
	if s.MetricsAddr != "" {
		go func() {
			err := s.serve(ctx, "metrics", s.MetricsAddr, s.MetricsHandler)
			cancel()
			metricsErr <- err
		}()
	} else {
		metricsErr <- http.ErrServerClosed
	}

	err := s.serve(ctx, "api", s.ListenAddr, s.Handler)
	cancel()

	if mErr := <-metricsErr; errors.Is(err, http.ErrServerClosed) && !errors.Is(mErr, http.ErrServerClosed) {
		return fmt.Errorf("metrics server error. Err: %w", mErr)
	}
	return err
}

func (s *ServerApp) serve(ctx context.Context, name string, addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...", "server", name)
		}
		s.logger.Info("HTTP server stopped", "server", name)
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "server", name, "address", addr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
