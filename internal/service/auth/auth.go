package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/logger"
	"github.com/nkiryanov/brokeroffice/internal/models"
	"github.com/nkiryanov/brokeroffice/internal/repository"
)

const (
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshToken"
	defaultResetTokenTTL     = 10 * time.Minute

	resetTokenLength = 32 // random bytes before encoding
)

// Where the reset link leads to
const (
	ResetTargetWeb    = "web"
	ResetTargetMobile = "mobile"
)

var defaultResetURLs = map[string]string{
	ResetTargetWeb:    "http://localhost:3000/reset-password",
	ResetTargetMobile: "mobile://reset-password",
}

// Operation outcomes reported to the observer
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type tokenManager interface {
	IssueAccess(user models.User) (models.IssuedToken, error)
	IssueRefresh(user models.User, remember bool) (models.IssuedToken, error)

	// Must return apperrors.ErrTokenInvalid if token is not valid for any reason
	ParseAccess(token string) (models.AccessClaims, error)
	ParseRefresh(token string) (models.RefreshClaims, error)
}

type mailer interface {
	// Name is used in greeting only
	SendResetPassword(ctx context.Context, to string, name string, link string) error
}

type observer interface {
	ObserveAuth(operation string, outcome string)
}

type Config struct {
	// Hasher to use during login and password reset
	// BcryptHasher if not set
	Hasher PasswordHasher

	// Lifetime of password reset token
	ResetTokenTTL time.Duration

	// Base url of the reset link per target. Token is added as 'token' query parameter
	// Defaults are used for missing targets
	ResetURLs map[string]string

	// Header and scheme of access token. Cookie with refresh token
	AccessHeaderName  string
	AccessAuthScheme  string
	RefreshCookieName string

	// Drop 'Secure' attribute of refresh cookie. Never set in production
	InsecureCookie bool

	Logger  logger.Logger
	Metrics observer

	// Clock, time.Now if not set
	Now func() time.Time
}

type AuthService struct {
	hasher    PasswordHasher
	tokens    tokenManager
	storage   repository.Storage
	blacklist repository.BlacklistRepo
	mailer    mailer

	logger  logger.Logger
	metrics observer
	now     func() time.Time

	resetTTL  time.Duration
	resetURLs map[string]string

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string
	insecureCookie    bool
}

func NewService(cfg Config, tokens tokenManager, storage repository.Storage, blacklist repository.BlacklistRepo, mailer mailer) (*AuthService, error) {
	if tokens == nil || storage == nil || blacklist == nil || mailer == nil {
		return nil, errors.New("dependencies must not be nil")
	}
	if cfg.ResetTokenTTL < 0 {
		return nil, errors.New("reset token lifetime must not be negative")
	}

	s := &AuthService{
		hasher:    cfg.Hasher,
		tokens:    tokens,
		storage:   storage,
		blacklist: blacklist,
		mailer:    mailer,

		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,

		resetTTL:  cfg.ResetTokenTTL,
		resetURLs: make(map[string]string, len(defaultResetURLs)),

		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		insecureCookie:    cfg.InsecureCookie,
	}

	if s.hasher == nil {
		s.hasher = DefaultHasher
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}
	if s.metrics == nil {
		s.metrics = noopObserver{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.resetTTL == 0 {
		s.resetTTL = defaultResetTokenTTL
	}
	if s.accessHeaderName == "" {
		s.accessHeaderName = defaultAccessHeaderName
	}
	if s.accessAuthScheme == "" {
		s.accessAuthScheme = defaultAccessAuthScheme
	}
	if s.refreshCookieName == "" {
		s.refreshCookieName = defaultRefreshCookieName
	}

	for target, base := range defaultResetURLs {
		s.resetURLs[target] = base
	}
	for target, base := range cfg.ResetURLs {
		if base == "" {
			continue
		}
		if _, err := url.Parse(base); err != nil {
			return nil, fmt.Errorf("reset url for %q is not valid. Err: %w", target, err)
		}
		s.resetURLs[target] = base
	}

	return s, nil
}

// Login checks credentials and starts a new session.
// Unknown username and wrong password are both reported as apperrors.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, username string, password string, remember bool) (models.Session, error) {
	const op = "login"

	username = strings.TrimSpace(username)
	log := s.logger.With("operation", op, "username", username)

	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		log.Warn("Login rejected, user not found")
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return models.Session{}, apperrors.ErrInvalidCredentials
	case err != nil:
		log.Error("Login failed, could not get user", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return models.Session{}, fmt.Errorf("error while getting user. Err: %w", err)
	}

	if !s.hasher.Check(password, user.HashedPassword) {
		log.Warn("Login rejected, wrong password", "user_id", user.ID)
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return models.Session{}, apperrors.ErrInvalidCredentials
	}

	session, err := s.issueSession(user, remember)
	if err != nil {
		log.Error("Login failed, could not issue tokens", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return models.Session{}, err
	}

	user.Refresh = &models.ExpiringToken{Digest: digest(session.Refresh.Value), ExpiresAt: session.Refresh.ExpiresAt}
	user.StampModified(user.Username, s.now())

	// Last login wins, previous refresh token stops working
	if err := s.storage.User().SetRefreshToken(ctx, user); err != nil {
		log.Error("Login failed, could not save refresh token", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return models.Session{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	log.Info("User logged in", "user_id", user.ID, "remember", remember)
	s.metrics.ObserveAuth(op, OutcomeSuccess)
	return session, nil
}

// Refresh exchanges a refresh token for a new session, the refresh token is rotated.
// If still valid access token is presented it is revoked
func (s *AuthService) Refresh(ctx context.Context, refresh string, access string) (models.Session, error) {
	const op = "refresh"
	log := s.logger.With("operation", op)

	session, err := s.refresh(ctx, log, refresh, access)
	switch {
	case err == nil:
		s.metrics.ObserveAuth(op, OutcomeSuccess)
	case errors.Is(err, apperrors.ErrTokenInvalid),
		errors.Is(err, apperrors.ErrRefreshTokenNotFound),
		errors.Is(err, apperrors.ErrRefreshTokenExpired):
		log.Warn("Refresh rejected", "reason", err)
		s.metrics.ObserveAuth(op, OutcomeRejected)
	default:
		log.Error("Refresh failed", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
	}

	return session, err
}

func (s *AuthService) refresh(ctx context.Context, log logger.Logger, refresh string, access string) (models.Session, error) {
	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return models.Session{}, err
	}

	user, err := s.storage.User().GetUserByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return models.Session{}, apperrors.ErrRefreshTokenNotFound
	case err != nil:
		return models.Session{}, fmt.Errorf("error while getting user. Err: %w", err)
	}

	presented := digest(refresh)
	if user.Refresh == nil || subtle.ConstantTimeCompare([]byte(user.Refresh.Digest), []byte(presented)) != 1 {
		return models.Session{}, apperrors.ErrRefreshTokenNotFound
	}
	if !user.Refresh.ValidAt(s.now()) {
		return models.Session{}, apperrors.ErrRefreshTokenExpired
	}

	session, err := s.issueSession(user, claims.Remember)
	if err != nil {
		return models.Session{}, err
	}

	user.Refresh = &models.ExpiringToken{Digest: digest(session.Refresh.Value), ExpiresAt: session.Refresh.ExpiresAt}
	user.StampModified(user.Username, s.now())

	// Concurrent refresh with the same token: only one of them wins
	if err := s.storage.User().RotateRefreshToken(ctx, user, presented); err != nil {
		if errors.Is(err, apperrors.ErrRefreshTokenNotFound) {
			return models.Session{}, err
		}
		return models.Session{}, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}

	if access != "" {
		if ac, err := s.tokens.ParseAccess(access); err == nil && ac.UserID == user.ID {
			if err := s.blacklist.Revoke(ctx, ac.TokenID, ac.ExpiresAt); err != nil {
				return models.Session{}, fmt.Errorf("error while revoking access token. Err: %w", err)
			}
			log.Debug("Previous access token revoked", "user_id", user.ID)
		}
	}

	log.Info("Session refreshed", "user_id", user.ID, "username", user.Username)
	return session, nil
}

// Logout ends the session the access token belongs to.
// Calling it again with the same claims is not an error
func (s *AuthService) Logout(ctx context.Context, claims models.AccessClaims) error {
	const op = "logout"
	log := s.logger.With("operation", op, "user_id", claims.UserID)

	if claims.TokenID == "" || claims.UserID == 0 {
		log.Info("Nothing to logout, no session")
		s.metrics.ObserveAuth(op, OutcomeSuccess)
		return nil
	}

	user, err := s.storage.User().GetUserByID(ctx, claims.UserID)
	switch {
	case err == nil:
		user.Refresh = nil
		user.StampModified(user.Username, s.now())
		if err := s.storage.User().SetRefreshToken(ctx, user); err != nil {
			log.Error("Logout failed, could not clear refresh token", "error", err)
			s.metrics.ObserveAuth(op, OutcomeError)
			return fmt.Errorf("error while clearing refresh token. Err: %w", err)
		}
	case errors.Is(err, apperrors.ErrUserNotFound):
		log.Warn("Logout of unknown user, revoking token only")
	default:
		log.Error("Logout failed, could not get user", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return fmt.Errorf("error while getting user. Err: %w", err)
	}

	if err := s.blacklist.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		log.Error("Logout failed, could not revoke access token", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return fmt.Errorf("error while revoking access token. Err: %w", err)
	}

	log.Info("User logged out")
	s.metrics.ObserveAuth(op, OutcomeSuccess)
	return nil
}

// Authenticate validates access token and makes sure it was not revoked
func (s *AuthService) Authenticate(ctx context.Context, access string) (models.AccessClaims, error) {
	const op = "authenticate"

	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return models.AccessClaims{}, err
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.TokenID)
	switch {
	case err != nil:
		s.logger.Error("Authenticate failed, could not check blacklist", "operation", op, "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return models.AccessClaims{}, fmt.Errorf("error while checking blacklist. Err: %w", err)
	case revoked:
		s.logger.Debug("Revoked token presented", "operation", op, "user_id", claims.UserID)
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return models.AccessClaims{}, apperrors.ErrTokenRevoked
	}

	s.metrics.ObserveAuth(op, OutcomeSuccess)
	return claims, nil
}

// ForgotPassword sends reset link to the user with the email.
// Unknown email and unsupported target are not errors, caller can't tell them from success
func (s *AuthService) ForgotPassword(ctx context.Context, email string, target string) error {
	const op = "forgot_password"

	email = strings.TrimSpace(email)
	log := s.logger.With("operation", op, "email", email, "target", target)

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		log.Warn("Password reset requested for unknown email")
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return nil
	case err != nil:
		log.Error("Password reset failed, could not get user", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return fmt.Errorf("error while getting user. Err: %w", err)
	}

	base, ok := s.resetURLs[target]
	if !ok {
		log.Warn("Password reset requested for unsupported target", "user_id", user.ID)
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return nil
	}

	token, err := newResetToken()
	if err != nil {
		s.metrics.ObserveAuth(op, OutcomeError)
		return err
	}
	link, err := resetLink(base, token)
	if err != nil {
		s.metrics.ObserveAuth(op, OutcomeError)
		return err
	}

	now := s.now()
	user.Reset = &models.ExpiringToken{Digest: digest(token), ExpiresAt: now.Add(s.resetTTL)}
	user.StampModified(user.Username, now)

	// Token is kept only if the mail was sent
	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		if err := storage.User().SetResetToken(ctx, user); err != nil {
			return fmt.Errorf("error while saving reset token. Err: %w", err)
		}
		if err := s.mailer.SendResetPassword(ctx, user.Email, user.Name, link); err != nil {
			return fmt.Errorf("error while sending reset mail. Err: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Error("Password reset failed", "user_id", user.ID, "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return err
	}

	log.Info("Password reset link sent", "user_id", user.ID)
	s.metrics.ObserveAuth(op, OutcomeSuccess)
	return nil
}

// ResetPassword sets new password if reset token is valid. Token can be used once.
// All sessions of the user are ended, user has to login again
func (s *AuthService) ResetPassword(ctx context.Context, token string, newPassword string) error {
	const op = "reset_password"
	log := s.logger.With("operation", op)

	if newPassword == "" {
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return apperrors.ErrPasswordEmpty
	}
	if token == "" {
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return apperrors.ErrResetTokenInvalid
	}

	now := s.now()
	current := digest(token)

	user, err := s.storage.User().GetUserByResetToken(ctx, current, now)
	switch {
	case errors.Is(err, apperrors.ErrResetTokenInvalid):
		log.Warn("Password reset rejected, token invalid or expired")
		s.metrics.ObserveAuth(op, OutcomeRejected)
		return err
	case err != nil:
		log.Error("Password reset failed, could not get user", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return fmt.Errorf("error while getting user. Err: %w", err)
	}
	log = log.With("user_id", user.ID, "username", user.Username)

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		log.Error("Password reset failed, could not hash password", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return fmt.Errorf("error while hashing password. Err: %w", err)
	}

	user.HashedPassword = hash
	user.Reset = nil
	user.Refresh = nil
	user.StampModified(user.Username, now)

	if err := s.storage.User().UpdatePassword(ctx, user, current, now); err != nil {
		if errors.Is(err, apperrors.ErrResetTokenInvalid) {
			log.Warn("Password reset rejected, token consumed concurrently")
			s.metrics.ObserveAuth(op, OutcomeRejected)
			return err
		}
		log.Error("Password reset failed, could not save password", "error", err)
		s.metrics.ObserveAuth(op, OutcomeError)
		return fmt.Errorf("error while saving password. Err: %w", err)
	}

	log.Info("Password reset")
	s.metrics.ObserveAuth(op, OutcomeSuccess)
	return nil
}

func (s *AuthService) issueSession(user models.User, remember bool) (models.Session, error) {
	access, err := s.tokens.IssueAccess(user)
	if err != nil {
		return models.Session{}, fmt.Errorf("error while issuing access token. Err: %w", err)
	}

	refresh, err := s.tokens.IssueRefresh(user, remember)
	if err != nil {
		return models.Session{}, fmt.Errorf("error while issuing refresh token. Err: %w", err)
	}

	return models.Session{Access: access, Refresh: refresh, User: user.Summary()}, nil
}

// Tokens persisted in storage are sha256 digests, never the tokens themselves
func digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newResetToken() (string, error) {
	b := make([]byte, resetTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating reset token. Err: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func resetLink(base string, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("reset url is not valid. Err: %w", err)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type noopObserver struct{}

func (noopObserver) ObserveAuth(string, string) {}
