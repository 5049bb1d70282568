package tokenmanager

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/models"
)

const (
	defaultAccessTokenTTL  = 2 * time.Hour
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultRememberMeTTL   = 30 * 24 * time.Hour
	defaultSigningMethod   = "HS256"
	defaultIssuer          = "brokeroffice"
	defaultAudience        = "brokeroffice"
)

// Kind claim keeps refresh tokens from being accepted as access ones and vice versa
const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Kind     string `json:"knd"`
	UserID   int64  `json:"uid"`
	Username string `json:"usr"`
	RoleID   int    `json:"rid"`
}

type RefreshTokenClaims struct {
	jwt.RegisteredClaims
	Kind     string `json:"knd"`
	Remember bool   `json:"rem,omitempty"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign tokens
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm, HS256 by default
	// Only HMAC family is accepted
	Alg string

	// Issuer and audience put into every token and required on parse
	Issuer   string
	Audience string

	// Token lifetimes
	// If not set than default is used
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	RememberTTL time.Duration

	// Allowed clock skew on expiry check. Zero means strict
	Leeway time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	key []byte
	alg jwt.SigningMethod

	issuer   string
	audience string

	accessTTL   time.Duration
	refreshTTL  time.Duration
	rememberTTL time.Duration
	leeway      time.Duration

	now    func() time.Time
	parser *jwt.Parser
}

func New(cfg Config) (*TokenManager, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("leeway must not be negative")
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 || cfg.RememberTTL < 0 {
		return nil, errors.New("token lifetime must not be negative")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q", cfg.Alg)
	}

	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.Issuer, defaultIssuer)
	setDefault(&cfg.Audience, defaultAudience)

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)
	setDefaultDuration(&cfg.RememberTTL, defaultRememberMeTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &TokenManager{
		key:         []byte(cfg.SecretKey),
		alg:         alg,
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		rememberTTL: cfg.RememberTTL,
		leeway:      cfg.Leeway,
		now:         cfg.Now,
	}
	m.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{alg.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
		jwt.WithTimeFunc(m.now),
	)

	return m, nil
}

func (m *TokenManager) AccessTTL() time.Duration { return m.accessTTL }

// Lifetime of refresh token depending on 'remember me'
func (m *TokenManager) RefreshTTL(remember bool) time.Duration {
	if remember {
		return m.rememberTTL
	}
	return m.refreshTTL
}

func (m *TokenManager) IssueAccess(user models.User) (models.IssuedToken, error) {
	now := m.now().Truncate(time.Second)
	claims := AccessTokenClaims{
		RegisteredClaims: m.registered(user.ID, now, m.accessTTL),
		Kind:             kindAccess,
		UserID:           user.ID,
		Username:         user.Username,
		RoleID:           user.RoleID,
	}

	return m.sign(claims, claims.RegisteredClaims)
}

func (m *TokenManager) IssueRefresh(user models.User, remember bool) (models.IssuedToken, error) {
	now := m.now().Truncate(time.Second)
	claims := RefreshTokenClaims{
		RegisteredClaims: m.registered(user.ID, now, m.RefreshTTL(remember)),
		Kind:             kindRefresh,
		Remember:         remember,
	}

	return m.sign(claims, claims.RegisteredClaims)
}

// Parse and validate access token
// Any failure is reported as apperrors.ErrTokenInvalid
func (m *TokenManager) ParseAccess(token string) (models.AccessClaims, error) {
	claims := &AccessTokenClaims{}
	if err := m.parse(token, claims); err != nil {
		return models.AccessClaims{}, err
	}

	if claims.Kind != kindAccess {
		return models.AccessClaims{}, fmt.Errorf("%w: not an access token", apperrors.ErrTokenInvalid)
	}
	if claims.ID == "" {
		return models.AccessClaims{}, fmt.Errorf("%w: jti is missing", apperrors.ErrTokenInvalid)
	}
	if claims.UserID == 0 || claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return models.AccessClaims{}, fmt.Errorf("%w: subject mismatch", apperrors.ErrTokenInvalid)
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	return models.AccessClaims{
		TokenID:   claims.ID,
		UserID:    claims.UserID,
		Username:  claims.Username,
		RoleID:    claims.RoleID,
		IssuedAt:  issuedAt,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Parse and validate refresh token
// Any failure is reported as apperrors.ErrTokenInvalid
func (m *TokenManager) ParseRefresh(token string) (models.RefreshClaims, error) {
	claims := &RefreshTokenClaims{}
	if err := m.parse(token, claims); err != nil {
		return models.RefreshClaims{}, err
	}

	if claims.Kind != kindRefresh {
		return models.RefreshClaims{}, fmt.Errorf("%w: not a refresh token", apperrors.ErrTokenInvalid)
	}
	if claims.ID == "" {
		return models.RefreshClaims{}, fmt.Errorf("%w: jti is missing", apperrors.ErrTokenInvalid)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return models.RefreshClaims{}, fmt.Errorf("%w: bad subject", apperrors.ErrTokenInvalid)
	}

	return models.RefreshClaims{
		TokenID:   claims.ID,
		UserID:    userID,
		Remember:  claims.Remember,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (m *TokenManager) registered(userID int64, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{m.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (m *TokenManager) sign(claims jwt.Claims, registered jwt.RegisteredClaims) (models.IssuedToken, error) {
	signed, err := jwt.NewWithClaims(m.alg, claims).SignedString(m.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{
		Value:     signed,
		ID:        registered.ID,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}

func (m *TokenManager) parse(token string, claims jwt.Claims) error {
	_, err := m.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
	return nil
}
