package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/brokeroffice/internal/handlers/middleware"
	"github.com/nkiryanov/brokeroffice/internal/logger"
	"github.com/nkiryanov/brokeroffice/internal/models"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	m httpMetrics,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	adminOnly := middleware.RoleMiddleware(models.RoleAdmin)

	mux := http.NewServeMux()

	mux.Handle("POST /login", handleLogin(authService, logger))
	mux.Handle("POST /logout", withAuth(handleLogout(authService, logger)))
	mux.Handle("POST /refresh-token", handleRefreshToken(authService, logger))
	mux.Handle("POST /forgot-password", handleForgotPassword(authService, logger))
	mux.Handle("POST /reset-password", handleResetPassword(authService, logger))

	mux.Handle("GET /me", withAuth(handleUserMe(userService, logger)))
	mux.Handle("GET /users", chain(handleListUsers(userService, logger), withAuth, adminOnly))
	mux.Handle("POST /users", chain(handleCreateUser(userService, logger), withAuth, adminOnly))
	mux.Handle("GET /users/{id}", chain(handleGetUser(userService, logger), withAuth, adminOnly))
	mux.Handle("PUT /users/{id}", chain(handleUpdateUser(userService, logger), withAuth, adminOnly))

	return chain(mux,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(m),
	)
}

type authService interface {
	// Login user with username and password
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	Login(ctx context.Context, username string, password string, remember bool) (models.Session, error)

	// Logout session of the access token owner
	Logout(ctx context.Context, claims models.AccessClaims) error

	// Exchange refresh token for a new session
	// Has to return apperrors.ErrTokenInvalid, apperrors.ErrRefreshTokenNotFound or apperrors.ErrRefreshTokenExpired
	// if refresh token is not accepted
	Refresh(ctx context.Context, refresh string, access string) (models.Session, error)

	// Send reset password link. Unknown emails are not reported
	ForgotPassword(ctx context.Context, email string, target string) error

	// Has to return apperrors.ErrResetTokenInvalid if token not found or expired
	ResetPassword(ctx context.Context, token string, newPassword string) error

	// Validate access token and check it is not revoked
	Authenticate(ctx context.Context, access string) (models.AccessClaims, error)

	SetRefreshCookie(w http.ResponseWriter, refresh models.IssuedToken)
	ClearRefreshCookie(w http.ResponseWriter)
	GetRefreshString(r *http.Request) (string, error)
	GetAccessString(r *http.Request) (string, error)
}

type userService interface {
	// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
	CreateUser(ctx context.Context, params models.NewUser, actor string) (models.User, error)

	// Has to return apperrors.ErrUserNotFound if user not found
	GetUser(ctx context.Context, id int64) (models.User, error)

	ListUsers(ctx context.Context) ([]models.User, error)

	// Has to return apperrors.ErrUserNotFound if user not found
	// and apperrors.ErrUserAlreadyExists if email is taken
	UpdateUser(ctx context.Context, id int64, params models.UserUpdate, actor string) (models.User, error)
}

type httpMetrics interface {
	ObserveHTTP(method string, route string, status int, duration time.Duration)
}
