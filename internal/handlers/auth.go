package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/handlers/render"
	"github.com/nkiryanov/brokeroffice/internal/handlers/userctx"
	"github.com/nkiryanov/brokeroffice/internal/logger"
	"github.com/nkiryanov/brokeroffice/internal/models"
)

const (
	msgInternalError  = "Internal server error"
	msgForgotPassword = "If the email is registered, a password reset link has been sent"
)

type userSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      userSummary `json:"user"`
}

func newSessionResponse(s models.Session) sessionResponse {
	return sessionResponse{
		Token:     s.Access.Value,
		ExpiresAt: s.Access.ExpiresAt,
		User:      userSummary{ID: s.User.ID, Username: s.User.Username},
	}
}

func handleLogin(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Username   string `json:"username" validate:"required,max=50"`
		Password   string `json:"password" validate:"required"`
		RememberMe bool   `json:"rememberMe"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r, render.ActionAuthenticated)
		if err != nil {
			return
		}

		session, err := authService.Login(r.Context(), data.Username, data.Password, data.RememberMe)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrInvalidCredentials):
			render.Failure(w, render.ActionAuthenticated, "Invalid username or password", http.StatusBadRequest)
			return
		default:
			logger.Error("login error", "error", err)
			render.Failure(w, render.ActionAuthenticated, msgInternalError, http.StatusInternalServerError)
			return
		}

		authService.SetRefreshCookie(w, session.Refresh)
		render.Success(w, render.ActionAuthenticated, newSessionResponse(session), "Login successful")
	})
}

func handleLogout(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := userctx.FromContext(r.Context())

		if err := authService.Logout(r.Context(), claims); err != nil {
			logger.Error("logout error", "error", err, "user_id", claims.UserID)
			render.Failure(w, render.ActionDeleted, msgInternalError, http.StatusInternalServerError)
			return
		}

		authService.ClearRefreshCookie(w)
		render.Success(w, render.ActionDeleted, nil, "Logout successful")
	})
}

func handleRefreshToken(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefreshString(r)
		if err != nil {
			render.Failure(w, render.ActionUpdated, "Refresh token not found", http.StatusBadRequest)
			return
		}

		// Access token is optional, it gets revoked if still valid
		access, _ := authService.GetAccessString(r)

		session, err := authService.Refresh(r.Context(), refresh, access)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrTokenInvalid),
			errors.Is(err, apperrors.ErrRefreshTokenNotFound),
			errors.Is(err, apperrors.ErrRefreshTokenExpired):
			authService.ClearRefreshCookie(w)
			render.Failure(w, render.ActionUpdated, "Refresh token is invalid or expired", http.StatusBadRequest)
			return
		default:
			logger.Error("refresh error", "error", err)
			render.Failure(w, render.ActionUpdated, msgInternalError, http.StatusInternalServerError)
			return
		}

		authService.SetRefreshCookie(w, session.Refresh)
		render.Success(w, render.ActionUpdated, newSessionResponse(session), "Token refreshed")
	})
}

func handleForgotPassword(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email,max=100"`
		Type  string `json:"type" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r, render.ActionRead)
		if err != nil {
			return
		}

		if err := authService.ForgotPassword(r.Context(), data.Email, data.Type); err != nil {
			logger.Error("forgot password error", "error", err, "email", data.Email)
			render.Failure(w, render.ActionRead, msgInternalError, http.StatusInternalServerError)
			return
		}

		render.Success(w, render.ActionRead, nil, msgForgotPassword)
	})
}

func handleResetPassword(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Token       string `json:"token" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r, render.ActionUpdated)
		if err != nil {
			return
		}

		err = authService.ResetPassword(r.Context(), data.Token, data.NewPassword)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrResetTokenInvalid):
			render.Failure(w, render.ActionUpdated, "Invalid or expired token", http.StatusBadRequest)
			return
		case errors.Is(err, apperrors.ErrPasswordEmpty):
			render.Failure(w, render.ActionUpdated, "Password must not be empty", http.StatusBadRequest)
			return
		default:
			logger.Error("reset password error", "error", err)
			render.Failure(w, render.ActionUpdated, msgInternalError, http.StatusInternalServerError)
			return
		}

		render.Success(w, render.ActionUpdated, nil, "Password has been reset")
	})
}
