package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/handlers/render"
	"github.com/nkiryanov/brokeroffice/internal/handlers/userctx"
	"github.com/nkiryanov/brokeroffice/internal/logger"
	"github.com/nkiryanov/brokeroffice/internal/models"
)

type userResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	RoleID    int       `json:"roleId"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`

	ModifiedAt *time.Time `json:"modifiedAt,omitempty"`
	ModifiedBy *string    `json:"modifiedBy,omitempty"`
}

func newUserResponse(u models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Name:      u.Name,
		RoleID:    u.RoleID,
		CreatedAt: u.CreatedAt,
		CreatedBy: u.CreatedBy,

		ModifiedAt: u.ModifiedAt,
		ModifiedBy: u.ModifiedBy,
	}
}

func handleUserMe(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := userctx.FromContext(r.Context())

		user, err := userService.GetUser(r.Context(), claims.UserID)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.Failure(w, render.ActionRead, "User not found", http.StatusNotFound)
			return
		default:
			logger.Error("get user error", "error", err, "user_id", claims.UserID)
			render.Failure(w, render.ActionRead, msgInternalError, http.StatusInternalServerError)
			return
		}

		render.Success(w, render.ActionRead, newUserResponse(user), "")
	})
}

func handleCreateUser(userService userService, logger logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,max=50"`
		Email    string `json:"email" validate:"required,email,max=100"`
		Name     string `json:"name" validate:"required,max=100"`
		RoleID   int    `json:"roleId" validate:"required,min=1"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r, render.ActionCreated)
		if err != nil {
			return
		}
		claims, _ := userctx.FromContext(r.Context())

		user, err := userService.CreateUser(r.Context(), models.NewUser{
			RoleID:   data.RoleID,
			Name:     data.Name,
			Username: data.Username,
			Email:    data.Email,
			Password: data.Password,
		}, claims.Username)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Failure(w, render.ActionCreated, "User already exists", http.StatusConflict)
			return
		default:
			logger.Error("create user error", "error", err, "username", data.Username)
			render.Failure(w, render.ActionCreated, msgInternalError, http.StatusInternalServerError)
			return
		}

		logger.Info("user created", "user_id", user.ID, "username", user.Username, "created_by", claims.Username)
		render.SuccessWithStatus(w, render.ActionCreated, newUserResponse(user), "User created", http.StatusCreated)
	})
}

func handleListUsers(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		users, err := userService.ListUsers(r.Context())
		if err != nil {
			logger.Error("list users error", "error", err)
			render.Failure(w, render.ActionRead, msgInternalError, http.StatusInternalServerError)
			return
		}

		data := make([]userResponse, 0, len(users))
		for _, u := range users {
			data = append(data, newUserResponse(u))
		}
		render.Success(w, render.ActionRead, data, "")
	})
}

func handleGetUser(userService userService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r, render.ActionRead)
		if !ok {
			return
		}

		user, err := userService.GetUser(r.Context(), id)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.Failure(w, render.ActionRead, "User not found", http.StatusNotFound)
			return
		default:
			logger.Error("get user error", "error", err, "user_id", id)
			render.Failure(w, render.ActionRead, msgInternalError, http.StatusInternalServerError)
			return
		}

		render.Success(w, render.ActionRead, newUserResponse(user), "")
	})
}

func handleUpdateUser(userService userService, logger logger.Logger) http.Handler {
	type request struct {
		Email  string `json:"email" validate:"required,email,max=100"`
		Name   string `json:"name" validate:"required,max=100"`
		RoleID int    `json:"roleId" validate:"required,min=1,max=6"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := userID(w, r, render.ActionUpdated)
		if !ok {
			return
		}
		data, err := render.BindAndValidate[request](w, r, render.ActionUpdated)
		if err != nil {
			return
		}
		claims, _ := userctx.FromContext(r.Context())

		user, err := userService.UpdateUser(r.Context(), id, models.UserUpdate{
			RoleID: data.RoleID,
			Name:   data.Name,
			Email:  data.Email,
		}, claims.Username)
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.Failure(w, render.ActionUpdated, "User not found", http.StatusNotFound)
			return
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.Failure(w, render.ActionUpdated, "Email is already taken", http.StatusConflict)
			return
		default:
			logger.Error("update user error", "error", err, "user_id", id)
			render.Failure(w, render.ActionUpdated, msgInternalError, http.StatusInternalServerError)
			return
		}

		logger.Info("user updated", "user_id", user.ID, "modified_by", claims.Username)
		render.Success(w, render.ActionUpdated, newUserResponse(user), "User updated")
	})
}

// userID reads {id} path value. Renders 400 and returns false if it is not a positive number
func userID(w http.ResponseWriter, r *http.Request, action string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		render.Failure(w, action, "Invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
