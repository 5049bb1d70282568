package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/models"
	"github.com/nkiryanov/brokeroffice/internal/repository"
	"github.com/nkiryanov/brokeroffice/internal/service/auth"
)

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage
	now     func() time.Time
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}

	return &UserService{
		hasher:  hasher,
		storage: storage,
		now:     time.Now,
	}
}

// CreateUser registers account on behalf of 'actor'
// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
func (s *UserService) CreateUser(ctx context.Context, params models.NewUser, actor string) (models.User, error) {
	if params.Password == "" {
		return models.User{}, apperrors.ErrPasswordEmpty
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user := models.User{
		RoleID:         params.RoleID,
		Name:           strings.TrimSpace(params.Name),
		Username:       strings.TrimSpace(params.Username),
		Email:          strings.TrimSpace(params.Email),
		HashedPassword: hash,
	}
	user.StampCreated(actor, s.now())

	created, err := s.storage.User().CreateUser(ctx, user)
	if err != nil {
		return models.User{}, fmt.Errorf("can't create user. Err: %w", err)
	}

	return created, nil
}

// If user not found must return apperrors.ErrUserNotFound
func (s *UserService) GetUser(ctx context.Context, id int64) (models.User, error) {
	user, err := s.storage.User().GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.storage.User().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't list users. Err: %w", err)
	}
	return users, nil
}

// UpdateUser changes profile of user 'id' on behalf of 'actor'
// Has to return apperrors.ErrUserNotFound if user not found
// and apperrors.ErrUserAlreadyExists if email is taken
func (s *UserService) UpdateUser(ctx context.Context, id int64, params models.UserUpdate, actor string) (models.User, error) {
	user, err := s.storage.User().GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	user.RoleID = params.RoleID
	user.Name = strings.TrimSpace(params.Name)
	user.Email = strings.TrimSpace(params.Email)
	user.StampModified(actor, s.now())

	updated, err := s.storage.User().UpdateUser(ctx, user)
	if err != nil {
		return models.User{}, fmt.Errorf("can't update user. Err: %w", err)
	}

	return updated, nil
}
