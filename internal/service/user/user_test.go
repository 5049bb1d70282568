package user

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/brokeroffice/internal/apperrors"
	"github.com/nkiryanov/brokeroffice/internal/models"
	"github.com/nkiryanov/brokeroffice/internal/repository/postgres"
	"github.com/nkiryanov/brokeroffice/internal/service/auth"
	"github.com/nkiryanov/brokeroffice/internal/testutil"
)

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}

	inTx := func(t *testing.T, fn func(s *UserService)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(NewService(hasher, postgres.NewStorage(tx)))
		})
	}

	params := models.NewUser{
		RoleID:   models.RoleBroker,
		Name:     " Jane Doe ",
		Username: "jdoe",
		Email:    "jdoe@broker.test",
		Password: "Secret#123",
	}

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				user, err := s.CreateUser(t.Context(), params, "admin")

				require.NoError(t, err)
				require.NotZero(t, user.ID)
				require.Equal(t, "jdoe", user.Username)
				require.Equal(t, "Jane Doe", user.Name)
				require.Equal(t, models.RoleBroker, user.RoleID)
				require.NotEqual(t, "Secret#123", user.HashedPassword, "password should be hashed")
				require.True(t, hasher.Check("Secret#123", user.HashedPassword))
				require.Equal(t, "admin", user.CreatedBy)
				require.WithinDuration(t, time.Now(), user.CreatedAt, time.Second)
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				p := params
				p.Password = ""

				_, err := s.CreateUser(t.Context(), p, "admin")

				require.ErrorIs(t, err, apperrors.ErrPasswordEmpty)
			})
		})

		t.Run("duplicate email in other case fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), params, "admin")
				require.NoError(t, err)

				p := params
				p.Username = "jdoe2"
				p.Email = "JDoe@Broker.TEST"
				_, err = s.CreateUser(t.Context(), p, "admin")

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})

		t.Run("duplicate username fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), params, "admin")
				require.NoError(t, err)

				p := params
				p.Email = "another@broker.test"
				_, err = s.CreateUser(t.Context(), p, "admin")

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("ListUsers", func(t *testing.T) {
		inTx(t, func(s *UserService) {
			created, err := s.CreateUser(t.Context(), params, "admin")
			require.NoError(t, err)

			users, err := s.ListUsers(t.Context())

			require.NoError(t, err)
			require.Len(t, users, 1)
			require.Equal(t, created.ID, users[0].ID)
		})
	})

	t.Run("UpdateUser", func(t *testing.T) {
		update := models.UserUpdate{
			RoleID: models.RoleAnalyst,
			Name:   " Jane Smith ",
			Email:  " jane.smith@broker.test ",
		}

		t.Run("update ok", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				created, err := s.CreateUser(t.Context(), params, "admin")
				require.NoError(t, err)

				updated, err := s.UpdateUser(t.Context(), created.ID, update, "root")

				require.NoError(t, err)
				require.Equal(t, created.ID, updated.ID)
				require.Equal(t, "jdoe", updated.Username)
				require.Equal(t, "Jane Smith", updated.Name)
				require.Equal(t, "jane.smith@broker.test", updated.Email)
				require.Equal(t, models.RoleAnalyst, updated.RoleID)
				require.Equal(t, created.HashedPassword, updated.HashedPassword)
				require.Equal(t, "admin", updated.CreatedBy)
				require.NotNil(t, updated.ModifiedBy)
				require.Equal(t, "root", *updated.ModifiedBy)
			})
		})

		t.Run("not found", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.UpdateUser(t.Context(), 424242, update, "root")

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})

		t.Run("email taken", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), params, "admin")
				require.NoError(t, err)
				p := params
				p.Username = "other"
				p.Email = "other@broker.test"
				other, err := s.CreateUser(t.Context(), p, "admin")
				require.NoError(t, err)

				u := update
				u.Email = "JDOE@broker.test"
				_, err = s.UpdateUser(t.Context(), other.ID, u, "root")

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("GetUser", func(t *testing.T) {
		t.Run("found", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				created, err := s.CreateUser(t.Context(), params, "admin")
				require.NoError(t, err)

				got, err := s.GetUser(t.Context(), created.ID)

				require.NoError(t, err)
				require.Equal(t, created.Username, got.Username)
				require.Equal(t, created.Email, got.Email)
			})
		})

		t.Run("not found", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.GetUser(t.Context(), 424242)

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})
}
