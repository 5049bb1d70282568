package handlers

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/brokeroffice/internal/models"
	"github.com/nkiryanov/brokeroffice/internal/testutil"
)

func Test_AuthHandlers(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("login ok", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			u := srv.createUser(t, "nk", models.RoleBroker)

			resp := do(t, http.MethodPost, srv.url+"/login", `{"username": "nk", "password": "StrongEnoughPassword"}`)

			require.Equal(t, http.StatusOK, resp.code, "body: %s", resp.body)
			env := resp.envelope(t)
			assert.Equal(t, "success", env["status"])
			assert.Equal(t, "authenticated", env["action"])
			assert.Equal(t, "Login successful", env["message"])

			data := resp.data(t)
			assert.NotEmpty(t, data["token"])
			expiresAt, err := time.Parse(time.RFC3339, data["expiresAt"].(string))
			require.NoError(t, err)
			assert.WithinDuration(t, time.Now().Add(2*time.Hour), expiresAt, time.Minute)
			assert.Equal(t, map[string]any{"id": float64(u.ID), "username": "nk"}, data["user"])

			cookie := resp.cookie("refreshToken")
			require.NotNil(t, cookie)
			assert.NotEmpty(t, cookie.Value)
			assert.True(t, cookie.HttpOnly)
			assert.True(t, cookie.Secure)
			assert.Equal(t, "/", cookie.Path)
			assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
			assert.InDelta(t, (7 * 24 * time.Hour).Seconds(), cookie.MaxAge, 1)
		})
	})

	t.Run("login remember me", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)

			resp := do(t, http.MethodPost, srv.url+"/login", `{"username": "nk", "password": "StrongEnoughPassword", "rememberMe": true}`)

			require.Equal(t, http.StatusOK, resp.code, "body: %s", resp.body)
			cookie := resp.cookie("refreshToken")
			require.NotNil(t, cookie)
			assert.InDelta(t, (30 * 24 * time.Hour).Seconds(), cookie.MaxAge, 1)
		})
	})

	t.Run("login wrong credentials", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)

			for _, body := range []string{
				`{"username": "nk", "password": "WrongPassword"}`,
				`{"username": "unknown", "password": "StrongEnoughPassword"}`,
			} {
				resp := do(t, http.MethodPost, srv.url+"/login", body)

				require.Equal(t, http.StatusBadRequest, resp.code)
				assert.JSONEq(t, `{
					"status": "failure",
					"action": "authenticated",
					"data": null,
					"message": "Invalid username or password"
				}`, resp.body)
				assert.Nil(t, resp.cookie("refreshToken"))
			}
		})
	})

	t.Run("login validation", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/login", `{"username": ""}`)

			require.Equal(t, http.StatusBadRequest, resp.code)
			errs, ok := resp.envelope(t)["errors"].(map[string]any)
			require.True(t, ok, "body: %s", resp.body)
			assert.Contains(t, errs, "username")
			assert.Contains(t, errs, "password")
		})
	})

	t.Run("login malformed json", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/login", `{"username": `)

			require.Equal(t, http.StatusBadRequest, resp.code)
			assert.Equal(t, "failure", resp.envelope(t)["status"])
		})
	})

	t.Run("logout", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)
			access, refresh := login(t, srv.url, "nk")

			resp := do(t, http.MethodPost, srv.url+"/logout", "", withBearer(access))

			require.Equal(t, http.StatusOK, resp.code, "body: %s", resp.body)
			assert.Equal(t, "Logout successful", resp.envelope(t)["message"])
			cleared := resp.cookie("refreshToken")
			require.NotNil(t, cleared)
			assert.Empty(t, cleared.Value)

			// Access token revoked
			resp = do(t, http.MethodGet, srv.url+"/me", "", withBearer(access))
			assert.Equal(t, http.StatusUnauthorized, resp.code)

			// Refresh token dropped
			resp = do(t, http.MethodPost, srv.url+"/refresh-token", "", withCookie(refresh))
			assert.Equal(t, http.StatusBadRequest, resp.code)
		})
	})

	t.Run("logout unauthorized", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/logout", "")

			require.Equal(t, http.StatusUnauthorized, resp.code)
			assert.Equal(t, "Unauthorized", resp.envelope(t)["message"])
		})
	})

	t.Run("refresh rotates tokens", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)
			access, refresh := login(t, srv.url, "nk")

			resp := do(t, http.MethodPost, srv.url+"/refresh-token", "", withCookie(refresh), withBearer(access))

			require.Equal(t, http.StatusOK, resp.code, "body: %s", resp.body)
			assert.Equal(t, "updated", resp.envelope(t)["action"])
			newAccess, _ := resp.data(t)["token"].(string)
			require.NotEmpty(t, newAccess)
			assert.NotEqual(t, access, newAccess)

			newRefresh := resp.cookie("refreshToken")
			require.NotNil(t, newRefresh)
			assert.NotEqual(t, refresh.Value, newRefresh.Value)

			// Old access revoked, new one works
			assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.url+"/me", "", withBearer(access)).code)
			assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.url+"/me", "", withBearer(newAccess)).code)

			// Old refresh can't be used again
			resp = do(t, http.MethodPost, srv.url+"/refresh-token", "", withCookie(refresh))
			require.Equal(t, http.StatusBadRequest, resp.code)
			assert.Equal(t, "Refresh token is invalid or expired", resp.envelope(t)["message"])
		})
	})

	t.Run("refresh without access token", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)
			_, refresh := login(t, srv.url, "nk")

			resp := do(t, http.MethodPost, srv.url+"/refresh-token", "", withCookie(refresh))

			require.Equal(t, http.StatusOK, resp.code, "body: %s", resp.body)
		})
	})

	t.Run("refresh no cookie", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/refresh-token", "")

			require.Equal(t, http.StatusBadRequest, resp.code)
			assert.Equal(t, "Refresh token not found", resp.envelope(t)["message"])
		})
	})

	t.Run("refresh garbage", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/refresh-token", "", withCookie(&http.Cookie{Name: "refreshToken", Value: "garbage"}))

			require.Equal(t, http.StatusBadRequest, resp.code)
			cleared := resp.cookie("refreshToken")
			require.NotNil(t, cleared)
			assert.Empty(t, cleared.Value)
		})
	})

	t.Run("forgot and reset password", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)
			access, refresh := login(t, srv.url, "nk")

			resp := do(t, http.MethodPost, srv.url+"/forgot-password", `{"email": "nk@broker.test", "type": "web"}`)
			require.Equal(t, http.StatusOK, resp.code, "body: %s", resp.body)

			link := srv.mails.link("nk@broker.test")
			require.NotEmpty(t, link)
			u, err := url.Parse(link)
			require.NoError(t, err)
			assert.Equal(t, "localhost:3000", u.Host)
			token := u.Query().Get("token")
			require.NotEmpty(t, token)

			resp = do(t, http.MethodPost, srv.url+"/reset-password", `{"token": "`+token+`", "newPassword": "BrandNewPassword"}`)
			require.Equal(t, http.StatusOK, resp.code, "body: %s", resp.body)
			assert.Equal(t, "Password has been reset", resp.envelope(t)["message"])

			// Token is single use
			resp = do(t, http.MethodPost, srv.url+"/reset-password", `{"token": "`+token+`", "newPassword": "AnotherPassword"}`)
			require.Equal(t, http.StatusBadRequest, resp.code)
			assert.Equal(t, "Invalid or expired token", resp.envelope(t)["message"])

			// Sessions ended, new password works
			resp = do(t, http.MethodPost, srv.url+"/refresh-token", "", withCookie(refresh), withBearer(access))
			assert.Equal(t, http.StatusBadRequest, resp.code)

			resp = do(t, http.MethodPost, srv.url+"/login", `{"username": "nk", "password": "BrandNewPassword"}`)
			assert.Equal(t, http.StatusOK, resp.code)
			resp = do(t, http.MethodPost, srv.url+"/login", `{"username": "nk", "password": "StrongEnoughPassword"}`)
			assert.Equal(t, http.StatusBadRequest, resp.code)
		})
	})

	t.Run("forgot password mobile link", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)

			resp := do(t, http.MethodPost, srv.url+"/forgot-password", `{"email": "nk@broker.test", "type": "mobile"}`)

			require.Equal(t, http.StatusOK, resp.code)
			assert.Contains(t, srv.mails.link("nk@broker.test"), "mobile://reset-password?token=")
		})
	})

	t.Run("forgot password unknown email looks the same", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			srv.createUser(t, "nk", models.RoleBroker)

			known := do(t, http.MethodPost, srv.url+"/forgot-password", `{"email": "nk@broker.test", "type": "web"}`)
			unknown := do(t, http.MethodPost, srv.url+"/forgot-password", `{"email": "nobody@broker.test", "type": "web"}`)

			require.Equal(t, http.StatusOK, unknown.code)
			assert.JSONEq(t, known.body, unknown.body)
			assert.Empty(t, srv.mails.link("nobody@broker.test"))
		})
	})

	t.Run("forgot password validation", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/forgot-password", `{"email": "not-an-email"}`)

			require.Equal(t, http.StatusBadRequest, resp.code)
			errs, ok := resp.envelope(t)["errors"].(map[string]any)
			require.True(t, ok, "body: %s", resp.body)
			assert.Contains(t, errs, "email")
			assert.Contains(t, errs, "type")
		})
	})

	t.Run("reset password validation", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/reset-password", `{"token": "abc", "newPassword": "short"}`)

			require.Equal(t, http.StatusBadRequest, resp.code)
			errs, ok := resp.envelope(t)["errors"].(map[string]any)
			require.True(t, ok, "body: %s", resp.body)
			assert.Contains(t, errs, "newPassword")
		})
	})

	t.Run("reset password unknown token", func(t *testing.T) {
		withServer(pg.Pool, t, func(srv server) {
			resp := do(t, http.MethodPost, srv.url+"/reset-password", `{"token": "unknown", "newPassword": "BrandNewPassword"}`)

			require.Equal(t, http.StatusBadRequest, resp.code)
			assert.Equal(t, "Invalid or expired token", resp.envelope(t)["message"])
		})
	})
}
