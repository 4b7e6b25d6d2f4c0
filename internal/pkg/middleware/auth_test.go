package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret")

func newAuthApp() *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireJWT(string(testKey)), func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		return c.SendString(uc.UserID + "|" + uc.Platform)
	})
	return app
}

func TestRequireJWTAcceptsValidToken(t *testing.T) {
	token, err := SignToken(Claims{
		ID:             "user-1",
		Email:          "u1@example.com",
		Platform:       "web",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()},
	}, testKey)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := newAuthApp().Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "user-1|web", string(body))
}

func TestRequireJWTRejects(t *testing.T) {
	expired, err := SignToken(Claims{
		ID:             "user-1",
		StandardClaims: jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()},
	}, testKey)
	require.NoError(t, err)
	wrongKey, err := SignToken(Claims{ID: "user-1"}, []byte("other"))
	require.NoError(t, err)
	noSubject, err := SignToken(Claims{Email: "u1@example.com"}, testKey)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Basic abc"},
		{"garbage", "Bearer not.a.token"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"no subject", "Bearer " + noSubject},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := newAuthApp().Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		})
	}
}
