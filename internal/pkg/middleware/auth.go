package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt"
)

// Claims are the access token claims issued by the auth service.
type Claims struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Platform string `json:"platform"`
	jwt.StandardClaims
}

// RequireJWT authenticates the Bearer token of API requests and returns JSON
// 401 when it is missing or invalid.
func RequireJWT(secret string) fiber.Handler {
	key := []byte(secret)
	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return unauthorized(c, "Missing bearer token")
		}
		claims, err := ParseToken(token, key)
		if err != nil {
			return unauthorized(c, "Invalid or expired token")
		}
		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     claims.ID,
			Email:      claims.Email,
			Platform:   claims.Platform,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(raw string, key []byte) (*Claims, error) {
	if len(key) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || strings.TrimSpace(claims.ID) == "" {
		return nil, errors.New("token missing subject")
	}
	return claims, nil
}

// SignToken issues an HS256 token. Used by tests and local tooling.
func SignToken(claims Claims, key []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(key)
}

func extractBearerToken(c *fiber.Ctx) string {
	h := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": msg,
	})
}
