package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AskFox/app/models"
	"github.com/ManuelReschke/AskFox/internal/pkg/auth"
	"github.com/ManuelReschke/AskFox/internal/pkg/usercontext"
)

// LocalUserID is the identity injected when authentication is disabled in dev.
const LocalUserID = "local-dev-user"

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// UserToucher records an authenticated user, creating it on first login.
type UserToucher interface {
	Touch(ctx context.Context, id, email string, at time.Time) (*models.User, error)
}

// BearerAuth verifies the Authorization header, upserts the user and stores
// the identity under usercontext.KeyUserContext. A nil verifier means
// authentication is disabled and every request runs as LocalUserID.
func BearerAuth(verifier TokenVerifier, users UserToucher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var id, email string
		if verifier == nil {
			id = LocalUserID
		} else {
			token, ok := auth.ExtractBearerToken(c.Get(fiber.HeaderAuthorization))
			if !ok {
				return unauthorized(c, "Missing bearer token")
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				log.Debugf("auth: token rejected: %v", err)
				return unauthorized(c, "Invalid token")
			}
			id, email = claims.Subject, claims.Email
		}

		user, err := users.Touch(c.UserContext(), id, email, time.Now())
		if err != nil {
			log.Errorf("auth: touch user %s: %v", id, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":   "store_unavailable",
				"message": "User could not be loaded",
			})
		}

		usercontext.Set(c, usercontext.UserContext{
			UserID:     user.ID,
			Email:      user.Email,
			IsLoggedIn: true,
		})
		return c.Next()
	}
}

// RequireAPIAuth rejects requests without an authenticated user context.
func RequireAPIAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return unauthorized(c, "login required")
	}
	return c.Next()
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error":   "unauthorized",
		"message": message,
	})
}
