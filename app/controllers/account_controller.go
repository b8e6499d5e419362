package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AskFox/internal/pkg/usercontext"
)

// AccountDeleter removes a user. The subscription record is deleted with it.
type AccountDeleter interface {
	Delete(ctx context.Context, id string) error
}

// Invalidator drops cached state of a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string)
}

type AccountController struct {
	users AccountDeleter
	cache Invalidator
}

// NewAccountController creates the account controller. cache may be nil.
func NewAccountController(users AccountDeleter, cache Invalidator) *AccountController {
	return &AccountController{users: users, cache: cache}
}

// HandleDeleteAccount deletes the caller and their subscription record.
func (ac *AccountController) HandleDeleteAccount(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	if err := ac.users.Delete(c.UserContext(), userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_user", "message": "User not found"})
		}
		log.Errorf("account: delete user %s: %v", userID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable", "message": "Try again later"})
	}
	if ac.cache != nil {
		ac.cache.Invalidate(c.UserContext(), userID)
	}

	log.Infof("account: deleted user %s", userID)
	return c.SendStatus(fiber.StatusNoContent)
}
