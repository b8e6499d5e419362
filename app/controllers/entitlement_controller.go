package controllers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AskFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
	"github.com/ManuelReschke/AskFox/internal/pkg/usercontext"
)

// EntitlementReader returns the read-only entitlement projection.
type EntitlementReader interface {
	Get(ctx context.Context, userID string) (*entitlements.Entitlement, error)
}

type EntitlementController struct {
	reader EntitlementReader
}

func NewEntitlementController(reader EntitlementReader) *EntitlementController {
	return &EntitlementController{reader: reader}
}

// HandleGetEntitlement returns plan, limits and current usage of the caller.
func (ec *EntitlementController) HandleGetEntitlement(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	ent, err := ec.reader.Get(c.UserContext(), userID)
	if err != nil {
		log.Errorf("entitlement: get for user %s: %v", userID, err)
		if errors.Is(err, subscription.ErrUnknownUser) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_user", "message": "User not found"})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable", "message": "Try again later"})
	}
	return c.Status(fiber.StatusOK).JSON(ent)
}
