package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AskFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/AskFox/internal/pkg/metering"
	"github.com/ManuelReschke/AskFox/internal/pkg/plans"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
	"github.com/ManuelReschke/AskFox/internal/pkg/usercontext"
)

var validate = validator.New()

// Consumer is the metering gate.
type Consumer interface {
	CheckAndConsume(ctx context.Context, userID string, kind plans.Kind) (*metering.Usage, error)
}

// UsageRequest is the body of POST /api/v1/usage.
type UsageRequest struct {
	Kind string `json:"kind" validate:"required,oneof=question document"`
}

// UsageResponse is the counter state after a consumed action.
type UsageResponse struct {
	Kind       plans.Kind         `json:"kind"`
	Plan       plans.ID           `json:"plan"`
	Used       int                `json:"used"`
	Limit      entitlements.Limit `json:"limit"`
	Remaining  entitlements.Limit `json:"remaining"`
	ValidUntil time.Time          `json:"valid_until"`
}

type UsageController struct {
	meter Consumer
}

func NewUsageController(meter Consumer) *UsageController {
	return &UsageController{meter: meter}
}

// HandleConsume records one metered action for the authenticated user.
func (uc *UsageController) HandleConsume(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
	}

	var req UsageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid JSON body"})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "kind must be question or document"})
	}

	usage, err := uc.meter.CheckAndConsume(c.UserContext(), userID, plans.Kind(req.Kind))
	if err != nil {
		return writeUsageError(c, userID, err)
	}

	return c.Status(fiber.StatusOK).JSON(UsageResponse{
		Kind:       usage.Kind,
		Plan:       usage.Plan,
		Used:       usage.Used,
		Limit:      entitlements.Limit(usage.Limit),
		Remaining:  entitlements.Limit(usage.Remaining()),
		ValidUntil: usage.ValidUntil,
	})
}

func writeUsageError(c *fiber.Ctx, userID string, err error) error {
	var denied *metering.EntitlementError
	switch {
	case errors.As(err, &denied) && denied.Reason == metering.ReasonQuotaExceeded:
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":   string(metering.ReasonQuotaExceeded),
			"message": denied.Error(),
			"kind":    denied.Kind,
			"used":    denied.Used,
			"limit":   entitlements.Limit(denied.Limit),
		})
	case errors.As(err, &denied):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   string(metering.ReasonSubscriptionInactive),
			"message": denied.Error(),
			"status":  denied.Status,
		})
	case errors.Is(err, subscription.ErrUnknownUser):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown_user", "message": "User not found"})
	case errors.Is(err, subscription.ErrStoreUnavailable):
		log.Errorf("usage: consume for user %s: %v", userID, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "store_unavailable", "message": "Try again later"})
	default:
		log.Errorf("usage: consume for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Usage could not be recorded"})
	}
}
