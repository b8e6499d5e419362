package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AskFox/internal/pkg/billing"
	"github.com/ManuelReschke/AskFox/internal/pkg/metrics"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
)

const webhookTimeout = 15 * time.Second

// DeliveryHandler verifies and reconciles one provider webhook delivery.
type DeliveryHandler interface {
	HandleDelivery(ctx context.Context, v billing.Verifier, payload []byte, headers billing.HeaderGetter) (*billing.Result, error)
}

// BillingController serves the provider webhook endpoints.
type BillingController struct {
	deliveries DeliveryHandler
	stripe     billing.Verifier
	paypal     billing.Verifier
}

func NewBillingController(deliveries DeliveryHandler, stripe, paypal billing.Verifier) *BillingController {
	return &BillingController{deliveries: deliveries, stripe: stripe, paypal: paypal}
}

func (bc *BillingController) HandleStripeWebhook(c *fiber.Ctx) error {
	return bc.handle(c, bc.stripe)
}

func (bc *BillingController) HandlePayPalWebhook(c *fiber.Ctx) error {
	return bc.handle(c, bc.paypal)
}

func (bc *BillingController) handle(c *fiber.Ctx, v billing.Verifier) error {
	start := time.Now()
	provider := v.Provider()
	defer func() {
		metrics.WebhookDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	rawBody := append([]byte(nil), c.BodyRaw()...)
	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	res, err := bc.deliveries.HandleDelivery(ctx, v, rawBody, fiberHeaders{c})
	if err != nil {
		status, code := webhookError(err)
		metrics.WebhookRequestsTotal.WithLabelValues(provider, code).Inc()
		if status >= fiber.StatusInternalServerError {
			log.Errorf("billing: %s webhook failed: %v", provider, err)
		} else {
			log.Warnf("billing: %s webhook rejected: %v", provider, err)
		}
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	metrics.WebhookRequestsTotal.WithLabelValues(provider, string(res.Outcome)).Inc()
	body := fiber.Map{"ok": true}
	switch res.Outcome {
	case billing.OutcomeDuplicate:
		body["duplicate"] = true
	case billing.OutcomeIgnored:
		body["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// webhookError maps a delivery failure to an HTTP status. Permanent failures
// answer 4xx so the provider stops retrying; transient ones answer 5xx.
func webhookError(err error) (int, string) {
	switch {
	case errors.Is(err, billing.ErrNotConfigured):
		return fiber.StatusServiceUnavailable, "provider_not_configured"
	case errors.Is(err, billing.ErrUnverifiedEvent):
		return fiber.StatusBadRequest, "invalid_signature"
	case errors.Is(err, billing.ErrMalformedEvent):
		return fiber.StatusBadRequest, "invalid_payload"
	case errors.Is(err, billing.ErrProviderUnavailable):
		return fiber.StatusServiceUnavailable, "provider_unavailable"
	case errors.Is(err, subscription.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable, "store_unavailable"
	default:
		return fiber.StatusInternalServerError, "subscription_sync_failed"
	}
}

// fiberHeaders exposes request headers to the verifiers.
type fiberHeaders struct {
	c *fiber.Ctx
}

func (h fiberHeaders) Get(key string) string {
	return h.c.Get(key)
}
