package router

import (
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Billing provider webhooks (signature-verified in controller)
	billing := h.deps.Controllers.Billing
	app.Post("/webhooks/stripe", billing.HandleStripeWebhook)
	app.Post("/webhooks/paypal", billing.HandlePayPalWebhook)
}
