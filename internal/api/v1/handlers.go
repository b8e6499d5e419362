package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/AskFox/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	usage       *controllers.UsageController
	entitlement *controllers.EntitlementController
	account     *controllers.AccountController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(c *controllers.Controllers) *APIServer {
	return &APIServer{usage: c.Usage, entitlement: c.Entitlement, account: c.Account}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetEntitlement returns the caller's plan, limits and usage.
func (s *APIServer) GetEntitlement(c *fiber.Ctx) error {
	return s.entitlement.HandleGetEntitlement(c)
}

// PostUsage consumes one metered action of the requested kind.
func (s *APIServer) PostUsage(c *fiber.Ctx) error {
	return s.usage.HandleConsume(c)
}

// DeleteAccount removes the caller and their subscription record.
func (s *APIServer) DeleteAccount(c *fiber.Ctx) error {
	return s.account.HandleDeleteAccount(c)
}
