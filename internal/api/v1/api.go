package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface represents all server handlers of public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /entitlement)
	GetEntitlement(c *fiber.Ctx) error
	// (POST /usage)
	PostUsage(c *fiber.Ctx) error
	// (DELETE /account)
	DeleteAccount(c *fiber.Ctx) error
}

// ServerInterfaceWrapper converts fiber contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// MiddlewareFunc runs before an authenticated operation.
type MiddlewareFunc fiber.Handler

func (siw *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return siw.Handler.GetPing(c)
}

func (siw *ServerInterfaceWrapper) GetEntitlement(c *fiber.Ctx) error {
	return siw.Handler.GetEntitlement(c)
}

func (siw *ServerInterfaceWrapper) PostUsage(c *fiber.Ctx) error {
	return siw.Handler.PostUsage(c)
}

func (siw *ServerInterfaceWrapper) DeleteAccount(c *fiber.Ctx) error {
	return siw.Handler.DeleteAccount(c)
}

// FiberServerOptions provides options for the Fiber server.
type FiberServerOptions struct {
	// AuthMiddlewares guard every operation that declares bearerAuth.
	AuthMiddlewares []MiddlewareFunc
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, FiberServerOptions{})
}

// RegisterHandlersWithOptions creates http.Handler with additional options
func RegisterHandlersWithOptions(router fiber.Router, si ServerInterface, options FiberServerOptions) {
	wrapper := ServerInterfaceWrapper{
		Handler: si,
	}

	secured := make([]fiber.Handler, 0, len(options.AuthMiddlewares))
	for _, m := range options.AuthMiddlewares {
		secured = append(secured, fiber.Handler(m))
	}

	guard := func(h fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, secured...), h)
	}

	router.Get("/ping", wrapper.GetPing)
	router.Get("/entitlement", guard(wrapper.GetEntitlement)...)
	router.Post("/usage", guard(wrapper.PostUsage)...)
	router.Delete("/account", guard(wrapper.DeleteAccount)...)
}
