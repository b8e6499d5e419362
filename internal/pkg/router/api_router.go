package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/ManuelReschke/AskFox/internal/api/v1"
	"github.com/ManuelReschke/AskFox/internal/pkg/middleware"
	"github.com/ManuelReschke/AskFox/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps Dependencies
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(h.deps.Controllers)
	apiv1.RegisterHandlersWithOptions(v1, apiServer, apiv1.FiberServerOptions{
		AuthMiddlewares: []apiv1.MiddlewareFunc{
			apiv1.MiddlewareFunc(middleware.BearerAuth(h.deps.Verifier, h.deps.Users)),
			middleware.RequireAPIAuth,
			apiv1.MiddlewareFunc(ratelimit.New(h.deps.RateLimit)),
		},
	})
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}
