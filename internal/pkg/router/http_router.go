package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	h.registerOpsRoutes(app)
	h.registerPublicRoutes(app)
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) registerOpsRoutes(app *fiber.App) {
	app.Get("/healthz", h.handleHealthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if len(h.deps.MonitorUsers) > 0 {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: h.deps.MonitorUsers,
		}), monitor.New(monitor.Config{Title: "AskFox Monitor"}))
	}
}

func (h HttpRouter) handleHealthz(c *fiber.Ctx) error {
	if h.deps.DB == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "database": "not configured"})
	}
	sqlDB, err := h.deps.DB.DB()
	if err == nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		log.Warnf("healthz: database ping failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "down", "database": "unreachable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
