package router

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AskFox/app/controllers"
	"github.com/ManuelReschke/AskFox/internal/pkg/middleware"
	"github.com/ManuelReschke/AskFox/internal/pkg/ratelimit"
)

// Router mounts a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies carries everything the routers mount.
type Dependencies struct {
	DB          *gorm.DB
	Controllers *controllers.Controllers
	// Verifier is nil when authentication is disabled for local development.
	Verifier  middleware.TokenVerifier
	Users     middleware.UserToucher
	RateLimit ratelimit.Config
	// MonitorUsers enables the fiber monitor page behind basic auth.
	MonitorUsers map[string]string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Ops and webhook routes first; the API group adds its own auth chain.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
