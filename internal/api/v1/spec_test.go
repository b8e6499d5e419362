package apiv1

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec("../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)

	for _, path := range []string{"/ping", "/entitlement", "/usage", "/account"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	usage := doc.Paths.Find("/usage").Post
	require.NotNil(t, usage)
	assert.NotNil(t, usage.Responses.Status(402))
	assert.NotNil(t, usage.Responses.Status(403))
}

type recordingServer struct {
	calls []string
}

func (r *recordingServer) GetPing(c *fiber.Ctx) error {
	r.calls = append(r.calls, "ping")
	return c.SendStatus(fiber.StatusOK)
}

func (r *recordingServer) GetEntitlement(c *fiber.Ctx) error {
	r.calls = append(r.calls, "entitlement")
	return c.SendStatus(fiber.StatusOK)
}

func (r *recordingServer) PostUsage(c *fiber.Ctx) error {
	r.calls = append(r.calls, "usage")
	return c.SendStatus(fiber.StatusOK)
}

func (r *recordingServer) DeleteAccount(c *fiber.Ctx) error {
	r.calls = append(r.calls, "account")
	return c.SendStatus(fiber.StatusNoContent)
}

func TestRegisterHandlersWithOptions_GuardsSecuredRoutes(t *testing.T) {
	srv := &recordingServer{}
	deny := func(c *fiber.Ctx) error {
		if c.Get("Authorization") == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.Next()
	}

	app := fiber.New()
	RegisterHandlersWithOptions(app.Group("/api/v1"), srv, FiberServerOptions{AuthMiddlewares: []MiddlewareFunc{deny}})

	status := func(method, path string, auth bool) int {
		req := httptest.NewRequest(method, path, nil)
		if auth {
			req.Header.Set("Authorization", "Bearer x")
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, status(fiber.MethodGet, "/api/v1/ping", false))
	assert.Equal(t, fiber.StatusUnauthorized, status(fiber.MethodGet, "/api/v1/entitlement", false))
	assert.Equal(t, fiber.StatusUnauthorized, status(fiber.MethodPost, "/api/v1/usage", false))
	assert.Equal(t, fiber.StatusOK, status(fiber.MethodGet, "/api/v1/entitlement", true))
	assert.Equal(t, fiber.StatusOK, status(fiber.MethodPost, "/api/v1/usage", true))
	assert.Equal(t, fiber.StatusUnauthorized, status(fiber.MethodDelete, "/api/v1/account", false))
	assert.Equal(t, fiber.StatusNoContent, status(fiber.MethodDelete, "/api/v1/account", true))
	assert.Equal(t, []string{"ping", "entitlement", "usage", "account"}, srv.calls)
}
