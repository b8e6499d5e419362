package router

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AskFox/app/controllers"
	"github.com/ManuelReschke/AskFox/app/repository"
	"github.com/ManuelReschke/AskFox/internal/pkg/billing"
	"github.com/ManuelReschke/AskFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/AskFox/internal/pkg/metering"
	"github.com/ManuelReschke/AskFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/AskFox/internal/pkg/subscription"
	"github.com/ManuelReschke/AskFox/internal/pkg/testutil"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db := testutil.NewTestDB(t)
	store := subscription.NewStore(db)
	ents := entitlements.NewService(store, nil, 0)

	app := fiber.New()
	InstallRouter(app, Dependencies{
		DB: db,
		Controllers: &controllers.Controllers{
			Billing:     controllers.NewBillingController(billing.NewServiceFromDB(db), billing.NewStripeVerifier(""), billing.NewPayPalVerifier("", "", "", "http://127.0.0.1:1")),
			Usage:       controllers.NewUsageController(metering.NewService(store, metering.WithNotifier(ents))),
			Entitlement: controllers.NewEntitlementController(ents),
			Account:     controllers.NewAccountController(repository.NewUserRepository(db), ents),
		},
		Users:        repository.NewUserRepository(db),
		RateLimit:    ratelimit.Config{Max: 100, Expiration: time.Minute},
		MonitorUsers: map[string]string{"admin": "secret"},
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func TestOpsRoutes(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, fiber.MethodGet, "/healthz", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"ok"`)

	status, body = do(t, app, fiber.MethodGet, "/metrics", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "go_goroutines")

	status, _ = do(t, app, fiber.MethodGet, "/monitor", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = do(t, app, fiber.MethodGet, "/api/v1/ping", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, "pong")
}

func TestAPI_LocalUserFlow(t *testing.T) {
	// A nil verifier runs every request as the local development user.
	app := newTestApp(t)

	status, body := do(t, app, fiber.MethodGet, "/api/v1/entitlement", "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body, `"plan":"FREE"`)

	status, body = do(t, app, fiber.MethodPost, "/api/v1/usage", `{"kind":"question"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Contains(t, body, `"used":1`)

	status, body = do(t, app, fiber.MethodGet, "/api/v1/entitlement", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"questions_used":1`)

	// Deleting the account drops the usage; the next request starts fresh.
	status, _ = do(t, app, fiber.MethodDelete, "/api/v1/account", "")
	require.Equal(t, fiber.StatusNoContent, status)

	status, body = do(t, app, fiber.MethodGet, "/api/v1/entitlement", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body, `"questions_used":0`)
}

func TestWebhookRoutes_FailClosedWithoutCredentials(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, fiber.MethodPost, "/webhooks/stripe", `{"id":"evt_1"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, body, "provider_not_configured")

	status, _ = do(t, app, fiber.MethodPost, "/webhooks/paypal", `{"id":"WH-1"}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
}

func TestHealthz_DatabaseDown(t *testing.T) {
	db := testutil.NewTestDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	app := fiber.New()
	h := NewHttpRouter(Dependencies{DB: db})
	app.Get("/healthz", h.handleHealthz)

	req := httptest.NewRequest(fiber.MethodGet, "/healthz", nil).WithContext(context.Background())
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
