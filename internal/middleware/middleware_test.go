package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/observability"
)

func TestCorrelationIDPropagates(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString(middleware.GetCorrelationID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "req-42", resp.Header.Get("X-Correlation-ID"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)
	require.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
}

func TestCorrelationIDReplacesMalformedIDs(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())
	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.SendString(middleware.CorrelationIDFromContext(c.UserContext()))
	})

	for _, incoming := range []string{"abc def", "id\"}", strings.Repeat("a", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(middleware.HeaderCorrelationID, incoming)
		resp, err := app.Test(req)
		require.NoError(t, err)

		echoed := resp.Header.Get(middleware.HeaderCorrelationID)
		require.NotEqual(t, incoming, echoed)
		_, err = uuid.Parse(echoed)
		require.NoError(t, err, incoming)
	}
}

func TestObservabilityRecordsRouteMetrics(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.Observability(zerolog.Nop()))
	app.Get("/api/v2/judge/problems/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNotFound)
	})

	counter := observability.APIRequests().WithLabelValues(http.MethodGet, "/api/v2/judge/problems/:id", "404")
	errorsCounter := observability.APIErrors().WithLabelValues(http.MethodGet, "/api/v2/judge/problems/:id", "404")
	before := testutil.ToFloat64(counter)
	beforeErrors := testutil.ToFloat64(errorsCounter)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/judge/problems/7", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	require.Equal(t, before+1, testutil.ToFloat64(counter))
	require.Equal(t, beforeErrors+1, testutil.ToFloat64(errorsCounter))
}

func TestRateLimitRejectsBurst(t *testing.T) {
	app := fiber.New()
	app.Post("/run", middleware.RateLimit("judge", 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/run", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/run", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}

func TestRegisterLogsRecoveredPanics(t *testing.T) {
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	app := fiber.New()
	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: &bytes.Buffer{}})
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("grader exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(middleware.HeaderCorrelationID, "cid-7")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "cid-7", resp.Header.Get(middleware.HeaderCorrelationID))
	require.Contains(t, logs.String(), "grader exploded")
	require.Contains(t, logs.String(), `"correlation_id":"cid-7"`)
}

func TestRegisterAccessLogSkipsMetricsScrapes(t *testing.T) {
	var access bytes.Buffer
	app := fiber.New()
	middleware.Register(app, middleware.Config{AccessLog: &access})
	app.Get("/metrics", func(c *fiber.Ctx) error { return c.SendString("# metrics") })
	app.Get("/api/v2/judge/problems", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for _, path := range []string{"/metrics", "/api/v2/judge/problems"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(middleware.HeaderCorrelationID, "cid-9")
		_, err := app.Test(req)
		require.NoError(t, err)
	}

	require.Contains(t, access.String(), "/api/v2/judge/problems")
	require.Contains(t, access.String(), "cid=cid-9")
	require.NotContains(t, access.String(), "/metrics")
}

func TestRegisterRestrictsOrigins(t *testing.T) {
	app := fiber.New()
	middleware.Register(app, middleware.Config{
		AllowOrigins: []string{" https://gema.example/ ", ""},
		AccessLog:    &bytes.Buffer{},
	})
	app.Get("/api/v2/judge/problems", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v2/judge/problems", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://gema.example")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, "https://gema.example", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	require.Contains(t, resp.Header.Get(fiber.HeaderAccessControlExposeHeaders), middleware.HeaderCorrelationID)

	req = httptest.NewRequest(http.MethodGet, "/api/v2/judge/problems", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://elsewhere.example")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Empty(t, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}
