package router_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/router"
	"github.com/noah-isme/gema-judge/internal/service"
)

func TestRegisterMountsRoutes(t *testing.T) {
	cfg := config.Config{AppName: "GEMA Judge", AppEnv: "test", RunRateLimit: 1, RunRateWindow: time.Minute}
	app := fiber.New()
	router.Register(app, cfg, router.Dependencies{
		ProblemHandler: handler.NewProblemHandler(service.NewProblemService(nil, nil, nil, time.Minute, zerolog.Nop()), zerolog.Nop()),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "GEMA Judge", resp.Header.Get("X-Application"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v2/judge/languages", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v2/judge/run", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
