package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/handler"
)

func TestHealthCheck(t *testing.T) {
	cfg := config.Config{
		AppName:      "GEMA Judge",
		AppEnv:       "test",
		JudgeBackend: config.JudgeBackendJudge0,
	}

	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(cfg, handler.DependencyCheck{
		Name:  "database",
		Check: func(context.Context) error { return nil },
	}))

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/health", nil), -1)
	if err != nil {
		t.Fatalf("failed to execute request: %v", err)
	}

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload handler.HealthResponse
	body := decodeEnvelope(t, resp, &payload)
	assert.True(t, body.Success)
	assert.Equal(t, "ok", payload.Status)
	assert.Equal(t, cfg.AppName, payload.Service)
	assert.Equal(t, cfg.AppEnv, payload.Environment)
	assert.Equal(t, "judge0", payload.JudgeBackend)
	assert.Equal(t, map[string]string{"database": "ok"}, payload.Dependencies)
	assert.WithinDuration(t, time.Now().UTC(), payload.Timestamp, 2*time.Second)
}

func TestHealthCheckDegraded(t *testing.T) {
	app := fiber.New()
	app.Get("/api/v1/health", handler.HealthCheck(config.Config{AppName: "GEMA Judge"},
		handler.DependencyCheck{Name: "database", Check: func(context.Context) error { return nil }},
		handler.DependencyCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	))

	resp, err := app.Test(jsonRequest(t, http.MethodGet, "/api/v1/health", nil), -1)
	if err != nil {
		t.Fatalf("failed to execute request: %v", err)
	}

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var payload handler.HealthResponse
	body := decodeEnvelope(t, resp, &payload)
	assert.Equal(t, "service degraded", body.Message)
	assert.Equal(t, "degraded", payload.Status)
	assert.Equal(t, "connection refused", payload.Dependencies["redis"])
	assert.Equal(t, "ok", payload.Dependencies["database"])
}
