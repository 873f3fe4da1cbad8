package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/utils"
)

const dependencyTimeout = 2 * time.Second

// DependencyCheck checks one dependency of the service.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Service      string            `json:"service"`
	Environment  string            `json:"environment"`
	JudgeBackend string            `json:"judge_backend"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck returns a handler that reports application health. Any failing check
// marks the service degraded and answers 503.
func HealthCheck(cfg config.Config, checks ...DependencyCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:       "ok",
			Timestamp:    time.Now().UTC(),
			Service:      cfg.AppName,
			Environment:  cfg.AppEnv,
			JudgeBackend: cfg.JudgeBackend,
		}

		if len(checks) > 0 {
			ctx, cancel := context.WithTimeout(c.UserContext(), dependencyTimeout)
			defer cancel()

			payload.Dependencies = make(map[string]string, len(checks))
			for _, check := range checks {
				if err := check.Check(ctx); err != nil {
					payload.Dependencies[check.Name] = err.Error()
					payload.Status = "degraded"
					continue
				}
				payload.Dependencies[check.Name] = "ok"
			}
		}

		if payload.Status != "ok" {
			return utils.SendSuccessWithStatus(c, fiber.StatusServiceUnavailable, "service degraded", payload)
		}
		return utils.OK(c, payload, "service healthy", nil)
	}
}
