package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ProblemHandler     *handler.ProblemHandler
	JudgeHandler       *handler.JudgeHandler
	ExamHandler        *handler.ExamHandler
	PersistenceHandler *handler.PersistenceHandler
	SeedHandler        *handler.SeedHandler
	HealthChecks       []handler.DependencyCheck
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks...))
	app.Get("/metrics", observability.MetricsHandler())

	judge := app.Group("/api/v2/judge")
	if deps.ProblemHandler != nil {
		deps.ProblemHandler.Register(judge)
	}
	if deps.JudgeHandler != nil {
		deps.JudgeHandler.Register(judge, middleware.RateLimit("judge", cfg.RunRateLimit, cfg.RunRateWindow))
	}
	if deps.ExamHandler != nil {
		deps.ExamHandler.Register(judge.Group("/exams"))
	}

	// Submission persistence API, bare paths for existing clients
	if deps.PersistenceHandler != nil {
		deps.PersistenceHandler.Register(app)
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(app.Group("/api/seed"))
	}
}
