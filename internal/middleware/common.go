package middleware

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

// HeaderSeedToken authorises the seed endpoints.
const HeaderSeedToken = "X-Seed-Token"

const accessLogFormat = "${time} ${status} ${method} ${path} ${latency} cid=${locals:correlation_id}\n"

// Config customises the middleware registration pipeline.
type Config struct {
	Logger *zerolog.Logger
	// AllowOrigins lists the browser origins allowed to call the judge; empty allows any.
	AllowOrigins []string
	// AccessLog receives the access log lines. Defaults to stdout.
	AccessLog io.Writer
}

// Register attaches the common middlewares used across the API.
func Register(app *fiber.App, cfg Config) {
	requestLogger := zerolog.New(io.Discard)
	if cfg.Logger != nil {
		requestLogger = *cfg.Logger
	}
	accessLog := cfg.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	app.Use(CorrelationID())
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, e interface{}) {
			requestLogger.Error().
				Str("correlation_id", GetCorrelationID(c)).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Str("panic", fmt.Sprint(e)).
				Msg("recovered from handler panic")
		},
	}))
	app.Use(Observability(requestLogger))
	app.Use(logger.New(logger.Config{
		Format: accessLogFormat,
		Output: accessLog,
		Next:   skipAccessLog,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins(cfg.AllowOrigins),
		AllowHeaders:  strings.Join([]string{"Origin", "Content-Type", "Accept", HeaderCorrelationID, HeaderRequestID, HeaderSeedToken}, ", "),
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: strings.Join([]string{HeaderCorrelationID, fiber.HeaderRetryAfter}, ", "),
	}))
}

// skipAccessLog keeps metric scrapes and long-lived exam streams out of the access log.
func skipAccessLog(c *fiber.Ctx) bool {
	return c.Path() == "/metrics" || websocket.IsWebSocketUpgrade(c)
}

func allowOrigins(origins []string) string {
	cleaned := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			cleaned = append(cleaned, origin)
		}
	}
	if len(cleaned) == 0 {
		return "*"
	}
	return strings.Join(cleaned, ",")
}
