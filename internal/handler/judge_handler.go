package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// JudgeHandler exposes ad-hoc runs and graded submissions.
type JudgeHandler struct {
	service service.JudgeService
	logger  zerolog.Logger
}

// NewJudgeHandler builds a new judge handler.
func NewJudgeHandler(service service.JudgeService, logger zerolog.Logger) *JudgeHandler {
	return &JudgeHandler{
		service: service,
		logger:  logger.With().Str("component", "judge_handler").Logger(),
	}
}

// Register wires the handler routes. The middlewares run in front of both judge calls.
func (h *JudgeHandler) Register(router fiber.Router, middlewares ...fiber.Handler) {
	router.Post("/run", chain(middlewares, h.run)...)
	router.Post("/submit", chain(middlewares, h.submit)...)
}

func chain(middlewares []fiber.Handler, final fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(middlewares)+1)
	handlers = append(handlers, middlewares...)
	return append(handlers, final)
}

func (h *JudgeHandler) run(c *fiber.Ctx) error {
	var req dto.RunRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Run(c.UserContext(), req)
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "code executed", result)
}

func (h *JudgeHandler) submit(c *fiber.Ctx) error {
	var req dto.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	logger := requestLogger(h.logger, c)
	result, err := h.service.Submit(c.UserContext(), req)
	if err != nil {
		return handleError(c, logger, err)
	}

	logger.Info().
		Uint("problem_id", req.ProblemID).
		Int("passed", result.Passed).
		Int("total", result.Total).
		Msg("submission graded")

	return utils.SendSuccess(c, "submission graded", result)
}
