package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// ProblemHandler exposes the problem catalogue and boilerplate endpoints.
type ProblemHandler struct {
	service service.ProblemService
	logger  zerolog.Logger
}

// NewProblemHandler builds a new problem handler.
func NewProblemHandler(service service.ProblemService, logger zerolog.Logger) *ProblemHandler {
	return &ProblemHandler{
		service: service,
		logger:  logger.With().Str("component", "problem_handler").Logger(),
	}
}

// Register wires the handler routes into the router group.
func (h *ProblemHandler) Register(router fiber.Router) {
	router.Get("/languages", h.languages)
	router.Get("/problems", h.list)
	router.Get("/problems/:id", h.get)
	router.Get("/problems/:id/boilerplate", h.boilerplate)
}

func (h *ProblemHandler) languages(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "languages retrieved", h.service.Languages())
}

func (h *ProblemHandler) list(c *fiber.Ctx) error {
	filter := dto.ProblemFilter{
		Difficulty:     c.Query("difficulty"),
		Search:         c.Query("search"),
		IncludePreview: c.QueryBool("include_preview"),
	}
	if page, err := parseQueryInt(c, "page"); err == nil {
		filter.Page = page
	}
	if pageSize, err := parseQueryInt(c, "page_size"); err == nil {
		filter.PageSize = pageSize
	}

	problems, err := h.service.List(c.Context(), filter)
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "problems retrieved", problems)
}

func (h *ProblemHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	problem, err := h.service.Get(c.Context(), id)
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "problem retrieved", problem)
}

func (h *ProblemHandler) boilerplate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	languageID, err := parseQueryInt(c, "language_id")
	if err != nil || languageID <= 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "language_id is required")
	}

	code, err := h.service.Boilerplate(c.Context(), id, languageID)
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "boilerplate generated", code)
}
