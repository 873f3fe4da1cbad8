package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

// handleError maps service and pipeline failures onto HTTP statuses.
func handleError(c *fiber.Ctx, logger *zerolog.Logger, err error) error {
	var (
		validationErrors validator.ValidationErrors
		submissionErr    *pipeline.SubmissionError
		pollErr          *pipeline.PollError
		persistenceErr   *pipeline.PersistenceError
	)

	switch {
	case errors.As(err, &validationErrors):
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", validationDetails(validationErrors))
	case errors.Is(err, service.ErrUnsupportedLanguage):
		return utils.SendError(c, fiber.StatusBadRequest, "language not supported")
	case errors.Is(err, service.ErrProblemNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "problem not found")
	case errors.Is(err, service.ErrExamSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "exam session not found")
	case errors.Is(err, service.ErrQuestionNotExamable):
		return utils.SendError(c, fiber.StatusForbidden, "question is not available for exams")
	case errors.Is(err, service.ErrExamFinalized):
		return utils.SendError(c, fiber.StatusConflict, "exam already submitted")
	case errors.Is(err, service.ErrNoPendingConfirmation):
		return utils.SendError(c, fiber.StatusConflict, "no submission awaiting confirmation")
	case errors.Is(err, service.ErrProblemMisconfigured), errors.Is(err, pipeline.ErrNoTestCases), errors.Is(err, codegen.ErrInputMismatch):
		logger.Error().Err(err).Msg("problem misconfigured")
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "problem is misconfigured")
	case errors.As(err, &persistenceErr):
		logger.Error().Err(err).Str("op", persistenceErr.Op).Msg("submission store unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "could not save submission, please retry")
	case errors.As(err, &submissionErr), errors.As(err, &pollErr), errors.Is(err, pipeline.ErrPollTimeout):
		logger.Error().Err(err).Msg("judge request failed")
		return utils.SendError(c, fiber.StatusBadGateway, "judge unavailable, please retry")
	default:
		logger.Error().Err(err).Msg("judge operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
