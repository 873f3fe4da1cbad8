package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
	"github.com/noah-isme/gema-judge/pkg/submissionapi"
)

// PersistenceHandler serves the submission persistence API consumed by submissionapi.Client.
// Bodies are bare JSON objects rather than the response envelope.
type PersistenceHandler struct {
	store     pipeline.Store
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewPersistenceHandler builds a persistence handler on top of a submission store.
func NewPersistenceHandler(store pipeline.Store, validate *validator.Validate, logger zerolog.Logger) *PersistenceHandler {
	if validate == nil {
		validate = service.NewValidator()
	}
	return &PersistenceHandler{
		store:     store,
		validator: validate,
		logger:    logger.With().Str("component", "persistence_handler").Logger(),
	}
}

// Register wires the persistence routes.
func (h *PersistenceHandler) Register(router fiber.Router) {
	router.Post("/create-submission", h.create)
	router.Put("/update-submission/:id", h.update)
	router.Get("/submission-by-question/:questionId", h.byQuestion)
}

func (h *PersistenceHandler) create(c *fiber.Ctx) error {
	record, err := h.parsePayload(c)
	if err != nil {
		return payloadError(c, err)
	}

	id, err := h.store.Create(c.UserContext(), record)
	if err != nil {
		return h.storeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(submissionapi.Created{SubmissionID: id})
}

func (h *PersistenceHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return rawError(c, fiber.StatusBadRequest, err.Error())
	}
	record, err := h.parsePayload(c)
	if err != nil {
		return payloadError(c, err)
	}

	if err := h.store.Update(c.UserContext(), id, record); err != nil {
		return h.storeError(c, err)
	}

	return c.JSON(submissionapi.Created{SubmissionID: id})
}

func (h *PersistenceHandler) byQuestion(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionId")
	if err != nil {
		return rawError(c, fiber.StatusBadRequest, err.Error())
	}
	studentID, err := parseQueryUint(c, "studentId")
	if err != nil {
		return rawError(c, fiber.StatusBadRequest, err.Error())
	}

	record, err := h.store.GetByQuestion(c.UserContext(), studentID, questionID)
	if err != nil {
		return h.storeError(c, err)
	}

	payload := submissionapi.EncodePayload(record)
	return c.JSON(submissionapi.Saved{
		SubmissionID: record.SubmissionID,
		Code:         payload.Code,
		LanguageID:   payload.LanguageID,
		StudentID:    payload.StudentID,
		QuestionID:   payload.QuestionID,
		IsSubmitted:  payload.IsSubmitted,
	})
}

func (h *PersistenceHandler) parsePayload(c *fiber.Ctx) (pipeline.Record, error) {
	var payload submissionapi.Payload
	if err := c.BodyParser(&payload); err != nil {
		return pipeline.Record{}, errors.New("invalid payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return pipeline.Record{}, err
	}

	code, err := submissionapi.DecodeCode(payload.Code)
	if err != nil {
		return pipeline.Record{}, errors.New("code must be base64 encoded")
	}

	return pipeline.Record{
		Code:        code,
		LanguageID:  codegen.Language(payload.LanguageID),
		StudentID:   payload.StudentID,
		QuestionID:  payload.QuestionID,
		IsSubmitted: payload.IsSubmitted,
	}, nil
}

func (h *PersistenceHandler) storeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrNoSubmission), errors.Is(err, service.ErrSubmissionNotFound):
		return rawError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, repository.ErrSubmissionFinalized):
		return rawError(c, fiber.StatusConflict, "submission already finalized")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("submission store failed")
		return rawError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func payloadError(c *fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "invalid payload",
			"details": validationDetails(validationErrs),
		})
	}
	return rawError(c, fiber.StatusBadRequest, err.Error())
}

func rawError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
