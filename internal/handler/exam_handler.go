package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/middleware"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/internal/utils"
)

// Close codes sent on the exam status stream.
const (
	closeSessionNotFound = 4404
	closeStreamFailed    = 4500
)

// ExamHandler exposes the exam session lifecycle.
type ExamHandler struct {
	service        service.ExamService
	logger         zerolog.Logger
	streamInterval time.Duration
}

// NewExamHandler builds a new exam handler. streamInterval paces the websocket status stream.
func NewExamHandler(service service.ExamService, logger zerolog.Logger, streamInterval time.Duration) *ExamHandler {
	if streamInterval <= 0 {
		streamInterval = time.Second
	}
	return &ExamHandler{
		service:        service,
		logger:         logger.With().Str("component", "exam_handler").Logger(),
		streamInterval: streamInterval,
	}
}

// Register wires the handler routes into the router group.
func (h *ExamHandler) Register(router fiber.Router) {
	router.Post("", h.start)
	router.Get("/:session", h.status)
	router.Get("/:session/ws", h.upgrade, websocket.New(h.stream))
	router.Put("/:session/code", h.updateCode)
	router.Post("/:session/submit", h.submit)
	router.Post("/:session/confirm", h.confirm)
	router.Delete("/:session", h.end)
}

func (h *ExamHandler) start(c *fiber.Ctx) error {
	var req dto.StartExamRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.service.Start(c.UserContext(), req)
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	status := fiber.StatusCreated
	if session.Resumed {
		status = fiber.StatusOK
	}
	return utils.SendSuccessWithStatus(c, status, "exam session started", session)
}

func (h *ExamHandler) status(c *fiber.Ctx) error {
	session, err := h.service.Status(c.UserContext(), sessionParam(c))
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "exam session retrieved", session)
}

func (h *ExamHandler) updateCode(c *fiber.Ctx) error {
	var req dto.UpdateCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	session, err := h.service.UpdateCode(c.UserContext(), sessionParam(c), req)
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "code updated", session)
}

func (h *ExamHandler) submit(c *fiber.Ctx) error {
	var req dto.ExamSubmitRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	logger := requestLogger(h.logger, c)
	result, err := h.service.Submit(c.UserContext(), sessionParam(c), req)
	if err != nil {
		return handleError(c, logger, err)
	}

	logger.Info().Str("session_id", sessionParam(c)).Str("status", result.Status).Msg("exam submitted")
	return utils.SendSuccess(c, "exam submitted", result)
}

func (h *ExamHandler) confirm(c *fiber.Ctx) error {
	var req dto.ConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.Confirm(c.UserContext(), sessionParam(c), req)
	if err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "confirmation recorded", result)
}

func (h *ExamHandler) end(c *fiber.Ctx) error {
	id := sessionParam(c)
	if err := h.service.End(c.UserContext(), id); err != nil {
		return handleError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "exam session closed", fiber.Map{"session_id": id})
}

func (h *ExamHandler) upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	c.Locals("request_ctx", middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c)))
	return c.Next()
}

// stream pushes the session status every interval until the answer is final or the client leaves.
func (h *ExamHandler) stream(conn *websocket.Conn) {
	defer conn.Close()

	id := strings.TrimSpace(conn.Params("session"))
	ctx, _ := conn.Locals("request_ctx").(context.Context)
	if ctx == nil {
		ctx = context.Background()
	}
	logger := h.logger.With().Str("session_id", id).Str("correlation_id", middleware.CorrelationIDFromContext(ctx)).Logger()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	logger.Debug().Msg("exam stream connected")
	for {
		session, err := h.service.Status(ctx, id)
		if err != nil {
			code, text := closeStreamFailed, "status unavailable"
			if errors.Is(err, service.ErrExamSessionNotFound) {
				code, text = closeSessionNotFound, "exam session not found"
			} else {
				logger.Error().Err(err).Msg("exam stream status failed")
			}
			closeStream(conn, code, text)
			return
		}

		if err := conn.WriteJSON(session); err != nil {
			return
		}
		if session.Finalized {
			closeStream(conn, websocket.CloseNormalClosure, "exam finished")
			return
		}

		select {
		case <-ticker.C:
		case <-gone:
			logger.Debug().Msg("exam stream disconnected")
			return
		}
	}
}

func closeStream(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
}

func sessionParam(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("session"))
}
