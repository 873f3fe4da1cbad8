package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

type stubJudgeService struct {
	run     dto.RunResponse
	grade   dto.GradeResponse
	err     error
	lastRun dto.RunRequest
	lastSub dto.SubmitRequest
}

func (s *stubJudgeService) Run(_ context.Context, req dto.RunRequest) (dto.RunResponse, error) {
	s.lastRun = req
	return s.run, s.err
}

func (s *stubJudgeService) Submit(_ context.Context, req dto.SubmitRequest) (dto.GradeResponse, error) {
	s.lastSub = req
	return s.grade, s.err
}

func newJudgeApp(svc service.JudgeService, middlewares ...fiber.Handler) *fiber.App {
	app := fiber.New()
	handler.NewJudgeHandler(svc, zerolog.Nop()).Register(app.Group("/api/v2/judge"), middlewares...)
	return app
}

func TestJudgeHandler_Run(t *testing.T) {
	svc := &stubJudgeService{run: dto.RunResponse{Token: "t", StatusID: 3, Kind: "stdout", Output: "3"}}
	app := newJudgeApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/judge/run", dto.RunRequest{SourceCode: "print(3)", LanguageID: 71, Stdin: "1 2"}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data dto.RunResponse
	decodeEnvelope(t, resp, &data)
	require.Equal(t, "3", data.Output)
	require.Equal(t, "1 2", svc.lastRun.Stdin)
}

func TestJudgeHandler_SubmitReturnsGrade(t *testing.T) {
	actual := "[0,1]"
	svc := &stubJudgeService{grade: dto.GradeResponse{
		Outcomes: []dto.OutcomeResponse{{Index: 0, Passed: true, Expected: []int{0, 1}, Actual: &actual, StatusID: 3}},
		Passed:   1,
		Total:    1,
	}}
	app := newJudgeApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/judge/submit", dto.SubmitRequest{ProblemID: 1, SourceCode: "x", LanguageID: 71}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data dto.GradeResponse
	body := decodeEnvelope(t, resp, &data)
	require.Equal(t, "submission graded", body.Message)
	require.Equal(t, 1, data.Passed)
	require.Equal(t, uint(1), svc.lastSub.ProblemID)
}

func TestJudgeHandler_ErrorMapping(t *testing.T) {
	var validationErrs validator.ValidationErrors
	validationErr := validator.New().Struct(dto.RunRequest{})
	require.True(t, errors.As(validationErr, &validationErrs))

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: validationErr, status: fiber.StatusBadRequest},
		{name: "unsupported", err: service.ErrUnsupportedLanguage, status: fiber.StatusBadRequest},
		{name: "not found", err: service.ErrProblemNotFound, status: fiber.StatusNotFound},
		{name: "submission", err: &pipeline.SubmissionError{Op: "submit_batch", Err: errors.New("refused")}, status: fiber.StatusBadGateway},
		{name: "poll", err: &pipeline.PollError{Op: "get_batch", Attempts: 2, Err: errors.New("reset")}, status: fiber.StatusBadGateway},
		{name: "timeout", err: &pipeline.PollError{Op: "get_batch", Attempts: 40, Err: pipeline.ErrPollTimeout}, status: fiber.StatusBadGateway},
		{name: "misconfigured", err: &pipeline.SubmissionError{Op: "build", Err: codegen.ErrInputMismatch}, status: fiber.StatusUnprocessableEntity},
		{name: "persistence", err: &pipeline.PersistenceError{Op: "create", Err: errors.New("down")}, status: fiber.StatusServiceUnavailable},
		{name: "generic", err: errors.New("boom"), status: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newJudgeApp(&stubJudgeService{err: tc.err})
			resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/judge/submit", dto.SubmitRequest{ProblemID: 1, SourceCode: "x", LanguageID: 71}))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			body := decodeEnvelope(t, resp, nil)
			require.False(t, body.Success)
			require.NotEmpty(t, body.Message)
		})
	}
}

func TestJudgeHandler_ValidationDetailsUseJSONNames(t *testing.T) {
	validationErr := service.NewValidator().Struct(dto.SubmitRequest{ProblemID: 1, LanguageID: -1})
	app := newJudgeApp(&stubJudgeService{err: validationErr})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/judge/submit", dto.SubmitRequest{ProblemID: 1, SourceCode: "x", LanguageID: 71}))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var body struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	}
	decodeResponse(t, resp, &body)
	require.Equal(t, "invalid payload", body.Message)
	require.Equal(t, map[string]string{"source_code": "required", "language_id": "gt=0"}, body.Details)
}

func TestJudgeHandler_MiddlewaresGuardBothRoutes(t *testing.T) {
	blocked := func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusTooManyRequests)
	}
	svc := &stubJudgeService{}
	app := newJudgeApp(svc, blocked)

	for _, path := range []string{"/api/v2/judge/run", "/api/v2/judge/submit"} {
		resp, err := app.Test(jsonRequest(t, http.MethodPost, path, map[string]string{}))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	}
	require.Empty(t, svc.lastRun.SourceCode)
}

func TestJudgeHandler_InvalidPayload(t *testing.T) {
	app := newJudgeApp(&stubJudgeService{})

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v2/judge/run", "not an object"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
