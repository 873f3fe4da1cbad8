package handler_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/service"
	"github.com/noah-isme/gema-judge/pkg/codegen"
)

type mockSeedService struct {
	err       error
	lastToken string
	lastItems []dto.SeedProblem
	affected  int64
}

func (m *mockSeedService) SeedProblems(_ context.Context, token string, items []dto.SeedProblem) (int64, error) {
	m.lastToken = token
	m.lastItems = items
	if m.err != nil {
		return 0, m.err
	}
	return m.affected, nil
}

func (m *mockSeedService) SeedDefaults(context.Context) (int64, error) {
	return m.affected, m.err
}

func newSeedApp(svc service.SeedService) *fiber.App {
	app := fiber.New()
	handler.NewSeedHandler(svc, zerolog.Nop()).Register(app.Group("/api/seed"))
	return app
}

func TestSeedHandler_ProblemsSuccess(t *testing.T) {
	svc := &mockSeedService{affected: 2}
	app := newSeedApp(svc)

	req := jsonRequest(t, http.MethodPost, "/api/seed/problems", map[string]interface{}{"items": service.DefaultProblems()[:2]})
	req.Header.Set("X-Seed-Token", "secret")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data struct {
		Affected int64 `json:"affected"`
	}
	body := decodeEnvelope(t, resp, &data)
	require.True(t, body.Success)
	require.Equal(t, int64(2), data.Affected)
	require.Equal(t, "secret", svc.lastToken)
	require.Len(t, svc.lastItems, 2)
	require.Equal(t, "twoSum", svc.lastItems[0].Signature.FunctionName)
}

func TestSeedHandler_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
		message    string
	}{
		{name: "disabled", err: service.ErrSeedDisabled, statusCode: fiber.StatusForbidden, message: "seeding disabled"},
		{name: "unauthorized", err: service.ErrSeedUnauthorized, statusCode: fiber.StatusForbidden, message: "invalid token"},
		{name: "invalid", err: service.ErrSeedInvalid, statusCode: fiber.StatusBadRequest, message: service.ErrSeedInvalid.Error()},
		{name: "signature", err: codegen.ErrInvalidSignature, statusCode: fiber.StatusBadRequest, message: codegen.ErrInvalidSignature.Error()},
		{name: "generic", err: errors.New("boom"), statusCode: fiber.StatusInternalServerError, message: "seed operation failed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newSeedApp(&mockSeedService{err: tc.err})
			req := jsonRequest(t, http.MethodPost, "/api/seed/problems", map[string]interface{}{"items": []dto.SeedProblem{{Title: "x"}}})
			req.Header.Set("X-Seed-Token", "secret")

			resp, err := app.Test(req)
			require.NoError(t, err)
			require.Equal(t, tc.statusCode, resp.StatusCode)

			body := decodeEnvelope(t, resp, nil)
			require.False(t, body.Success)
			require.Equal(t, tc.message, body.Message)
		})
	}
}

func TestSeedHandler_InvalidPayload(t *testing.T) {
	svc := &mockSeedService{}
	app := newSeedApp(svc)

	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/seed/problems", "not json"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Nil(t, svc.lastItems)
}
