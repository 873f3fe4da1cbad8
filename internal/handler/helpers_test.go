package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}

func decodeEnvelope(t *testing.T, resp *http.Response, data interface{}) envelope {
	t.Helper()
	var body envelope
	decodeResponse(t, resp, &body)
	if data != nil && len(body.Data) > 0 {
		require.NoError(t, json.Unmarshal(body.Data, data))
	}
	return body
}

// startFiberServer serves app on a loopback listener until the test ends.
func startFiberServer(t *testing.T, app *fiber.App) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = app.Listener(listener)
	}()

	t.Cleanup(func() {
		_ = app.Shutdown()
		<-done
	})
	return "http://" + listener.Addr().String()
}
