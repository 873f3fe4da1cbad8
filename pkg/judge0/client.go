package judge0

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "judge0",
		Name:      "request_duration_seconds",
		Help:      "Duration of requests sent to the judging API",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "judge0",
		Name:      "request_failures_total",
		Help:      "Number of judging API requests that failed",
	}, []string{"operation"})
)

// resultFields are the only fields requested when polling.
const resultFields = "token,stdout,stderr,status_id,language_id,compile_output,status"

// ErrEmptyBatch is returned when a batch call receives no submissions or tokens.
var ErrEmptyBatch = errors.New("judge0: empty batch")

// StatusError reports a non-2xx response from the judging API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("judge0 returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("judge0 returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Config holds the connection settings for a Judge0 instance.
// AuthToken is sent as X-Auth-Token; the RapidAPI pair is used for the hosted edition.
type Config struct {
	URL          string
	AuthToken    string
	RapidAPIKey  string
	RapidAPIHost string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// Client calls the Judge0 REST API. Text fields travel base64-encoded in both directions.
type Client struct {
	baseURL string
	cfg     Config
	http    *http.Client
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewClient constructs a Client from the given config.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("judge0 url must not be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid judge0 url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		cfg:     cfg,
		http:    httpClient,
		tracer:  otel.Tracer("github.com/noah-isme/gema-judge/pkg/judge0"),
		logger:  cfg.Logger.With().Str("component", "judge0_client").Logger(),
	}, nil
}

// Submit creates one submission without waiting for it and returns its token.
func (c *Client) Submit(ctx context.Context, submission Submission) (string, error) {
	var created Token
	query := url.Values{"base64_encoded": {"true"}, "wait": {"false"}}
	if err := c.do(ctx, "submit", http.MethodPost, "/submissions", query, submission, &created); err != nil {
		return "", err
	}
	if created.Token == "" {
		return "", errors.New("judge0 returned an empty token")
	}
	return created.Token, nil
}

// SubmitBatch creates many submissions in one call. Tokens come back in request order.
func (c *Client) SubmitBatch(ctx context.Context, submissions []Submission) ([]string, error) {
	if len(submissions) == 0 {
		return nil, ErrEmptyBatch
	}

	var created []Token
	query := url.Values{"base64_encoded": {"true"}}
	body := batchRequest{Submissions: submissions}
	if err := c.do(ctx, "submit_batch", http.MethodPost, "/submissions/batch", query, body, &created); err != nil {
		return nil, err
	}
	if len(created) != len(submissions) {
		return nil, fmt.Errorf("judge0 returned %d tokens for %d submissions", len(created), len(submissions))
	}

	tokens := make([]string, len(created))
	for i, token := range created {
		if token.Token == "" {
			return nil, fmt.Errorf("judge0 rejected submission %d", i)
		}
		tokens[i] = token.Token
	}
	return tokens, nil
}

// Get fetches the current state of one submission.
func (c *Client) Get(ctx context.Context, token string) (Result, error) {
	var result Result
	query := url.Values{"base64_encoded": {"true"}, "fields": {resultFields}}
	if err := c.do(ctx, "get", http.MethodGet, "/submissions/"+url.PathEscape(token), query, nil, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// GetBatch fetches many submissions in one call. The order of the response is not trusted by callers.
func (c *Client) GetBatch(ctx context.Context, tokens []string) ([]Result, error) {
	if len(tokens) == 0 {
		return nil, ErrEmptyBatch
	}

	var batch batchResponse
	query := url.Values{
		"tokens":         {strings.Join(tokens, ",")},
		"base64_encoded": {"true"},
		"fields":         {resultFields},
	}
	if err := c.do(ctx, "get_batch", http.MethodGet, "/submissions/batch", query, nil, &batch); err != nil {
		return nil, err
	}
	return batch.Submissions, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body interface{}, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "judge0."+operation, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("judge0.path", path),
	))
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		if err != nil {
			requestFailures.WithLabelValues(operation).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn().Err(err).Str("operation", operation).Msg("judge0 request failed")
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return fmt.Errorf("marshal request: %w", marshalErr)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.AuthToken != "" {
		req.Header.Set("X-Auth-Token", c.cfg.AuthToken)
	}
	if c.cfg.RapidAPIKey != "" {
		req.Header.Set("X-RapidAPI-Key", c.cfg.RapidAPIKey)
	}
	if c.cfg.RapidAPIHost != "" {
		req.Header.Set("X-RapidAPI-Host", c.cfg.RapidAPIHost)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode judge0 response: %w", err)
	}
	return nil
}
