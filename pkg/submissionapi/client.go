package submissionapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gema",
	Subsystem: "submission_api",
	Name:      "request_duration_seconds",
	Help:      "Duration of requests sent to the submission persistence API",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation", "outcome"})

// StatusError reports a non-2xx response from the persistence API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("submission api returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("submission api returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Payload is the request body of create and update calls. Code travels base64-encoded.
type Payload struct {
	Code        string `json:"code"`
	LanguageID  int    `json:"languageId" validate:"omitempty,judge_language"`
	StudentID   uint   `json:"studentId"`
	QuestionID  uint   `json:"questionId" validate:"required"`
	IsSubmitted bool   `json:"isSubmitted"`
}

// Created is the response of a create call.
type Created struct {
	SubmissionID uint `json:"submissionId"`
}

// Saved is the stored submission returned by a lookup. Code is base64-encoded.
type Saved struct {
	SubmissionID uint   `json:"submissionId"`
	Code         string `json:"code"`
	LanguageID   int    `json:"languageId"`
	StudentID    uint   `json:"studentId,omitempty"`
	QuestionID   uint   `json:"questionId,omitempty"`
	IsSubmitted  bool   `json:"isSubmitted"`
}

// EncodePayload converts a record to its wire form.
func EncodePayload(record pipeline.Record) Payload {
	return Payload{
		Code:        base64.StdEncoding.EncodeToString([]byte(record.Code)),
		LanguageID:  int(record.LanguageID),
		StudentID:   record.StudentID,
		QuestionID:  record.QuestionID,
		IsSubmitted: record.IsSubmitted,
	}
}

// DecodeCode reverses the base64 code field.
func DecodeCode(code string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(code))
	if err != nil {
		return "", fmt.Errorf("decode code: %w", err)
	}
	return string(raw), nil
}

// Config holds the persistence API settings.
type Config struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the submission persistence API and satisfies pipeline.Store.
type Client struct {
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
	logger  zerolog.Logger
}

var _ pipeline.Store = (*Client)(nil)

// NewClient constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("submission api url must not be empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid submission api url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: base,
		http:    httpClient,
		tracer:  otel.Tracer("github.com/noah-isme/gema-judge/pkg/submissionapi"),
		logger:  cfg.Logger.With().Str("component", "submission_api_client").Logger(),
	}, nil
}

// Create stores a new submission and returns its id.
func (c *Client) Create(ctx context.Context, record pipeline.Record) (uint, error) {
	var created Created
	if err := c.do(ctx, "create", http.MethodPost, "/create-submission", nil, EncodePayload(record), &created); err != nil {
		return 0, err
	}
	if created.SubmissionID == 0 {
		return 0, errors.New("submission api returned no submission id")
	}
	return created.SubmissionID, nil
}

// Update overwrites an existing submission.
func (c *Client) Update(ctx context.Context, id uint, record pipeline.Record) error {
	path := "/update-submission/" + strconv.FormatUint(uint64(id), 10)
	return c.do(ctx, "update", http.MethodPut, path, nil, EncodePayload(record), nil)
}

// GetByQuestion loads the student's submission for a question.
// A 404 is reported as pipeline.ErrNoSubmission.
func (c *Client) GetByQuestion(ctx context.Context, studentID, questionID uint) (pipeline.Record, error) {
	query := url.Values{}
	if studentID != 0 {
		query.Set("studentId", strconv.FormatUint(uint64(studentID), 10))
	}

	var saved Saved
	path := "/submission-by-question/" + strconv.FormatUint(uint64(questionID), 10)
	if err := c.do(ctx, "get_by_question", http.MethodGet, path, query, nil, &saved); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return pipeline.Record{}, pipeline.ErrNoSubmission
		}
		return pipeline.Record{}, err
	}

	code, err := DecodeCode(saved.Code)
	if err != nil {
		return pipeline.Record{}, err
	}
	if saved.StudentID == 0 {
		saved.StudentID = studentID
	}
	if saved.QuestionID == 0 {
		saved.QuestionID = questionID
	}

	return pipeline.Record{
		SubmissionID: saved.SubmissionID,
		Code:         code,
		LanguageID:   codegen.Language(saved.LanguageID),
		StudentID:    saved.StudentID,
		QuestionID:   saved.QuestionID,
		IsSubmitted:  saved.IsSubmitted,
	}, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, query url.Values, body interface{}, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "submission_api."+operation, trace.WithAttributes(
		attribute.String("http.method", method),
	))
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn().Err(err).Str("operation", operation).Msg("submission api request failed")
		}
		requestDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
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
		return fmt.Errorf("decode submission api response: %w", err)
	}
	return nil
}
