package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	reviewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "review_duration_seconds",
		Help:      "Duration of AI code review requests",
	}, []string{"model"})

	reviewFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "review_failures_total",
		Help:      "Number of AI code review failures",
	}, []string{"model"})
)

const maxHints = 5

// OpenAIConfig defines configuration options for the OpenAI reviewer.
type OpenAIConfig struct {
	APIKey string
	// BaseURL points the client at an OpenAI compatible endpoint. Empty uses the public API.
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIReviewer implements Reviewer against the OpenAI chat completion API.
type OpenAIReviewer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIReviewer builds a reviewer using the provided configuration.
func NewOpenAIReviewer(cfg OpenAIConfig) (*OpenAIReviewer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 400
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIReviewer{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-judge/pkg/ai"),
		logger: cfg.Logger.With().Str("component", "openai_reviewer").Logger(),
	}, nil
}

// Review asks the model for hints on the failed cases and parses its JSON answer.
func (r *OpenAIReviewer) Review(parent context.Context, input ReviewInput) (Review, error) {
	ctx, span := r.tracer.Start(parent, "openai.review", trace.WithAttributes(
		attribute.String("model", r.cfg.Model),
		attribute.Int("failures", len(input.Failures)),
	))
	defer span.End()

	start := time.Now()
	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: reviewerSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(input)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	reviewDuration.WithLabelValues(r.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return Review{}, r.fail(span, fmt.Errorf("openai review: %w", err))
	}
	if len(resp.Choices) == 0 {
		return Review{}, r.fail(span, errors.New("no choices returned from openai"))
	}

	review, err := parseReview(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return Review{}, r.fail(span, err)
	}
	review.Model = r.cfg.Model

	r.logger.Debug().Int("prompt_tokens", resp.Usage.PromptTokens).Int("completion_tokens", resp.Usage.CompletionTokens).Msg("review generated")
	return review, nil
}

func (r *OpenAIReviewer) fail(span trace.Span, err error) error {
	reviewFailures.WithLabelValues(r.cfg.Model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func reviewerSystemPrompt() string {
	return "You are a programming tutor reviewing a student's solution that failed some tests. Respond with a JSON object " +
		"containing summary (one or two sentences) and hints (an array of short strings). Point at the bug, never write the fixed code."
}

func buildUserPrompt(input ReviewInput) string {
	builder := strings.Builder{}
	builder.WriteString("# Problem\n")
	builder.WriteString(input.ProblemTitle)
	builder.WriteString("\n\n## Language\n")
	builder.WriteString(input.Language)
	fmt.Fprintf(&builder, "\n\n## Result\n%d of %d tests passed", input.Passed, input.Total)
	builder.WriteString("\n\n## Submission\n")
	builder.WriteString(input.SourceCode)
	for i, failure := range input.Failures {
		fmt.Fprintf(&builder, "\n\n## Failed Test %d\n", i+1)
		if failure.CompileError != "" {
			builder.WriteString("Compile error:\n")
			builder.WriteString(failure.CompileError)
			continue
		}
		builder.WriteString("Input: ")
		builder.WriteString(failure.Input)
		builder.WriteString("\nExpected: ")
		builder.WriteString(failure.Expected)
		builder.WriteString("\nActual: ")
		builder.WriteString(failure.Actual)
	}
	builder.WriteString("\nReturn JSON.")
	return builder.String()
}

func parseReview(content string) (Review, error) {
	var data Review
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return Review{}, fmt.Errorf("parse review json: %w", err)
	}

	data.Summary = strings.TrimSpace(data.Summary)
	if data.Summary == "" {
		return Review{}, errors.New("review summary is empty")
	}

	hints := make([]string, 0, len(data.Hints))
	for _, hint := range data.Hints {
		if hint = strings.TrimSpace(hint); hint != "" {
			hints = append(hints, hint)
		}
		if len(hints) == maxHints {
			break
		}
	}
	data.Hints = hints
	return data, nil
}
