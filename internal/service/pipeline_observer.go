package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

// EventPipelineFailed is published when a pipeline invocation returns to idle with an error.
const EventPipelineFailed = "pipeline.failed"

// PipelineObserver reports pipeline state changes. Transitions are logged at debug; failures are
// logged at warn, counted and published as events.
type PipelineObserver struct {
	events EventPublisher
	logger zerolog.Logger
}

// NewPipelineObserver builds an observer. events may be nil.
func NewPipelineObserver(events EventPublisher, logger zerolog.Logger) *PipelineObserver {
	return &PipelineObserver{
		events: events,
		logger: logger.With().Str("component", "pipeline_observer").Logger(),
	}
}

// Transition implements pipeline.Observer. Events are published off the caller's goroutine.
func (o *PipelineObserver) Transition(ctx context.Context, t pipeline.Transition) {
	if t.Err == nil {
		o.logger.Debug().Str("operation", t.Operation).Stringer("from", t.From).Stringer("to", t.To).Msg("pipeline transition")
		return
	}

	stage := t.From.String()
	kind := failureKind(t.Err)
	observability.PipelineFailures().WithLabelValues(t.Operation, stage, kind).Inc()
	o.logger.Warn().Err(t.Err).Str("operation", t.Operation).Str("stage", stage).Str("kind", kind).Msg("pipeline invocation failed")

	if o.events == nil {
		return
	}
	event := dto.GradingEvent{
		Type:      EventPipelineFailed,
		Operation: t.Operation,
		Stage:     stage,
		Error:     t.Err.Error(),
	}
	go o.events.Publish(context.WithoutCancel(ctx), event)
}

func failureKind(err error) string {
	var (
		submissionErr  *pipeline.SubmissionError
		pollErr        *pipeline.PollError
		persistenceErr *pipeline.PersistenceError
	)
	switch {
	case errors.As(err, &submissionErr):
		return "submission"
	case errors.As(err, &pollErr):
		return "poll"
	case errors.As(err, &persistenceErr):
		return "persistence"
	default:
		return "other"
	}
}
