package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/observability"
)

// Grading event types.
const (
	EventBatchGraded    = "batch.graded"
	EventExamFinalized  = "exam.finalized"
	defaultEventChannel = "gema:judge"
)

// GradingEventPublisher fans grading events out to Redis pub/sub and NATS.
// A nil publisher or one without sinks drops events.
type GradingEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
}

// NewGradingEventPublisher derives the Redis channel and NATS subject from channelBase.
func NewGradingEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) *GradingEventPublisher {
	channelBase = strings.TrimSpace(channelBase)
	if channelBase == "" {
		channelBase = defaultEventChannel
	}

	return &GradingEventPublisher{
		redis:        redisClient,
		redisChannel: channelBase + ":grading",
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(channelBase, ":", ".") + ".grading",
		logger:       logger.With().Str("component", "grading_events").Logger(),
	}
}

// Channel returns the Redis pub/sub channel.
func (p *GradingEventPublisher) Channel() string {
	return p.redisChannel
}

// Subject returns the NATS subject.
func (p *GradingEventPublisher) Subject() string {
	return p.natsSubject
}

// Publish sends the event to every configured sink. Failures are logged, not returned.
func (p *GradingEventPublisher) Publish(ctx context.Context, event dto.GradingEvent) {
	if p == nil || (p.redis == nil && p.nats == nil) {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to encode grading event")
		return
	}

	if p.redis != nil {
		result := "ok"
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			result = "error"
			p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish grading event to redis")
		}
		observability.GradingEvents().WithLabelValues("redis", result).Inc()
	}

	if p.nats != nil {
		result := "ok"
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			result = "error"
			p.logger.Warn().Err(err).Str("type", event.Type).Msg("failed to publish grading event to nats")
		}
		observability.GradingEvents().WithLabelValues("nats", result).Inc()
	}
}
