// Package audit publishes verification outcomes for the session-
// issuance and audit-logging collaborators.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Channels consumed by the external collaborators.
const (
	ChannelAccepted = "facegate.accepted"
	ChannelRejected = "facegate.rejected"
)

// Event is the published payload. Rejections carry the reason code
// only; identity is never leaked for near-misses.
type Event struct {
	CorrelationID string    `json:"correlation_id"`
	Identity      string    `json:"identity,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Emitter publishes verification outcome events.
type Emitter interface {
	Accepted(ctx context.Context, correlationID, identity string)
	Rejected(ctx context.Context, correlationID, reason string)
}

// RedisEmitter publishes events on Redis pub/sub channels. Publish
// failures are logged, never surfaced: event delivery must not change a
// verification verdict.
type RedisEmitter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisEmitter constructs a Redis-backed emitter.
func NewRedisEmitter(client *redis.Client, logger *zap.Logger) *RedisEmitter {
	return &RedisEmitter{client: client, logger: logger.Named("audit_emitter")}
}

// Accepted publishes a session-issuance event.
func (e *RedisEmitter) Accepted(ctx context.Context, correlationID, identity string) {
	e.publish(ctx, ChannelAccepted, Event{
		CorrelationID: correlationID,
		Identity:      identity,
		OccurredAt:    time.Now().UTC(),
	})
}

// Rejected publishes a rejection event carrying only the reason code.
func (e *RedisEmitter) Rejected(ctx context.Context, correlationID, reason string) {
	e.publish(ctx, ChannelRejected, Event{
		CorrelationID: correlationID,
		Reason:        reason,
		OccurredAt:    time.Now().UTC(),
	})
}

func (e *RedisEmitter) publish(ctx context.Context, channel string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("failed to serialize audit event", zap.Error(err))
		return
	}
	if err := e.client.Publish(ctx, channel, payload).Err(); err != nil {
		e.logger.Warn("failed to publish audit event",
			zap.String("channel", channel),
			zap.String("correlation_id", event.CorrelationID),
			zap.Error(err))
	}
}

// NopEmitter discards events. Used in tests.
type NopEmitter struct{}

// Accepted implements Emitter.
func (NopEmitter) Accepted(context.Context, string, string) {}

// Rejected implements Emitter.
func (NopEmitter) Rejected(context.Context, string, string) {}
