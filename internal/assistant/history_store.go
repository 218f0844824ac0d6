package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const conversationTTL = 24 * time.Hour

// HistoryStore persists conversation turns in Redis so a conversation can
// resume across requests. Entries expire after a day of inactivity.
type HistoryStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewHistoryStore(rdb *redis.Client, tracer trace.Tracer) *HistoryStore {
	if tracer == nil {
		tracer = otel.Tracer("dealhound.internal.assistant.history")
	}
	return &HistoryStore{redis: rdb, tracer: tracer}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

// Save replaces the stored history for a conversation and refreshes its TTL.
func (s *HistoryStore) Save(ctx context.Context, conversationID string, history []Turn) error {
	if s.redis == nil {
		return nil
	}
	ctx, span := s.tracer.Start(ctx, "assistant.save_history")
	defer span.End()

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conversationID), data, conversationTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("assistant: failed to persist history: %w", err)
	}
	return nil
}

// Load returns the stored history, or nil when the conversation is unknown
// or expired.
func (s *HistoryStore) Load(ctx context.Context, conversationID string) ([]Turn, error) {
	if s.redis == nil {
		return nil, nil
	}
	ctx, span := s.tracer.Start(ctx, "assistant.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to load history: %w", err)
	}

	var history []Turn
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("assistant: failed to decode history: %w", err)
	}
	return history, nil
}
