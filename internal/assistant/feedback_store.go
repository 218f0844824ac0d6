package assistant

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dealhound/dealhound/pkg/logging"
)

const (
	feedbackTTL      = 30 * 24 * time.Hour
	maxCommentLength = 500
	RatingPositive   = "positive"
	RatingNegative   = "negative"
)

// Feedback is one thumbs-up/down submission on an assistant message.
type Feedback struct {
	ID        string    `json:"id"`
	MessageID string    `json:"messageId"`
	UserID    string    `json:"userId,omitempty"`
	Rating    string    `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FeedbackStore records feedback fire-and-forget. Failures are logged and
// swallowed; feedback must never surface an error to the caller.
type FeedbackStore struct {
	redis  *redis.Client
	logger *logging.Logger
	now    func() time.Time
}

func NewFeedbackStore(rdb *redis.Client, logger *logging.Logger) *FeedbackStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &FeedbackStore{redis: rdb, logger: logger, now: time.Now}
}

// Record stores one feedback entry. Invalid ratings and oversized comments
// are normalized, never rejected.
func (s *FeedbackStore) Record(ctx context.Context, fb Feedback) {
	if fb.Rating != RatingPositive && fb.Rating != RatingNegative {
		fb.Rating = RatingNegative
	}
	if len(fb.Comment) > maxCommentLength {
		fb.Comment = fb.Comment[:maxCommentLength]
	}
	fb.ID = uuid.NewString()
	fb.CreatedAt = s.now()

	if s.redis == nil {
		s.logger.Info("feedback received (no store configured)",
			"message_id", fb.MessageID, "rating", fb.Rating)
		return
	}
	data, err := json.Marshal(fb)
	if err != nil {
		s.logger.Warn("feedback marshal failed", "error", err)
		return
	}
	key := "feedback:" + fb.ID
	if err := s.redis.Set(ctx, key, data, feedbackTTL).Err(); err != nil {
		s.logger.Warn("feedback write failed", "error", err)
		return
	}
	// Index by message so moderation tooling can look feedback up later.
	if err := s.redis.RPush(ctx, "feedback:msg:"+fb.MessageID, fb.ID).Err(); err == nil {
		s.redis.Expire(ctx, "feedback:msg:"+fb.MessageID, feedbackTTL)
	}
}
