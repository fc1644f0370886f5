// Package writer persists guard events consumed from Kafka into Postgres.
package writer

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/chenzhangda16/grantguard/internal/guard/out"
)

type EventStore interface {
	InsertEvent(ctx context.Context, env out.Envelope, ev out.RoundEvent) error
}

// Handler is a sarama.ConsumerGroupHandler.
type Handler struct {
	Store  EventStore
	Logger *zap.Logger
}

func (h *Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *Handler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if h.Handle(ctx, msg.Value) {
			sess.MarkMessage(msg, "")
		}
	}
	return nil
}

// Handle stores one message and reports whether its offset may be committed.
// Malformed and unknown messages are committed and skipped; insert failures
// are not, so the message is redelivered (at least once).
func (h *Handler) Handle(ctx context.Context, value []byte) bool {
	log := h.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var env out.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		log.Warn("bad envelope", zap.Error(err))
		return true
	}
	switch env.Type {
	case out.TypeDetectionRefreshed, out.TypeReviewSubmitted, out.TypeRoundCleared:
	default:
		log.Debug("skip unknown type", zap.String("type", env.Type))
		return true
	}
	var ev out.RoundEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		log.Warn("bad event payload", zap.String("type", env.Type), zap.Error(err))
		return true
	}
	if err := h.Store.InsertEvent(ctx, env, ev); err != nil {
		log.Error("insert failed", zap.String("id", env.ID), zap.Error(err))
		return false
	}
	return true
}
