package out

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

type Sink interface {
	Emit(ctx context.Context, typ string, key string, v any) error
	Close() error
}

type KafkaSink struct {
	topic string
	p     sarama.SyncProducer
}

func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.RequiredAcks = sarama.WaitForAll
		cfg.Producer.Retry.Max = 10
		cfg.Producer.Retry.Backoff = 200 * time.Millisecond
		cfg.Version = sarama.V2_1_0_0
	}
	// SyncProducer must have Return.Successes=true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewKafkaSinkWithProducer(topic, p), nil
}

func NewKafkaSinkWithProducer(topic string, p sarama.SyncProducer) *KafkaSink {
	return &KafkaSink{topic: topic, p: p}
}

func (s *KafkaSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

// Emit wraps v in an Envelope keyed by key (the round id), so one round's
// events stay ordered within a partition.
func (s *KafkaSink) Emit(ctx context.Context, typ string, key string, v any) error {
	// sarama SyncProducer 不吃 ctx，只能发送前检查
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := Wrap(typ, v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := s.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka emit failed: %w", err)
	}
	return nil
}

// Wrap encodes v as the Data of a fresh Envelope.
func Wrap(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		ID:   uuid.NewString(),
		Type: typ,
		TS:   time.Now().UnixMilli(),
		Data: data,
	})
}

// NopSink drops events; used when no brokers are configured.
type NopSink struct{}

func (NopSink) Emit(context.Context, string, string, any) error { return nil }
func (NopSink) Close() error                                     { return nil }
