package out

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaSinkEmitsEnvelope(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	p := mocks.NewSyncProducer(t, cfg)
	p.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		require.NoError(t, json.Unmarshal(val, &env))
		assert.Equal(t, TypeRoundCleared, env.Type)
		assert.NotEmpty(t, env.ID)
		var ev RoundEvent
		require.NoError(t, json.Unmarshal(env.Data, &ev))
		assert.Equal(t, "r1", ev.Round)
		return nil
	})

	s := NewKafkaSinkWithProducer("guard.events", p)
	require.NoError(t, s.Emit(context.Background(), TypeRoundCleared, "r1", RoundEvent{Round: "r1", Lifecycle: "Concluded"}))
	require.NoError(t, s.Close())
}

func TestKafkaSinkSendFailure(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	p.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	s := NewKafkaSinkWithProducer("guard.events", p)
	err := s.Emit(context.Background(), TypeReviewSubmitted, "r1", RoundEvent{Round: "r1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, s.Close())
}

func TestEmitHonorsCancelledContext(t *testing.T) {
	p := mocks.NewSyncProducer(t, nil)
	s := NewKafkaSinkWithProducer("guard.events", p)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Emit(ctx, TypeRoundCleared, "r1", RoundEvent{}), context.Canceled)
	require.NoError(t, s.Close())
}
