package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisherSendsKeyAndValue(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"event_type":"bid.placed"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})

	p := NewKafkaPublisherWithProducer(producer)
	require.NoError(t, p.Publish("sim_market_events", "listing-1", `{"event_type":"bid.placed"}`))
	require.NoError(t, p.Close())
}

func TestKafkaPublisherReturnsError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewProducerConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisherWithProducer(producer)
	err := p.Publish("sim_market_events", "k", "v")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
