package bus

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/rotisserie/eris"

	"github.com/ukfreecomps/pipeline/internal/resilience"
)

// Publisher sends messages into a downstream channel.
type Publisher interface {
	Publish(ctx context.Context, payload any) error
	Close() error
}

// KafkaPublisher publishes JSON-encoded messages to a single topic using an
// idempotent sync producer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewPublisher creates a sync producer bound to one topic.
func NewPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, eris.Wrapf(err, "bus: create producer for %s", topic)
	}

	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

// Publish JSON-encodes payload and sends it. Broker failures are tagged
// transient so callers can nack for redelivery.
func (p *KafkaPublisher) Publish(_ context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return resilience.NewPermanentError(eris.Wrap(err, "bus: marshal payload"))
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return resilience.NewTransientError(eris.Wrapf(err, "bus: publish to %s", p.topic), 0)
	}
	return nil
}

// Close shuts down the producer.
func (p *KafkaPublisher) Close() error {
	return eris.Wrap(p.producer.Close(), "bus: close producer")
}
