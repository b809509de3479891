// Package bus wraps Kafka into the durable, at-least-once message channels
// connecting the pipeline stages.
package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Verdict tells the consumer what to do with an inbound message.
type Verdict int

const (
	// Ack marks the message processed.
	Ack Verdict = iota
	// Drop marks the message processed without success. Permanent failures
	// are dropped so a poison message never blocks the channel.
	Drop
	// Retry leaves the offset unmarked so the message is redelivered.
	Retry
)

func (v Verdict) String() string {
	switch v {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Retry:
		return "retry"
	default:
		return "unknown"
	}
}

// Handler processes one channel message and decides its fate. Handlers may
// be invoked concurrently and must not assume cross-message ordering.
type Handler interface {
	Handle(ctx context.Context, body []byte) Verdict
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, body []byte) Verdict

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, body []byte) Verdict {
	return f(ctx, body)
}

// rejoinDelay spaces out group rejoins after a session error.
const rejoinDelay = 2 * time.Second

// ConsumerConfig holds the subscription parameters for one stage.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Handler Handler
}

// Consumer services a single consumer-group subscription for one stage.
type Consumer struct {
	group   sarama.ConsumerGroup
	handler Handler
	topic   string
	groupID string
	ready   chan struct{}
}

// NewConsumer creates a Kafka consumer-group subscription.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, eris.Wrapf(err, "bus: create consumer group %s", cfg.GroupID)
	}

	return &Consumer{
		group:   group,
		handler: cfg.Handler,
		topic:   cfg.Topic,
		groupID: cfg.GroupID,
		ready:   make(chan struct{}),
	}, nil
}

// Run consumes until ctx is canceled. It blocks for the life of the
// subscription and returns nil on a clean shutdown. Session errors are logged
// and the group rejoined; only broker-level failures that sarama cannot
// recover from surface through the Errors channel.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		select {
		case <-c.ready:
			zap.L().Info("consumer started",
				zap.String("topic", c.topic),
				zap.String("group", c.groupID),
			)
		case <-ctx.Done():
		}
	}()

	go func() {
		for err := range c.group.Errors() {
			zap.L().Error("consumer error",
				zap.String("topic", c.topic),
				zap.Error(err),
			)
		}
	}()

	ready := c.ready
	for {
		h := &groupHandler{handler: c.handler, ready: ready}
		if err := c.group.Consume(ctx, []string{c.topic}, h); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			zap.L().Error("consumer group error",
				zap.String("topic", c.topic),
				zap.Error(err),
			)
			// Pause before rejoining so a message that keeps coming back
			// with a retry verdict doesn't spin the group.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(rejoinDelay):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		ready = make(chan struct{})
	}
}

// Close shuts down the consumer group.
func (c *Consumer) Close() error {
	return eris.Wrap(c.group.Close(), "bus: close consumer")
}

// groupHandler implements sarama.ConsumerGroupHandler, dispatching each claim
// message to the stage handler and translating its verdict into offset marks.
type groupHandler struct {
	handler Handler
	ready   chan struct{}
	once    sync.Once
}

// Setup may run again after a rebalance within the same Consume call, so the
// ready channel is closed at most once.
func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.once.Do(func() { close(h.ready) })
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			verdict := h.handler.Handle(session.Context(), msg.Value)
			switch verdict {
			case Ack, Drop:
				session.MarkMessage(msg, "")
			case Retry:
				// The offset stays unmarked, and the claim must not advance
				// past it: a later mark on this partition would commit over
				// the unmarked offset and lose the message. Failing the
				// session restarts consumption at the last committed offset,
				// which redelivers this message.
				return eris.Errorf("bus: retry verdict for %s[%d]@%d",
					msg.Topic, msg.Partition, msg.Offset)
			}

			zap.L().Debug("message handled",
				zap.String("topic", msg.Topic),
				zap.Int32("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.String("verdict", verdict.String()),
			)

		case <-session.Context().Done():
			return nil
		}
	}
}
