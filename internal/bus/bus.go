// Package bus wraps segmentio/kafka-go behind the small capability the
// design calls for: recv(topic) -> optional<message>, send(topic, key,
// payload). Matcher and settlement depend on this interface, not on
// kafka-go directly, so tests can swap in a fake.
package bus

import (
	"context"
	"errors"
	"fmt"
	"io"

	kafka "github.com/segmentio/kafka-go"

	"cex/internal/domain"
)

// Message is one bus record: a key, its payload, and enough to commit
// it once the caller is done.
type Message struct {
	Key     []byte
	Value   []byte
	commit  func(context.Context) error
}

// Commit advances the consumer offset past this message. Callers MUST
// call Commit only after the message's effects (a produced batch, a
// settled trade) are durable — this is what gives the pipeline its
// "emit/settle, then commit" at-least-once delivery semantics.
func (m Message) Commit(ctx context.Context) error {
	if m.commit == nil {
		return nil
	}
	return m.commit(ctx)
}

// Consumer receives messages from one topic under one consumer group.
type Consumer interface {
	// Recv returns the next message, or (Message{}, false, nil) if ctx
	// was canceled while waiting.
	Recv(ctx context.Context) (Message, bool, error)
	Close() error
}

// Producer sends keyed messages to a topic.
type Producer interface {
	Send(ctx context.Context, key, value []byte) error
	Close() error
}

type kafkaConsumer struct {
	reader *kafka.Reader
}

// NewConsumer opens a consumer-group reader on topic. Offsets are
// committed manually (CommitMessages), never on interval, so a crash
// between recv and the caller's Commit re-delivers rather than losing
// the message.
func NewConsumer(brokers []string, topic, group string) Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     group,
		StartOffset: kafka.FirstOffset,
	})
	return &kafkaConsumer{reader: reader}
}

func (c *kafkaConsumer) Recv(ctx context.Context) (Message, bool, error) {
	raw, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Message{}, false, nil
		}
		if errors.Is(err, io.EOF) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("%w: %v", domain.ErrBusTransient, err)
	}
	return Message{
		Key:   raw.Key,
		Value: raw.Value,
		commit: func(ctx context.Context) error {
			if err := c.reader.CommitMessages(ctx, raw); err != nil {
				return fmt.Errorf("%w: commit offset: %v", domain.ErrBusTransient, err)
			}
			return nil
		},
	}, true, nil
}

func (c *kafkaConsumer) Close() error {
	return c.reader.Close()
}

type kafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer opens a writer for topic. RequireOne acknowledgement
// matches the design's BusUnavailable/BusTransient split: a broker
// that never acks is a transient failure the caller retries, not a
// silently dropped send.
func NewProducer(brokers []string, topic string) Producer {
	return &kafkaProducer{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *kafkaProducer) Send(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
	if err != nil {
		if errors.Is(err, kafka.LeaderNotAvailable) || errors.Is(err, io.ErrClosedPipe) {
			return fmt.Errorf("%w: %v", domain.ErrBusUnavailable, err)
		}
		return fmt.Errorf("%w: %v", domain.ErrBusTransient, err)
	}
	return nil
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}
