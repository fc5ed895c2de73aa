// Package events publishes ledger events to Kafka.
//
// Publishing is best effort: a failed publish is logged and counted but never
// undoes or blocks the ledger write that produced the event.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/homework/internal/domain/model"
	"github.com/okian/homework/pkg/logger"
	"github.com/okian/homework/pkg/metrics"
)

// DefaultTopic receives every ledger event.
const DefaultTopic = "homework.ledger"

const (
	headerEventType = "event_type"
	headerWeek      = "week"
	defaultTimeout  = 5 * time.Second
)

// ErrNoBrokers is returned when a Kafka publisher is built without brokers.
var ErrNoBrokers = errors.New("no kafka brokers configured")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes ledger events keyed by participant, so events for one
// participant stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
	log     logger.Logger
}

// NewKafkaPublisher creates a publisher writing to topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, opts ...Option) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, topic, opts...), nil
}

func newPublisher(w messageWriter, topic string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:  w,
		topic:   topic,
		timeout: defaultTimeout,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes one event and waits for the brokers to acknowledge it.
func (p *KafkaPublisher) Publish(ctx context.Context, ev model.LedgerEvent) error {
	msg, err := toMessage(ev)
	if err != nil {
		metrics.RecordLedgerEvent(ev.Type, "failed")
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.RecordLedgerEvent(ev.Type, "failed")
		p.log.Warn(ctx, "ledger event not published",
			logger.String("topic", p.topic),
			logger.String("type", ev.Type),
			logger.String("participant", ev.ParticipantID),
			logger.Int("week", ev.Week),
			logger.Error(err))
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	metrics.RecordLedgerEvent(ev.Type, "published")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(ev model.LedgerEvent) (kafka.Message, error) {
	if ev.Type == "" || ev.ParticipantID == "" {
		return kafka.Message{}, fmt.Errorf("incomplete ledger event %+v", ev)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode ledger event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(ev.ParticipantID),
		Value: payload,
		Time:  ev.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(ev.Type)},
			{Key: headerWeek, Value: []byte(strconv.Itoa(ev.Week))},
		},
	}, nil
}

// Nop drops every event.
type Nop struct{}

// Publish implements the publisher contract.
func (Nop) Publish(context.Context, model.LedgerEvent) error { return nil }

// Close implements io.Closer.
func (Nop) Close() error { return nil }
