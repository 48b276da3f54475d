// Package events publishes trade lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"trade-settlement/internal/trade"
)

// TypeTradeExecuted is the event type emitted after a record is minted.
const TypeTradeExecuted = "trade.executed"

// TradeExecuted is the JSON payload of a trade.executed event.
type TradeExecuted struct {
	Type       string       `json:"type"`
	Record     trade.Record `json:"record"`
	OccurredAt time.Time    `json:"occurredAt"`
}

// Publisher emits trade events.
type Publisher interface {
	PublishTradeExecuted(ctx context.Context, rec trade.Record) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// PublishTradeExecuted does nothing.
func (Nop) PublishTradeExecuted(context.Context, trade.Record) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// KafkaOptions configure the Kafka publisher.
type KafkaOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka writes JSON events keyed by trade id.
type Kafka struct {
	writer  messageWriter
	timeout time.Duration
	logger  zerolog.Logger
}

// NewKafka constructs a publisher writing to opts.Topic.
func NewKafka(opts KafkaOptions, logger zerolog.Logger) (*Kafka, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("events: no kafka brokers configured")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("events: kafka topic not configured")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: opts.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafka(writer, opts.WriteTimeout, logger), nil
}

func newKafka(w messageWriter, timeout time.Duration, logger zerolog.Logger) *Kafka {
	return &Kafka{
		writer:  w,
		timeout: timeout,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

// PublishTradeExecuted writes one trade.executed event.
func (k *Kafka) PublishTradeExecuted(ctx context.Context, rec trade.Record) error {
	payload, err := json.Marshal(TradeExecuted{
		Type:       TypeTradeExecuted,
		Record:     rec,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(rec.ID),
		Value: payload,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeTradeExecuted)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write trade event: %w", err)
	}

	k.logger.Debug().Str("trade_id", rec.ID).Msg("trade event published")
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*Kafka)(nil)
)
