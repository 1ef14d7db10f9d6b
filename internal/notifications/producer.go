package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kitchenhub/pkg/logger"

	"github.com/IBM/sarama"
)

// Publisher hands domain events to downstream consumers. Publishing is
// best effort: callers log failures and never roll back ledger state.
type Publisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Close() error
}

// KafkaProducerConfig contains configuration for the Kafka event producer
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	ClientID         string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "kitchenhub.booking-events",
		ClientID:         "kitchenhub-backend",
		RetryMax:         3,
		TimeoutMs:        10000,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// NewSaramaConfig builds the producer settings used in production
func NewSaramaConfig(config *KafkaProducerConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = config.ClientID

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Compression = config.CompressionType
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(config.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = config.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = config.MaxMessageBytes

	// Idempotent producers require a single in-flight request
	if config.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash on group id so one group's events stay ordered
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaConfig
}

// KafkaPublisher writes domain events to a single topic
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewKafkaPublisher dials the brokers and returns a synchronous publisher
func NewKafkaPublisher(config *KafkaProducerConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, NewSaramaConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, config.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      logger.GetDefault().WithComponent("kafka_publisher"),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event DomainEvent) error {
	payload, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal domain event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(event.PartitionKey()),
		Value:     sarama.ByteEncoder(payload),
		Headers:   headersFor(event),
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send domain event to Kafka: %w", err)
	}

	p.log.DebugContext(ctx, "Domain event published",
		slog.String("type", string(event.Type)),
		slog.String("group_id", event.GroupID.String()),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
	)
	return nil
}

func headersFor(event DomainEvent) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		{Key: []byte("event_type"), Value: []byte(event.Type)},
		{Key: []byte("aggregate"), Value: []byte(event.Aggregate)},
		{Key: []byte("aggregate_id"), Value: []byte(event.AggregateID.String())},
		{Key: []byte("producer"), Value: []byte("kitchenhub-lifecycle")},
		{Key: []byte("version"), Value: []byte("1")},
	}
}

func (p *KafkaPublisher) Close() error {
	if p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

// LogPublisher is used when Kafka is disabled
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(l *logger.Logger) *LogPublisher {
	return &LogPublisher{log: l}
}

func (p *LogPublisher) Publish(ctx context.Context, event DomainEvent) error {
	p.log.InfoContext(ctx, "Domain event",
		slog.String("type", string(event.Type)),
		slog.String("aggregate", event.Aggregate),
		slog.String("aggregate_id", event.AggregateID.String()),
		slog.String("group_id", event.GroupID.String()),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// MemoryPublisher keeps events in memory for assertions
type MemoryPublisher struct {
	mu     sync.Mutex
	events []DomainEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(_ context.Context, event DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far
func (p *MemoryPublisher) Events() []DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]DomainEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Types lists published event types in order
func (p *MemoryPublisher) Types() []EventType {
	events := p.Events()
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

// Emit publishes and logs a failure instead of returning it
func Emit(ctx context.Context, p Publisher, event DomainEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.GetDefault().ErrorWithContext(ctx, "Failed to publish domain event", err, map[string]interface{}{
			"type":     string(event.Type),
			"group_id": event.GroupID.String(),
		})
	}
}
