package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/domain/shared"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
)

// DefaultOutcomeTopic receives sync outcome events when no topic is configured
const DefaultOutcomeTopic = "sync.outcomes"

// ErrKafkaNotConfigured is returned when the forwarder is built without brokers
var ErrKafkaNotConfigured = errors.New("kafka: no brokers configured")

// MessageWriter is the part of *kafka.Writer the forwarder uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder publishes sync outcome events to a Kafka topic so systems
// outside the engine can follow per-record results. Write failures are counted
// and returned to the bus, which logs them; they never affect the sync itself.
type KafkaForwarder struct {
	writer       MessageWriter
	serializer   *EventSerializer
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewKafkaWriter builds a kafka.Writer from config
func NewKafkaWriter(cfg config.KafkaConfig) (*kafka.Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaNotConfigured
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultOutcomeTopic
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              batchSize,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
	if cfg.ClientID != "" {
		w.Transport = &kafka.Transport{ClientID: cfg.ClientID}
	}
	return w, nil
}

// NewKafkaForwarder creates a forwarder over writer
func NewKafkaForwarder(writer MessageWriter, serializer *EventSerializer, writeTimeout time.Duration, logger *zap.Logger) *KafkaForwarder {
	if serializer == nil {
		serializer = NewEventSerializer()
		RegisterAllEvents(serializer)
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaForwarder{
		writer:       writer,
		serializer:   serializer,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// EventTypes implements shared.EventHandler
func (f *KafkaForwarder) EventTypes() []string {
	return []string{integration.EventTypeSyncRecordSynced, integration.EventTypeSyncRecordFailed}
}

// Handle writes one outcome event keyed by sync record, so every outcome for a
// record lands on the same partition in order
func (f *KafkaForwarder) Handle(ctx context.Context, event shared.DomainEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "kafka.forward",
		telemetry.WithSpanKind(trace.SpanKindProducer),
		telemetry.WithAttribute("event.type", event.EventType()),
	)
	defer span.End()

	value, err := f.serializer.Encode(event)
	if err != nil {
		telemetry.EventsForwarded.WithLabelValues(event.EventType(), "error").Inc()
		telemetry.RecordError(span, err)
		return err
	}

	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(event.EventType())},
		{Key: "tenant_id", Value: []byte(event.TenantID().String())},
	}
	if outcome, ok := event.(*integration.SyncOutcomeEvent); ok {
		headers = append(headers,
			kafka.Header{Key: "connection_pair_id", Value: []byte(outcome.ConnectionPairID.String())},
			kafka.Header{Key: "destination_type", Value: []byte(outcome.DestinationType)},
		)
	}

	msg := kafka.Message{
		Key:     []byte(event.AggregateID().String()),
		Value:   value,
		Headers: headers,
		Time:    event.OccurredAt(),
	}

	writeCtx, cancel := context.WithTimeout(ctx, f.writeTimeout)
	defer cancel()
	if err := f.writer.WriteMessages(writeCtx, msg); err != nil {
		telemetry.EventsForwarded.WithLabelValues(event.EventType(), "error").Inc()
		telemetry.RecordError(span, err)
		return fmt.Errorf("forward %s: %w", event.EventType(), err)
	}

	telemetry.EventsForwarded.WithLabelValues(event.EventType(), "ok").Inc()
	f.logger.Debug("sync outcome forwarded",
		zap.String("event_type", event.EventType()),
		zap.String("sync_record_id", event.AggregateID().String()),
	)
	return nil
}

// Close flushes and closes the writer
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

var _ shared.EventHandler = (*KafkaForwarder)(nil)
