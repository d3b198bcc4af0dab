// Package kafka streams match decisions to a Kafka topic
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is stamped on every decision message
const SchemaVersion = "1.0"

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes one message per decision, keyed by record ID so that
// every decision for a record lands on the same partition
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}
	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{writer: writer, logger: logger, topic: topic}
}

func compression(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none":
		return 0
	default:
		return kafka.Snappy
	}
}

// DecisionEvent is the message body of one decision
type DecisionEvent struct {
	EventType string               `json:"event_type"`
	Decision  models.MatchDecision `json:"decision"`
	Link      *models.Link         `json:"link,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// Name identifies the producer as a decision sink
func (p *Producer) Name() string {
	return "kafka"
}

// Write publishes a batch of decisions
func (p *Producer) Write(ctx context.Context, decisions []models.MatchDecision) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.Write")
	defer span.End()

	if len(decisions) == 0 {
		return nil
	}

	messages, err := p.messages(ctx, decisions)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("batch_size", len(decisions)).Error("Failed to publish decisions batch")
		return errors.Wrap(err, "failed to publish decisions")
	}

	p.logger.WithContext(ctx).WithField("batch_size", len(decisions)).Debug("Published decisions batch")
	return nil
}

func (p *Producer) messages(ctx context.Context, decisions []models.MatchDecision) ([]kafka.Message, error) {
	now := time.Now().UTC()
	traceParent := tracing.TraceParent(ctx)
	out := make([]kafka.Message, len(decisions))
	for i, d := range decisions {
		event := DecisionEvent{
			EventType: "decision." + string(d.Status),
			Decision:  d,
			Timestamp: now,
		}
		if link, ok := d.Link(); ok {
			event.Link = &link
		}

		data, err := json.Marshal(event)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to encode decision %s", d.ID)
		}

		out[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(d.RecordID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "entity_type", Value: []byte(d.EntityType)},
				{Key: "run_id", Value: []byte(d.RunID)},
				{Key: "schema_version", Value: []byte(SchemaVersion)},
			},
		}
		if traceParent != "" {
			out[i].Headers = append(out[i].Headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
		}
	}
	return out, nil
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
