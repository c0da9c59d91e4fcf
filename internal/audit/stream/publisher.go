// Package stream mirrors persisted audit records onto a Kafka topic for
// downstream SIEM consumption. The chain in the audit store remains the
// source of truth; this stream is a fire-and-forget copy.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"riskgate/internal/audit"
)

const DefaultTopic = "riskgate.decisions"

// Publisher produces audit records to Kafka keyed by user id, so per-user
// decision history lands in one partition in order.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// New connects to the given brokers. An empty broker list disables the
// publisher (returns nil, nil) so wiring code can treat Kafka as optional.
func New(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, nil
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Notify implements the writer's post-persist hook. Delivery failures are
// logged and dropped; the durable chain already holds the record.
func (p *Publisher) Notify(rec audit.Record) {
	if p == nil {
		return
	}
	value, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error("marshal audit record for stream", "sequence_no", rec.SequenceNo, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.Payload.UserID),
		Value: value,
	}
	p.client.Produce(context.Background(), record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Warn("audit stream publish failed",
				"sequence_no", rec.SequenceNo,
				"topic", p.topic,
				"error", err,
			)
		}
	})
}

// Close flushes buffered produce requests and releases the client.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
