package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/uswegem/miracore/configs"
	"github.com/uswegem/miracore/internal/pkg/consts"
	"github.com/uswegem/miracore/internal/pkg/logger"
)

// StatusChanged is emitted on every loan lifecycle transition for the
// external reporting collaborator.
type StatusChanged struct {
	ApplicationNumber string            `json:"applicationNumber"`
	LoanNumber        string            `json:"loanNumber,omitempty"`
	FromStatus        consts.LoanStatus `json:"fromStatus"`
	ToStatus          consts.LoanStatus `json:"toStatus"`
	Actor             consts.Actor      `json:"actor,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// Publisher ships lifecycle events to Kafka. Publishing is best-effort:
// a broker outage must never block protocol handling.
type Publisher struct {
	producer *kafka.Producer
	topic    string
}

// NewPublisher builds the Kafka producer from the environment. Returns
// a nil publisher when Kafka is disabled; all methods are nil-safe.
func NewPublisher() (*Publisher, error) {
	if !configs.KAFKA_ENABLED || configs.KAFKA_SERVER == "" {
		return nil, nil
	}
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  configs.KAFKA_SERVER,
		"security.protocol":  configs.KAFKA_SECURITY_PROTOCOL,
		"sasl.mechanisms":    configs.KAFKA_SASL_MECHANISM,
		"sasl.username":      configs.KAFKA_SASL_USERNAME,
		"sasl.password":      configs.KAFKA_SASL_PASSWORD,
		"session.timeout.ms": configs.KAFKA_SESSION_TIMEOUT_MS,
		"client.id":          configs.KAFKA_CLIENT_ID,
		"log_level":          0,
	})
	if err != nil {
		return nil, err
	}
	return &Publisher{producer: p, topic: configs.KAFKA_TOPIC}, nil
}

// PublishStatusChange emits one lifecycle event, keyed by application
// number so events for one application stay ordered per partition.
func (p *Publisher) PublishStatusChange(ctx context.Context, event StatusChanged) {
	if p == nil || p.producer == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		logger.Error(ctx, "failed to encode lifecycle event: %v", err)
		return
	}

	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.ApplicationNumber),
		Value:          value,
	}, nil)
	if err != nil {
		logger.Error(ctx, "failed to publish lifecycle event for %s: %v", event.ApplicationNumber, err)
	}
}

func (p *Publisher) Close() {
	if p == nil || p.producer == nil {
		return
	}
	p.producer.Flush(15 * 1000)
	p.producer.Close()
}
