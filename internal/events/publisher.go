package events

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/mystictxt/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TypeSessionRequested = "chat_session.requested"
	TypeSessionAccepted  = "chat_session.accepted"
	TypeSessionEnded     = "chat_session.ended"
)

// SessionEvent is the payload published for chat session lifecycle changes.
type SessionEvent struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	SessionID        int64     `json:"session_id"`
	CustomerID       string    `json:"customer_id"`
	Status           string    `json:"status"`
	EndReason        string    `json:"end_reason,omitempty"`
	DurationMinutes  int       `json:"duration_minutes"`
	CreditsUsedCents int64     `json:"credits_used_cents"`
	OccurredAt       time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event SessionEvent) error
}

// KafkaPublisher writes events to a topic keyed by session id so each
// session's events stay ordered within one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: log.Named("events.kafka")}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event SessionEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.SessionID, 10)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Warn("failed to publish event",
			zap.String("event_type", event.Type),
			zap.Int64("session_id", event.SessionID),
			zap.Error(err),
		)
		return err
	}

	p.log.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher discards events when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, SessionEvent) error { return nil }

func NewSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Return.Successes = true
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	return sc
}

// NewPublisher returns a Kafka publisher when brokers are configured and a no-op otherwise.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Publisher, error) {
	if !cfg.Kafka.Enabled() {
		log.Info("kafka disabled, chat events will not be published")
		return NoopPublisher{}, nil
	}

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, NewSaramaConfig(cfg.Kafka))
	if err != nil {
		return nil, err
	}
	publisher := NewKafkaPublisher(producer, cfg.Kafka.Topic, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}
