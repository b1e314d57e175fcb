package publish

import (
	"context"
	"time"

	"codeberg.org/mutker/cryoctl/internal/errors"
	"github.com/segmentio/kafka-go"
)

// one status per write; flush without waiting for a batch to fill
const kafkaBatchTimeout = 5 * time.Millisecond

type KafkaConfig struct {
	Brokers []string
	Topic   string
	// Key partitions messages from one controller together.
	Key string
}

type kafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaPublisher returns a publisher producing status messages to
// cfg.Topic. Connections are made lazily on the first write.
func NewKafkaPublisher(cfg KafkaConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New().WithData(errors.ErrInvalidConfig, cfg)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: kafkaBatchTimeout,
	}

	return newPublisher("kafka", cfg.Key, &kafkaSink{writer: writer}), nil
}

func (s *kafkaSink) send(ctx context.Context, key string, payload []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
}

func (s *kafkaSink) close() error {
	return s.writer.Close()
}
