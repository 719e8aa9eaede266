package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config mirrors the kafka section of the YAML config.
type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int           // default 1KB
	MaxBytes       int           // default 10MB
	CommitInterval time.Duration // default 1s
	MaxWait        time.Duration // default 50ms
}

// Consumer wraps a kafka-go Reader with explicit commits. The delivery
// worker commits a message only after the attempt outcome is persisted,
// so a crash mid-attempt replays the envelope instead of losing it.
type Consumer struct {
	reader *kafka.Reader
}

func NewConsumerFromConfig(c Config) *Consumer {
	minBytes := c.MinBytes
	if minBytes <= 0 {
		minBytes = 1 << 10
	}
	maxBytes := c.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	commitEvery := c.CommitInterval
	if commitEvery <= 0 {
		commitEvery = time.Second
	}
	maxWait := c.MaxWait
	if maxWait <= 0 {
		maxWait = 50 * time.Millisecond
	}

	return &Consumer{reader: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: commitEvery,
		MaxWait:        maxWait,
	})}
}

type Message = kafka.Message

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.reader.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.reader.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.reader.Close() }
