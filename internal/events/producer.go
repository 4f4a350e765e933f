package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer lazily manages one kafka writer per topic.
type Producer struct {
	brokers []string
	topic   string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewProducer creates a Producer publishing to topic via brokers.
func NewProducer(brokers []string, topic string) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Producer{
		brokers: brokers,
		topic:   topic,
		writers: make(map[string]*kafka.Writer),
	}
}

// PublishAwarded serializes and publishes a points.awarded event, keyed by
// user so one identity's events stay ordered within a partition.
func (p *Producer) PublishAwarded(ctx context.Context, evt PointsAwarded) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(evt.UserID),
		Value: body,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventPointsAwarded)},
			{Key: "user_id", Value: []byte(evt.UserID)},
		},
	}
	return p.writeMessages(ctx, p.topic, msg)
}

func (p *Producer) writeMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	writer := p.writerForTopic(topic)
	return writer.WriteMessages(ctx, msgs...)
}

func (p *Producer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
