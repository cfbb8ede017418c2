package archive

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/i474232898/wind-harvest/internal/weather"
)

// KafkaPublisher produces one message per archive record.
type KafkaPublisher struct {
	writer *kafkago.Writer
}

// NewKafkaPublisher creates a producer for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaPublisher{writer: w}
}

// Publish sends the records in a single WriteMessages call.
func (p *KafkaPublisher) Publish(ctx context.Context, group string, records []weather.ArchiveRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := recordToMessage(group, records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// recordToMessage keys messages by station id so a station's readings stay ordered.
func recordToMessage(group string, rec weather.ArchiveRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize archive record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "group", Value: []byte(group)},
			{Key: "type", Value: []byte(rec.Type)},
		},
	}, nil
}
