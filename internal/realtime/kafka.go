package realtime

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaHeaderEvent = "event"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter builds a writer that keys live events by channel so a channel stays ordered
// within one partition.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// KafkaBroadcaster appends live events to a Kafka topic for out-of-process consumers.
type KafkaBroadcaster struct {
	writer messageWriter
	clock  func() time.Time
}

// NewKafkaBroadcaster wraps writer.
func NewKafkaBroadcaster(writer messageWriter) *KafkaBroadcaster {
	return &KafkaBroadcaster{writer: writer, clock: time.Now}
}

func (b *KafkaBroadcaster) Broadcast(ctx context.Context, event Event) error {
	message, err := NewMessage(event, b.clock())
	if err != nil {
		return err
	}
	payload, err := message.Encode()
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.Channel),
		Value: payload,
		Time:  message.Timestamp,
		Headers: []kafka.Header{
			{Key: kafkaHeaderEvent, Value: []byte(message.Event)},
		},
	})
}

// Close flushes and closes the underlying writer.
func (b *KafkaBroadcaster) Close() error {
	return b.writer.Close()
}
