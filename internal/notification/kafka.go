package notification

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes messages to the topic read by the email renderer,
// keyed by order id so both messages of an order stay on one partition.
type KafkaSender struct {
	writer messageWriter
}

func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaSender{writer: w}
}

func (k *KafkaSender) Send(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(m.OrderID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(m.Kind)},
			{Key: "recipient", Value: []byte(m.Recipient)},
		},
	})
}

func (k *KafkaSender) Close() error {
	return k.writer.Close()
}
