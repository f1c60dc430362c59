package queue

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const typeHeader = "message_type"

// Writer is the subset of *kafkago.Writer used for publishing.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Reader is the subset of *kafkago.Reader used for consuming.
type Reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// KafkaQueue publishes to one topic and consumes it through a consumer
// group. Offsets are committed once the message is handed to a worker.
type KafkaQueue struct {
	writer Writer
	reader Reader
	log    *zap.Logger
}

// NewKafka builds a queue over a topic on brokers.
func NewKafka(brokers []string, topic, groupID string, logger *zap.Logger) (*KafkaQueue, func() error) {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		AllowAutoTopicCreation: true,
	}
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	closeFn := func() error {
		werr := w.Close()
		if err := r.Close(); err != nil {
			return err
		}
		return werr
	}
	return NewKafkaWith(w, r, logger), closeFn
}

// NewKafkaWith wraps an existing writer and reader.
func NewKafkaWith(w Writer, r Reader, logger *zap.Logger) *KafkaQueue {
	return &KafkaQueue{writer: w, reader: r, log: logger.Named("queue.kafka")}
}

// Publish writes the message to the partition chosen by msg.Key. Messages
// without a key are spread by the writer's balancer.
func (q *KafkaQueue) Publish(ctx context.Context, msg Message) error {
	var key []byte
	if msg.Key != "" {
		key = []byte(msg.Key)
	}
	return q.writer.WriteMessages(ctx, kafkago.Message{
		Key:     key,
		Value:   msg.Body,
		Headers: []kafkago.Header{{Key: typeHeader, Value: []byte(msg.Type)}},
	})
}

// Consume streams messages from the consumer group.
func (q *KafkaQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			km, err := q.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				q.log.Error("fetch message failed", zap.Error(err))
				continue
			}
			msg := Message{Key: string(km.Key), Body: km.Value}
			for _, h := range km.Headers {
				if h.Key == typeHeader {
					msg.Type = string(h.Value)
				}
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
			if err := q.reader.CommitMessages(ctx, km); err != nil && ctx.Err() == nil {
				q.log.Error("commit message failed", zap.Error(err))
			}
		}
	}()
	return out, nil
}
