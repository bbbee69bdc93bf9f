package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"plugstore/internal/order"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier публикует OrderCompletedEvent с ключом order_number.
// Пока брокер недоступен, circuit breaker сразу отклоняет публикации.
type KafkaNotifier struct {
	writer  messageWriter
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return newKafkaNotifier(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		// Одиночное событие уходит без ожидания заполнения пачки.
		BatchTimeout: 10 * time.Millisecond,
	})
}

func newKafkaNotifier(w messageWriter) *KafkaNotifier {
	return &KafkaNotifier{
		writer:  w,
		timeout: 5 * time.Second,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "kafka-orders",
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Printf("Circuit breaker '%s' changed from %s to %s", name, from, to)
			},
		}),
	}
}

func (n *KafkaNotifier) OrderCompleted(ctx context.Context, o *order.Order) error {
	payload, err := json.Marshal(NewOrderCompletedEvent(o))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = n.cb.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return nil, n.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(o.OrderNumber),
			Value: payload,
		})
	})
	if err != nil {
		return fmt.Errorf("publish order %s: %w", o.OrderNumber, err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
