package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"chat-diary-bot/internal/domain"
	"chat-diary-bot/internal/infra/metrics"
)

// RabbitDiaryQueue реализует очередь задач генерации через AMQP.
type RabbitDiaryQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
	deliver <-chan amqp.Delivery
}

// NewRabbitDiaryQueue подключается к брокеру и объявляет долговечную очередь.
func NewRabbitDiaryQueue(amqpURL, queue string) (*RabbitDiaryQueue, error) {
	if amqpURL == "" {
		return nil, errors.New("amqp url is empty")
	}
	if queue == "" {
		return nil, errors.New("queue name is empty")
	}
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	deliver, err := ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("consume queue: %w", err)
	}
	return &RabbitDiaryQueue{conn: conn, channel: ch, queue: queue, deliver: deliver}, nil
}

// Enqueue публикует задачу в очередь.
func (q *RabbitDiaryQueue) Enqueue(ctx context.Context, job domain.DiaryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	metrics.ObserveNetworkRequest("rabbitmq", "publish", q.queue, start, err)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RabbitDiaryQueue) Pop(ctx context.Context) (domain.DiaryJob, error) {
	for {
		select {
		case <-ctx.Done():
			return domain.DiaryJob{}, ctx.Err()
		case delivery, ok := <-q.deliver:
			if !ok {
				return domain.DiaryJob{}, errors.New("rabbitmq queue: consume channel closed")
			}
			var job domain.DiaryJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				return domain.DiaryJob{}, fmt.Errorf("decode job: %w", err)
			}
			return job, nil
		}
	}
}

// Close освобождает канал и подключение.
func (q *RabbitDiaryQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		_ = q.conn.Close()
		return err
	}
	return q.conn.Close()
}
