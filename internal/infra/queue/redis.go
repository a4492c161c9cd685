package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-diary-bot/internal/domain"
)

// RedisDiaryQueue реализует очередь задач генерации на базе Redis lists.
type RedisDiaryQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDiaryQueue создаёт очередь по указанному ключу.
func NewRedisDiaryQueue(client *redis.Client, key string) *RedisDiaryQueue {
	return &RedisDiaryQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisDiaryQueue) Enqueue(ctx context.Context, job domain.DiaryJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisDiaryQueue) Pop(ctx context.Context) (domain.DiaryJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.DiaryJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.DiaryJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.DiaryJob{}, err
		}
		if len(res) != 2 {
			return domain.DiaryJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.DiaryJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.DiaryJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
