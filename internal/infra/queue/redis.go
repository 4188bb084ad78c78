package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-funnel-bot/internal/domain"
	"tg-funnel-bot/internal/infra/metrics"
)

// RedisMailingQueue реализует очередь задач рассылки на базе Redis lists.
type RedisMailingQueue struct {
	client *redis.Client
	key    string
}

var _ domain.MailingQueue = (*RedisMailingQueue)(nil)

// NewRedisMailingQueue создаёт очередь по указанному ключу.
func NewRedisMailingQueue(client *redis.Client, key string) *RedisMailingQueue {
	return &RedisMailingQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisMailingQueue) Enqueue(ctx context.Context, job domain.MailingJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. Подтверждение с success=false
// возвращает задачу в очередь.
func (q *RedisMailingQueue) Receive(ctx context.Context) (domain.MailingJob, domain.MailingAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.MailingJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.MailingJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.MailingJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.MailingJob{}, nil, errors.New("redis queue: unexpected response")
		}
		var job domain.MailingJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.MailingJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, res[1]).Err()
		}
		return job, ack, nil
	}
}
