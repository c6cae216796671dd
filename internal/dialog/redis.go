package dialog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d2avids/helper-bot/internal/config"
)

// Redis — стор шагов диалога с TTL: брошенные диалоги сами истекают.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(cfg config.RedisConfig, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func key(chatID int64) string { return fmt.Sprintf("dialog:%d", chatID) }

func (r *Redis) Get(ctx context.Context, chatID int64) (Step, error) {
	v, err := r.client.Get(ctx, key(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return StepIdle, nil
	}
	if err != nil {
		return StepIdle, err
	}
	return Step(v), nil
}

func (r *Redis) Set(ctx context.Context, chatID int64, step Step) error {
	return r.client.Set(ctx, key(chatID), string(step), r.ttl).Err()
}

func (r *Redis) Clear(ctx context.Context, chatID int64) error {
	return r.client.Del(ctx, key(chatID)).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
