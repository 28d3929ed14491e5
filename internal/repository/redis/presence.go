package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zveno/chat-service/internal/config"
)

const presenceKeyPrefix = "chat:presence:"

// Repository mirrors per-channel presence lists so they can be read outside
// the gateway process that owns the connections.
type Repository struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg *config.Config) *Repository {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &Repository{
		client: client,
		ttl:    cfg.Gateway.PresenceTTL,
	}
}

func (r *Repository) Close() {
	_ = r.client.Close()
}

func presenceKey(channelID string) string { return presenceKeyPrefix + channelID }

// SetPresence stores the usernames online in a channel. An empty list removes the key.
func (r *Repository) SetPresence(ctx context.Context, channelID string, usernames []string) error {
	if len(usernames) == 0 {
		if err := r.client.Del(ctx, presenceKey(channelID)).Err(); err != nil {
			return fmt.Errorf("failed to clear presence: %w", err)
		}
		return nil
	}

	data, err := json.Marshal(usernames)
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}

	if err := r.client.Set(ctx, presenceKey(channelID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store presence: %w", err)
	}

	return nil
}

func (r *Repository) GetPresence(ctx context.Context, channelID string) ([]string, error) {
	data, err := r.client.Get(ctx, presenceKey(channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load presence: %w", err)
	}

	var usernames []string
	if err := json.Unmarshal(data, &usernames); err != nil {
		return nil, fmt.Errorf("failed to unmarshal presence: %w", err)
	}

	return usernames, nil
}
