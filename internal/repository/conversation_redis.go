package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"openrouter-chat/internal/domain"
)

const redisConversationPrefix = "chat:session:"

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisConversationRepository guarda cada sesión como un blob JSON bajo su propia clave.
type RedisConversationRepository struct {
	client redisKV
	prefix string
	ttl    time.Duration
}

// NewRedisConversationRepository crea el repositorio; ttl <= 0 significa sin expiración.
func NewRedisConversationRepository(client *redis.Client, ttl time.Duration) *RedisConversationRepository {
	if ttl < 0 {
		ttl = 0
	}
	return &RedisConversationRepository{
		client: client,
		prefix: redisConversationPrefix,
		ttl:    ttl,
	}
}

func (r *RedisConversationRepository) Lookup(ctx context.Context, sessionID string) ([]domain.Message, bool, error) {
	raw, err := r.client.Get(ctx, r.prefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get session: %w", err)
	}

	var msgs []domain.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, false, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, true, nil
}

func (r *RedisConversationRepository) Upsert(ctx context.Context, sessionID string, messages []domain.Message) error {
	if messages == nil {
		messages = []domain.Message{}
	}
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sessionID, err)
	}
	if err := r.client.Set(ctx, r.prefix+sessionID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}
