package cache

import (
	"context"
	"fmt"

	redisv9 "github.com/redis/go-redis/v9"

	"paperchat/internal/model"
)

// RedisEmbeddingStore is the durable embedding tier. Vectors are stored in
// the same packed little-endian float32 layout used for chunk rows, with
// no expiry: content-addressed keys never go stale for a fixed model.
type RedisEmbeddingStore struct {
	client *redisv9.Client
}

func NewRedisEmbeddingStore(client *redisv9.Client) *RedisEmbeddingStore {
	return &RedisEmbeddingStore{client: client}
}

func (s *RedisEmbeddingStore) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get embedding failed: %w", err)
	}
	vec := model.UnpackEmbedding(raw)
	if len(vec) == 0 {
		return nil, false, nil
	}
	return vec, true, nil
}

func (s *RedisEmbeddingStore) Set(ctx context.Context, key string, vec []float32) error {
	if err := s.client.Set(ctx, s.key(key), model.PackEmbedding(vec), 0).Err(); err != nil {
		return fmt.Errorf("redis set embedding failed: %w", err)
	}
	return nil
}

func (s *RedisEmbeddingStore) key(hash string) string {
	return "embedding:" + hash
}
