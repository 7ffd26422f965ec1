package bandit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	beliefKeyPrefix = "bandit:belief:"
	variantSetKey   = "bandit:variants"
)

// RedisStore persists beliefs in Redis so that multiple evaluator processes
// share one set of evidence. Each belief is a JSON value under
// bandit:belief:<id>, with the id registered in a set for listing.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.L()
	}
	return &RedisStore{client: client, logger: logger}
}

func (s *RedisStore) Get(ctx context.Context, variantID string) (Belief, bool, error) {
	raw, err := s.client.Get(ctx, beliefKeyPrefix+variantID).Result()
	if err == redis.Nil {
		return Belief{}, false, nil
	}
	if err != nil {
		return Belief{}, false, fmt.Errorf("get belief %s: %w", variantID, err)
	}

	var b Belief
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return Belief{}, false, fmt.Errorf("decode belief %s: %w", variantID, err)
	}
	return b, true, nil
}

func (s *RedisStore) Put(ctx context.Context, b Belief) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode belief %s: %w", b.VariantID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, beliefKeyPrefix+b.VariantID, raw, 0)
	pipe.SAdd(ctx, variantSetKey, b.VariantID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put belief %s: %w", b.VariantID, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Belief, error) {
	ids, err := s.client.SMembers(ctx, variantSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}

	beliefs := make([]Belief, 0, len(ids))
	for _, id := range ids {
		b, ok, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Registered but missing value; tolerate and move on.
			s.logger.Warn("belief missing for registered variant", zap.String("variant_id", id))
			continue
		}
		beliefs = append(beliefs, b)
	}
	return beliefs, nil
}
