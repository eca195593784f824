package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andresuchdata/backup-mongodb/internal/config"
	"github.com/andresuchdata/backup-mongodb/internal/domain"
)

const (
	lastCycleKey    = "backup:cycle:last"
	cycleHistoryKey = "backup:cycle:history"
	historyLimit    = 50
)

// StatusStore remembers the outcome of recent backup cycles.
type StatusStore interface {
	SaveCycle(ctx context.Context, result domain.CycleResult) error
	LastCycle(ctx context.Context) (*domain.CycleResult, bool, error)
	History(ctx context.Context, limit int) ([]domain.CycleResult, error)
	Close() error
}

type redisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusStore returns a Redis-backed store when caching is enabled and an
// in-memory one otherwise.
func NewStatusStore(cfg config.CacheConfig) (StatusStore, error) {
	if !cfg.Enabled {
		return NewMemoryStatusStore(), nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	return &redisStatusStore{client: client, ttl: ttl}, nil
}

func (s *redisStatusStore) SaveCycle(ctx context.Context, result domain.CycleResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal cycle result: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, lastCycleKey, payload, s.ttl)
	pipe.LPush(ctx, cycleHistoryKey, payload)
	pipe.LTrim(ctx, cycleHistoryKey, 0, historyLimit-1)
	pipe.Expire(ctx, cycleHistoryKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save cycle failed: %w", err)
	}
	return nil
}

func (s *redisStatusStore) LastCycle(ctx context.Context) (*domain.CycleResult, bool, error) {
	payload, err := s.client.Get(ctx, lastCycleKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var result domain.CycleResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, false, fmt.Errorf("decode cycle result: %w", err)
	}
	return &result, true, nil
}

func (s *redisStatusStore) History(ctx context.Context, limit int) ([]domain.CycleResult, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}
	items, err := s.client.LRange(ctx, cycleHistoryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	results := make([]domain.CycleResult, 0, len(items))
	for _, item := range items {
		var result domain.CycleResult
		if err := json.Unmarshal([]byte(item), &result); err != nil {
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *redisStatusStore) Close() error {
	return s.client.Close()
}

type memoryStatusStore struct {
	mu      sync.RWMutex
	history []domain.CycleResult
}

// NewMemoryStatusStore keeps results in process memory only.
func NewMemoryStatusStore() StatusStore {
	return &memoryStatusStore{}
}

func (s *memoryStatusStore) SaveCycle(_ context.Context, result domain.CycleResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]domain.CycleResult{result}, s.history...)
	if len(s.history) > historyLimit {
		s.history = s.history[:historyLimit]
	}
	return nil
}

func (s *memoryStatusStore) LastCycle(context.Context) (*domain.CycleResult, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.history) == 0 {
		return nil, false, nil
	}
	last := s.history[0]
	return &last, true, nil
}

func (s *memoryStatusStore) History(_ context.Context, limit int) ([]domain.CycleResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]domain.CycleResult, limit)
	copy(out, s.history[:limit])
	return out, nil
}

func (s *memoryStatusStore) Close() error { return nil }
