package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"arenaengine/model"

	"github.com/go-redis/redis/v8"
)

const runKeyPrefix = "arenaengine:run:"

var ErrRunNotFound = errors.New("run not found")

// ResultStore keeps finished test-case runs for later retrieval.
type ResultStore interface {
	Save(ctx context.Context, run model.ProblemRunResponse) error
	Get(ctx context.Context, runID string) (model.ProblemRunResponse, error)
}

// RedisStore implements ResultStore with Redis
type RedisStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

var _ ResultStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis result store
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redisClient: redisClient, ttl: ttl}
}

func (r *RedisStore) Save(ctx context.Context, run model.ProblemRunResponse) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := r.redisClient.Set(ctx, runKeyPrefix+run.RunID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, runID string) (model.ProblemRunResponse, error) {
	var run model.ProblemRunResponse
	data, err := r.redisClient.Get(ctx, runKeyPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return run, ErrRunNotFound
	}
	if err != nil {
		return run, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	if err := json.Unmarshal(data, &run); err != nil {
		return run, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return run, nil
}

// MemoryStore is the in-process fallback when no Redis is configured.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	runs map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	run     model.ProblemRunResponse
	expires time.Time
}

var _ ResultStore = (*MemoryStore)(nil)

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, runs: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Save(_ context.Context, run model.ProblemRunResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, e := range m.runs {
		if now.After(e.expires) {
			delete(m.runs, id)
		}
	}
	run.Outcomes = append([]model.TestCaseOutcome(nil), run.Outcomes...)
	m.runs[run.RunID] = memoryEntry{run: run, expires: now.Add(m.ttl)}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, runID string) (model.ProblemRunResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.runs[runID]
	if !ok || m.now().After(e.expires) {
		return model.ProblemRunResponse{}, ErrRunNotFound
	}
	return e.run, nil
}
