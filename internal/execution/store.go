package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yourorg/metaswap-gateway/internal/model"
)

// Record is what the executor persists once a transaction has been sent.
type Record struct {
	ExecutionID string           `json:"executionId"`
	Provider    string           `json:"provider"`
	MarketID    string           `json:"marketId"`
	Outcome     model.Outcome    `json:"outcome"`
	TxHash      string           `json:"txHash"`
	Provenance  model.Provenance `json:"provenance"`

	GasEstimated    uint64 `json:"gasEstimated"`
	GasLimit        uint64 `json:"gasLimit"`
	PotentialPayout string `json:"potentialPayout,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`

	// Settled is set once a receipt has been observed and never changes afterwards
	Settled *model.ExecutionOutcome `json:"settled,omitempty"`
}

// Store persists execution records for status lookup.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, executionID string) (Record, bool, error)
}

// MemoryStore is a process-local Store. Records expire ttl after their
// first save, matching RedisStore; a zero ttl keeps them for the process
// lifetime.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryEntry), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) expired(e memoryEntry, now time.Time) bool {
	return s.ttl > 0 && !now.Before(e.expires)
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evict(now)
	prev, ok := s.records[rec.ExecutionID]
	if ok && prev.rec.Settled != nil {
		return nil
	}
	entry := memoryEntry{rec: copyRecord(rec), expires: now.Add(s.ttl)}
	if ok {
		entry.expires = prev.expires
	}
	s.records[rec.ExecutionID] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, executionID string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.records[executionID]
	if !ok || s.expired(e, s.now()) {
		return Record{}, false, nil
	}
	return copyRecord(e.rec), true, nil
}

// evict drops expired records; callers hold the write lock
func (s *MemoryStore) evict(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, e := range s.records {
		if s.expired(e, now) {
			delete(s.records, id)
		}
	}
}

// Len reports the number of records held, expired or not
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(rec Record) Record {
	if rec.Settled != nil {
		settled := *rec.Settled
		rec.Settled = &settled
	}
	return rec
}

// RedisStore keeps records as JSON so status lookups survive restarts and
// work across replicas.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a store; a zero ttl keeps records forever
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(id string) string {
	return "metaswap:execution:" + id
}

func settledKey(id string) string {
	return redisKey(id) + ":settled"
}

// Save writes the submission record once and the settled outcome once, so
// the first observed terminal result is the one every lookup returns.
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	settled := rec.Settled
	rec.Settled = nil
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode execution record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.SetNX(ctx, redisKey(rec.ExecutionID), raw, s.ttl)
	if settled != nil {
		out, err := json.Marshal(settled)
		if err != nil {
			return fmt.Errorf("encode settled outcome: %w", err)
		}
		pipe.SetNX(ctx, settledKey(rec.ExecutionID), out, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, executionID string) (Record, bool, error) {
	vals, err := s.client.MGet(ctx, redisKey(executionID), settledKey(executionID)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("redis mget: %w", err)
	}
	raw, ok := vals[0].(string)
	if !ok {
		return Record{}, false, nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode execution record: %w", err)
	}
	if out, ok := vals[1].(string); ok {
		var settled model.ExecutionOutcome
		if err := json.Unmarshal([]byte(out), &settled); err != nil {
			return Record{}, false, fmt.Errorf("decode settled outcome: %w", err)
		}
		rec.Settled = &settled
	}
	return rec, true, nil
}
