package distribution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"koodecode/internal/common/cache"
	"koodecode/internal/judge/model"
)

const snapshotKeyPrefix = "judge:distribution:"

// RedisStore keeps snapshots as JSON in the shared cache so every replica
// serves the same histogram.
type RedisStore struct {
	cache cache.BasicOps
	ttl   time.Duration
}

// NewRedisStore creates a store. A zero ttl keeps snapshots until deleted.
func NewRedisStore(cacheClient cache.BasicOps, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: cacheClient, ttl: ttl}
}

func snapshotKey(problemID int64, metric model.Metric) string {
	return fmt.Sprintf("%s%d:%s", snapshotKeyPrefix, problemID, metric)
}

// Get returns the stored snapshot, or false when none is stored.
func (s *RedisStore) Get(ctx context.Context, problemID int64, metric model.Metric) (Snapshot, bool, error) {
	raw, err := s.cache.Get(ctx, snapshotKey(problemID, metric))
	if err != nil {
		return Snapshot{}, false, err
	}
	if raw == "" || raw == cache.NullCacheValue {
		return Snapshot{}, false, nil
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode snapshot failed: %w", err)
	}
	if len(snap.Buckets) == 0 {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Put stores snapshot.
func (s *RedisStore) Put(ctx context.Context, problemID int64, metric model.Metric, snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot failed: %w", err)
	}
	return s.cache.Set(ctx, snapshotKey(problemID, metric), string(data), cache.JitterTTL(s.ttl))
}

// Delete removes the snapshots of the given metrics.
func (s *RedisStore) Delete(ctx context.Context, problemID int64, metrics ...model.Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	keys := make([]string, 0, len(metrics))
	for _, m := range metrics {
		keys = append(keys, snapshotKey(problemID, m))
	}
	return s.cache.Del(ctx, keys...)
}
