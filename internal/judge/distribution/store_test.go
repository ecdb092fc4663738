package distribution

import (
	"context"
	"strings"
	"testing"
	"time"

	"koodecode/internal/common/cache"
	"koodecode/internal/common/db"
	"koodecode/internal/judge/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return NewRedisStore(c, ttl), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()
	snap, _ := BuildSnapshot(seq(10, 10, 10))

	if _, ok, err := store.Get(ctx, 1, model.MetricRuntime); err != nil || ok {
		t.Fatalf("empty store: ok=%v err=%v", ok, err)
	}
	if err := store.Put(ctx, 1, model.MetricRuntime, snap); err != nil {
		t.Fatalf("put: %v", err)
	}
	if mr.TTL(snapshotKey(1, model.MetricRuntime)) <= 0 {
		t.Fatalf("expected ttl on snapshot key")
	}
	got, ok, err := store.Get(ctx, 1, model.MetricRuntime)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Total != 10 || len(got.Buckets) != BucketCount || got.Buckets[0].Percentage != 20 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if _, ok, _ := store.Get(ctx, 1, model.MetricMemory); ok {
		t.Fatalf("memory key must not see the runtime snapshot")
	}

	if err := store.Delete(ctx, 1, model.MetricRuntime, model.MetricMemory); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, 1, model.MetricRuntime); ok {
		t.Fatalf("snapshot survived delete")
	}
}

func TestRedisStoreWithoutTTL(t *testing.T) {
	store, mr := newTestStore(t, 0)
	snap, _ := BuildSnapshot(seq(10, 10, 10))
	if err := store.Put(context.Background(), 2, model.MetricMemory, snap); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ttl := mr.TTL(snapshotKey(2, model.MetricMemory)); ttl != 0 {
		t.Fatalf("expected no ttl, got %v", ttl)
	}
}

func TestRedisStoreRejectsCorruptValue(t *testing.T) {
	store, mr := newTestStore(t, 0)
	if err := mr.Set(snapshotKey(3, model.MetricRuntime), "{broken"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, _, err := store.Get(context.Background(), 3, model.MetricRuntime); err == nil {
		t.Fatalf("expected decode error")
	}
}

type fakeRows struct {
	values []float64
	pos    int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.values)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	*(dest[0].(*float64)) = r.values[r.pos-1]
	return nil
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

type fakeQuerier struct {
	query string
	args  []interface{}
	rows  *fakeRows
}

func (q *fakeQuerier) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	q.query = query
	q.args = args
	return q.rows, nil
}

func (q *fakeQuerier) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return nil
}

func (q *fakeQuerier) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return nil, nil
}

func TestMySQLSourceSelectsMetricColumn(t *testing.T) {
	t.Parallel()
	q := &fakeQuerier{rows: &fakeRows{values: []float64{12.5, 8}}}
	src := NewMySQLSource(q, 50)

	values, err := src.AcceptedValues(context.Background(), 4, model.MetricMemory)
	if err != nil {
		t.Fatalf("accepted values: %v", err)
	}
	if len(values) != 2 || values[0] != 12.5 {
		t.Fatalf("values=%v", values)
	}
	if !strings.Contains(q.query, "max_memory_kb") || strings.Contains(q.query, "total_time_ms") {
		t.Fatalf("query=%s", q.query)
	}
	if q.args[0] != int64(4) || q.args[1] != "accepted" || q.args[2] != 50 {
		t.Fatalf("args=%v", q.args)
	}

	if _, err := src.AcceptedValues(context.Background(), 4, model.Metric("cpu")); err == nil {
		t.Fatalf("expected error for unknown metric")
	}
}
