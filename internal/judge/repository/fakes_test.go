package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"koodecode/internal/common/cache"
	"koodecode/internal/common/db"
	"koodecode/internal/common/mq"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	return c, mr
}

type execCall struct {
	query string
	args  []interface{}
}

type fakeResult struct{ affected int64 }

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

// fakeRow copies values into Scan destinations by position.
type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

type fakeRows struct {
	rows [][]interface{}
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	return fakeRow{values: r.rows[r.pos-1]}.Scan(dest...)
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

// fakeDB records statements. Exec answers with affected rows in order, the
// last value repeating.
type fakeDB struct {
	mu         sync.Mutex
	execs      []execCall
	affected   []int64
	row        fakeRow
	rows       [][]interface{}
	queryCount int
	committed  int
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCount++
	return &fakeRows{rows: f.rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return f.row
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, execCall{query: query, args: args})
	affected := int64(1)
	if n := len(f.affected); n > 0 {
		idx := len(f.execs) - 1
		if idx >= n {
			idx = n - 1
		}
		affected = f.affected[idx]
	}
	return fakeResult{affected: affected}, nil
}

func (f *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if err := fn(fakeTx{f}); err != nil {
		return err
	}
	f.mu.Lock()
	f.committed++
	f.mu.Unlock()
	return nil
}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }
func (f *fakeDB) Close() error                   { return nil }

type fakeTx struct{ *fakeDB }

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

var errNoRows = sql.ErrNoRows

type fakeProducer struct {
	mu       sync.Mutex
	messages map[string][]*mq.Message
	err      error
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{messages: make(map[string][]*mq.Message)}
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages[topic] = append(p.messages[topic], message)
	return nil
}

func (p *fakeProducer) count(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[topic])
}
