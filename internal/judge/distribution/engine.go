package distribution

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"koodecode/internal/judge/model"
	appErr "koodecode/pkg/errors"
	"koodecode/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultLoadTimeout = 5 * time.Second

// Lookup outcomes passed to Config.OnLookup.
const (
	LookupHit   = "hit"
	LookupStale = "stale"
	LookupMiss  = "miss"
)

// SnapshotStore is a shared cache of built snapshots.
type SnapshotStore interface {
	Get(ctx context.Context, problemID int64, metric model.Metric) (Snapshot, bool, error)
	Put(ctx context.Context, problemID int64, metric model.Metric, snapshot Snapshot) error
	Delete(ctx context.Context, problemID int64, metrics ...model.Metric) error
}

// ValueSource returns the accepted submissions' values of one metric.
type ValueSource interface {
	AcceptedValues(ctx context.Context, problemID int64, metric model.Metric) ([]float64, error)
}

// Rank is the result of ranking one value.
type Rank struct {
	Available bool    `json:"available"`
	Beats     float64 `json:"beats"`
	Total     int     `json:"total"`
}

// Config holds engine dependencies.
type Config struct {
	Source ValueSource
	// Store is optional; without it snapshots live only in process.
	Store SnapshotStore
	// RefreshAfter marks in-process entries stale. Zero keeps them until invalidated.
	RefreshAfter time.Duration
	LoadTimeout  time.Duration
	OnLookup     func(metric model.Metric, outcome string)
}

type entry struct {
	snapshot  Snapshot
	available bool
	loadedAt  time.Time
}

type slot struct {
	current atomic.Pointer[entry]
	version atomic.Uint64
}

// Engine serves snapshots per (problem, metric). Readers load an immutable
// entry through an atomic pointer; rebuilds replace it.
type Engine struct {
	source       ValueSource
	store        SnapshotStore
	refreshAfter time.Duration
	loadTimeout  time.Duration
	onLookup     func(metric model.Metric, outcome string)

	slots sync.Map // slotKey -> *slot
	group singleflight.Group
}

type slotKey struct {
	problemID int64
	metric    model.Metric
}

// NewEngine creates an engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("value source is required")
	}
	timeout := cfg.LoadTimeout
	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	return &Engine{
		source:       cfg.Source,
		store:        cfg.Store,
		refreshAfter: cfg.RefreshAfter,
		loadTimeout:  timeout,
		onLookup:     cfg.OnLookup,
	}, nil
}

// Snapshot returns the distribution for problemID and metric. The bool is
// false when too few accepted submissions exist.
func (e *Engine) Snapshot(ctx context.Context, problemID int64, metric model.Metric) (Snapshot, bool, error) {
	if problemID <= 0 {
		return Snapshot{}, false, appErr.ValidationError("problem_id", "required")
	}
	if _, ok := model.ParseMetric(string(metric)); !ok {
		return Snapshot{}, false, appErr.Newf(appErr.InvalidMetric, "unknown metric %q", metric)
	}

	key := slotKey{problemID: problemID, metric: metric}
	s := e.slot(key)
	if cur := s.current.Load(); cur != nil {
		if e.refreshAfter > 0 && time.Since(cur.loadedAt) > e.refreshAfter {
			e.record(metric, LookupStale)
			e.refreshAsync(ctx, key, s)
		} else {
			e.record(metric, LookupHit)
		}
		return cur.snapshot, cur.available, nil
	}

	e.record(metric, LookupMiss)
	ent, err := e.load(ctx, key, s, true)
	if err != nil {
		return Snapshot{}, false, err
	}
	return ent.snapshot, ent.available, nil
}

// Rank ranks value against the current snapshot.
func (e *Engine) Rank(ctx context.Context, problemID int64, metric model.Metric, value float64) (Rank, error) {
	snap, ok, err := e.Snapshot(ctx, problemID, metric)
	if err != nil {
		return Rank{}, err
	}
	if !ok {
		return Rank{Available: false}, nil
	}
	return Rank{
		Available: true,
		Beats:     PercentileRank(snap, value),
		Total:     snap.Total,
	}, nil
}

// Invalidate drops both metrics of problemID so the next query rebuilds them.
func (e *Engine) Invalidate(ctx context.Context, problemID int64) error {
	metrics := []model.Metric{model.MetricRuntime, model.MetricMemory}
	for _, m := range metrics {
		s := e.slot(slotKey{problemID: problemID, metric: m})
		s.version.Add(1)
		s.current.Store(nil)
	}
	if e.store == nil {
		return nil
	}
	if err := e.store.Delete(ctx, problemID, metrics...); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete distribution snapshots failed")
	}
	return nil
}

func (e *Engine) slot(key slotKey) *slot {
	if s, ok := e.slots.Load(key); ok {
		return s.(*slot)
	}
	s, _ := e.slots.LoadOrStore(key, &slot{})
	return s.(*slot)
}

// load builds an entry once per key and version. Concurrent callers share the result.
func (e *Engine) load(ctx context.Context, key slotKey, s *slot, useStore bool) (*entry, error) {
	version := s.version.Load()
	flightKey := fmt.Sprintf("%d:%s:%d", key.problemID, key.metric, version)
	v, err, _ := e.group.Do(flightKey, func() (interface{}, error) {
		// a flight that finished just before this one may already have filled the slot
		if cur := s.current.Load(); useStore && cur != nil && s.version.Load() == version {
			return cur, nil
		}
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.loadTimeout)
		defer cancel()

		ent, err := e.build(loadCtx, key, s, version, useStore)
		if err != nil {
			return nil, err
		}
		if s.version.Load() == version {
			s.current.Store(ent)
		}
		return ent, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*entry), nil
}

// build reads the store, then the source. A build that raced an Invalidate
// does not write its snapshot back to the store.
func (e *Engine) build(ctx context.Context, key slotKey, s *slot, version uint64, useStore bool) (*entry, error) {
	if useStore && e.store != nil {
		snap, ok, err := e.store.Get(ctx, key.problemID, key.metric)
		if err != nil {
			logger.Warn(ctx, "read distribution snapshot failed",
				zap.Int64("problem_id", key.problemID),
				zap.String("metric", string(key.metric)),
				zap.Error(err),
			)
		} else if ok {
			return &entry{snapshot: snap, available: true, loadedAt: time.Now()}, nil
		}
	}

	values, err := e.source.AcceptedValues(ctx, key.problemID, key.metric)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load accepted values failed")
	}
	snap, ok := BuildSnapshot(values)
	if ok && e.store != nil && s.version.Load() == version {
		if err := e.store.Put(ctx, key.problemID, key.metric, snap); err != nil {
			logger.Warn(ctx, "store distribution snapshot failed",
				zap.Int64("problem_id", key.problemID),
				zap.String("metric", string(key.metric)),
				zap.Error(err),
			)
		}
	}
	return &entry{snapshot: snap, available: ok, loadedAt: time.Now()}, nil
}

// refreshAsync rebuilds from the source while readers keep the stale entry.
func (e *Engine) refreshAsync(ctx context.Context, key slotKey, s *slot) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.load(bg, key, s, false); err != nil {
			logger.Warn(bg, "refresh distribution snapshot failed",
				zap.Int64("problem_id", key.problemID),
				zap.String("metric", string(key.metric)),
				zap.Error(err),
			)
		}
	}()
}

func (e *Engine) record(metric model.Metric, outcome string) {
	if e.onLookup != nil {
		e.onLookup(metric, outcome)
	}
}
