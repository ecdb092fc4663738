// Package distribution computes "beats X%" statistics over accepted submissions.
package distribution

import (
	"math"
	"sort"
	"time"
)

const (
	// BucketCount is the number of equal-width histogram buckets.
	BucketCount = 8
	// MinSubmissions is the smallest population a snapshot is built from.
	MinSubmissions = 10
)

// Bucket is one histogram bar.
type Bucket struct {
	Midpoint   float64 `json:"midpoint"`
	Percentage float64 `json:"percentage"`
}

// Snapshot summarizes one (problem, metric) population. It is never mutated
// after BuildSnapshot returns it.
type Snapshot struct {
	Buckets []Bucket  `json:"buckets"`
	Total   int       `json:"total"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	BuiltAt time.Time `json:"built_at"`
}

// BucketWidth returns the width of each bucket; zero for a degenerate snapshot.
func (s Snapshot) BucketWidth() float64 {
	if len(s.Buckets) == 0 {
		return 0
	}
	return (s.Max - s.Min) / float64(len(s.Buckets))
}

// BuildSnapshot builds a histogram of values. It reports false when there are
// fewer than MinSubmissions values.
func BuildSnapshot(values []float64) (Snapshot, bool) {
	if len(values) < MinSubmissions {
		return Snapshot{}, false
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	total := len(sorted)
	lo, hi := sorted[0], sorted[total-1]
	width := (hi - lo) / BucketCount

	counts := make([]int, BucketCount)
	if width == 0 {
		counts[0] = total
	} else {
		for _, v := range sorted {
			idx := int(math.Floor((v - lo) / width))
			if idx >= BucketCount {
				idx = BucketCount - 1
			}
			counts[idx]++
		}
	}

	buckets := make([]Bucket, BucketCount)
	for i := range buckets {
		buckets[i] = Bucket{
			Midpoint:   round2(lo + width*(float64(i)+0.5)),
			Percentage: round2(float64(counts[i]) / float64(total) * 100),
		}
	}
	return Snapshot{
		Buckets: buckets,
		Total:   total,
		Min:     lo,
		Max:     hi,
		BuiltAt: time.Now(),
	}, true
}

// PercentileRank returns the share of the population that value beats,
// lower being better: value <= Min beats everyone, value >= Max beats no one.
// Bucket counts are reconstructed from percentages and the bucket holding
// value is interpolated linearly.
func PercentileRank(s Snapshot, value float64) float64 {
	if s.Total == 0 || value <= s.Min {
		return 100
	}
	if value >= s.Max {
		return 0
	}
	width := s.BucketWidth()
	total := float64(s.Total)

	faster := 0.0
	for i, b := range s.Buckets {
		lower := s.Min + width*float64(i)
		upper := lower + width
		count := math.Round(b.Percentage / 100 * total)
		if upper <= value {
			faster += count
			continue
		}
		if lower < value {
			faster += count * (value - lower) / width
		}
		break
	}

	beats := round2((total - faster) / total * 100)
	return math.Max(0, math.Min(100, beats))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
