// Package stat tracks run-wide progress counters. One Tracker is created per
// run and shared by reference across every bucket task; a single mutex guards
// all fields. Updates are batched by the callers, so the coarse lock is not
// a contention point.
package stat

import (
	"log/slog"
	"sync"
	"time"
)

type Tracker struct {
	mu sync.Mutex

	startTime        time.Time
	totalBuckets     int
	completedBuckets int
	objects          int64
	skipped          int64
	bytes            int64
	bucketStart      map[string]time.Time
	bucketEnd        map[string]time.Time
}

// Snapshot is a point-in-time view of the run. ETA is zero until at least
// one bucket has completed.
type Snapshot struct {
	Elapsed          time.Duration
	Objects          int64
	Skipped          int64
	Bytes            int64
	CompletedBuckets int
	TotalBuckets     int
	ObjectsPerSec    float64
	BytesPerSec      float64
	ETA              time.Duration
}

func NewTracker(totalBuckets int) *Tracker {
	return &Tracker{
		startTime:    time.Now(),
		totalBuckets: totalBuckets,
		bucketStart:  make(map[string]time.Time),
		bucketEnd:    make(map[string]time.Time),
	}
}

func (t *Tracker) StartBucket(bucketName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bucketStart[bucketName] = time.Now()
}

// UpdateBucket adds a batch of per-object results to the run totals.
func (t *Tracker) UpdateBucket(objects, skipped, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.objects += objects
	t.skipped += skipped
	t.bytes += bytes
}

// CompleteBucket records the bucket end time. It is called for failed
// buckets too.
func (t *Tracker) CompleteBucket(bucketName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bucketEnd[bucketName] = time.Now()
	t.completedBuckets++
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.startTime)
	s := Snapshot{
		Elapsed:          elapsed,
		Objects:          t.objects,
		Skipped:          t.skipped,
		Bytes:            t.bytes,
		CompletedBuckets: t.completedBuckets,
		TotalBuckets:     t.totalBuckets,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.ObjectsPerSec = float64(t.objects) / secs
		s.BytesPerSec = float64(t.bytes) / secs
	}
	if t.completedBuckets > 0 {
		remaining := t.totalBuckets - t.completedBuckets
		s.ETA = time.Duration(float64(elapsed) / float64(t.completedBuckets) * float64(remaining))
	}
	return s
}

// Report logs the final statistics.
func (t *Tracker) Report() {
	s := t.Snapshot()
	slog.Info("Statistics report.",
		slog.Group("report",
			"elapsed", s.Elapsed.Round(time.Millisecond).String(),
			"objects", s.Objects,
			"skipped", s.Skipped,
			"bytes", s.Bytes,
			"completedBuckets", s.CompletedBuckets,
			"objectsPerSec", s.ObjectsPerSec,
			"bytesPerSec", s.BytesPerSec,
		),
	)
}
