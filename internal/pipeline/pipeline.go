// Package pipeline drives the two-level checksum run: a bounded pool of
// bucket tasks, each running a bounded pool of object tasks over a lazy
// object enumeration. Results are accumulated in per-bucket scratch sinks
// and merged into the final artifact when all bucket tasks have settled.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Trozz/get-s3-checksums/internal/checksum"
	"github.com/Trozz/get-s3-checksums/internal/pool"
	"github.com/Trozz/get-s3-checksums/internal/processor"
	"github.com/Trozz/get-s3-checksums/internal/s3client"
	"github.com/Trozz/get-s3-checksums/internal/scratch"
	"github.com/Trozz/get-s3-checksums/internal/stat"
)

const (
	// statBatchSize bounds tracker lock contention: counter updates are
	// flushed every this many results, plus a final flush of the remainder.
	statBatchSize = 10

	// progressInterval is the per-bucket object count between progress logs.
	progressInterval = 100
)

// Store is the full object-store capability set the pipeline consumes.
// *s3client.Client satisfies it.
type Store interface {
	processor.ObjectStore
	ListBuckets(ctx context.Context) ([]s3client.Bucket, error)
	GetBucketRegion(ctx context.Context, bucketName string) (string, error)
	ListObjects(ctx context.Context, region, bucketName, prefix string, max int, out chan<- s3client.ObjectDescriptor) error
	BucketIsEmpty(ctx context.Context, region, bucketName string) (bool, error)
}

// Config is the validated configuration of one run.
type Config struct {
	Request             checksum.Request
	ObjectConcurrency   int
	BucketConcurrency   int
	MaxObjectsPerBucket int
	Force               bool
	BucketFilter        string
	SkipEmpty           bool
}

// BucketJob is the unit of work of the bucket-level pool.
type BucketJob struct {
	Name      string
	CreatedAt time.Time
	Prefix    string
}

// Pipeline processes single buckets end to end.
type Pipeline struct {
	store   Store
	space   *scratch.Space
	tracker *stat.Tracker
	proc    *processor.Processor
	cfg     Config
}

func NewPipeline(store Store, space *scratch.Space, tracker *stat.Tracker, cfg Config) *Pipeline {
	return &Pipeline{
		store:   store,
		space:   space,
		tracker: tracker,
		proc:    processor.New(store, cfg.Request, cfg.Force),
		cfg:     cfg,
	}
}

// ProcessBucket enumerates one bucket lazily, runs the object pool over the
// enumeration, and accumulates rows into a private scratch sink. On failure
// the sink is discarded and the bucket contributes zero rows; sibling
// buckets are unaffected. A (nil, nil) return means the bucket was skipped.
func (p *Pipeline) ProcessBucket(ctx context.Context, job BucketJob) (*scratch.Sink, error) {
	p.tracker.StartBucket(job.Name)
	defer p.tracker.CompleteBucket(job.Name)

	region, err := p.store.GetBucketRegion(ctx, job.Name)
	if err != nil {
		slog.Warn("Could not determine region for bucket. Skipping.",
			"bucket", job.Name, "err", err.Error())
		return nil, nil
	}
	if job.CreatedAt.IsZero() {
		slog.Info("Processing bucket.", "bucket", job.Name, "region", region)
	} else {
		slog.Info("Processing bucket.", "bucket", job.Name, "region", region,
			"created", job.CreatedAt.Format("2006-01-02"))
	}

	sink, err := p.space.NewSink(job.Name)
	if err != nil {
		return nil, err
	}

	descs := make(chan s3client.ObjectDescriptor)
	listErr := make(chan error, 1)
	go func() {
		defer close(descs)
		listErr <- p.store.ListObjects(ctx, region, job.Name, job.Prefix, p.cfg.MaxObjectsPerBucket, descs)
	}()

	results := pool.Run(ctx, descs, p.cfg.ObjectConcurrency, p.proc.Process)

	var appendErr error
	var objects, skipped int64
	var batchObjects, batchSkipped, batchBytes int64
	flush := func() {
		if batchObjects > 0 {
			p.tracker.UpdateBucket(batchObjects, batchSkipped, batchBytes)
			batchObjects, batchSkipped, batchBytes = 0, 0, 0
		}
	}
	for pr := range results {
		if pr.Err != nil {
			slog.Warn("Failed to process object. Dropped.",
				"bucket", pr.Input.Bucket, "key", pr.Input.Key, "err", pr.Err.Error())
			continue
		}
		res := pr.Output
		if appendErr == nil {
			appendErr = sink.Append(res.Record(p.cfg.Request))
		}
		objects++
		batchObjects++
		batchBytes += res.Size
		if res.Skipped {
			skipped++
			batchSkipped++
		}
		if batchObjects >= statBatchSize {
			flush()
		}
		if objects%progressInterval == 0 {
			slog.Info("Bucket progress.", "bucket", job.Name, "objects", objects, "skipped", skipped)
		}
	}
	flush()

	if err := <-listErr; err != nil {
		sink.Discard()
		return nil, fmt.Errorf("list objects in bucket %s: %w", job.Name, err)
	}
	if appendErr != nil {
		sink.Discard()
		return nil, fmt.Errorf("write scratch sink for bucket %s: %w", job.Name, appendErr)
	}
	if err := sink.Finish(); err != nil {
		return nil, fmt.Errorf("finish scratch sink for bucket %s: %w", job.Name, err)
	}

	slog.Info("Completed bucket.", "bucket", job.Name, "objects", objects, "skipped", skipped)
	return sink, nil
}
