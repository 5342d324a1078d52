package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/Trozz/get-s3-checksums/internal/pool"
	"github.com/Trozz/get-s3-checksums/internal/scratch"
	"github.com/Trozz/get-s3-checksums/internal/stat"
)

// Orchestrator drives the selected bucket jobs through the bucket-level pool
// and merges the surviving scratch sinks into the final artifact.
type Orchestrator struct {
	store Store
	cfg   Config
}

func NewOrchestrator(store Store, cfg Config) *Orchestrator {
	return &Orchestrator{store: store, cfg: cfg}
}

// SelectBuckets lists the account's buckets and applies the name filter and
// the skip-empty filter. It fails when no bucket survives, before any work
// is dispatched.
func (o *Orchestrator) SelectBuckets(ctx context.Context) ([]BucketJob, error) {
	if o.cfg.BucketFilter != "" {
		if _, err := path.Match(o.cfg.BucketFilter, ""); err != nil {
			return nil, fmt.Errorf("invalid bucket filter %q: %w", o.cfg.BucketFilter, err)
		}
	}

	slog.Info("Listing all S3 buckets in the account...")
	buckets, err := o.store.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	jobs := make([]BucketJob, 0, len(buckets))
	for _, b := range buckets {
		if o.cfg.BucketFilter != "" {
			if ok, _ := path.Match(o.cfg.BucketFilter, b.Name); !ok {
				continue
			}
		}
		jobs = append(jobs, BucketJob{Name: b.Name, CreatedAt: b.CreatedAt})
	}
	if o.cfg.BucketFilter != "" {
		slog.Info("Applied bucket filter.", "filter", o.cfg.BucketFilter, "buckets", len(jobs))
	} else {
		slog.Info("Found buckets.", "buckets", len(jobs))
	}

	if o.cfg.SkipEmpty {
		jobs = o.dropEmptyBuckets(ctx, jobs)
	}

	if len(jobs) == 0 {
		return nil, fmt.Errorf("no buckets found or none match the specified filter")
	}
	return jobs, nil
}

func (o *Orchestrator) dropEmptyBuckets(ctx context.Context, jobs []BucketJob) []BucketJob {
	nonEmpty := make([]BucketJob, 0, len(jobs))
	for _, job := range jobs {
		region, err := o.store.GetBucketRegion(ctx, job.Name)
		if err != nil {
			slog.Info("Skipping bucket with undeterminable region.", "bucket", job.Name)
			continue
		}
		empty, err := o.store.BucketIsEmpty(ctx, region, job.Name)
		if err != nil || empty {
			slog.Info("Skipping empty bucket.", "bucket", job.Name)
			continue
		}
		nonEmpty = append(nonEmpty, job)
	}
	return nonEmpty
}

// Run executes all bucket jobs and writes the final artifact to outPath.
// The scratch directory is released on every exit path.
func (o *Orchestrator) Run(ctx context.Context, jobs []BucketJob, outPath string) error {
	space, err := scratch.NewSpace()
	if err != nil {
		return fmt.Errorf("create scratch space: %w", err)
	}
	defer space.Close()

	tracker := stat.NewTracker(len(jobs))
	pipeline := NewPipeline(o.store, space, tracker, o.cfg)

	jobCh := make(chan BucketJob)
	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	sinks := make([]*scratch.Sink, 0, len(jobs))
	for pr := range pool.Run(ctx, jobCh, o.cfg.BucketConcurrency, pipeline.ProcessBucket) {
		if pr.Err != nil {
			slog.Warn("Error processing bucket. Its rows are omitted.",
				"bucket", pr.Input.Name, "err", pr.Err.Error())
		} else if pr.Output != nil {
			sinks = append(sinks, pr.Output)
		}
		logProgress(tracker)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	header := append([]string{"bucket", "key", "size", "ETag", "VersionId", "last_modified"},
		o.cfg.Request.Columns()...)
	if err := scratch.Merge(outPath, header, sinks); err != nil {
		return fmt.Errorf("merge scratch sinks: %w", err)
	}

	tracker.Report()
	return nil
}

func logProgress(tracker *stat.Tracker) {
	s := tracker.Snapshot()
	slog.Info("Progress.",
		"buckets", fmt.Sprintf("%d/%d", s.CompletedBuckets, s.TotalBuckets),
		"objects", s.Objects,
		"skipped", s.Skipped,
		"objectsPerSec", fmt.Sprintf("%.1f", s.ObjectsPerSec),
		"eta", s.ETA.Round(time.Second).String(),
	)
}
