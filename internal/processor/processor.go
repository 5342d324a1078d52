// Package processor computes (or reuses) the requested checksums for a
// single remote object and writes them back as object tags.
package processor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/Trozz/get-s3-checksums/internal/checksum"
	"github.com/Trozz/get-s3-checksums/internal/s3client"
)

// readChunkSize is the fixed body read size; every chunk is fed to every
// accumulator exactly once.
const readChunkSize = 8192

// ObjectStore is the per-object capability set the processor consumes.
// *s3client.Client satisfies it.
type ObjectStore interface {
	GetTags(ctx context.Context, region, bucket, key string) (map[string]string, error)
	PutTags(ctx context.Context, region, bucket, key string, tags map[string]string, versionID string) error
	GetObject(ctx context.Context, region, bucket, key string) (*s3client.Object, error)
	HeadObject(ctx context.Context, region, bucket, key string) (*s3client.ObjectInfo, error)
}

// ObjectResult is produced exactly once per successfully processed object.
// Skipped is run-internal metadata and never reaches the final artifact.
type ObjectResult struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	VersionID    string
	LastModified time.Time
	Checksums    map[string]string
	Skipped      bool
}

// Record renders the result as one artifact row, checksum columns in
// request order.
func (r *ObjectResult) Record(request checksum.Request) []string {
	record := []string{
		r.Bucket,
		r.Key,
		strconv.FormatInt(r.Size, 10),
		r.ETag,
		r.VersionID,
		r.LastModified.Format(time.RFC3339),
	}
	for _, name := range request.Names() {
		record = append(record, r.Checksums[name])
	}
	return record
}

type Processor struct {
	store   ObjectStore
	request checksum.Request
	force   bool
}

func New(store ObjectStore, request checksum.Request, force bool) *Processor {
	return &Processor{
		store:   store,
		request: request,
		force:   force,
	}
}

// tagCheck is the explicit outcome of the skip check: either every requested
// algorithm is already present as a tag (hit) or it is not (miss).
type tagCheck struct {
	hit  bool
	tags map[string]string
}

func (p *Processor) checkExistingTags(ctx context.Context, desc s3client.ObjectDescriptor) tagCheck {
	tags, err := p.store.GetTags(ctx, desc.Region, desc.Bucket, desc.Key)
	if err != nil {
		return tagCheck{}
	}
	for _, name := range p.request.Names() {
		if _, ok := tags[name]; !ok {
			return tagCheck{}
		}
	}
	return tagCheck{hit: true, tags: tags}
}

// Process runs the per-object state machine: skip check, full computation,
// tag write-back. An error means the object is dropped; it does not affect
// sibling objects.
func (p *Processor) Process(ctx context.Context, desc s3client.ObjectDescriptor) (*ObjectResult, error) {
	if !p.force {
		if check := p.checkExistingTags(ctx, desc); check.hit {
			result, err := p.reuseExistingTags(ctx, desc, check.tags)
			if err == nil {
				return result, nil
			}
			// Metadata fetch failed; fall through to full computation.
			slog.Warn("Metadata fetch failed for tagged object. Recomputing.",
				"bucket", desc.Bucket, "key", desc.Key, "err", err.Error())
		}
	}
	return p.compute(ctx, desc)
}

// reuseExistingTags builds a skipped result from the existing tag values
// without opening the body stream.
func (p *Processor) reuseExistingTags(ctx context.Context, desc s3client.ObjectDescriptor, tags map[string]string) (*ObjectResult, error) {
	info, err := p.store.HeadObject(ctx, desc.Region, desc.Bucket, desc.Key)
	if err != nil {
		return nil, err
	}
	checksums := make(map[string]string, len(p.request.Names()))
	for _, name := range p.request.Names() {
		checksums[name] = tags[name]
	}
	return &ObjectResult{
		Bucket:       desc.Bucket,
		Key:          desc.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		VersionID:    info.VersionID,
		LastModified: info.LastModified,
		Checksums:    checksums,
		Skipped:      true,
	}, nil
}

// compute streams the body once through all accumulators, then writes the
// digests back as tags.
func (p *Processor) compute(ctx context.Context, desc s3client.ObjectDescriptor) (*ObjectResult, error) {
	obj, err := p.store.GetObject(ctx, desc.Region, desc.Bucket, desc.Key)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	digests := p.request.NewDigests()
	writers := make([]io.Writer, len(digests))
	for i := range digests {
		writers[i] = digests[i]
	}
	if _, err := io.CopyBuffer(io.MultiWriter(writers...), obj.Body, make([]byte, readChunkSize)); err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", desc.Bucket, desc.Key, err)
	}

	checksums := make(map[string]string, len(digests))
	for _, d := range digests {
		checksums[d.Name] = d.HexSum()
	}

	p.writeBackTags(ctx, desc, checksums, obj.VersionID)

	return &ObjectResult{
		Bucket:       desc.Bucket,
		Key:          desc.Key,
		Size:         obj.Size,
		ETag:         obj.ETag,
		VersionID:    obj.VersionID,
		LastModified: obj.LastModified,
		Checksums:    checksums,
		Skipped:      false,
	}, nil
}

// writeBackTags persists the digests as object tags, and additionally on the
// specific version when the object is versioned. Failures are logged and
// never fail the computed result.
func (p *Processor) writeBackTags(ctx context.Context, desc s3client.ObjectDescriptor, tags map[string]string, versionID string) {
	if err := p.store.PutTags(ctx, desc.Region, desc.Bucket, desc.Key, tags, ""); err != nil {
		slog.Warn("Failed to set tags.",
			"bucket", desc.Bucket, "key", desc.Key, "err", err.Error())
		return
	}
	if versionID != "" {
		if err := p.store.PutTags(ctx, desc.Region, desc.Bucket, desc.Key, tags, versionID); err != nil {
			slog.Warn("Failed to set tags on object version.",
				"bucket", desc.Bucket, "key", desc.Key, "versionId", versionID, "err", err.Error())
		}
	}
}
