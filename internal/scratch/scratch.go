// Package scratch manages the run's intermediate storage: one temporary
// directory per run, holding one append-only CSV sink per bucket task. Each
// sink is exclusively owned by its bucket task until it is either discarded
// (bucket failed) or handed over for merging. The directory is removed on
// every exit path.
package scratch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

type Space struct {
	dir string

	mu  sync.Mutex
	seq int
}

func NewSpace() (*Space, error) {
	dir, err := os.MkdirTemp("", "s3checksums-scratch-")
	if err != nil {
		return nil, err
	}
	return &Space{dir: dir}, nil
}

// Close removes the scratch directory and everything in it.
func (s *Space) Close() error {
	return os.RemoveAll(s.dir)
}

// Sink is one bucket's intermediate record store. Records are appended
// without a header row; the header is written once by Merge.
type Sink struct {
	bucket string
	seq    int
	path   string
	file   *os.File
	w      *csv.Writer
}

// NewSink creates a sink for a bucket task. The sequence number records the
// order in which bucket tasks started, which fixes the bucket order of the
// final artifact.
func (s *Space) NewSink(bucketName string) (*Sink, error) {
	s.mu.Lock()
	seq := s.seq
	s.seq++
	s.mu.Unlock()

	path := filepath.Join(s.dir, fmt.Sprintf("%06d.csv", seq))
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Sink{
		bucket: bucketName,
		seq:    seq,
		path:   path,
		file:   file,
		w:      csv.NewWriter(file),
	}, nil
}

func (s *Sink) Append(record []string) error {
	return s.w.Write(record)
}

// Finish flushes and closes the sink, making it ready for merging.
func (s *Sink) Finish() error {
	s.w.Flush()
	return errors.Join(s.w.Error(), s.file.Close())
}

// Discard closes and deletes the sink. Used when the owning bucket task
// fails; the bucket then contributes zero rows to the final artifact.
func (s *Sink) Discard() error {
	return errors.Join(s.file.Close(), os.Remove(s.path))
}

// Merge concatenates the finished sinks into outPath under a single header
// row, ordered by the sinks' start sequence. A read failure on one sink is
// logged and its remaining rows are omitted; the other sinks still merge.
func Merge(outPath string, header []string, sinks []*Sink) error {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}

	ordered := make([]*Sink, len(sinks))
	copy(ordered, sinks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })

	for _, sink := range ordered {
		if err := mergeOne(w, sink); err != nil {
			slog.Warn("Failed to read scratch sink. Its remaining rows are omitted.",
				"bucket", sink.bucket, "err", err.Error())
		}
	}

	w.Flush()
	return w.Error()
}

func mergeOne(w *csv.Writer, sink *Sink) error {
	file, err := os.Open(sink.path)
	if err != nil {
		return err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
}
