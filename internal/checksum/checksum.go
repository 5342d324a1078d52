// Package checksum holds the registry of supported digest algorithms and the
// ordered set of algorithms requested for a run. The request order is fixed
// at parse time and determines the column order of the final artifact.
package checksum

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc32"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

var algorithms = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
	"sha512": sha512.New,
	"crc32c": func() hash.Hash { return crc32.New(crc32.MakeTable(crc32.Castagnoli)) },
	"xxh64":  func() hash.Hash { return xxhash.New() },
	"blake3": func() hash.Hash { return blake3.New() },
}

// Request is the ordered, duplicate-free set of algorithms for one run.
type Request struct {
	names []string
}

func NewRequest(names []string) (Request, error) {
	if len(names) == 0 {
		return Request{}, fmt.Errorf("no checksum algorithms requested")
	}
	seen := make(map[string]struct{}, len(names))
	ordered := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := algorithms[name]; !ok {
			return Request{}, fmt.Errorf("unavailable/unrecognised checksum algorithm: %q", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ordered = append(ordered, name)
	}
	return Request{names: ordered}, nil
}

func (r Request) Names() []string {
	return r.names
}

// Columns returns the artifact column names, "checksum.<alg>" in request order.
func (r Request) Columns() []string {
	cols := make([]string, len(r.names))
	for i, name := range r.names {
		cols[i] = "checksum." + name
	}
	return cols
}

// Digest is one named running accumulator.
type Digest struct {
	Name string
	hash.Hash
}

// NewDigests returns fresh accumulators, one per requested algorithm.
func (r Request) NewDigests() []Digest {
	ds := make([]Digest, len(r.names))
	for i, name := range r.names {
		ds[i] = Digest{Name: name, Hash: algorithms[name]()}
	}
	return ds
}

// HexSum finalizes a digest as a lowercase hexadecimal string.
func (d Digest) HexSum() string {
	return hex.EncodeToString(d.Sum(nil))
}
