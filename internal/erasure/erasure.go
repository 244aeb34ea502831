// Package erasure wraps the opaque Reed-Solomon codec (klauspost/reedsolomon,
// treated as a primitive) with the sizing and checksum rules
// the object pipeline needs: chunk-size selection, per-shard
// BLAKE2b-256 checksums, and reconstruct-from-any-K decode.
package erasure

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
	"golang.org/x/crypto/blake2b"

	"github.com/gridstore/core/internal/errs"
)

const (
	MinChunkSize = 64 * 1024 // 64 KiB
	MaxChunkSize = 512 * 1024 * 1024 // 512 MiB
	ioAlignment = 4096 // round chunk size up to this boundary

	DefaultDataShards = 8
	DefaultParityShards = 4
)

// Codec encodes/decodes one K+M configuration.
type Codec struct {
	rs reedsolomon.Encoder
	Data int
	Parity int
}

// New creates a Codec for the given K+M configuration.
func New(data, parity int) (*Codec, error) {
	const op = "erasure.New"
	rs, err := reedsolomon.New(data, parity)
	if err != nil {
		return nil, errs.New(errs.InvalidArg, op, err)
	}
	return &Codec{rs: rs, Data: data, Parity: parity}, nil
}

// ChunkSize picks the per-shard size for an object of the given total size
// under this codec's K, clamped to [MinChunkSize, MaxChunkSize] and rounded
// up to an I/O-friendly boundary.
func ChunkSize(totalSize int64, data int) int64 {
	if totalSize <= 0 || data <= 0 {
		return MinChunkSize
	}
	size := (totalSize + int64(data) - 1) / int64(data)
	size = ((size + ioAlignment - 1) / ioAlignment) * ioAlignment
	if size < MinChunkSize {
		size = MinChunkSize
	}
	if size > MaxChunkSize {
		size = MaxChunkSize
	}
	return size
}

// Encode splits data into Data data-shards (zero-padding the last as
// needed) plus Parity parity-shards.
func (c *Codec) Encode(data []byte) ([][]byte, error) {
	const op = "erasure.Encode"
	shards, err := c.rs.Split(data)
	if err != nil {
		return nil, errs.New(errs.InvalidArg, op, err)
	}
	if err := c.rs.Encode(shards); err != nil {
		return nil, errs.New(errs.IO, op, err)
	}
	return shards, nil
}

// Decode reconstructs the original object from shards (nil entries marking
// shards that were missing or rejected by checksum verification). At least
// Data shards must be non-nil or InsufficientShards is returned.
func (c *Codec) Decode(shards [][]byte, originalSize int64) ([]byte, error) {
	const op = "erasure.Decode"
	if len(shards) != c.Data+c.Parity {
		return nil, errs.New(errs.InvalidArg, op, fmt.Errorf("expected %d shards, got %d", c.Data+c.Parity, len(shards)))
	}
	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < c.Data {
		return nil, errs.New(errs.InsufficientShards, op, fmt.Errorf("%d usable shards, need %d", present, c.Data))
	}
	if present < len(shards) {
		if err := c.rs.Reconstruct(shards); err != nil {
			return nil, errs.New(errs.InsufficientShards, op, err)
		}
	}
	out := make([]byte, 0, originalSize)
	buf := byteSliceWriter{&out}
	if err := c.rs.Join(&buf, shards, int(originalSize)); err != nil {
		return nil, errs.New(errs.InsufficientShards, op, err)
	}
	return out, nil
}

type byteSliceWriter struct{ buf *[]byte }

func (w *byteSliceWriter) Write(p []byte) (int, error) {
	*w.buf = append(*w.buf, p...)
	return len(p), nil
}

// ChecksumShard computes the BLAKE2b-256 digest of one shard.
func ChecksumShard(shard []byte) [32]byte {
	return blake2b.Sum256(shard)
}

// VerifyShard recomputes the digest and compares.
func VerifyShard(shard []byte, want [32]byte) bool {
	return ChecksumShard(shard) == want
}

// ETag computes the hex BLAKE2b-256 of the whole object.
func ETag(data []byte) string {
	sum := blake2b.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
