// Package xlmeta implements the per-disk metadata record — its in-memory
// model and its JSON codec. Every disk in an object's set stores an
// identical record except for erasure.index, which is that disk's slot
// in the distribution.
package xlmeta

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gridstore/core/internal/errs"
)

const (
	// CurrentVersion is the schema version written by this code.
	CurrentVersion = 1
	// Format identifies the metadata family, kept for forward compatibility
	// with non-erasure-coded formats a future version might add.
	Format = "xl"
	// Algorithm names the erasure codec in use (opaque).
	Algorithm = "ReedSolomon"
	// ChecksumAlgo names the per-shard checksum algorithm.
	ChecksumAlgo = "BLAKE2b-256"
	// InlineThreshold is the largest object size stored inline in xl.meta
	// instead of as K+M chunk files.
	InlineThreshold = 128 * 1024
)

// Checksum certifies one shard's bytes.
type Checksum struct {
	Algo string `json:"algo"`
	Hash [32]byte `json:"-"` // marshaled as hex via MarshalJSON/UnmarshalJSON below
}

// Erasure describes how an object was split and where this disk's shard
// sits in the distribution.
type Erasure struct {
	Algorithm string `json:"algorithm"`
	Data int `json:"data"`
	Parity int `json:"parity"`
	BlockSize uint32 `json:"block_size"`
	Index uint32 `json:"index"` // 1..K+M, unique to this disk
	Distribution []uint32 `json:"distribution"`
	Checksums []Checksum `json:"checksums"`
}

// ObjectMeta is the user-facing / content metadata portion.
type ObjectMeta struct {
	ContentType string `json:"content_type"`
	CacheControl string `json:"cache_control,omitempty"`
	ContentDisposition string `json:"content_disposition,omitempty"`
	ContentEncoding string `json:"content_encoding,omitempty"`
	ContentLanguage string `json:"content_language,omitempty"`
	Expires string `json:"expires,omitempty"`
	ETag string `json:"etag"`
	UserMeta map[string]string `json:"user_meta,omitempty"`
}

// Versioning records the version identity of this record.
type Versioning struct {
	VersionID string `json:"version_id,omitempty"`
	IsLatest bool `json:"is_latest"`
	IsDeleteMarker bool `json:"is_delete_marker"`
}

// Stat is the object's size and modification time.
type Stat struct {
	Size uint64 `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// XLMeta is the full per-disk record, field order fixed to match the wire
// codec.
type XLMeta struct {
	Version uint32 `json:"version"`
	Format string `json:"format"`
	// Bucket and Key carry the object's identity. The on-disk layout
	// shards purely by the (bucket,key) hash, with nothing bucket- or
	// key-named in the path itself, so the record is the only place that
	// identity survives — anything that has to recover (bucket,key) from
	// a bare xl.meta file (the migration scanner, chiefly) reads it here.
	Bucket string `json:"bucket,omitempty"`
	Key string `json:"key,omitempty"`
	Stat Stat `json:"stat"`
	Erasure Erasure `json:"erasure"`
	Meta ObjectMeta `json:"meta"`
	Versioning Versioning `json:"versioning"`
	InlineData []byte `json:"inline_data"` // present iff size <= InlineThreshold; null when absent
	// Unknown carries forward-compat fields seen on a version>=2 document
	// that this code doesn't model explicitly.
	Unknown map[string]interface{} `json:"-"`
}

// NumChunks returns K+M.
func (m *XLMeta) NumChunks() int { return m.Erasure.Data + m.Erasure.Parity }

// IsInline reports whether the object's bytes are carried in InlineData
// rather than as K+M chunk files.
func (m *XLMeta) IsInline() bool { return m.InlineData != nil }

// Validate checks the structural invariants from distribution length
// and permutation-ness, checksum count, delete-marker shape.
func (m *XLMeta) Validate() error {
	const op = "xlmeta.Validate"
	n := m.NumChunks()
	if m.Versioning.IsDeleteMarker {
		if m.Stat.Size != 0 || m.InlineData != nil || len(m.Erasure.Distribution) != 0 {
			return errs.New(errs.InvalidMeta, op, fmt.Errorf("delete marker must have zero size, no inline data, no chunks"))
		}
		return nil
	}
	if m.IsInline() {
		return nil
	}
	if n <= 0 {
		return errs.New(errs.InvalidMeta, op, fmt.Errorf("erasure.data+parity must be positive"))
	}
	if len(m.Erasure.Distribution) != n {
		return errs.New(errs.InvalidMeta, op, fmt.Errorf("distribution has %d entries, want %d", len(m.Erasure.Distribution), n))
	}
	if len(m.Erasure.Checksums) != n {
		return errs.New(errs.InvalidMeta, op, fmt.Errorf("checksums has %d entries, want %d", len(m.Erasure.Checksums), n))
	}
	seen := make(map[uint32]bool, n)
	for _, d := range m.Erasure.Distribution {
		if d < 1 || int(d) > n || seen[d] {
			return errs.New(errs.InvalidMeta, op, fmt.Errorf("distribution is not a permutation of 1..%d", n))
		}
		seen[d] = true
	}
	if m.Erasure.Index < 1 || int(m.Erasure.Index) > n {
		return errs.New(errs.InvalidMeta, op, fmt.Errorf("erasure.index %d out of range 1..%d", m.Erasure.Index, n))
	}
	return nil
}

// --- Checksum JSON codec (hex string on the wire) ---

type checksumWire struct {
	Algo string `json:"algo"`
	Hash string `json:"hash"`
}

// MarshalJSON hex-encodes the 32-byte digest for the wire format.
func (c Checksum) MarshalJSON() ([]byte, error) {
	return marshalChecksum(c)
}

// UnmarshalJSON decodes a 64-hex-char digest.
func (c *Checksum) UnmarshalJSON(data []byte) error {
	return unmarshalChecksum(data, c)
}

func marshalChecksum(c Checksum) ([]byte, error) {
	w := checksumWire{Algo: c.Algo, Hash: hex.EncodeToString(c.Hash[:])}
	return jsonMarshal(w)
}

func unmarshalChecksum(data []byte, c *Checksum) error {
	var w checksumWire
	if err := jsonUnmarshal(data, &w); err != nil {
		return errs.New(errs.InvalidMeta, "xlmeta.UnmarshalChecksum", err)
	}
	raw, err := hex.DecodeString(w.Hash)
	if err != nil || len(raw) != 32 {
		return errs.New(errs.InvalidMeta, "xlmeta.UnmarshalChecksum", fmt.Errorf("hash must be 64 hex chars"))
	}
	c.Algo = w.Algo
	copy(c.Hash[:], raw)
	return nil
}

// NewChecksum wraps a digest with the fixed algorithm name.
func NewChecksum(digest [32]byte) Checksum {
	return Checksum{Algo: ChecksumAlgo, Hash: digest}
}

// base64 helpers kept here (not in codec.go) since InlineData round-trips
// through Go's own []byte<->base64 JSON support; exposed for callers that
// need the encoded form directly (e.g. the internal wire protocol).
func EncodeInline(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
func DecodeInline(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
