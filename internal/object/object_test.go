package object

import (
	"testing"
	"time"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/erasure"
	"github.com/gridstore/core/internal/metacache"
	"github.com/gridstore/core/internal/objectpath"
	"github.com/gridstore/core/internal/placement"
	"github.com/gridstore/core/internal/topology"
	"github.com/gridstore/core/internal/xlmeta"
)

// newTestStore builds a Store backed by real disk.Local instances over
// temp directories, wired for a 2-data/1-parity set (3 disks, one set).
func newTestStore(t *testing.T) *Store {
	t.Helper()
	var disks []topology.DiskRef
	byEndpoint := make(map[string]disk.Capability)
	for i := 0; i < 3; i++ {
		root := t.TempDir()
		endpoint := "local://" + root
		l, err := disk.New(root, endpoint)
		if err != nil {
			t.Fatalf("disk.New: %v", err)
		}
		disks = append(disks, topology.DiskRef{Endpoint: endpoint})
		byEndpoint[endpoint] = l
	}
	topo := &topology.ClusterTopology{
		Generation: 1,
		Pools:      []topology.Pool{{Sets: []topology.Set{{DiskCount: 3, Disks: disks}}}},
	}
	return &Store{
		Topo:         topo,
		Rings:        placement.NewRingCache(64),
		Cache:        metacache.New(100, time.Minute),
		DataShards:   2,
		ParityShards: 1,
		Disks: func(ref topology.DiskRef) disk.Capability {
			return byEndpoint[ref.Endpoint]
		},
	}
}

func TestPutGet_InlineRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := []byte("small inline payload")
	res, err := s.Put("b1", "k1", data, xlmeta.ObjectMeta{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("PutResult.Size = %d, want %d", res.Size, len(data))
	}

	got, rec, err := s.Get("b1", "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
	if !rec.IsInline() {
		t.Error("expected small object to be stored inline")
	}
	if rec.Meta.ETag != res.ETag {
		t.Errorf("stored ETag = %q, want %q", rec.Meta.ETag, res.ETag)
	}
}

func TestPutGet_ErasureCodedRoundTrip(t *testing.T) {
	s := newTestStore(t)
	data := make([]byte, xlmeta.InlineThreshold+1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if _, err := s.Put("b1", "big", data, xlmeta.ObjectMeta{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, rec, err := s.Get("b1", "big")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.IsInline() {
		t.Error("expected large object to be erasure-coded, not inline")
	}
	if len(got) != len(data) {
		t.Fatalf("Get returned %d bytes, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], data[i])
		}
	}
}

// TestGet_ReordersChunkReadsAccordingToDistribution writes shards directly
// under a non-identity distribution (disk i holds chunk distribution[i],
// not chunk i+1) and checks Get still reconstructs the original data,
// exercising placement.Reorder rather than assuming the identity mapping
// every real Put happens to produce today.
func TestGet_ReordersChunkReadsAccordingToDistribution(t *testing.T) {
	s := newTestStore(t)
	const bucket, key = "b1", "permuted"

	codec, err := s.codec()
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	n := codec.Data + codec.Parity

	data := make([]byte, xlmeta.InlineThreshold+512)
	for i := range data {
		data[i] = byte(i % 197)
	}
	chunkSize := erasure.ChunkSize(int64(len(data)), codec.Data)
	shards, err := codec.Encode(padTo(data, chunkSize*int64(codec.Data)))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, n)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	disks := s.resolveDisks(result.Disks)
	path := objectpath.Path(bucket, key)

	// distribution[i] is the 1-based chunk index physically written at
	// disk i; rotate by one so no disk holds the chunk its position would
	// naively suggest.
	distribution := make([]uint32, n)
	for i := 0; i < n; i++ {
		distribution[i] = uint32((i+1)%n) + 1
	}

	checksums := make([]xlmeta.Checksum, n)
	for idx, sh := range shards {
		checksums[idx] = xlmeta.NewChecksum(erasure.ChecksumShard(sh))
	}
	rec := &xlmeta.XLMeta{
		Version: xlmeta.CurrentVersion, Format: xlmeta.Format,
		Bucket: bucket, Key: key,
		Stat: xlmeta.Stat{Size: uint64(len(data)), ModTime: time.Now().UTC()},
		Erasure: xlmeta.Erasure{
			Algorithm: xlmeta.Algorithm, Data: codec.Data, Parity: codec.Parity,
			BlockSize: uint32(chunkSize),
			Distribution: distribution,
			Checksums: checksums,
		},
	}
	for i := 0; i < n; i++ {
		shardIdx := distribution[i] - 1
		if err := disks[i].WriteChunk(path, int(distribution[i]), shards[shardIdx]); err != nil {
			t.Fatalf("WriteChunk disk %d: %v", i, err)
		}
		diskRec := xlmeta.Clone(rec)
		diskRec.Erasure.Index = distribution[i]
		if err := disks[i].WriteMeta(path, diskRec); err != nil {
			t.Fatalf("WriteMeta disk %d: %v", i, err)
		}
	}

	got, _, err := s.Get(bucket, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("Get returned %d bytes, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], data[i])
		}
	}
}

func TestHead_PopulatesAndReusesCache(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put("b1", "k1", []byte("payload"), xlmeta.ObjectMeta{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec1, err := s.Head("b1", "k1")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if _, ok := s.Cache.Get(cacheKey("b1", "k1", "")); !ok {
		t.Error("expected Head to populate the metadata cache")
	}

	rec2, err := s.Head("b1", "k1")
	if err != nil {
		t.Fatalf("Head (cached): %v", err)
	}
	if rec1.Meta.ETag != rec2.Meta.ETag {
		t.Errorf("cached Head mismatch: %q != %q", rec1.Meta.ETag, rec2.Meta.ETag)
	}
}

func TestDelete_RemovesObjectAndInvalidatesCache(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put("b1", "k1", []byte("payload"), xlmeta.ObjectMeta{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Head("b1", "k1"); err != nil {
		t.Fatalf("Head: %v", err)
	}
	if err := s.Delete("b1", "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Cache.Get(cacheKey("b1", "k1", "")); ok {
		t.Error("expected Delete to invalidate the cache entry")
	}
	if _, _, err := s.Get("b1", "k1"); err == nil {
		t.Error("expected Get to fail after Delete")
	}
}
