// Package object implements the put/get/head/delete pipeline,
// wiring together erasure coding, placement, fan-out, quorum, the
// metadata cache, and the xl.meta codec into the operations a caller
// issues against one (bucket, key).
package object

import (
	"fmt"
	"time"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/erasure"
	"github.com/gridstore/core/internal/errs"
	"github.com/gridstore/core/internal/fanout"
	"github.com/gridstore/core/internal/metacache"
	"github.com/gridstore/core/internal/objectpath"
	"github.com/gridstore/core/internal/placement"
	"github.com/gridstore/core/internal/quorum"
	"github.com/gridstore/core/internal/topology"
	"github.com/gridstore/core/internal/xlmeta"
)

// Store ties the pipeline's collaborators together for one cluster.
type Store struct {
	Topo *topology.ClusterTopology
	Rings *placement.RingCache
	Cache *metacache.Cache
	Codec func(data, parity int) (*erasure.Codec, error)
	DataShards int
	ParityShards int

	// Disks resolves a topology disk reference to a live capability handle.
	Disks func(topology.DiskRef) disk.Capability
}

func (s *Store) codec() (*erasure.Codec, error) {
	data, parity := s.DataShards, s.ParityShards
	if data <= 0 {
		data = erasure.DefaultDataShards
	}
	if parity <= 0 {
		parity = erasure.DefaultParityShards
	}
	if s.Codec != nil {
		return s.Codec(data, parity)
	}
	return erasure.New(data, parity)
}

func (s *Store) resolveDisks(refs []topology.DiskRef) []disk.Capability {
	out := make([]disk.Capability, len(refs))
	for i, r := range refs {
		out[i] = s.Disks(r)
	}
	return out
}

// PutResult summarizes a successful put.
type PutResult struct {
	ETag string
	Size int64
}

// Put stores data under (bucket, key). Objects at or under
// xlmeta.InlineThreshold bytes are embedded directly in xl.meta; larger
// objects are erasure-coded and fanned out to a placed set's disks.
func (s *Store) Put(bucket, key string, data []byte, meta xlmeta.ObjectMeta) (*PutResult, error) {
	const op = "object.Put"
	etag := erasure.ETag(data)
	meta.ETag = etag
	path := objectpath.Path(bucket, key)

	if len(data) <= xlmeta.InlineThreshold {
		rec := &xlmeta.XLMeta{
			Version: xlmeta.CurrentVersion,
			Format: xlmeta.Format,
			Bucket: bucket, Key: key,
			Stat: xlmeta.Stat{Size: uint64(len(data)), ModTime: time.Now().UTC()},
			Meta: meta,
			InlineData: append([]byte{}, data...),
		}
		codec, err := s.codec()
		if err != nil {
			return nil, err
		}
		result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, codec.Data+codec.Parity)
		if err != nil {
			return nil, err
		}
		rec.Erasure = xlmeta.Erasure{
			Algorithm: xlmeta.Algorithm, Data: codec.Data, Parity: codec.Parity,
			BlockSize: uint32(len(data)),
			Distribution: placement.IdentityDistribution(codec.Data + codec.Parity),
			Checksums: nil,
		}
		disks := s.resolveDisks(result.Disks)
		metaResults := fanout.WriteMetas(disks, path, rec)
		if err := quorum.CheckWrite(metaResults, len(disks)); err != nil {
			return nil, err
		}
		s.Cache.Invalidate(cacheKey(bucket, key, ""))
		return &PutResult{ETag: etag, Size: int64(len(data))}, nil
	}

	codec, err := s.codec()
	if err != nil {
		return nil, err
	}
	chunkSize := erasure.ChunkSize(int64(len(data)), codec.Data)
	shards, err := codec.Encode(padTo(data, chunkSize*int64(codec.Data)))
	if err != nil {
		return nil, errs.New(errs.IO, op, err)
	}
	checksums := make([]xlmeta.Checksum, len(shards))
	for i, sh := range shards {
		checksums[i] = xlmeta.NewChecksum(erasure.ChecksumShard(sh))
	}

	result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, codec.Data+codec.Parity)
	if err != nil {
		return nil, err
	}
	disks := s.resolveDisks(result.Disks)

	chunkResults := fanout.WriteChunks(disks, path, shards)
	if err := quorum.CheckChunkWrite(chunkResults, len(disks)); err != nil {
		return nil, err
	}

	rec := &xlmeta.XLMeta{
		Version: xlmeta.CurrentVersion,
		Format: xlmeta.Format,
		Bucket: bucket, Key: key,
		Stat: xlmeta.Stat{Size: uint64(len(data)), ModTime: time.Now().UTC()},
		Meta: meta,
		Erasure: xlmeta.Erasure{
			Algorithm: xlmeta.Algorithm, Data: codec.Data, Parity: codec.Parity,
			BlockSize: uint32(chunkSize),
			Distribution: placement.IdentityDistribution(codec.Data + codec.Parity),
			Checksums: checksums,
		},
	}
	metaResults := fanout.WriteMetas(disks, path, rec)
	if err := quorum.CheckWrite(metaResults, len(disks)); err != nil {
		return nil, err
	}
	s.Cache.Invalidate(cacheKey(bucket, key, ""))
	return &PutResult{ETag: etag, Size: int64(len(data))}, nil
}

// Get returns the full object bytes for (bucket, key).
func (s *Store) Get(bucket, key string) ([]byte, *xlmeta.XLMeta, error) {
	const op = "object.Get"
	rec, disks, err := s.readMetaAndDisks(bucket, key)
	if err != nil {
		return nil, nil, err
	}
	if rec.IsInline() {
		return append([]byte(nil), rec.InlineData...), rec, nil
	}

	// disks is the set's identity-ordered list; rec.Erasure.Distribution
	// records which chunk each disk actually held at write time, so reads
	// must walk the set in that order rather than assume disk i still holds
	// chunk i+1.
	chunkDisks, err := placement.Reorder(disks, rec.Erasure.Distribution)
	if err != nil {
		return nil, nil, errs.New(errs.InvalidMeta, op, err)
	}

	path := objectpath.Path(bucket, key)
	chunkResults := fanout.ReadChunks(chunkDisks, path)
	shards := make([][]byte, len(disks))
	for _, r := range chunkResults {
		if r.Err != nil || r.Data == nil {
			continue
		}
		if r.Index < len(rec.Erasure.Checksums) && !erasure.VerifyShard(r.Data, rec.Erasure.Checksums[r.Index].Hash) {
			continue // checksum rejects, treat as missing
		}
		shards[r.Index] = r.Data
	}

	codec, err := erasure.New(rec.Erasure.Data, rec.Erasure.Parity)
	if err != nil {
		return nil, nil, errs.New(errs.InvalidMeta, op, err)
	}
	data, err := codec.Decode(shards, int64(rec.Stat.Size))
	if err != nil {
		return nil, nil, err
	}
	return data, rec, nil
}

// Head returns metadata only, preferring the cache.
func (s *Store) Head(bucket, key string) (*xlmeta.XLMeta, error) {
	rec, _, err := s.readMetaAndDisks(bucket, key)
	return rec, err
}

func (s *Store) readMetaAndDisks(bucket, key string) (*xlmeta.XLMeta, []disk.Capability, error) {
	const op = "object.readMetaAndDisks"
	ck := cacheKey(bucket, key, "")
	if cached, ok := s.Cache.Get(ck); ok {
		result, err := s.locateForMeta(bucket, key, cached)
		if err != nil {
			return nil, nil, err
		}
		return cached, s.resolveDisks(result.Disks), nil
	}

	codec, err := s.codec()
	if err != nil {
		return nil, nil, err
	}
	result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, codec.Data+codec.Parity)
	if err != nil {
		return nil, nil, err
	}
	disks := s.resolveDisks(result.Disks)
	path := objectpath.Path(bucket, key)
	metaResults := fanout.ReadMetas(disks, path)
	rec, err := quorum.ReadMeta(metaResults, len(disks))
	if err != nil {
		return nil, nil, errs.New(errs.NotFound, op, err)
	}
	s.Cache.Put(ck, rec)
	return rec, disks, nil
}

func (s *Store) locateForMeta(bucket, key string, rec *xlmeta.XLMeta) (*placement.Result, error) {
	n := rec.Erasure.Data + rec.Erasure.Parity
	if n == 0 {
		n = 1 // inline object carries no shard-bearing disks beyond the meta copy
	}
	return placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, n)
}

// Delete removes an object's xl.meta and all shards.
func (s *Store) Delete(bucket, key string) error {
	rec, disks, err := s.readMetaAndDisks(bucket, key)
	if err != nil {
		return err
	}
	path := objectpath.Path(bucket, key)
	n := rec.Erasure.Data + rec.Erasure.Parity
	fanout.DeleteMetas(disks, path, n)
	s.Cache.Invalidate(cacheKey(bucket, key, ""))
	return nil
}

func cacheKey(bucket, key, versionID string) string {
	if versionID == "" {
		return fmt.Sprintf("%s/%s", bucket, key)
	}
	return fmt.Sprintf("%s/%s/%s", bucket, key, versionID)
}

func padTo(data []byte, size int64) []byte {
	if int64(len(data)) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	return out
}
