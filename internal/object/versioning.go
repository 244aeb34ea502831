package object

import (
	"errors"
	"time"

	"github.com/gridstore/core/internal/erasure"
	"github.com/gridstore/core/internal/errs"
	"github.com/gridstore/core/internal/fanout"
	"github.com/gridstore/core/internal/objectpath"
	"github.com/gridstore/core/internal/placement"
	"github.com/gridstore/core/internal/quorum"
	"github.com/gridstore/core/internal/xlmeta"
)

// Versions live under {object_path}/versions/{version_id}/ with their own
// xl.meta and shards; the base object_path holds a tiny pointer record
// whose Versioning.VersionID names the current ".latest" version.
// Flipping that pointer after the version directory is fully written
// makes the switch to the new version atomic from a reader's
// perspective: a reader either sees the old pointer (and the old
// version, untouched) or the new one.

var errDeleteMarker = errors.New("object is a delete marker")

func newVersionID() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

// PutObjectVersion writes a new version and then flips the pointer.
func (s *Store) PutObjectVersion(bucket, key string, data []byte, meta xlmeta.ObjectMeta) (versionID string, result *PutResult, err error) {
	versionID = newVersionID()
	versionPath := objectpath.VersionPath(bucket, key, versionID)

	result, err = s.putAt(bucket, key, versionPath, data, meta, versionID, false)
	if err != nil {
		return "", nil, err
	}
	if err := s.flipLatest(bucket, key, versionID, false); err != nil {
		return "", nil, err
	}
	return versionID, result, nil
}

// GetObjectVersion reads a specific version's xl.meta and shards, bypassing
// the ".latest" pointer entirely.
func (s *Store) GetObjectVersion(bucket, key, versionID string) ([]byte, *xlmeta.XLMeta, error) {
	const op = "object.GetObjectVersion"
	versionPath := objectpath.VersionPath(bucket, key, versionID)
	codec, err := s.codec()
	if err != nil {
		return nil, nil, err
	}
	result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, codec.Data+codec.Parity)
	if err != nil {
		return nil, nil, err
	}
	disks := s.resolveDisks(result.Disks)
	metaResults := fanout.ReadMetas(disks, versionPath)
	rec, err := quorum.ReadMeta(metaResults, len(disks))
	if err != nil {
		return nil, nil, errs.New(errs.NotFound, op, err)
	}
	if rec.Versioning.IsDeleteMarker {
		return nil, rec, errs.New(errs.NotFound, op, errDeleteMarker)
	}
	if rec.IsInline() {
		return append([]byte(nil), rec.InlineData...), rec, nil
	}
	chunkDisks, err := placement.Reorder(disks, rec.Erasure.Distribution)
	if err != nil {
		return nil, nil, errs.New(errs.InvalidMeta, op, err)
	}
	chunkResults := fanout.ReadChunks(chunkDisks, versionPath)
	shards := make([][]byte, len(disks))
	for _, r := range chunkResults {
		if r.Err != nil || r.Data == nil {
			continue
		}
		if r.Index < len(rec.Erasure.Checksums) && !erasure.VerifyShard(r.Data, rec.Erasure.Checksums[r.Index].Hash) {
			continue
		}
		shards[r.Index] = r.Data
	}
	out, err := codec.Decode(shards, int64(rec.Stat.Size))
	if err != nil {
		return nil, nil, err
	}
	return out, rec, nil
}

// PutDeleteMarker writes a zero-byte delete-marker version and flips the
// pointer to it.
func (s *Store) PutDeleteMarker(bucket, key string) (versionID string, err error) {
	versionID = newVersionID()
	versionPath := objectpath.VersionPath(bucket, key, versionID)
	if _, err := s.putAt(bucket, key, versionPath, nil, xlmeta.ObjectMeta{}, versionID, true); err != nil {
		return "", err
	}
	if err := s.flipLatest(bucket, key, versionID, true); err != nil {
		return "", err
	}
	return versionID, nil
}

// DeleteObjectVersion hard-deletes one specific version's directory,
// leaving ".latest" untouched (it names a different version). Deleting
// the version currently named by ".latest" is the caller's
// responsibility to avoid; this layer does not reconcile that case.
func (s *Store) DeleteObjectVersion(bucket, key, versionID string) error {
	versionPath := objectpath.VersionPath(bucket, key, versionID)
	codec, err := s.codec()
	if err != nil {
		return err
	}
	result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, codec.Data+codec.Parity)
	if err != nil {
		return err
	}
	disks := s.resolveDisks(result.Disks)
	fanout.DeleteMetas(disks, versionPath, codec.Data+codec.Parity)
	s.Cache.Invalidate(cacheKey(bucket, key, versionID))
	return nil
}

func (s *Store) putAt(bucket, key, path string, data []byte, meta xlmeta.ObjectMeta, versionID string, isDeleteMarker bool) (*PutResult, error) {
	const op = "object.putAt"
	etag := erasure.ETag(data)
	meta.ETag = etag
	versioning := xlmeta.Versioning{VersionID: versionID, IsDeleteMarker: isDeleteMarker}

	codec, err := s.codec()
	if err != nil {
		return nil, err
	}
	n := codec.Data + codec.Parity
	result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, n)
	if err != nil {
		return nil, err
	}
	disks := s.resolveDisks(result.Disks)

	if len(data) <= xlmeta.InlineThreshold {
		rec := &xlmeta.XLMeta{
			Version: xlmeta.CurrentVersion, Format: xlmeta.Format,
			Bucket: bucket, Key: key,
			Stat: xlmeta.Stat{Size: uint64(len(data)), ModTime: time.Now().UTC()},
			Meta: meta, Versioning: versioning,
			InlineData: append([]byte(nil), data...),
			Erasure: xlmeta.Erasure{
				Algorithm: xlmeta.Algorithm, Data: codec.Data, Parity: codec.Parity,
				Distribution: placement.IdentityDistribution(n),
			},
		}
		if isDeleteMarker {
			// A delete marker carries no payload and no chunk layout.
			rec.InlineData = nil
			rec.Erasure.Distribution = nil
		}
		metaResults := fanout.WriteMetas(disks, path, rec)
		if err := quorum.CheckWrite(metaResults, len(disks)); err != nil {
			return nil, err
		}
		return &PutResult{ETag: etag, Size: int64(len(data))}, nil
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
	chunkResults := fanout.WriteChunks(disks, path, shards)
	if err := quorum.CheckChunkWrite(chunkResults, len(disks)); err != nil {
		return nil, err
	}
	rec := &xlmeta.XLMeta{
		Version: xlmeta.CurrentVersion, Format: xlmeta.Format,
		Bucket: bucket, Key: key,
		Stat: xlmeta.Stat{Size: uint64(len(data)), ModTime: time.Now().UTC()},
		Meta: meta, Versioning: versioning,
		Erasure: xlmeta.Erasure{
			Algorithm: xlmeta.Algorithm, Data: codec.Data, Parity: codec.Parity,
			BlockSize: uint32(chunkSize),
			Distribution: placement.IdentityDistribution(n),
			Checksums: checksums,
		},
	}
	metaResults := fanout.WriteMetas(disks, path, rec)
	if err := quorum.CheckWrite(metaResults, len(disks)); err != nil {
		return nil, err
	}
	return &PutResult{ETag: etag, Size: int64(len(data))}, nil
}

// flipLatest atomically materializes the ".latest" pointer to versionID:
// the pointer is itself a tiny xl.meta record at the base object path
// written under quorum, so the flip either fully succeeds (a majority of
// disks now name the new version) or fails outright, never landing
// half-flipped on a majority.
func (s *Store) flipLatest(bucket, key, versionID string, isDeleteMarker bool) error {
	codec, err := s.codec()
	if err != nil {
		return err
	}
	n := codec.Data + codec.Parity
	result, err := placement.Locate(s.Rings.For(s.Topo), s.Topo, bucket, key, n)
	if err != nil {
		return err
	}
	disks := s.resolveDisks(result.Disks)
	pointer := &xlmeta.XLMeta{
		Version: xlmeta.CurrentVersion, Format: xlmeta.Format,
		Bucket: bucket, Key: key,
		Stat: xlmeta.Stat{ModTime: time.Now().UTC()},
		Versioning: xlmeta.Versioning{VersionID: versionID, IsLatest: true, IsDeleteMarker: isDeleteMarker},
		// The pointer carries no payload of its own, just the version_id it
		// names; InlineData (empty, non-nil) marks it inline so Validate
		// doesn't expect the erasure-coded chunk count below to be backed
		// by real checksums.
		InlineData: []byte{},
		Erasure: xlmeta.Erasure{
			Algorithm: xlmeta.Algorithm, Data: codec.Data, Parity: codec.Parity,
			Distribution: placement.IdentityDistribution(n),
		},
	}
	if isDeleteMarker {
		// A pointer to a delete marker takes the delete-marker shape instead.
		pointer.InlineData = nil
		pointer.Erasure.Distribution = nil
	}
	path := objectpath.Path(bucket, key)
	metaResults := fanout.WriteMetas(disks, path, pointer)
	if err := quorum.CheckWrite(metaResults, len(disks)); err != nil {
		return err
	}
	s.Cache.Invalidate(cacheKey(bucket, key, ""))
	return nil
}

// Latest resolves the ".latest" pointer for (bucket,key) to a version ID.
func (s *Store) Latest(bucket, key string) (versionID string, isDeleteMarker bool, err error) {
	rec, err := s.Head(bucket, key)
	if err != nil {
		return "", false, err
	}
	return rec.Versioning.VersionID, rec.Versioning.IsDeleteMarker, nil
}
