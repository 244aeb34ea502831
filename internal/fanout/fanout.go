// Package fanout drives the same operation across a set's disks
// concurrently, local or remote alike, behind the disk.Capability
// interface. It never decides quorum; it just runs disk-level calls in
// parallel and collects per-disk outcomes for quorum to evaluate.
package fanout

import (
	"sync"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/xlmeta"
)

const maxConcurrency = 32

// ChunkResult is one disk's outcome from a chunk read/write fan-out.
type ChunkResult struct {
	Index int
	Data []byte
	Err error
}

// MetaResult is one disk's outcome from a metadata read/write fan-out.
type MetaResult struct {
	Index int
	Meta *xlmeta.XLMeta
	Err error
}

// WriteChunks writes shards[i] to disks[i] concurrently, one call per disk
// up to maxConcurrency in flight, and returns a result per disk in disk
// order regardless of completion order.
func WriteChunks(disks []disk.Capability, objectPath string, shards [][]byte) []ChunkResult {
	return runChunks(disks, len(shards), func(i int) ([]byte, error) {
		return nil, disks[i].WriteChunk(objectPath, i+1, shards[i])
	})
}

// ReadChunks reads chunk index+1 from each disk concurrently.
func ReadChunks(disks []disk.Capability, objectPath string) []ChunkResult {
	return runChunks(disks, len(disks), func(i int) ([]byte, error) {
		return disks[i].ReadChunk(objectPath, i+1)
	})
}

func runChunks(disks []disk.Capability, n int, call func(i int) ([]byte, error)) []ChunkResult {
	results := make([]ChunkResult, n)
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			data, err := call(i)
			results[i] = ChunkResult{Index: i, Data: data, Err: err}
		}(i)
	}
	wg.Wait()
	return results
}

// WriteMetas writes meta to every disk concurrently. Every disk gets its
// own clone of meta with Erasure.Index set to that disk's slot in the
// distribution (Distribution[i]); disk i only ever holds shard
// Distribution[i], never shard i+1 once a read ever reorders past the
// identity distribution, so the written record must say which one it is.
func WriteMetas(disks []disk.Capability, objectPath string, meta *xlmeta.XLMeta) []MetaResult {
	return runMetas(disks, func(i int) (*xlmeta.XLMeta, error) {
		rec := xlmeta.Clone(meta)
		if i < len(rec.Erasure.Distribution) {
			rec.Erasure.Index = rec.Erasure.Distribution[i]
		} else {
			rec.Erasure.Index = uint32(i + 1)
		}
		return nil, disks[i].WriteMeta(objectPath, rec)
	})
}

// ReadMetas reads xl.meta from every disk concurrently.
func ReadMetas(disks []disk.Capability, objectPath string) []MetaResult {
	return runMetas(disks, func(i int) (*xlmeta.XLMeta, error) {
		return disks[i].ReadMeta(objectPath)
	})
}

// DeleteMetas deletes xl.meta (and best-effort all chunks) from every disk
// concurrently.
func DeleteMetas(disks []disk.Capability, objectPath string, numChunks int) []MetaResult {
	return runMetas(disks, func(i int) (*xlmeta.XLMeta, error) {
		err := disks[i].DeleteMeta(objectPath)
		for idx := 1; idx <= numChunks; idx++ {
			disks[i].DeleteChunk(objectPath, idx)
		}
		return nil, err
	})
}

func runMetas(disks []disk.Capability, call func(i int) (*xlmeta.XLMeta, error)) []MetaResult {
	results := make([]MetaResult, len(disks))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	for i := range disks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			meta, err := call(i)
			results[i] = MetaResult{Index: i, Meta: meta, Err: err}
		}(i)
	}
	wg.Wait()
	return results
}
