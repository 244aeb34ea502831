// Package quorum evaluates fan-out results against the floor(N/2)+1
// majority rule that every read, write, validate, and heal decision is
// built on. It holds no disk handles itself; callers fan out via
// package fanout and hand the results here.
package quorum

import (
	"fmt"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/errs"
	"github.com/gridstore/core/internal/fanout"
	"github.com/gridstore/core/internal/xlmeta"
)

// N computes the majority threshold for a set of size n: floor(n/2)+1.
// Offline disks count against n — callers pass the set's full disk
// count, reachable or not.
func N(n int) int {
	return n/2 + 1
}

// CheckWrite reports whether enough of results succeeded to call a write
// durable. A write quorum is reached when at least N(total) disks
// acknowledged.
func CheckWrite(results []fanout.MetaResult, total int) error {
	const op = "quorum.CheckWrite"
	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	need := N(total)
	if ok < need {
		return errs.New(errs.QuorumFailed, op, fmt.Errorf("%d/%d disks ack'd, need %d", ok, total, need))
	}
	return nil
}

// CheckChunkWrite is CheckWrite for chunk fan-out results.
func CheckChunkWrite(results []fanout.ChunkResult, total int) error {
	const op = "quorum.CheckChunkWrite"
	ok := 0
	for _, r := range results {
		if r.Err == nil {
			ok++
		}
	}
	need := N(total)
	if ok < need {
		return errs.New(errs.QuorumFailed, op, fmt.Errorf("%d/%d disks ack'd, need %d", ok, total, need))
	}
	return nil
}

// ReadMeta picks the xl.meta value with the most agreeing copies among
// results, requiring that the winning value be held by at least N(total)
// disks. Agreement is judged on (size, mod_time) rather than byte-for-byte
// JSON equality, which would be brittle against field-order differences
// across versions (every disk's record differs at least in Erasure.Index).
// ETag is not part of the key.
func ReadMeta(results []fanout.MetaResult, total int) (*xlmeta.XLMeta, error) {
	const op = "quorum.ReadMeta"
	type group struct {
		meta *xlmeta.XLMeta
		count int
	}
	groups := make(map[string]*group)
	for _, r := range results {
		if r.Err != nil || r.Meta == nil {
			continue
		}
		key := agreementKey(r.Meta)
		g, ok := groups[key]
		if !ok {
			g = &group{meta: r.Meta}
			groups[key] = g
		}
		g.count++
	}
	var best *group
	for _, g := range groups {
		if best == nil || g.count > best.count {
			best = g
		}
	}
	need := N(total)
	if best == nil || best.count < need {
		got := 0
		if best != nil {
			got = best.count
		}
		return nil, errs.New(errs.QuorumFailed, op, fmt.Errorf("%d/%d disks agree, need %d", got, total, need))
	}
	return best.meta, nil
}

// Validate reports which disks in results hold metadata disagreeing with
// the agreed value, for the caller to queue for heal.
func Validate(results []fanout.MetaResult, agreed *xlmeta.XLMeta) []int {
	var stale []int
	agreedKey := agreementKey(agreed)
	for _, r := range results {
		if r.Err != nil || r.Meta == nil {
			stale = append(stale, r.Index)
			continue
		}
		if agreementKey(r.Meta) != agreedKey {
			stale = append(stale, r.Index)
		}
	}
	return stale
}

// agreementKey is the (size, mod_time) pair two disks' records are
// compared on to decide whether they hold the same write.
func agreementKey(m *xlmeta.XLMeta) string {
	return fmt.Sprintf("%d|%s", m.Stat.Size, m.Stat.ModTime.UTC().Format(timeKeyLayout))
}

const timeKeyLayout = "2006-01-02T15:04:05.000000000Z"

// Heal rewrites xl.meta and, if provided, chunk data to every disk index
// named in staleIndexes.
func Heal(disks []disk.Capability, objectPath string, staleIndexes []int, meta *xlmeta.XLMeta, shards [][]byte) error {
	const op = "quorum.Heal"
	for _, idx := range staleIndexes {
		if idx < 0 || idx >= len(disks) {
			continue
		}
		if err := disks[idx].WriteMeta(objectPath, meta); err != nil {
			return errs.New(errs.IO, op, err)
		}
		if shards != nil && idx < len(shards) && shards[idx] != nil {
			if err := disks[idx].WriteChunk(objectPath, idx+1, shards[idx]); err != nil {
				return errs.New(errs.IO, op, err)
			}
		}
	}
	return nil
}
