package quorum

import (
	"testing"
	"time"

	"github.com/gridstore/core/internal/disk"
	"github.com/gridstore/core/internal/errs"
	"github.com/gridstore/core/internal/fanout"
	"github.com/gridstore/core/internal/xlmeta"
)

type memDisk struct {
	chunks map[int][]byte
	meta   *xlmeta.XLMeta
}

func newMemDisk() *memDisk { return &memDisk{chunks: make(map[int][]byte)} }

func (d *memDisk) WriteChunk(objectPath string, index int, data []byte) error {
	d.chunks[index] = append([]byte(nil), data...)
	return nil
}
func (d *memDisk) ReadChunk(objectPath string, index int) ([]byte, error) {
	data, ok := d.chunks[index]
	if !ok {
		return nil, errs.New(errs.NotFound, "memDisk.ReadChunk", nil)
	}
	return data, nil
}
func (d *memDisk) WriteMeta(objectPath string, meta *xlmeta.XLMeta) error {
	d.meta = meta
	return nil
}
func (d *memDisk) ReadMeta(objectPath string) (*xlmeta.XLMeta, error) {
	if d.meta == nil {
		return nil, errs.New(errs.NotFound, "memDisk.ReadMeta", nil)
	}
	return d.meta, nil
}
func (d *memDisk) DeleteChunk(objectPath string, index int) error { delete(d.chunks, index); return nil }
func (d *memDisk) DeleteMeta(objectPath string) error             { d.meta = nil; return nil }
func (d *memDisk) Endpoint() string                               { return "mem://test" }
func (d *memDisk) Path() string                                   { return "/mem" }

func metaResult(idx int, meta *xlmeta.XLMeta, err error) fanout.MetaResult {
	return fanout.MetaResult{Index: idx, Meta: meta, Err: err}
}

func TestN(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 4}
	for n, want := range cases {
		if got := N(n); got != want {
			t.Errorf("N(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestCheckWrite(t *testing.T) {
	results := []fanout.MetaResult{
		metaResult(0, nil, nil),
		metaResult(1, nil, nil),
		metaResult(2, nil, errs.New(errs.IO, "op", nil)),
	}
	if err := CheckWrite(results, 3); err != nil {
		t.Errorf("expected quorum with 2/3 acks, got %v", err)
	}

	results[1].Err = errs.New(errs.IO, "op", nil)
	if err := CheckWrite(results, 3); !errs.Is(err, errs.QuorumFailed) {
		t.Errorf("expected QuorumFailed with 1/3 acks, got %v", err)
	}
}

func TestReadMeta_PicksMajority(t *testing.T) {
	modTime := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	majority := &xlmeta.XLMeta{Meta: xlmeta.ObjectMeta{ETag: "agreed"}, Stat: xlmeta.Stat{Size: 100, ModTime: modTime}}
	// Disagrees on (size, mod_time), even though ETag happens to differ too —
	// the agreement key no longer looks at ETag at all.
	minority := &xlmeta.XLMeta{Meta: xlmeta.ObjectMeta{ETag: "stale"}, Stat: xlmeta.Stat{Size: 50, ModTime: modTime.Add(-time.Hour)}}

	results := []fanout.MetaResult{
		metaResult(0, majority, nil),
		metaResult(1, majority, nil),
		metaResult(2, minority, nil),
	}
	got, err := ReadMeta(results, 3)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if got.Meta.ETag != "agreed" {
		t.Errorf("ReadMeta picked %q, want %q", got.Meta.ETag, "agreed")
	}
}

func TestReadMeta_BelowQuorumFails(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := &xlmeta.XLMeta{Stat: xlmeta.Stat{Size: 1, ModTime: base}}
	b := &xlmeta.XLMeta{Stat: xlmeta.Stat{Size: 2, ModTime: base}}
	c := &xlmeta.XLMeta{Stat: xlmeta.Stat{Size: 3, ModTime: base}}
	results := []fanout.MetaResult{metaResult(0, a, nil), metaResult(1, b, nil), metaResult(2, c, nil)}

	if _, err := ReadMeta(results, 3); !errs.Is(err, errs.QuorumFailed) {
		t.Errorf("expected QuorumFailed when every disk disagrees, got %v", err)
	}
}

func TestValidate_FlagsStaleAndMissing(t *testing.T) {
	modTime := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	agreed := &xlmeta.XLMeta{Meta: xlmeta.ObjectMeta{ETag: "agreed"}, Stat: xlmeta.Stat{Size: 100, ModTime: modTime}}
	stale := &xlmeta.XLMeta{Meta: xlmeta.ObjectMeta{ETag: "stale"}, Stat: xlmeta.Stat{Size: 50, ModTime: modTime}}

	results := []fanout.MetaResult{
		metaResult(0, agreed, nil),
		metaResult(1, stale, nil),
		metaResult(2, nil, errs.New(errs.IO, "op", nil)),
	}
	stalesIdx := Validate(results, agreed)
	if len(stalesIdx) != 2 {
		t.Fatalf("expected 2 stale indexes, got %v", stalesIdx)
	}
	if stalesIdx[0] != 1 || stalesIdx[1] != 2 {
		t.Errorf("expected stale indexes [1 2], got %v", stalesIdx)
	}
}

func TestHeal_RewritesStaleDisks(t *testing.T) {
	good, stale := newMemDisk(), newMemDisk()
	disks := []disk.Capability{good, stale}
	meta := &xlmeta.XLMeta{Meta: xlmeta.ObjectMeta{ETag: "fresh"}}
	shards := [][]byte{[]byte("shard0"), []byte("shard1")}

	if err := Heal(disks, "obj/", []int{1}, meta, shards); err != nil {
		t.Fatalf("Heal: %v", err)
	}
	if stale.meta == nil || stale.meta.Meta.ETag != "fresh" {
		t.Error("expected stale disk's meta to be rewritten")
	}
	if string(stale.chunks[2]) != "shard1" {
		t.Errorf("expected stale disk's shard rewritten, got %q", stale.chunks[2])
	}
	if good.meta != nil {
		t.Error("Heal should not touch disks outside staleIndexes")
	}
}
