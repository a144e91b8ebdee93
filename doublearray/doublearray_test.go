package doublearray

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/component"
	"github.com/kvladder/ladderstore/config"
	"github.com/kvladder/ladderstore/logging"
	"github.com/kvladder/ladderstore/version"
)

type memCache struct {
	mu     sync.Mutex
	blocks map[block.Ptr][]byte
	next   uint32
}

func newMemCache() *memCache { return &memCache{blocks: make(map[block.Ptr][]byte)} }

type memRef struct {
	c    *memCache
	ptr  block.Ptr
	data []byte
	ok   bool
}

func (r *memRef) Ptr() block.Ptr { return r.ptr }
func (r *memRef) Bytes() []byte  { return r.data }
func (r *memRef) UpToDate() bool { return r.ok }
func (r *memRef) SetUpToDate()   { r.ok = true }
func (r *memRef) Dirty()         {}
func (r *memRef) Unlock()        {}
func (r *memRef) Put() {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.blocks[r.ptr] = r.data
}

func (c *memCache) Get(ptr block.Ptr, sizeBlocks uint32) (block.Ref, error) {
	c.mu.Lock()
	data, ok := c.blocks[ptr]
	c.mu.Unlock()
	if !ok {
		data = make([]byte, 4096)
	}
	return &memRef{c: c, ptr: ptr, data: data, ok: ok}, nil
}

func (c *memCache) BlockGet(priority int, nodeSizeBlocks uint32) (block.Ptr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	return block.Ptr{DeviceID: 1, Block: c.next}, nil
}

func (c *memCache) Release(ptr block.Ptr) error { return nil }

type bytesType struct {
	btreetype.BaseOps
	cap int
}

func (bytesType) NodeSizeBlocks() uint32     { return 1 }
func (bytesType) Magic() btreetype.Magic     { return 0xB7 }
func (bytesType) KeyCompare(a, b []byte) int { return bytes.Compare(a, b) }
func (t bytesType) NeedSplit(n *btreetype.Node, extra int) bool {
	return len(n.Entries)+extra > t.cap
}

type fakeAncestry struct {
	ancestorOf map[version.ID]map[version.ID]bool
}

func (f fakeAncestry) IsAncestor(candidate, v version.ID) (bool, error) {
	if candidate == v {
		return true, nil
	}
	return f.ancestorOf[v][candidate], nil
}

func (f fakeAncestry) RootUpdate(v version.ID, rootBlock block.Ptr, size uint64) error {
	return nil
}

// TestE4Router implements spec scenario E4: three CTs hold the same key
// at versions 5, 2, 1; queries against v=5, a v=4 descended from v=2, and
// an unrelated v=9 exercise the newest-first router.
func TestE4Router(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 8}
	vi := fakeAncestry{ancestorOf: map[version.ID]map[version.ID]bool{
		4: {2: true}, // v=4 descends from v=2
	}}

	cfg := config.Default()
	log := logging.NewLogger(io.Discard, io.Discard)

	da, err := New(1, typ, store, vi, version.ID(1), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctA, err := component.NewDynamic(100, 1, typ, store)
	if err != nil {
		t.Fatalf("NewDynamic A: %v", err)
	}
	if err := ctA.Insert([]byte("K"), 5, []byte("from-A")); err != nil {
		t.Fatalf("Insert A: %v", err)
	}

	ctB, err := component.NewDynamic(200, 1, typ, store)
	if err != nil {
		t.Fatalf("NewDynamic B: %v", err)
	}
	if err := ctB.Insert([]byte("K"), 2, []byte("from-B")); err != nil {
		t.Fatalf("Insert B: %v", err)
	}

	ctC, err := component.NewDynamic(300, 1, typ, store)
	if err != nil {
		t.Fatalf("NewDynamic C: %v", err)
	}
	if err := ctC.Insert([]byte("K"), 1, []byte("from-C")); err != nil {
		t.Fatalf("Insert C: %v", err)
	}

	da.mu.Lock()
	da.ensureLevelLocked(1)
	da.levels[1] = []*component.Tree{ctA, ctB, ctC}
	da.mu.Unlock()

	got, err := da.Find([]byte("K"), 5)
	if err != nil {
		t.Fatalf("Find(v=5): %v", err)
	}
	if string(got) != "from-A" {
		t.Errorf("Find(v=5) = %q, want from-A", got)
	}

	got, err = da.Find([]byte("K"), 4)
	if err != nil {
		t.Fatalf("Find(v=4): %v", err)
	}
	if string(got) != "from-B" {
		t.Errorf("Find(v=4) = %q, want from-B (v=4 descends from B's v=2)", got)
	}

	if _, err := da.Find([]byte("K"), 9); err == nil {
		t.Error("Find(v=9) succeeded, want Absent (unrelated version)")
	}
}

// TestSealLevel0 exercises the seal/promote lifecycle: once level 0's
// item_count crosses the sealing threshold, it is moved to level 1 and a
// fresh dynamic CT replaces it at level 0.
func TestSealLevel0(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 64}
	vi := fakeAncestry{ancestorOf: map[version.ID]map[version.ID]bool{}}

	cfg := config.Default()
	cfg.SealThreshold = 2
	log := logging.NewLogger(io.Discard, io.Discard)

	da, err := New(1, typ, store, vi, version.ID(1), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	firstSeq := da.levels[0][0].Seq
	if err := da.Insert([]byte("a"), 1, []byte("va")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := da.Insert([]byte("b"), 1, []byte("vb")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if len(da.levels) < 2 || len(da.levels[1]) != 1 {
		t.Fatalf("expected exactly one CT sealed to level 1, got levels=%v", da.levels)
	}
	if da.levels[1][0].Seq != firstSeq {
		t.Errorf("sealed CT seq = %d, want original level-0 seq %d", da.levels[1][0].Seq, firstSeq)
	}
	if da.levels[0][0].Seq == firstSeq {
		t.Error("level 0 should hold a freshly allocated CT after sealing")
	}
	if da.levels[0][0].ItemCount() != 0 {
		t.Errorf("fresh level-0 CT should be empty, has %d items", da.levels[0][0].ItemCount())
	}
}

// TestMergeScheduler exercises a full pairwise merge promotion from level
// 1 to level 2.
func TestMergeScheduler(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 64}
	vi := fakeAncestry{ancestorOf: map[version.ID]map[version.ID]bool{}}

	cfg := config.Default()
	log := logging.NewLogger(io.Discard, io.Discard)

	da, err := New(1, typ, store, vi, version.ID(1), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctA, _ := component.NewDynamic(10, 1, typ, store)
	ctA.Insert([]byte("a"), 1, []byte("va"))
	ctB, _ := component.NewDynamic(20, 1, typ, store)
	ctB.Insert([]byte("b"), 1, []byte("vb"))

	da.mu.Lock()
	da.ensureLevelLocked(1)
	da.levels[1] = []*component.Tree{ctB, ctA}
	da.mu.Unlock()

	if err := da.RunMergeScheduler(context.Background()); err != nil {
		t.Fatalf("RunMergeScheduler: %v", err)
	}

	if len(da.levels[1]) != 0 {
		t.Errorf("level 1 should be empty after merging its only two CTs, got %d", len(da.levels[1]))
	}
	if len(da.levels) < 3 || len(da.levels[2]) != 1 {
		t.Fatalf("expected one merged CT at level 2, got levels=%v", da.levels)
	}
	if da.levels[2][0].ItemCount() != 2 {
		t.Errorf("merged CT item count = %d, want 2", da.levels[2][0].ItemCount())
	}

	got, err := da.Find([]byte("a"), 1)
	if err != nil || string(got) != "va" {
		t.Errorf("Find(a) after merge = (%q, %v), want (va, nil)", got, err)
	}
}
