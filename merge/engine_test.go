package merge

import (
	"sync"
	"testing"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/component"
	"github.com/kvladder/ladderstore/version"
)

// memCache is a minimal in-memory block.Cache/block.FreeSpace test double,
// grounded in the teacher's InMemoryStore pattern (kloset/btree/memorystore.go),
// mirrored here since component's identically-named test double is
// package-private.
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

func leafEntries(t *testing.T, store *component.NodeStore, typ btreetype.Type, first block.Ptr) []btreetype.Entry {
	t.Helper()
	var out []btreetype.Entry
	for ptr := first; ptr.IsValid(); {
		node, err := store.Get(typ, ptr)
		if err != nil {
			t.Fatalf("store.Get: %v", err)
		}
		out = append(out, node.Entries...)
		ptr = node.Next
	}
	return out
}

// TestE5MergeBoundary implements spec scenario E5: a run of three
// same-key slots where the first is a strict ancestor of the second and
// the third is unrelated to both must never be split between the first
// two.
func TestE5MergeBoundary(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 2}
	ancestry := fakeAncestry{ancestorOf: map[version.ID]map[version.ID]bool{
		2: {1: true}, // 1 is ancestor of 2
	}}

	// Composite order is descendant-first within equal keys: v=2 (the
	// descendant) precedes v=1 (its ancestor); v=3 is unrelated to both
	// and tie-breaks after them by raw id.
	src := &sliceIterator{entries: []btreetype.Entry{
		{Key: []byte{1}, Version: 2, ValueRef: []byte("b")},
		{Key: []byte{1}, Version: 1, ValueRef: []byte("a")},
		{Key: []byte{1}, Version: 3, ValueRef: []byte("c")},
	}}

	eng := NewEngine(typ, ancestry, store, 8)
	desc, err := eng.Run(src, 10, 1, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if desc.ItemCount != 3 {
		t.Fatalf("ItemCount = %d, want 3", desc.ItemCount)
	}

	node, err := store.Get(typ, desc.FirstNode)
	if err != nil {
		t.Fatalf("store.Get(FirstNode): %v", err)
	}
	if len(node.Entries) != 2 {
		t.Fatalf("first node has %d entries, want 2 (versions 2 and 1 kept together)", len(node.Entries))
	}
	if node.Entries[0].Version != 2 || node.Entries[1].Version != 1 {
		t.Errorf("first node entries = %+v, want versions [2,1] together", node.Entries)
	}

	all := leafEntries(t, store, typ, desc.FirstNode)
	if len(all) != 3 {
		t.Fatalf("total leaf entries = %d, want 3", len(all))
	}
	if all[2].Version != 3 {
		t.Errorf("the unrelated version 3 entry should be split off into its own node, got order %+v", all)
	}
}

// TestE6EndOfStreamRoot implements spec scenario E6: merging inputs whose
// combined key count fits in one node yields a single-node, leaf-root
// output tree.
func TestE6EndOfStreamRoot(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 8}
	ancestry := fakeAncestry{ancestorOf: map[version.ID]map[version.ID]bool{}}

	src := &sliceIterator{entries: []btreetype.Entry{
		{Key: []byte{1}, Version: 1, ValueRef: []byte("v1")},
		{Key: []byte{2}, Version: 1, ValueRef: []byte("v2")},
		{Key: []byte{3}, Version: 1, ValueRef: []byte("v3")},
	}}

	eng := NewEngine(typ, ancestry, store, 8)
	desc, err := eng.Run(src, 11, 1, 1)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if desc.ItemCount != 3 {
		t.Fatalf("ItemCount = %d, want 3", desc.ItemCount)
	}
	if desc.NodeCount != 1 {
		t.Fatalf("NodeCount = %d, want 1 (single-node output)", desc.NodeCount)
	}
	if desc.RootNode != desc.FirstNode || desc.FirstNode != desc.LastNode {
		t.Errorf("expected RootNode == FirstNode == LastNode, got root=%v first=%v last=%v",
			desc.RootNode, desc.FirstNode, desc.LastNode)
	}

	node, err := store.Get(typ, desc.RootNode)
	if err != nil {
		t.Fatalf("store.Get(RootNode): %v", err)
	}
	if !node.IsLeaf {
		t.Error("root node should be a leaf for a single-node tree")
	}
	if len(node.Entries) != 3 {
		t.Errorf("root node has %d entries, want 3", len(node.Entries))
	}
}

func TestEngineRejectsNonMonotonicInput(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 8}
	ancestry := fakeAncestry{ancestorOf: map[version.ID]map[version.ID]bool{}}

	src := &sliceIterator{entries: []btreetype.Entry{
		{Key: []byte{2}, Version: 1},
		{Key: []byte{1}, Version: 1},
	}}

	eng := NewEngine(typ, ancestry, store, 8)
	if _, err := eng.Run(src, 12, 1, 1); err == nil {
		t.Error("Run succeeded on a non-monotonic key stream, want error")
	}
	if !src.closed {
		t.Error("Run must close its source iterator even on error")
	}
}
