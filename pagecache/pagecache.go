// Package pagecache implements the buffer cache collaborator of spec.md
// §6: reference-counted, lockable block.Ref handles over an intrusive LRU
// of target size, generalized from the teacher's single-type node cache
// (kloset/btree/cache.go + caching/lru/lru.go) to the generic block
// payload this module's btree nodes are stored as.
package pagecache

import (
	"sync"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/caching/lru"
	"github.com/kvladder/ladderstore/metrics"
)

// Backend is the durable store a Cache evicts dirty blocks into. MemBackend
// and PebbleBackend both satisfy it.
type Backend interface {
	ReadBlock(ptr block.Ptr, sizeBlocks uint32) ([]byte, error)
	WriteBlock(ptr block.Ptr, data []byte) error
}

// Cache is an in-process block.Cache: an LRU of target size, backed by a
// Backend for read-through and dirty writeback, mirroring the teacher's
// cache[K,P,V] over lru.Cache[P,*cacheitem].
type Cache struct {
	backend Backend
	lru     *lru.Cache[block.Ptr, *entry]
}

type entry struct {
	mu       sync.Mutex
	ptr      block.Ptr
	data     []byte
	upToDate bool
	dirty    bool
	locked   bool
	refs     int
}

// New builds a Cache of target blocks backed by backend.
func New(target int, backend Backend) *Cache {
	c := &Cache{backend: backend}
	c.lru = lru.New(target, c.evict)
	return c
}

func (c *Cache) evict(ptr block.Ptr, e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return nil
	}
	return c.backend.WriteBlock(ptr, e.data)
}

// Close flushes every dirty entry still resident.
func (c *Cache) Close() error {
	return c.lru.Close()
}

// Stats reports hit/miss/resident counts, mirroring the teacher's
// lru.Cache.Stats used by btree/cache.go.
func (c *Cache) Stats() (hits, misses, size uint64) {
	return c.lru.Stats()
}

// Get returns a locked block.Ref for ptr, reading through the backend on a
// cache miss.
func (c *Cache) Get(ptr block.Ptr, sizeBlocks uint32) (block.Ref, error) {
	if e, ok := c.lru.Get(ptr); ok {
		metrics.CacheHits.Inc()
		e.mu.Lock()
		e.locked = true
		e.refs++
		e.mu.Unlock()
		return &ref{cache: c, entry: e}, nil
	}
	metrics.CacheMisses.Inc()

	data, err := c.backend.ReadBlock(ptr, sizeBlocks)
	if err != nil {
		return nil, err
	}
	upToDate := data != nil
	if data == nil {
		data = make([]byte, sizeBlocks*blockSize)
	}

	e := &entry{ptr: ptr, data: data, upToDate: upToDate, locked: true, refs: 1}
	if err := c.lru.Put(ptr, e); err != nil {
		return nil, err
	}
	return &ref{cache: c, entry: e}, nil
}

// blockSize is the fixed on-disk block size backends allocate fresh
// buffers at; config.Config.BlockSizeBytes is the authoritative tunable
// callers should size their backend's real storage with, but an in-memory
// miss still needs a buffer of some size before the caller populates it.
const blockSize = 4096

// ref is the block.Ref handed out by Cache.Get.
type ref struct {
	cache *Cache
	entry *entry
}

func (r *ref) Ptr() block.Ptr { return r.entry.ptr }
func (r *ref) Bytes() []byte  { return r.entry.data }

func (r *ref) UpToDate() bool {
	r.entry.mu.Lock()
	defer r.entry.mu.Unlock()
	return r.entry.upToDate
}

func (r *ref) SetUpToDate() {
	r.entry.mu.Lock()
	defer r.entry.mu.Unlock()
	r.entry.upToDate = true
}

func (r *ref) Dirty() {
	r.entry.mu.Lock()
	defer r.entry.mu.Unlock()
	r.entry.dirty = true
}

func (r *ref) Unlock() {
	r.entry.mu.Lock()
	defer r.entry.mu.Unlock()
	r.entry.locked = false
}

func (r *ref) Put() {
	r.entry.mu.Lock()
	r.entry.refs--
	r.entry.mu.Unlock()
}
