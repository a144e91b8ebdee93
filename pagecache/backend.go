package pagecache

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"github.com/kvladder/ladderstore/block"
)

// MemBackend is a non-durable Backend: every block lives only in the
// process's memory, for tests and ephemeral engines.
type MemBackend struct {
	mu     sync.Mutex
	blocks map[block.Ptr][]byte
}

// NewMemBackend builds an empty in-memory Backend.
func NewMemBackend() *MemBackend {
	return &MemBackend{blocks: make(map[block.Ptr][]byte)}
}

// ReadBlock returns the stored bytes for ptr, or nil if never written
// (the Cache treats a nil read as a fresh, not-up-to-date block).
func (m *MemBackend) ReadBlock(ptr block.Ptr, sizeBlocks uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blocks[ptr]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemBackend) WriteBlock(ptr block.Ptr, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blocks[ptr] = stored
	return nil
}

// PebbleBackend persists blocks into a cockroachdb/pebble instance,
// giving the cache durable storage for the dirty blocks it writes back on
// eviction and Close, grounded
// in the teacher's caching/pebble.go PebbleCache.
type PebbleBackend struct {
	db *pebble.DB
}

// OpenPebbleBackend opens (creating if absent) a pebble-backed Backend at
// dir.
func OpenPebbleBackend(dir string) (*PebbleBackend, error) {
	db, err := pebble.Open(dir, &pebble.Options{MemTableSize: 64 << 20})
	if err != nil {
		return nil, fmt.Errorf("opening pagecache pebble store: %w", err)
	}
	return &PebbleBackend{db: db}, nil
}

func (p *PebbleBackend) Close() error { return p.db.Close() }

func (p *PebbleBackend) key(ptr block.Ptr) []byte {
	return []byte(fmt.Sprintf("blk:%d:%d", ptr.DeviceID, ptr.Block))
}

func (p *PebbleBackend) ReadBlock(ptr block.Ptr, sizeBlocks uint32) ([]byte, error) {
	data, closer, err := p.db.Get(p.key(ptr))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (p *PebbleBackend) WriteBlock(ptr block.Ptr, data []byte) error {
	return p.db.Set(p.key(ptr), data, pebble.NoSync)
}
