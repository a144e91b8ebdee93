// Package block defines the disk-block addressing and cache-reference
// contracts the engine's core consumes from its external collaborators:
// the page cache and the free-space allocator.
package block

import "fmt"

// Ptr is a disk-block pointer: a device id plus a block number within that
// device. The all-zeros pointer is the invalid sentinel.
type Ptr struct {
	DeviceID uint32
	Block    uint32
}

// Invalid is the all-zeros sentinel pointer.
var Invalid = Ptr{}

// IsValid reports whether p is not the all-zeros sentinel.
func (p Ptr) IsValid() bool {
	return p != Invalid
}

func (p Ptr) String() string {
	return fmt.Sprintf("(%d:%d)", p.DeviceID, p.Block)
}

// Ref is a locked, reference-counted handle on an in-memory block obtained
// from the page cache. The holder must call Unlock before releasing the
// reference with Put.
type Ref interface {
	// Ptr is the disk-block pointer this reference resolves to.
	Ptr() Ptr

	// Bytes exposes the block's raw storage. Valid only while locked.
	Bytes() []byte

	// UpToDate reports whether the block's contents reflect disk state
	// (false immediately after a cache miss, before the caller populates
	// it and calls SetUpToDate).
	UpToDate() bool

	// SetUpToDate marks the block's contents as valid, typically after the
	// caller has populated a freshly allocated block or completed a read.
	SetUpToDate()

	// Dirty marks the block as needing writeback before eviction.
	Dirty()

	// Unlock releases the exclusive lock acquired by Get, without
	// releasing the reference itself.
	Unlock()

	// Put releases the caller's reference. The block must already be
	// unlocked.
	Put()
}

// Cache is the buffer-cache interface consumed by the core (spec §6):
// reference-counted, lockable blocks with read-through/dirty-writeback
// policy owned entirely by the implementation.
type Cache interface {
	// Get returns a locked reference to the block at ptr, sized
	// sizeBlocks. The reference may not be up to date; the caller must
	// check UpToDate and, on a miss, populate the block and call
	// SetUpToDate before Unlock.
	Get(ptr Ptr, sizeBlocks uint32) (Ref, error)
}

// FreeSpace is the free-space allocator interface consumed by the core
// (spec §6). Priority 0 is used by the merge engine.
type FreeSpace interface {
	BlockGet(priority int, nodeSizeBlocks uint32) (Ptr, error)

	// Release returns a previously allocated block to the free pool.
	// Not part of the minimal spec interface but required for the merge
	// engine's "release blocks it allocated" failure-path obligation and
	// for CT retirement after a successful merge.
	Release(ptr Ptr) error
}
