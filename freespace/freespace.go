// Package freespace implements a reference free-space allocator for the
// block.FreeSpace collaborator of spec.md §6: a bump counter over a single
// device plus a free list of released blocks, modeled on the teacher's
// packfile offset/length bookkeeping in repository/state/state.go
// (Location{Packfile, Offset, Length}), generalized from packfile offsets
// to whole (device_id, block) pointers since this module has no
// append-only packfile layer of its own.
package freespace

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/errs"
)

// Allocator hands out fresh block.Ptr values from a bump counter, and
// reuses released ones before growing further, per spec.md §6's
// BlockGet(priority, nodeSizeBlocks)/Release contract.
type Allocator struct {
	mu       sync.Mutex
	deviceID uint32
	next     uint32
	free     []uint32 // sorted ascending; reused before bumping next
}

// New builds an Allocator claiming deviceID (spec.md §6's block-device
// claim, modeled as a single logical device per doubling array).
func New(deviceID uint32) *Allocator {
	return &Allocator{deviceID: deviceID, next: 1}
}

// BlockGet returns the next block for a node of nodeSizeBlocks blocks.
// priority is accepted to satisfy the full spec.md §6 signature; this
// reference allocator has only one free list and does not prioritize
// between callers (the merge engine and dynamic-CT inserts both pass
// priority 0 today, per spec.md §4.7/§4.3).
func (a *Allocator) BlockGet(priority int, nodeSizeBlocks uint32) (block.Ptr, error) {
	if nodeSizeBlocks == 0 {
		return block.Invalid, fmt.Errorf("%w: nodeSizeBlocks must be positive", errs.ErrInvalidInput)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) > 0 {
		b := a.free[0]
		a.free = a.free[1:]
		return block.Ptr{DeviceID: a.deviceID, Block: b}, nil
	}

	b := a.next
	a.next++
	return block.Ptr{DeviceID: a.deviceID, Block: b}, nil
}

// Release returns ptr to the free list, to be handed out by a future
// BlockGet. Releasing a block that is already on the free list is a
// no-op. A block of this device that the allocator never handed out is
// accepted unchecked, since the merge engine's abort path and CT
// retirement are the only callers and both know the blocks they are
// releasing.
func (a *Allocator) Release(ptr block.Ptr) error {
	if ptr.DeviceID != a.deviceID {
		return fmt.Errorf("%w: block %s does not belong to device %d", errs.ErrInvalidInput, ptr, a.deviceID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= ptr.Block })
	if i < len(a.free) && a.free[i] == ptr.Block {
		return nil
	}
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = ptr.Block
	return nil
}

// Stats reports the allocator's current high-water mark and free-list
// size, for sysfs/metrics wiring (spec.md §6's "sysfs wiring" external
// surface, out of core scope but cheap to expose here).
func (a *Allocator) Stats() (highWater uint32, freeCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next - 1, len(a.free)
}
