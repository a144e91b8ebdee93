// Package component implements the Component Tree (CT): a sorted
// (immutable) or unsorted (dynamic) B-tree container of (key, version,
// value-ref) entries, per spec.md §4.3.
package component

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/errs"
	"github.com/kvladder/ladderstore/resources"
	"github.com/kvladder/ladderstore/versioning"
)

const nodeFormatVersion = "1.0.0"

func init() {
	versioning.Register(resources.RT_BTREE_NODE, versioning.FromString(nodeFormatVersion))
}

// onDiskNode is the wire representation of a btreetype.Node. Node itself
// is kept free of serialization tags so the merge engine and iterators can
// work with it as a plain value type.
type onDiskNode struct {
	FormatVersion versioning.Version
	Magic         btreetype.Magic
	IsLeaf        bool
	Version       uint32
	Capacity      int
	Entries       []btreetype.Entry
	Next          block.Ptr
}

// NodeStore turns the abstract block.Cache and block.FreeSpace
// collaborators of spec.md §6 into a typed node store: allocate, read, and
// write whole btreetype.Node values.
type NodeStore struct {
	Cache block.Cache
	Free  block.FreeSpace
}

// Alloc allocates a fresh block, formats it as an empty node of the given
// type, and returns its pointer and the in-memory node.
func (s *NodeStore) Alloc(t btreetype.Type, isLeaf bool) (block.Ptr, *btreetype.Node, error) {
	ptr, err := s.Free.BlockGet(0, t.NodeSizeBlocks())
	if err != nil {
		return block.Invalid, nil, fmt.Errorf("%w: allocating node: %v", errs.ErrStorage, err)
	}
	node := btreetype.NewNode(t, isLeaf, capacityFor(t))
	if err := s.Put(ptr, node); err != nil {
		return block.Invalid, nil, err
	}
	return ptr, node, nil
}

// Get reads and decodes the node at ptr.
func (s *NodeStore) Get(t btreetype.Type, ptr block.Ptr) (*btreetype.Node, error) {
	ref, err := s.Cache.Get(ptr, t.NodeSizeBlocks())
	if err != nil {
		return nil, fmt.Errorf("%w: fetching node %s: %v", errs.ErrStorage, ptr, err)
	}
	defer ref.Unlock()
	defer ref.Put()

	if !ref.UpToDate() {
		return nil, fmt.Errorf("%w: node %s not up to date", errs.ErrStorage, ptr)
	}

	var disk onDiskNode
	if err := msgpack.Unmarshal(ref.Bytes(), &disk); err != nil {
		return nil, fmt.Errorf("%w: decoding node %s: %v", errs.ErrStorage, ptr, err)
	}

	return &btreetype.Node{
		Magic:    disk.Magic,
		IsLeaf:   disk.IsLeaf,
		Version:  versionIDFromUint32(disk.Version),
		Capacity: disk.Capacity,
		Entries:  disk.Entries,
		Next:     disk.Next,
	}, nil
}

// Put encodes and writes node at ptr, marking the block dirty.
func (s *NodeStore) Put(ptr block.Ptr, node *btreetype.Node) error {
	ref, err := s.Cache.Get(ptr, 0)
	if err != nil {
		return fmt.Errorf("%w: fetching node %s for write: %v", errs.ErrStorage, ptr, err)
	}
	defer ref.Unlock()
	defer ref.Put()

	disk := onDiskNode{
		FormatVersion: versioning.GetCurrentVersion(resources.RT_BTREE_NODE),
		Magic:         node.Magic,
		IsLeaf:        node.IsLeaf,
		Version:       uint32(node.Version),
		Capacity:      node.Capacity,
		Entries:       node.Entries,
		Next:          node.Next,
	}
	encoded, err := msgpack.Marshal(&disk)
	if err != nil {
		return fmt.Errorf("%w: encoding node %s: %v", errs.ErrStorage, ptr, err)
	}

	buf := ref.Bytes()
	if len(encoded) > len(buf) {
		return fmt.Errorf("%w: encoded node %d bytes exceeds block capacity %d", errs.ErrInvariant, len(encoded), len(buf))
	}
	copy(buf, encoded)
	ref.SetUpToDate()
	ref.Dirty()
	return nil
}

func capacityFor(t btreetype.Type) int {
	// A conservative starting capacity; concrete Type implementations
	// drive actual fullness through NeedSplit, not this slice cap.
	return 64
}
