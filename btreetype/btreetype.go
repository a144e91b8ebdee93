// Package btreetype decouples the merge engine and the iterators from the
// concrete encoding of B-tree node slots, matching spec.md §4.2's
// capability-table design: every node is touched only through a Type's
// methods.
package btreetype

import (
	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/version"
)

// Magic is the header sentinel stamped on every node of a given type.
type Magic uint32

// Entry is one (key, version, value-ref) slot, the shared currency between
// the component tree, the iterators, and the merge engine. ValueRef holds
// a leaf entry's value payload and Child holds an internal entry's child
// block pointer; IsLeaf on the owning node says which one is meaningful.
type Entry struct {
	Key      []byte
	Version  version.ID
	ValueRef []byte
	Child    block.Ptr
}

// Node is the in-memory form of one B-tree node: a header plus up to
// Capacity slots. Concrete layout/encoding belongs to the Type; Node only
// holds what every btree_type must agree on.
type Node struct {
	Magic    Magic
	IsLeaf   bool
	Version  version.ID // the node's dominant version, per spec.md §4.7
	Capacity int
	Entries  []Entry

	// Next chains leaf nodes in stored order: the raw append order for a
	// dynamic CT's unsorted leaf chain, and the sibling order for an
	// immutable CT's sorted leaf chain. Internal nodes leave it invalid.
	Next block.Ptr
}

// Type is the capability table a component tree is parameterized by
// (spec.md §4.2). key_compare must be a total order.
type Type interface {
	// NodeSizeBlocks is the node size in blocks for this type.
	NodeSizeBlocks() uint32

	Magic() Magic

	// KeyCompare is a total order on the key dimension.
	KeyCompare(a, b []byte) int

	// NeedSplit reports whether adding extraSlots more entries to node
	// would exceed its capacity.
	NeedSplit(node *Node, extraSlots int) bool

	// EntryAdd inserts an entry at index, shifting later entries right.
	EntryAdd(node *Node, index int, e Entry)

	// EntryGet returns the entry at index.
	EntryGet(node *Node, index int) Entry

	// EntriesDrop removes entries in [from, toInclusive].
	EntriesDrop(node *Node, from, toInclusive int)
}

// NewNode allocates an empty node of the given capacity.
func NewNode(t Type, isLeaf bool, capacity int) *Node {
	return &Node{
		Magic:    t.Magic(),
		IsLeaf:   isLeaf,
		Capacity: capacity,
		Entries:  make([]Entry, 0, capacity),
	}
}
