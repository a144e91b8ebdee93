// Package leafcodec provides the concrete btreetype.Type that spec.md §1
// excludes from the core: a (key []byte, value []byte) leaf encoding,
// node-size bound by raw key+value byte length rather than a fixed slot
// count, grounded in the teacher's kloset/btree.Node msgpack layout and
// its order-bound NeedSplit check.
package leafcodec

import (
	"bytes"

	"github.com/kvladder/ladderstore/btreetype"
)

// Magic is the type tag this codec stamps on every node it writes.
const Magic btreetype.Magic = 0x4C43 // "LC"

// Type is a production btreetype.Type over arbitrary byte-string keys and
// values, splitting a node once its encoded entries would exceed
// budgetBytes (approximating the on-disk block budget, since the exact
// msgpack overhead per entry is the component store's concern, not this
// type's).
type Type struct {
	btreetype.BaseOps

	nodeSizeBlocks uint32
	blockSizeBytes uint32
	budgetBytes    int
}

// New builds a Type whose nodes occupy nodeSizeBlocks blocks of
// blockSizeBytes each, matching config.Config's NodeSizeBlocks/BlockSizeBytes.
func New(nodeSizeBlocks, blockSizeBytes uint32) Type {
	budget := int(nodeSizeBlocks*blockSizeBytes) - nodeHeaderOverhead
	if budget < 0 {
		budget = 0
	}
	return Type{nodeSizeBlocks: nodeSizeBlocks, blockSizeBytes: blockSizeBytes, budgetBytes: budget}
}

// nodeHeaderOverhead is a conservative estimate of the fixed msgpack
// header/envelope bytes component.onDiskNode spends per node, left as
// slack so NeedSplit never lets a node's encoding exceed its block budget.
const nodeHeaderOverhead = 128

// perEntryOverhead estimates msgpack framing bytes per entry beyond the
// raw key/value bytes (map keys, version field, child pointer fields).
const perEntryOverhead = 48

func (t Type) NodeSizeBlocks() uint32 { return t.nodeSizeBlocks }

func (t Type) Magic() btreetype.Magic { return Magic }

func (t Type) KeyCompare(a, b []byte) int { return bytes.Compare(a, b) }

// NeedSplit reports whether node's current entries, plus extraSlots more
// average-sized entries, would exceed the type's byte budget for a block.
// With no entries yet, extraSlots alone never forces a split: the first
// entry placed always fits by construction (spec.md §4.7 Case A's
// unconditional first-entry placement).
func (t Type) NeedSplit(node *btreetype.Node, extraSlots int) bool {
	if len(node.Entries) == 0 {
		return false
	}
	size := t.encodedSize(node)
	if extraSlots > 0 {
		size += (size / len(node.Entries)) * extraSlots
	}
	return size > t.budgetBytes
}

func (t Type) encodedSize(node *btreetype.Node) int {
	total := 0
	for _, e := range node.Entries {
		total += len(e.Key) + len(e.ValueRef) + perEntryOverhead
	}
	return total
}
