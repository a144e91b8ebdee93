package merge

import (
	"fmt"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/component"
	"github.com/kvladder/ladderstore/errs"
	"github.com/kvladder/ladderstore/version"
)

// levelState is the per-depth book-keeping the Merge Engine carries while
// it streams entries into the output B-tree, per spec.md §4.7.
type levelState struct {
	nodeBlock    block.Ptr
	node         *btreetype.Node
	lastKey      []byte
	validEndIdx  int // -1: no valid node-boundary cut point yet
	validVersion version.ID
}

// Engine runs the Merge Engine: it consumes a single ordered input stream
// (a Merged Iterator over ≤10 component trees, or a Modlist Iterator for a
// degenerate one-input "merge") and produces one new, immutable, sorted
// component tree whose node boundaries never split a key's version chain
// across two nodes (spec.md §4.7's Case A/B/C/D cut rule).
type Engine struct {
	t     btreetype.Type
	vi    AncestryTester
	store *component.NodeStore

	levels []levelState

	allocated []block.Ptr // every block allocated this run, for failure-path release

	itemCount uint64
	leafFirst block.Ptr
	leafLast  block.Ptr
	rootBlock block.Ptr
}

// NewEngine builds a Merge Engine bounded to maxDepth B-tree levels
// (spec.md's MAX_BTREE_DEPTH configuration knob, config.Config.MaxBTreeDepth).
func NewEngine(t btreetype.Type, vi AncestryTester, store *component.NodeStore, maxDepth int) *Engine {
	levels := make([]levelState, maxDepth)
	for i := range levels {
		levels[i].validEndIdx = -1
	}
	return &Engine{t: t, vi: vi, store: store, levels: levels}
}

// Run drains src to exhaustion, builds the merged tree, and returns its
// descriptor. On any error the engine releases every block it allocated
// this run and leaves the input component trees untouched; src is always
// closed, on every exit path (spec.md §9's iterator disposal question).
func (g *Engine) Run(src Iterator, seq uint64, daID uint32, level uint32) (*component.Descriptor, error) {
	defer src.Close()

	for src.HasNext() {
		e, err := src.Next()
		if err != nil {
			g.abort()
			return nil, err
		}
		if err := g.insertAt(0, e); err != nil {
			g.abort()
			return nil, err
		}
	}

	if err := g.flush(); err != nil {
		g.abort()
		return nil, err
	}

	return &component.Descriptor{
		Seq:       seq,
		DAID:      daID,
		Level:     level,
		BTreeType: g.t.Magic(),
		Dynamic:   false,
		ItemCount: g.itemCount,
		NodeCount: uint64(len(g.allocated)),
		FirstNode: g.leafFirst,
		LastNode:  g.leafLast,
		RootNode:  g.rootBlock,
	}, nil
}

// abort releases every block this run allocated. Best-effort: a release
// failure is not reported, since the caller already has a primary error
// to surface and a leaked free-space block is recoverable, a returned
// wrong descriptor is not.
func (g *Engine) abort() {
	for _, ptr := range g.allocated {
		_ = g.store.Free.Release(ptr)
	}
	g.allocated = nil
}

// insertAt appends e to the in-progress node at depth, applying the
// node-boundary cut rule, then completes the node immediately if it is
// now full. Depth 0 holds leaf entries (key, version, value-ref); depth >
// 0 holds internal pivots (key, version, child) propagated up from the
// level below by completeNode.
func (g *Engine) insertAt(depth int, e btreetype.Entry) error {
	if depth >= len(g.levels) {
		return fmt.Errorf("%w: merge output exceeds configured max b-tree depth %d", errs.ErrInvariant, len(g.levels))
	}
	ls := &g.levels[depth]
	isLeaf := depth == 0

	if ls.node == nil {
		ptr, node, err := g.store.Alloc(g.t, isLeaf)
		if err != nil {
			return err
		}
		ls.nodeBlock = ptr
		ls.node = node
		ls.validEndIdx = -1
		ls.lastKey = nil
		g.allocated = append(g.allocated, ptr)

		if isLeaf {
			if !g.leafFirst.IsValid() {
				g.leafFirst = ptr
			} else if g.leafLast.IsValid() {
				prev, err := g.store.Get(g.t, g.leafLast)
				if err != nil {
					return err
				}
				prev.Next = ptr
				if err := g.store.Put(g.leafLast, prev); err != nil {
					return err
				}
			}
			g.leafLast = ptr
		}
	}

	idx := len(ls.node.Entries)
	g.t.EntryAdd(ls.node, idx, e)

	switch {
	case idx == 0:
		// Case A: the node's first entry is unconditionally a valid cut
		// point.
		ls.validEndIdx = 0
		ls.validVersion = e.Version
		ls.lastKey = e.Key
	default:
		cmp := g.t.KeyCompare(e.Key, ls.lastKey)
		switch {
		case cmp < 0:
			return fmt.Errorf("%w: merge input key order regressed at depth %d", errs.ErrInvariant, depth)
		case cmp > 0:
			// Case B: a new key starts; the previous entry's successor
			// boundary is valid regardless of version, since it also ends
			// the old key's version chain.
			ls.validEndIdx = idx
			ls.validVersion = version.Root
			ls.lastKey = e.Key
		default:
			// Same key as last_key: only a strictly more ancestral version
			// extends the valid cut point (Case C); anything else (a
			// sibling or descendant branch of valid_version) must not be
			// separated from it, so the boundary does not move (Case D).
			if e.Version != ls.validVersion {
				moreAncestral, err := g.vi.IsAncestor(e.Version, ls.validVersion)
				if err != nil {
					return err
				}
				if moreAncestral {
					ls.validEndIdx = idx
					ls.validVersion = e.Version
				}
			}
		}
	}

	if isLeaf {
		g.itemCount++
	}

	if g.t.NeedSplit(ls.node, 0) {
		return g.completeNode(depth)
	}
	return nil
}

// completeNode finalizes the in-progress node at depth once it is full:
// stamps its version, spills every entry after valid_end_idx into a
// fresh sibling, propagates a pivot (last_key, node.version, this block)
// to depth+1, then drains the spilled entries back in at depth through
// the ordinary insertion path.
func (g *Engine) completeNode(depth int) error {
	ls := &g.levels[depth]
	node := ls.node

	if ls.validEndIdx < 0 {
		return fmt.Errorf("%w: node at depth %d has no valid boundary to cut at", errs.ErrInvariant, depth)
	}

	node.Version = ls.validVersion

	var spill []btreetype.Entry
	if ls.validEndIdx+1 <= len(node.Entries)-1 {
		spill = append(spill, node.Entries[ls.validEndIdx+1:]...)
		g.t.EntriesDrop(node, ls.validEndIdx+1, len(node.Entries)-1)
		if depth == 0 {
			// The spilled leaf entries are counted again when reinserted.
			g.itemCount -= uint64(len(spill))
		}
	}

	pivotKey := node.Entries[ls.validEndIdx].Key
	pivotVersion := node.Version
	pivotBlock := ls.nodeBlock

	if err := g.store.Put(ls.nodeBlock, node); err != nil {
		return err
	}

	ls.node = nil
	ls.lastKey = nil
	ls.validEndIdx = -1

	if err := g.insertAt(depth+1, btreetype.Entry{Key: pivotKey, Version: pivotVersion, Child: pivotBlock}); err != nil {
		return err
	}

	for _, be := range spill {
		if err := g.insertAt(depth, be); err != nil {
			return err
		}
	}
	return nil
}

// flush force-completes every depth that still holds in-progress entries
// once the input stream is exhausted, cascading bottom-up until it finds
// the depth whose parent was never touched: that depth's final
// in-progress node is the merged tree's root, left un-truncated (spec.md
// §4.7's end-of-stream flush / E6's single-node root case).
func (g *Engine) flush() error {
	if g.itemCount == 0 {
		// Nothing was ever inserted: the merge produced an empty tree.
		return nil
	}

	for depth := 0; depth < len(g.levels); depth++ {
		for g.levels[depth].node != nil && len(g.levels[depth].node.Entries) > 0 {
			parent := depth + 1
			if parent >= len(g.levels) || g.levels[parent].node == nil {
				if err := g.store.Put(g.levels[depth].nodeBlock, g.levels[depth].node); err != nil {
					return err
				}
				g.rootBlock = g.levels[depth].nodeBlock
				return nil
			}
			if err := g.completeNode(depth); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%w: merge produced a tree deeper than the configured max b-tree depth", errs.ErrInvariant)
}
