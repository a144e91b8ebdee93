// Package version implements the Version Index: the authoritative,
// process-wide store of the version forest, its DFS open/close numbering,
// and the O(1) ancestry test derived from that numbering.
package version

import (
	"fmt"
	"sync"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/errs"
	"github.com/kvladder/ladderstore/logging"
)

// ID identifies a version. The root of every version forest is ID 0.
type ID uint32

const Root ID = 0

// entry is one node of the version forest, held in an arena keyed by ID so
// first_child/next_sibling/parent are plain IDs rather than pointers.
type entry struct {
	id       ID
	parent   ID
	hasChild bool
	// parented becomes true once the parenting pass has linked this
	// entry into its parent's child list.
	parented bool

	firstChild  ID
	hasFirst    bool
	nextSibling ID
	hasNext     bool

	oOrder uint64
	rOrder uint64
	// numbered becomes true once the DFS numbering pass has visited this
	// entry. Before that, oOrder/rOrder are meaningless.
	numbered bool

	rootBlock block.Ptr
	size      uint64

	mu sync.RWMutex
}

// Index is the Version Index: a single process-wide service owning the
// version forest. One mutex protects the hash table and the pending
// (un-parented) list, matching the source's single-lock design (spec §5).
type Index struct {
	mu       sync.Mutex
	versions map[ID]*entry
	pending  []ID // versions added but not yet linked into the forest
	log      *logging.Logger
}

// New returns an empty Version Index with the root version (id 0) inserted
// eagerly and fully initialized, as spec.md §4.1 requires.
func New(log *logging.Logger) *Index {
	idx := &Index{
		versions: make(map[ID]*entry),
		log:      log,
	}
	idx.versions[Root] = &entry{id: Root, parented: true}
	return idx
}

// Add inserts a deferred-initialization record for version v, child of
// parent. The root version must never be re-added.
func (idx *Index) Add(v, parent ID, rootBlock block.Ptr, size uint64) error {
	if v == Root {
		return fmt.Errorf("%w: cannot re-add root version", errs.ErrInvalidInput)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.versions[v]; exists {
		return fmt.Errorf("%w: version %d already added", errs.ErrInvalidInput, v)
	}

	idx.versions[v] = &entry{
		id:        v,
		parent:    parent,
		rootBlock: rootBlock,
		size:      size,
	}
	idx.pending = append(idx.pending, v)
	return nil
}

// Process turns the flat set of added versions into a forest with DFS
// numbering. After a successful Process every version is initialized and
// ancestry can be tested in O(1).
func (idx *Index) Process() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.parentingPass(); err != nil {
		return err
	}
	idx.numberingPass()
	idx.pending = nil
	return nil
}

// parentingPass links every pending version into its parent's child list,
// using the head-reinsertion walk from castle_versions_process: pop a
// version, and if its parent isn't linked yet, push the version back and
// process the parent next. Each pending version is popped a bounded number
// of times; linking a child appends it at the tail of its parent's sibling
// list, so siblings keep the order in which they were added.
func (idx *Index) parentingPass() error {
	stack := make([]ID, 0, len(idx.pending))
	for i := len(idx.pending) - 1; i >= 0; i-- {
		stack = append(stack, idx.pending[i])
	}

	maxIterations := 4*len(idx.pending) + 16
	iterations := 0

	for len(stack) > 0 {
		iterations++
		if iterations > maxIterations {
			return fmt.Errorf("%w: version parenting pass did not terminate (cycle?)", errs.ErrInvariant)
		}

		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		ev := idx.versions[v]
		if ev.parented {
			continue
		}

		ep, ok := idx.versions[ev.parent]
		if !ok {
			return fmt.Errorf("%w: version %d has unknown parent %d", errs.ErrInvalidInput, v, ev.parent)
		}
		if !ep.parented {
			stack = append(stack, v)
			stack = append(stack, ev.parent)
			continue
		}

		if !ep.hasFirst {
			ep.firstChild = v
			ep.hasFirst = true
		} else {
			last := idx.versions[ep.firstChild]
			for last.hasNext {
				last = idx.versions[last.nextSibling]
			}
			last.nextSibling = v
			last.hasNext = true
		}
		ev.parented = true
	}
	return nil
}

// numberingPass runs the non-recursive DFS numbering walk from the root,
// mirroring castle_versions_process exactly: a cursor and a direction
// flag, preferring first-child then next-sibling while going down, and
// next-sibling then parent while coming back up.
func (idx *Index) numberingPass() {
	root := idx.versions[Root]

	var id uint64
	down := true
	cur := root

	for cur != nil {
		var next *entry
		if down {
			id++
			cur.oOrder = id
			if cur.hasFirst {
				next = idx.versions[cur.firstChild]
			} else {
				cur.rOrder = cur.oOrder
			}
		} else {
			cur.rOrder = id
		}
		cur.numbered = true

		down = true
		if next == nil && cur.hasNext {
			next = idx.versions[cur.nextSibling]
		}
		if next == nil && cur.id != Root {
			next = idx.versions[cur.parent]
			down = false
		}
		cur = next
	}
}

// SnapshotGet returns the routing root and size recorded for version v.
func (idx *Index) SnapshotGet(v ID) (block.Ptr, uint64, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	ev, ok := idx.versions[v]
	if !ok {
		return block.Invalid, 0, fmt.Errorf("%w: version %d", errs.ErrNotFound, v)
	}
	ev.mu.RLock()
	defer ev.mu.RUnlock()
	return ev.rootBlock, ev.size, nil
}

// IsAncestor reports whether candidate is an ancestor of (or equal to)
// version, in O(1), using the DFS numbering: candidate is an ancestor of
// version iff version.oOrder falls within candidate's [oOrder, rOrder].
func (idx *Index) IsAncestor(candidate, v ID) (bool, error) {
	idx.mu.Lock()
	ec, okc := idx.versions[candidate]
	ev, okv := idx.versions[v]
	idx.mu.Unlock()

	if !okc || !okv {
		return false, fmt.Errorf("%w: unknown version in ancestry test", errs.ErrInvariant)
	}
	if !ec.numbered || !ev.numbered {
		return false, fmt.Errorf("%w: ancestry test before Process()", errs.ErrInvariant)
	}

	return ev.oOrder >= ec.oOrder && ev.oOrder <= ec.rOrder, nil
}

// RootUpdate replaces version v's routing root; a doubling array calls it
// when it is created and each time it installs a fresh level-0 CT. The
// caller must already serialize concurrent updates to the same version;
// the lock here only protects readers of SnapshotGet from a torn update.
func (idx *Index) RootUpdate(v ID, rootBlock block.Ptr, size uint64) error {
	idx.mu.Lock()
	ev, ok := idx.versions[v]
	idx.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: version %d", errs.ErrNotFound, v)
	}

	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.rootBlock = rootBlock
	ev.size = size
	if idx.log != nil {
		idx.log.Trace("version", "root_update version=%d block=%s size=%d", v, rootBlock, size)
	}
	return nil
}
