package merge

import (
	"fmt"
	"math"

	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/errs"
)

// RawSource is the raw, unordered enumerator a Modlist Iterator sorts. A
// dynamic *component.Tree satisfies it directly through its ItemCount,
// NodeCount, and Enumerate methods.
type RawSource interface {
	ItemCount() uint64
	NodeCount() uint64
	Enumerate(yield func(btreetype.Entry) error) error
}

// Modlist converts an unsorted dynamic component tree into a
// composite-sorted lazy stream, per spec.md §4.4: drain the raw
// enumerator into an in-memory node buffer, then heapsort a flat index
// array over it.
type Modlist struct {
	entries []btreetype.Entry // flattened in packed (node,slot) order
	order   []int             // index array, heapsorted ascending by composite order
	cursor  int
	err     error
}

// maxModlistItems bounds how many entries a Modlist Iterator will
// attempt to buffer in memory; an item_count beyond this is treated as an
// OutOfMemory condition rather than risking an unbounded allocation.
const maxModlistItems = 64 << 20

// NewModlist drains src and builds the sorted index, per the init steps
// of spec.md §4.4. Any allocation failure (here: an item_count beyond
// maxModlistItems) aborts with errs.ErrOutOfMemory; the iterator is then
// not usable.
func NewModlist(src RawSource, t btreetype.Type, vi AncestryTester) (*Modlist, error) {
	itemCount := src.ItemCount()
	if itemCount > maxModlistItems {
		return nil, fmt.Errorf("%w: modlist item_count %d exceeds buffer bound", errs.ErrOutOfMemory, itemCount)
	}

	// ceil(1.1 * node_count) is the source's buffer sizing; in Go this
	// only drives the initial capacity hint, since append grows safely.
	nodeCapHint := int(math.Ceil(1.1 * float64(src.NodeCount()+1)))
	entries := make([]btreetype.Entry, 0, nodeCapHint*8)

	current := btreetype.NewNode(t, true, 0)
	if err := src.Enumerate(func(e btreetype.Entry) error {
		if t.NeedSplit(current, 1) {
			current = btreetype.NewNode(t, true, 0)
		}
		t.EntryAdd(current, len(current.Entries), e)
		entries = append(entries, e)
		return nil
	}); err != nil {
		return nil, err
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}

	m := &Modlist{entries: entries, order: order}
	if err := m.heapsort(t, vi); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Modlist) less(t btreetype.Type, vi AncestryTester, i, j int) (bool, error) {
	return compositeLess(t, vi, m.entries[m.order[i]], m.entries[m.order[j]])
}

// heapsort builds a max-heap over the composite order, then repeatedly
// swaps the root to the end and sifts down, leaving order ascending.
func (m *Modlist) heapsort(t btreetype.Type, vi AncestryTester) error {
	n := len(m.order)

	siftDown := func(root, size int) error {
		for {
			largest := root
			l, r := 2*root+1, 2*root+2
			if l < size {
				less, err := m.less(t, vi, largest, l)
				if err != nil {
					return err
				}
				if less {
					largest = l
				}
			}
			if r < size {
				less, err := m.less(t, vi, largest, r)
				if err != nil {
					return err
				}
				if less {
					largest = r
				}
			}
			if largest == root {
				return nil
			}
			m.order[root], m.order[largest] = m.order[largest], m.order[root]
			root = largest
		}
	}

	for start := n/2 - 1; start >= 0; start-- {
		if err := siftDown(start, n); err != nil {
			return err
		}
	}
	for end := n - 1; end > 0; end-- {
		m.order[0], m.order[end] = m.order[end], m.order[0]
		if err := siftDown(0, end); err != nil {
			return err
		}
	}
	return nil
}

func (m *Modlist) HasNext() bool {
	return m.err == nil && m.cursor < len(m.order)
}

func (m *Modlist) Next() (btreetype.Entry, error) {
	if m.err != nil {
		return btreetype.Entry{}, m.err
	}
	if m.cursor >= len(m.order) {
		return btreetype.Entry{}, fmt.Errorf("%w: modlist iterator exhausted", errs.ErrInvalidInput)
	}
	e := m.entries[m.order[m.cursor]]
	m.cursor++
	return e, nil
}

// Close releases the in-memory buffers. Safe to call multiple times.
func (m *Modlist) Close() error {
	m.entries = nil
	m.order = nil
	return nil
}
