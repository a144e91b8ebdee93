package merge

import (
	"fmt"

	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/errs"
)

// Enumerable is the forward-enumerator contract a component tree exposes
// (spec.md §4.3): yield every entry in stored order.
type Enumerable interface {
	Enumerate(yield func(btreetype.Entry) error) error
}

// drainIterator adapts an Enumerable (an already-sorted immutable
// component tree) to the Iterator contract the Merged Iterator and Merge
// Engine consume, by draining it eagerly into memory once. This keeps
// the same budget class as the Modlist Iterator (whole-CT in memory)
// rather than threading a second, lazy leaf-chain walker through the
// merge path; see DESIGN.md for the tradeoff.
type drainIterator struct {
	entries []btreetype.Entry
	pos     int
}

// NewDrainIterator drains src's stored-order stream into a Iterator. Since
// src is already composite-sorted (an immutable CT's Enumerate), no
// re-sort is performed.
func NewDrainIterator(src Enumerable) (Iterator, error) {
	var entries []btreetype.Entry
	if err := src.Enumerate(func(e btreetype.Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return nil, err
	}
	return &drainIterator{entries: entries}, nil
}

func (d *drainIterator) HasNext() bool { return d.pos < len(d.entries) }

func (d *drainIterator) Next() (btreetype.Entry, error) {
	if d.pos >= len(d.entries) {
		return btreetype.Entry{}, fmt.Errorf("%w: drain iterator exhausted", errs.ErrInvalidInput)
	}
	e := d.entries[d.pos]
	d.pos++
	return e, nil
}

func (d *drainIterator) Close() error {
	d.entries = nil
	return nil
}
