package merge

import (
	"fmt"

	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/errs"
)

// maxMergeInputs is the bound spec.md §4.5 and §9 place on fan-in.
const maxMergeInputs = 10

// Merged is a k-way streaming merge over up to maxMergeInputs component
// iterators, emitting the globally smallest (key, version) under
// composite order on each step, with one cached lookahead slot per input
// (spec.md §4.5).
type Merged struct {
	t         btreetype.Type
	vi        AncestryTester
	inputs    []Iterator
	cache     []*btreetype.Entry
	completed []bool
	nonEmpty  int
	err       error
}

// NewMerged wraps inputs (at most maxMergeInputs) into a single ordered
// stream.
func NewMerged(t btreetype.Type, vi AncestryTester, inputs []Iterator) (*Merged, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: merged iterator needs at least one input", errs.ErrInvalidInput)
	}
	if len(inputs) > maxMergeInputs {
		return nil, fmt.Errorf("%w: %d merge inputs exceeds cap of %d", errs.ErrInvalidInput, len(inputs), maxMergeInputs)
	}

	m := &Merged{
		t:         t,
		vi:        vi,
		inputs:    inputs,
		cache:     make([]*btreetype.Entry, len(inputs)),
		completed: make([]bool, len(inputs)),
		nonEmpty:  len(inputs),
	}
	return m, nil
}

// refill tops up every empty cache slot belonging to a still-live input,
// marking inputs exhausted as they go dry.
func (m *Merged) refill() error {
	for i, in := range m.inputs {
		if m.completed[i] || m.cache[i] != nil {
			continue
		}
		if !in.HasNext() {
			m.completed[i] = true
			m.nonEmpty--
			continue
		}
		e, err := in.Next()
		if err != nil {
			return err
		}
		m.cache[i] = &e
	}
	return nil
}

// HasNext reports whether any live component may still produce an entry.
func (m *Merged) HasNext() bool {
	return m.err == nil && m.nonEmpty > 0
}

// Next refills empty caches, selects the globally smallest cached entry
// under composite order, and returns it, clearing that component's cache
// and marking the component completed if it has no further entries.
// Ties are impossible by construction (spec.md §4.5): exact duplicate
// (key, version) pairs across inputs are a data error, surfaced here as
// errs.ErrInvariant rather than silently picking one.
func (m *Merged) Next() (btreetype.Entry, error) {
	if m.err != nil {
		return btreetype.Entry{}, m.err
	}
	if err := m.refill(); err != nil {
		m.err = err
		return btreetype.Entry{}, err
	}

	minIdx := -1
	for i, ce := range m.cache {
		if m.completed[i] || ce == nil {
			continue
		}
		if minIdx == -1 {
			minIdx = i
			continue
		}
		less, err := compositeLess(m.t, m.vi, *ce, *m.cache[minIdx])
		if err != nil {
			m.err = err
			return btreetype.Entry{}, err
		}
		if less {
			minIdx = i
			continue
		}
		if !less && ce.Version == m.cache[minIdx].Version && m.t.KeyCompare(ce.Key, m.cache[minIdx].Key) == 0 {
			err := fmt.Errorf("%w: duplicate (key,version) across merge inputs", errs.ErrInvariant)
			m.err = err
			return btreetype.Entry{}, err
		}
	}

	if minIdx == -1 {
		return btreetype.Entry{}, fmt.Errorf("%w: merged iterator exhausted", errs.ErrInvalidInput)
	}

	result := *m.cache[minIdx]
	m.cache[minIdx] = nil
	if !m.inputs[minIdx].HasNext() {
		m.completed[minIdx] = true
		m.nonEmpty--
	}
	return result, nil
}

// Close releases every input iterator, collecting the first error.
func (m *Merged) Close() error {
	var first error
	for _, in := range m.inputs {
		if err := in.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
