// Package merge implements the Modlist Iterator, Merged Iterator, and
// Merge Engine of spec.md §4.4, §4.5, and §4.7.
package merge

import (
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/version"
)

// AncestryTester is the narrow slice of version.Index every component in
// this package needs.
type AncestryTester interface {
	IsAncestor(candidate, v version.ID) (bool, error)
}

// Iterator replaces the source's variadic (iter, has_next, next) triples
// with the capability abstraction spec.md §9 calls for: a single object
// with HasNext/Next/Close. The merged iterator takes a bounded array
// (≤10) of these.
type Iterator interface {
	HasNext() bool
	Next() (btreetype.Entry, error)
	Close() error
}

// compositeLess reports whether (ak,av) sorts strictly before (bk,bv)
// under the composite order of spec.md §3: keys ascending, and within
// equal keys, the strict descendant sorts first (newest-first). Entries
// at the same key whose versions are unrelated (neither an ancestor of
// the other — a data shape the core spec does not rule out for a dynamic
// CT fed by unrelated branches) fall back to a deterministic tie-break by
// raw version id, so the sort is always a total order even though it is
// not spec-mandated in that corner case.
func compositeLess(cmp btreetype.Type, vi AncestryTester, a, b btreetype.Entry) (bool, error) {
	if kc := cmp.KeyCompare(a.Key, b.Key); kc != 0 {
		return kc < 0, nil
	}
	if a.Version == b.Version {
		return false, nil
	}
	aDescendsB, err := vi.IsAncestor(b.Version, a.Version)
	if err != nil {
		return false, err
	}
	if aDescendsB {
		return true, nil
	}
	bDescendsA, err := vi.IsAncestor(a.Version, b.Version)
	if err != nil {
		return false, err
	}
	if bDescendsA {
		return false, nil
	}
	return a.Version < b.Version, nil
}
