package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/component"
	"github.com/kvladder/ladderstore/version"
)

// TestPropertyCompositeOrderMonotonic is spec.md §8 property 3: the
// engine's output leaf chain is strictly increasing in composite
// (key, descendant-first version) order, for any interleaving of two
// already-sorted input streams sharing some keys across versions.
func TestPropertyCompositeOrderMonotonic(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 2}
	ancestry := fakeAncestry{ancestorOf: map[version.ID]map[version.ID]bool{
		20: {10: true},
		30: {10: true, 20: true},
	}}

	a := &sliceIterator{entries: []btreetype.Entry{
		{Key: []byte{1}, Version: 10, ValueRef: []byte("a1")},
		{Key: []byte{2}, Version: 30, ValueRef: []byte("a2")},
		{Key: []byte{3}, Version: 10, ValueRef: []byte("a3")},
	}}
	b := &sliceIterator{entries: []btreetype.Entry{
		{Key: []byte{1}, Version: 30, ValueRef: []byte("b1")},
		{Key: []byte{2}, Version: 20, ValueRef: []byte("b2")},
		{Key: []byte{4}, Version: 10, ValueRef: []byte("b4")},
	}}

	merged, err := NewMerged(typ, ancestry, []Iterator{a, b})
	require.NoError(t, err)

	eng := NewEngine(typ, ancestry, store, 8)
	desc, err := eng.Run(merged, 1, 1, 1)
	require.NoError(t, err)

	entries := leafEntries(t, store, typ, desc.FirstNode)
	require.Len(t, entries, 6)

	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		cmp := typ.KeyCompare(prev.Key, cur.Key)
		require.LessOrEqualf(t, cmp, 0, "entries out of key order at %d: %+v -> %+v", i, prev, cur)
		if cmp == 0 {
			anc, err := ancestry.IsAncestor(cur.Version, prev.Version)
			require.NoError(t, err)
			require.Truef(t, prev.Version == cur.Version || anc,
				"same-key run not descendant-first at %d: %+v -> %+v", i, prev, cur)
		}
	}
}

// TestPropertyDisjointKeysSortMerge is spec.md §8 property 4: merging two
// component trees with wholly disjoint key sets must equal the plain
// sort-merge of their entries, regardless of ancestry.
func TestPropertyDisjointKeysSortMerge(t *testing.T) {
	cache := newMemCache()
	store := &component.NodeStore{Cache: cache, Free: cache}
	typ := bytesType{cap: 4}
	ancestry := fakeAncestry{}

	a := &sliceIterator{entries: []btreetype.Entry{
		{Key: []byte{1}, Version: 1, ValueRef: []byte("a1")},
		{Key: []byte{3}, Version: 1, ValueRef: []byte("a3")},
		{Key: []byte{5}, Version: 1, ValueRef: []byte("a5")},
	}}
	b := &sliceIterator{entries: []btreetype.Entry{
		{Key: []byte{2}, Version: 1, ValueRef: []byte("b2")},
		{Key: []byte{4}, Version: 1, ValueRef: []byte("b4")},
		{Key: []byte{6}, Version: 1, ValueRef: []byte("b6")},
	}}

	merged, err := NewMerged(typ, ancestry, []Iterator{a, b})
	require.NoError(t, err)

	eng := NewEngine(typ, ancestry, store, 8)
	desc, err := eng.Run(merged, 2, 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 6, desc.ItemCount)

	entries := leafEntries(t, store, typ, desc.FirstNode)
	require.Len(t, entries, 6)
	wantKeys := []byte{1, 2, 3, 4, 5, 6}
	for i, e := range entries {
		require.Lenf(t, e.Key, 1, "entry %d key", i)
		require.Equalf(t, wantKeys[i], e.Key[0], "entry %d out of sort-merge order", i)
	}
}
