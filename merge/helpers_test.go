package merge

import (
	"bytes"

	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/version"
)

// sliceIterator is a static Iterator test double over a pre-built slice.
type sliceIterator struct {
	entries []btreetype.Entry
	pos     int
	closed  bool
}

func (s *sliceIterator) HasNext() bool { return s.pos < len(s.entries) }

func (s *sliceIterator) Next() (btreetype.Entry, error) {
	e := s.entries[s.pos]
	s.pos++
	return e, nil
}

func (s *sliceIterator) Close() error {
	s.closed = true
	return nil
}

// fakeAncestry is an explicit parent-map AncestryTester test double.
type fakeAncestry struct {
	ancestorOf map[version.ID]map[version.ID]bool
}

func (f fakeAncestry) IsAncestor(candidate, v version.ID) (bool, error) {
	if candidate == v {
		return true, nil
	}
	return f.ancestorOf[v][candidate], nil
}

type bytesType struct {
	btreetype.BaseOps
	cap int
}

func (bytesType) NodeSizeBlocks() uint32     { return 1 }
func (bytesType) Magic() btreetype.Magic     { return 0xB7 }
func (bytesType) KeyCompare(a, b []byte) int { return bytes.Compare(a, b) }
func (t bytesType) NeedSplit(n *btreetype.Node, extra int) bool {
	return len(n.Entries)+extra > t.cap
}

// rawEntries is a merge.RawSource test double over a fixed entry slice,
// for exercising the Modlist Iterator without a real component.Tree.
type rawEntries struct {
	entries   []btreetype.Entry
	nodeCount uint64
}

func (r rawEntries) ItemCount() uint64 { return uint64(len(r.entries)) }
func (r rawEntries) NodeCount() uint64 { return r.nodeCount }

func (r rawEntries) Enumerate(yield func(btreetype.Entry) error) error {
	for _, e := range r.entries {
		if err := yield(e); err != nil {
			return err
		}
	}
	return nil
}
