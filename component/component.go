package component

import (
	"fmt"

	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/errs"
	"github.com/kvladder/ladderstore/version"
)

func versionIDFromUint32(v uint32) version.ID { return version.ID(v) }

// AncestryTester is the narrow slice of version.Index the component
// package depends on, so it never needs the whole Version Index API.
type AncestryTester interface {
	IsAncestor(candidate, v version.ID) (bool, error)
}

// Descriptor is the durable record for one component tree (spec.md §6's
// COMPONENT_TREES store fields).
type Descriptor struct {
	Seq       uint64
	DAID      uint32
	Level     uint32
	BTreeType btreetype.Magic
	Dynamic   bool
	ItemCount uint64
	NodeCount uint64
	// FirstNode/LastNode are the leaf-chain endpoints, used for forward
	// enumeration. RootNode is the node Find descends from; for a
	// single-leaf tree all three coincide.
	FirstNode block.Ptr
	LastNode  block.Ptr
	RootNode  block.Ptr
}

// Tree is a Component Tree: identity Seq, a btree_type, a dynamic/immutable
// flag, and the disk-backed B-tree holding its (key, version, value-ref)
// entries.
type Tree struct {
	Descriptor
	btreeType btreetype.Type
	store     *NodeStore
	root      block.Ptr
}

// NewDynamic allocates a fresh level-0 dynamic CT with an empty leaf root.
func NewDynamic(seq uint64, daID uint32, t btreetype.Type, store *NodeStore) (*Tree, error) {
	ptr, _, err := store.Alloc(t, true)
	if err != nil {
		return nil, err
	}
	return &Tree{
		Descriptor: Descriptor{
			Seq:       seq,
			DAID:      daID,
			Level:     0,
			BTreeType: t.Magic(),
			Dynamic:   true,
			FirstNode: ptr,
			LastNode:  ptr,
			RootNode:  ptr,
			NodeCount: 1,
		},
		btreeType: t,
		store:     store,
		root:      ptr,
	}, nil
}

// Open wraps an existing descriptor as a Tree, for CTs loaded back from the
// metadata store.
func Open(d Descriptor, t btreetype.Type, store *NodeStore) *Tree {
	return &Tree{Descriptor: d, btreeType: t, store: store, root: d.RootNode}
}

// Root returns the tree's root block pointer.
func (c *Tree) Root() block.Ptr { return c.root }

// ItemCount returns the number of entries the tree holds, satisfying
// merge.RawSource for the Modlist Iterator.
func (c *Tree) ItemCount() uint64 { return c.Descriptor.ItemCount }

// NodeCount returns the number of nodes backing the tree.
func (c *Tree) NodeCount() uint64 { return c.Descriptor.NodeCount }

// Insert appends an entry to a dynamic CT's unsorted leaf chain. Only
// valid on dynamic (level-0) CTs; immutable CTs are produced solely by the
// merge engine (spec.md §4.3).
func (c *Tree) Insert(key []byte, v version.ID, valueRef []byte) error {
	if !c.Dynamic {
		return fmt.Errorf("%w: cannot insert into an immutable component tree", errs.ErrInvalidInput)
	}

	tail, err := c.store.Get(c.btreeType, c.LastNode)
	if err != nil {
		return err
	}

	if c.btreeType.NeedSplit(tail, 1) {
		newPtr, newNode, err := c.store.Alloc(c.btreeType, true)
		if err != nil {
			return err
		}
		tail.Next = newPtr
		if err := c.store.Put(c.LastNode, tail); err != nil {
			return err
		}
		c.LastNode = newPtr
		c.NodeCount++
		tail = newNode
	}

	c.btreeType.EntryAdd(tail, len(tail.Entries), btreetype.Entry{Key: key, Version: v, ValueRef: valueRef})
	if err := c.store.Put(c.LastNode, tail); err != nil {
		return err
	}
	c.ItemCount++
	return nil
}

// Find walks the tree from its root for (key, version), per spec.md §4.3:
// at an internal node, descend through the first slot whose key is ≥
// target and whose version is an ancestor of the query version; at a leaf,
// return the slot matching key whose version is the closest ancestor.
// Absence is reported with errs.ErrAbsent, never errs.ErrNotFound (that
// kind is reserved for control-path lookups).
func (c *Tree) Find(key []byte, v version.ID, vi AncestryTester) ([]byte, error) {
	if !c.FirstNode.IsValid() {
		return nil, errs.ErrAbsent
	}

	if c.Dynamic {
		return c.findDynamic(key, v, vi)
	}

	ptr := c.root
	for {
		node, err := c.store.Get(c.btreeType, ptr)
		if err != nil {
			return nil, err
		}

		if node.IsLeaf {
			for _, e := range node.Entries {
				if c.btreeType.KeyCompare(e.Key, key) != 0 {
					continue
				}
				ok, err := vi.IsAncestor(e.Version, v)
				if err != nil {
					return nil, err
				}
				if ok {
					return e.ValueRef, nil
				}
			}
			return nil, errs.ErrAbsent
		}

		next := block.Invalid
		for _, e := range node.Entries {
			if c.btreeType.KeyCompare(e.Key, key) < 0 {
				continue
			}
			ok, err := vi.IsAncestor(e.Version, v)
			if err != nil {
				return nil, err
			}
			if ok {
				next = e.Child
				break
			}
		}
		if !next.IsValid() {
			return nil, errs.ErrAbsent
		}
		ptr = next
	}
}

// findDynamic scans a dynamic CT's unsorted leaf chain end to end, since
// it carries no ordering guarantee (spec.md §4.3). Among matching entries
// whose version is an ancestor of v, it picks the most specific one: the
// candidate that is itself a descendant of every other candidate.
func (c *Tree) findDynamic(key []byte, v version.ID, vi AncestryTester) ([]byte, error) {
	var best *btreetype.Entry

	err := c.Enumerate(func(e btreetype.Entry) error {
		if c.btreeType.KeyCompare(e.Key, key) != 0 {
			return nil
		}
		ok, err := vi.IsAncestor(e.Version, v)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if best == nil {
			entry := e
			best = &entry
			return nil
		}
		bestIsAncestorOfE, err := vi.IsAncestor(best.Version, e.Version)
		if err != nil {
			return err
		}
		if bestIsAncestorOfE {
			entry := e
			best = &entry
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, errs.ErrAbsent
	}
	return best.ValueRef, nil
}

// Enumerate yields every (key, version, value-ref) in stored order: sorted
// composite order for immutable CTs, insertion order for dynamic ones.
// Matches spec.md §4.3's forward enumerator contract.
func (c *Tree) Enumerate(yield func(btreetype.Entry) error) error {
	ptr := c.FirstNode
	for ptr.IsValid() {
		node, err := c.store.Get(c.btreeType, ptr)
		if err != nil {
			return err
		}
		if node.IsLeaf {
			for _, e := range node.Entries {
				if err := yield(e); err != nil {
					return err
				}
			}
		}
		ptr = node.Next
	}
	return nil
}
