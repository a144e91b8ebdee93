package metastore

import (
	"github.com/kvladder/ladderstore/block"
	"github.com/kvladder/ladderstore/btreetype"
	"github.com/kvladder/ladderstore/resources"
	"github.com/kvladder/ladderstore/versioning"
)

const (
	daRecordVersion = "1.0.0"
	ctRecordVersion = "1.0.0"
)

func init() {
	versioning.Register(resources.RT_DA, versioning.FromString(daRecordVersion))
	versioning.Register(resources.RT_COMPONENT_TREE, versioning.FromString(ctRecordVersion))
}

// DADescriptor is the DOUBLE_ARRAYS store's record shape (spec.md §6):
// id and the version this DA's root currently addresses.
type DADescriptor struct {
	FormatVersion versioning.Version `msgpack:"format_version"`
	ID            uint32             `msgpack:"id"`
	RootVersion   uint32             `msgpack:"root_version"`
}

// CTDescriptor is the COMPONENT_TREES store's record shape (spec.md §6).
type CTDescriptor struct {
	FormatVersion versioning.Version `msgpack:"format_version"`
	DAID          uint32             `msgpack:"da_id"`
	Seq           uint64             `msgpack:"seq"`
	Level         uint32             `msgpack:"level"`
	BTreeType     btreetype.Magic    `msgpack:"btree_type"`
	Dynamic       bool               `msgpack:"dynamic"`
	ItemCount     uint64             `msgpack:"item_count"`
	NodeCount     uint64             `msgpack:"node_count"`
	FirstNode     block.Ptr          `msgpack:"first_node"`
	LastNode      block.Ptr          `msgpack:"last_node"`
	RootNode      block.Ptr          `msgpack:"root_node"`
}

// DoubleArraysStoreID and ComponentTreesStoreID name the two metadata
// stores spec.md §6 requires.
const (
	DoubleArraysStoreID  = "DOUBLE_ARRAYS"
	ComponentTreesStoreID = "COMPONENT_TREES"
)
