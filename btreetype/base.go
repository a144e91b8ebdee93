package btreetype

// BaseOps implements the slot-shuffling members of Type (EntryAdd,
// EntryGet, EntriesDrop) generically over Node.Entries, since every
// concrete btree_type agrees on a flat in-order slot array even though key
// and value encoding differ. Concrete types embed BaseOps and only
// implement NodeSizeBlocks, Magic, KeyCompare, and NeedSplit.
type BaseOps struct{}

func (BaseOps) EntryAdd(node *Node, index int, e Entry) {
	node.Entries = append(node.Entries, Entry{})
	copy(node.Entries[index+1:], node.Entries[index:])
	node.Entries[index] = e
}

func (BaseOps) EntryGet(node *Node, index int) Entry {
	return node.Entries[index]
}

func (BaseOps) EntriesDrop(node *Node, from, toInclusive int) {
	node.Entries = append(node.Entries[:from], node.Entries[toInclusive+1:]...)
}
