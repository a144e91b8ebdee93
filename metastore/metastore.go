// Package metastore implements the metadata store collaborator of
// spec.md §6: a pebble-backed (store_id, stable key) -> fixed-shape record
// map providing open/init/iterate/insert/update, for the two stores
// DOUBLE_ARRAYS and COMPONENT_TREES. Grounded in the teacher's
// caching/pebble.go PebbleCache and repository/state/state.go's prefixed
// key layout; records are msgpack-encoded the way the teacher encodes
// storage.Configuration and btree.Node.
package metastore

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/pebble/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/kvladder/ladderstore/errs"
)

// Key is the stable key a store hands back from Insert, to be cached by
// the caller's in-memory descriptor so later updates never re-insert
// (spec.md §6).
type Key uint64

// Store is one open (or freshly initialized) metadata store, keyed by
// storeID within a shared pebble database.
type Store struct {
	db      *pebble.DB
	storeID string
	nextKey uint64
}

// DB owns the shared pebble handle backing every Store opened from it,
// mirroring the teacher's single PebbleCache per cache directory.
type DB struct {
	db *pebble.DB
}

// Open opens (creating if absent) the pebble database at dir.
func Open(dir string) (*DB, error) {
	db, err := pebble.Open(dir, &pebble.Options{MemTableSize: 64 << 20})
	if err != nil {
		return nil, fmt.Errorf("%w: opening metastore: %v", errs.ErrStorage, err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error { return d.db.Close() }

// OpenStore opens an existing store_id, scanning its highest key so
// further Insert calls keep allocating monotonically.
func (d *DB) OpenStore(storeID string) (*Store, error) {
	s := &Store{db: d.db, storeID: storeID}
	if err := s.scanHighWater(); err != nil {
		return nil, err
	}
	return s, nil
}

// InitStore creates a fresh store_id, discarding anything previously
// stored under it.
func (d *DB) InitStore(storeID string) (*Store, error) {
	prefix := []byte(storeID + ":")
	iter, err := d.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, fmt.Errorf("%w: init store %s: %v", errs.ErrStorage, storeID, err)
	}
	defer iter.Close()

	batch := d.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return nil, fmt.Errorf("%w: init store %s: %v", errs.ErrStorage, storeID, err)
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return nil, fmt.Errorf("%w: init store %s: %v", errs.ErrStorage, storeID, err)
	}

	return &Store{db: d.db, storeID: storeID}, nil
}

func (s *Store) rawKey(k Key) []byte {
	buf := make([]byte, len(s.storeID)+1+8)
	n := copy(buf, s.storeID)
	buf[n] = ':'
	binary.BigEndian.PutUint64(buf[n+1:], uint64(k))
	return buf
}

func (s *Store) scanHighWater() error {
	prefix := []byte(s.storeID + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return fmt.Errorf("%w: scanning store %s: %v", errs.ErrStorage, s.storeID, err)
	}
	defer iter.Close()

	for iter.Last(); iter.Valid(); iter.Prev() {
		key := iter.Key()
		k := binary.BigEndian.Uint64(key[len(prefix):])
		if k+1 > s.nextKey {
			s.nextKey = k + 1
		}
		break
	}
	return nil
}

// Insert encodes record and stores it under a freshly allocated key,
// returning that key for the caller to cache.
func (s *Store) Insert(record any) (Key, error) {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return 0, fmt.Errorf("%w: encoding record for store %s: %v", errs.ErrStorage, s.storeID, err)
	}

	k := Key(s.nextKey)
	s.nextKey++

	if err := s.db.Set(s.rawKey(k), data, pebble.NoSync); err != nil {
		return 0, fmt.Errorf("%w: inserting into store %s: %v", errs.ErrStorage, s.storeID, err)
	}
	return k, nil
}

// Update overwrites the record stored under key.
func (s *Store) Update(key Key, record any) error {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encoding record for store %s: %v", errs.ErrStorage, s.storeID, err)
	}
	if err := s.db.Set(s.rawKey(key), data, pebble.NoSync); err != nil {
		return fmt.Errorf("%w: updating store %s key %d: %v", errs.ErrStorage, s.storeID, key, err)
	}
	return nil
}

// Get decodes the record stored under key into out.
func (s *Store) Get(key Key, out any) error {
	data, closer, err := s.db.Get(s.rawKey(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return fmt.Errorf("%w: store %s key %d", errs.ErrNotFound, s.storeID, key)
		}
		return fmt.Errorf("%w: reading store %s key %d: %v", errs.ErrStorage, s.storeID, key, err)
	}
	defer closer.Close()
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decoding store %s key %d: %v", errs.ErrStorage, s.storeID, key, err)
	}
	return nil
}

// Iterate calls yield with every (key, decoded record) pair currently in
// the store, in key order. decode must point new(T) for the record type T
// this store holds. Stops early, without error, if yield returns false.
func (s *Store) Iterate(decode func() any, yield func(Key, any) bool) error {
	prefix := []byte(s.storeID + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return fmt.Errorf("%w: iterating store %s: %v", errs.ErrStorage, s.storeID, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		k := Key(binary.BigEndian.Uint64(iter.Key()[len(prefix):]))
		rec := decode()
		if err := msgpack.Unmarshal(iter.Value(), rec); err != nil {
			return fmt.Errorf("%w: decoding store %s key %d: %v", errs.ErrStorage, s.storeID, k, err)
		}
		if !yield(k, rec) {
			return nil
		}
	}
	return nil
}

func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
