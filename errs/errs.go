// Package errs collects the sentinel error kinds shared across the engine.
package errs

import "errors"

var (
	// ErrNotFound is returned by control-path lookups that miss: an
	// unknown version in the Version Index, or a missing metadata-store
	// record. The data path never returns it.
	ErrNotFound = errors.New("key not found")

	// ErrAbsent is the data-path answer for a key with no entry visible
	// from the queried version, returned by component-tree and
	// doubling-array lookups.
	ErrAbsent = errors.New("entry is absent")

	// ErrOutOfMemory is returned when the modlist sort buffer cannot be
	// sized to hold the requested item count.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrInvalidInput is returned for malformed caller arguments: bad
	// version handles, oversized merge input counts, zero block pointers
	// where a valid one is required.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorage wraps failures from the external collaborators (cache,
	// metadata store, free-space allocator).
	ErrStorage = errors.New("storage error")

	// ErrInvariant marks a violated internal invariant (broken ancestry
	// numbering, a node-boundary cut that split a version's entries
	// across two nodes). Seeing this means the engine itself is corrupt,
	// not the caller's input.
	ErrInvariant = errors.New("invariant violation")
)
