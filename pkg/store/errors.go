package store

import "errors"

var (
	// ErrNotOpen is returned when an operation is issued before Open.
	ErrNotOpen = errors.New("store not opened; call store.Open first")
	// ErrStaleVersion marks a store stamped by a newer schema than this
	// build understands. Open refuses such a store; recovery is running
	// the newer build (the "reload" of this design).
	ErrStaleVersion = errors.New("store schema is newer than this build")
	// ErrUnknownCollection rejects names outside the schema table.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrUnknownIndex rejects index names the collection does not declare.
	ErrUnknownIndex = errors.New("unknown index")
	// ErrInvalidRecord wraps validation failures (missing key or index
	// fields).
	ErrInvalidRecord = errors.New("invalid record")
	// ErrReadOnlyCollection rejects direct writes to the audit log; the
	// engine appends to it itself.
	ErrReadOnlyCollection = errors.New("collection is engine-owned and read-only")
)
