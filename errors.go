package crdtstore

import "errors"

// Sentinel error kinds, tested with errors.Is. Callers that need more
// context will usually see these wrapped with fmt.Errorf("...: %w", ...).
var (
	// ErrMalformedUpdate is returned when a wire payload fails structural
	// validation during decode.
	ErrMalformedUpdate = errors.New("crdtstore: malformed update")

	// ErrUnexpectedEnum is raised inside the update decoder on an unknown
	// content kind or scalar value tag. The decode entry points recover it
	// and return ErrMalformedUpdate instead, so callers of DecodeUpdateV1/V2
	// and ApplyUpdateV1/V2 never receive it. Type-reference bytes of
	// embedded branches are not validated.
	ErrUnexpectedEnum = errors.New("crdtstore: unexpected enum discriminator")

	// ErrPendingUpdate is non-fatal: it indicates that an update could not
	// be fully integrated because of missing causal dependencies. The
	// blocks that could not be integrated are parked and will be retried
	// automatically as soon as their dependencies arrive.
	ErrPendingUpdate = errors.New("crdtstore: update pending missing dependencies")

	// ErrAlreadyBorrowed is returned by ReadTxn when a write transaction
	// currently holds the document's lock.
	ErrAlreadyBorrowed = errors.New("crdtstore: already borrowed (read lock contention)")

	// ErrAlreadyBorrowedMut is returned by WriteTxn when another
	// transaction, read or write, currently holds the document's lock.
	ErrAlreadyBorrowedMut = errors.New("crdtstore: already borrowed (write lock contention)")

	// ErrGCRequired is returned by snapshot encoding when the store has
	// garbage collection enabled, so tombstoned content is no longer
	// recoverable.
	ErrGCRequired = errors.New("crdtstore: snapshot requires skip_gc")

	// ErrNotFound is returned when a branch or item lookup fails.
	ErrNotFound = errors.New("crdtstore: not found")

	// ErrCyclicSubdoc is returned when linking a sub-document would create
	// a cycle in the sub-document tree.
	ErrCyclicSubdoc = errors.New("crdtstore: sub-document link would create a cycle")
)
