package crdtstore

import (
	"fmt"
	"math/rand"
)

// ClientID identifies a replica. Values are drawn uniformly from
// [0, 2^53) so they remain safe to round-trip through JSON-interoperable
// encodings further down the embedder's stack.
type ClientID uint64

// maxSafeClientID is 2^53, the largest integer exactly representable in
// an IEEE-754 double. Client IDs are kept under this bound even though Go
// itself has no such restriction, because encoded updates are expected to
// be consumable by JSON-based peers.
const maxSafeClientID = uint64(1) << 53

// NewClientID returns a randomly generated client identifier in
// [0, 2^53).
func NewClientID() ClientID {
	return ClientID(rand.Uint64() % maxSafeClientID)
}

// clientHash is the identity hash over the low 64 bits of a ClientID.
//
// The original source this store's wire format is compatible with carries
// two definitions of this hasher with mismatched length assertions (one
// asserts 16 bytes, the other 8). The wire contract is 8 bytes, a single
// u64/ClientID, so this implementation validates against 8 bytes and
// treats the 16-byte assertion as the stale artefact the spec calls it
// out to be. Client IDs are already random, so no cryptographic function
// is needed here: the hash is the value itself.
func clientHash(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("crdtstore: client hash input must be 8 bytes, got %d", len(b))
	}
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v, nil
}

// Clock is a per-client monotonic counter. It addresses the next unused
// sequence position for a client; clock values for already-integrated
// items are strictly less than the client's current Clock.
type Clock uint64

// ID uniquely identifies a block across all replicas: the pair
// (client, clock) is globally unique.
type ID struct {
	Client ClientID
	Clock  Clock
}

func (id ID) String() string {
	return fmt.Sprintf("(%d,%d)", id.Client, id.Clock)
}

// Less orders IDs first by client, then by clock. This is only used for
// deterministic iteration (e.g. diff encoding client ordering uses its own
// descending-by-client rule; this is a generic total order for maps/sets).
func (id ID) Less(other ID) bool {
	if id.Client != other.Client {
		return id.Client < other.Client
	}
	return id.Clock < other.Clock
}

// end returns the exclusive end clock of a run of the given length
// starting at id.
func (id ID) end(length uint32) Clock {
	return id.Clock + Clock(length)
}
