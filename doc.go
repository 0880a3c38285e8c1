// Package crdtstore provides a disk-agnostic, in-memory data structure for
// storing a collaboratively-edited document's operational history as an
// append-only, tombstoning block log keyed by replica ("client") identity.
//
// The log is organised into shared collaborative containers (Array, Map,
// Text, and XML-like trees) and exchanged with remote peers through compact
// binary deltas. All mutation happens through a Txn; there is no other way
// to change a Document's contents.
//
// This package handles the core CRDT machinery only: the block store, the
// branch/type graph, the transaction/integration engine, and the update
// codec. Persistence, network transport, and rendering are left to the
// embedder; this package only produces and consumes update payloads.
package crdtstore
