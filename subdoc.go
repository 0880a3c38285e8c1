package crdtstore

import (
	"github.com/spaolacci/murmur3"
)

// DocAddr names a sub-document: the pair that a parent store's subdocs
// map is keyed by.
type DocAddr struct {
	Guid         string
	CollectionID string
}

// shardKey hashes a DocAddr down to a uint64 bucket. This mirrors the
// teacher's use of murmur3 to place keys into its value location map's
// striped lock/page buckets (valuelocmap.go); here it is used purely to
// give an embedder a stable, evenly-distributed shard hint when fanning
// sub-document work (e.g. persistence or load scheduling) across
// multiple workers, never as part of the CRDT algorithm itself.
func (a DocAddr) shardKey() uint64 {
	h := murmur3.New64()
	_, _ = h.Write([]byte(a.Guid))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(a.CollectionID))
	return h.Sum64()
}

// ShardHint exposes shardKey to embedders wanting to bucket sub-document
// work across N workers.
func (a DocAddr) ShardHint(buckets uint64) uint64 {
	if buckets == 0 {
		return 0
	}
	return a.shardKey() % buckets
}

// subdocRegistry tracks sub-documents linked under a store and enforces
// that the sub-document relation stays a tree (a document can never be
// its own ancestor).
type subdocRegistry struct {
	docs    map[DocAddr]*Document
	parents map[DocAddr]DocAddr // child -> parent, for cycle checks
}

func newSubdocRegistry() *subdocRegistry {
	return &subdocRegistry{
		docs:    make(map[DocAddr]*Document),
		parents: make(map[DocAddr]DocAddr),
	}
}

// link records child as a sub-document of parentAddr, rejecting the
// operation if it would introduce a cycle.
func (r *subdocRegistry) link(parentAddr, childAddr DocAddr, child *Document) error {
	// Walk parentAddr's own ancestor chain; if childAddr appears, linking
	// would close a cycle.
	for cur, ok := parentAddr, true; ok; cur, ok = r.parents[cur] {
		if cur == childAddr {
			return ErrCyclicSubdoc
		}
	}
	r.docs[childAddr] = child
	r.parents[childAddr] = parentAddr
	return nil
}

func (r *subdocRegistry) unlink(addr DocAddr) {
	delete(r.docs, addr)
	delete(r.parents, addr)
}
