package crdtstore

// Snapshot is a point-in-time summary of a document: the state vector
// (what exists) plus the delete set (what's tombstoned). Encoding a
// snapshot never requires content to still be present; only
// EncodeStateFromSnapshot does, which is why that one call can fail with
// ErrGCRequired.
type Snapshot struct {
	StateMap *StateVector
	Deletes  *DeleteSet
}

// Snapshot captures the document's current state vector and tombstones.
func (d *Document) Snapshot() *Snapshot {
	return &Snapshot{
		StateMap: d.store.blocks.StateVector(),
		Deletes:  currentTombstones(d.store),
	}
}

func currentTombstones(store *Store) *DeleteSet {
	ds := NewDeleteSet()
	for _, client := range sortedClientIDs(store.blocks.clients) {
		for _, cell := range store.blocks.clients[client].cells {
			if cell.Item != nil && cell.Item.Deleted() {
				ds.Add(cell.Item.ID, cell.Item.Len())
			} else if cell.GC != nil {
				ds.Add(cell.GC.ID, cell.GC.Length)
			}
		}
	}
	return ds
}

// EncodeSnapshotV1 serializes a snapshot as a state vector followed by a
// delete set.
func EncodeSnapshotV1(snap *Snapshot) []byte {
	var buf []byte
	buf = append(buf, EncodeStateVector(snap.StateMap)...)
	buf = appendDeleteSet(buf, snap.Deletes)
	return buf
}

// DecodeSnapshotV1 parses the output of EncodeSnapshotV1.
func DecodeSnapshotV1(data []byte) (snap *Snapshot, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			snap, err = nil, ErrMalformedUpdate
		}
	}()
	r := &byteReader{buf: data}
	n := int(r.uvarint())
	sv := NewStateVector()
	for i := 0; i < n; i++ {
		c := ClientID(r.uvarint())
		clk := Clock(r.uvarint())
		sv.Set(c, clk)
	}
	ds := readDeleteSet(r)
	return &Snapshot{StateMap: sv, Deletes: ds}, nil
}

// collectUntil gathers, per client, the prefix of blocks below the clock
// snap recorded, clipping the final straddling cell at the boundary. This
// is the snapshot encoder's view: the state reachable as of the capture,
// regardless of what has been written since.
func collectUntil(store *Store, sv *StateVector) []*remoteBlock {
	var blocks []*remoteBlock
	for _, client := range sortedClientIDs(store.blocks.clients) {
		limit := sv.Get(client)
		for _, cell := range store.blocks.clients[client].cells {
			if cell.ID().Clock >= limit {
				break
			}
			var rb *remoteBlock
			if cell.Item != nil {
				rb = toRemoteBlock(cell.Item)
			} else {
				g := *cell.GC
				rb = &remoteBlock{id: g.ID, isGC: true, gcLength: g.Length}
			}
			if cell.End() > limit {
				keep := uint32(limit - cell.ID().Clock)
				if rb.isGC {
					rb.gcLength = keep
				} else if rb.content.Splittable() {
					left, _ := rb.content.SplitAt(keep)
					rb.content = left
				}
			}
			blocks = append(blocks, rb)
		}
	}
	return blocks
}

// EncodeStateFromSnapshotV1 encodes the document's content as of snap: a
// peer applying the result to an empty document reproduces the state the
// snapshot captured. It requires the document to have been opened with
// OptSkipGC(true): once garbage collection has dropped tombstoned
// content, historical blocks can no longer be reconstructed.
func (d *Document) EncodeStateFromSnapshotV1(snap *Snapshot) ([]byte, error) {
	if !d.store.options.SkipGC {
		return nil, ErrGCRequired
	}
	return EncodeUpdateV1(collectUntil(d.store, snap.StateMap), snap.Deletes), nil
}

// EncodeStateFromSnapshotV2 is EncodeStateFromSnapshotV1's v2 counterpart.
func (d *Document) EncodeStateFromSnapshotV2(snap *Snapshot) ([]byte, error) {
	if !d.store.options.SkipGC {
		return nil, ErrGCRequired
	}
	return EncodeUpdateV2(collectUntil(d.store, snap.StateMap), snap.Deletes), nil
}
