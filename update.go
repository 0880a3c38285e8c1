package crdtstore

import "sort"

// toRemoteBlock converts a live Item into its wire representation, as
// either (a) when encoding a full update, or (b) the item itself acting as
// a source of truth for broadcasting a commit's effect to observers.
func toRemoteBlock(it *Item) *remoteBlock {
	rb := &remoteBlock{
		id:          it.ID,
		leftOrigin:  it.LeftOrigin,
		rightOrigin: it.RightOrigin,
		parentSub:   it.ParentSub,
		content:     it.Content,
	}
	branch := it.Parent.Branch
	if branch == nil || branch.IsRoot() {
		if branch != nil {
			rb.parentName = branch.Name
		}
	} else {
		id := branch.Item.ID
		rb.parentItem = &id
	}
	return rb
}

// sortedClientIDs orders clients descending by ID, as the design mandates
// for update encoding (deterministic neighbour lookups on the receiver).
func sortedClientIDs(m map[ClientID]*clientSeq) []ClientID {
	out := make([]ClientID, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// collectSince gathers every block (item or GC range) recorded past the
// clock each client has in sv, clipping the first cell when a post-commit
// merge left it straddling the peer's clock. A nil sv collects everything.
// The returned delete set is always the store's full tombstone set: a
// range deleted after the peer already received its blocks has no block
// to ride along with, so only the complete set keeps deletions flowing.
func collectSince(store *Store, sv *StateVector) ([]*remoteBlock, *DeleteSet) {
	var blocks []*remoteBlock
	for _, client := range sortedClientIDs(store.blocks.clients) {
		from := Clock(0)
		if sv != nil {
			from = sv.Get(client)
		}
		for _, cell := range store.blocks.clients[client].cells {
			if cell.End() <= from {
				continue
			}
			var rb *remoteBlock
			if cell.Item != nil {
				rb = toRemoteBlock(cell.Item)
			} else {
				g := *cell.GC
				rb = &remoteBlock{id: g.ID, isGC: true, gcLength: g.Length}
			}
			if cell.ID().Clock < from {
				rb = rb.sliceFrom(uint32(from - cell.ID().Clock))
			}
			blocks = append(blocks, rb)
		}
	}
	return blocks, currentTombstones(store)
}

// EncodeStateVector returns the document's current state vector, encoded
// for a peer to request a diff against.
func (d *Document) EncodeStateVector() []byte {
	return EncodeStateVector(d.store.blocks.StateVector())
}

// EncodeStateAsUpdateV1 encodes every block the document holds beyond what
// sv already records, in the v1 wire format. A nil sv requests the full
// history.
func (d *Document) EncodeStateAsUpdateV1(sv *StateVector) []byte {
	blocks, ds := collectSince(d.store, sv)
	return EncodeUpdateV1(blocks, ds)
}

// EncodeStateAsUpdateV2 is EncodeStateAsUpdateV1's v2 counterpart.
func (d *Document) EncodeStateAsUpdateV2(sv *StateVector) []byte {
	blocks, ds := collectSince(d.store, sv)
	return EncodeUpdateV2(blocks, ds)
}

// EncodeDiffV1 is the v1 update broadcast to observers after a commit: the
// blocks introduced since beforeState plus the store's full tombstone set
// (see collectSince).
func (d *Document) EncodeDiffV1(beforeState *StateVector) ([]byte, error) {
	return d.EncodeStateAsUpdateV1(beforeState), nil
}

// EncodeDiffV2 is EncodeDiffV1's v2 counterpart.
func (d *Document) EncodeDiffV2(beforeState *StateVector) ([]byte, error) {
	return d.EncodeStateAsUpdateV2(beforeState), nil
}

// ApplyUpdateV1 decodes and integrates a v1 update within its own write
// transaction. It returns ErrPendingUpdate if some blocks could
// not be integrated for lack of a causal dependency; those blocks remain
// parked on the store and are retried by a later ApplyUpdate call that
// supplies the missing range.
func (d *Document) ApplyUpdateV1(data []byte, origin any) error {
	blocks, ds, err := DecodeUpdateV1(data)
	if err != nil {
		return err
	}
	return d.applyDecoded(blocks, ds, origin)
}

// ApplyUpdateV2 is ApplyUpdateV1's v2 counterpart.
func (d *Document) ApplyUpdateV2(data []byte, origin any) error {
	blocks, ds, err := DecodeUpdateV2(data)
	if err != nil {
		return err
	}
	return d.applyDecoded(blocks, ds, origin)
}

func (d *Document) applyDecoded(blocks []*remoteBlock, ds *DeleteSet, origin any) error {
	t, err := d.WriteTxn(origin)
	if err != nil {
		return err
	}
	integrateErr := t.integrateBlocks(blocks, ds)
	if commitErr := t.Commit(); commitErr != nil {
		return commitErr
	}
	return integrateErr
}

// sortBlocksForIntegration orders blocks by ascending clock within each
// client, the order integrateBlocks assumes: a client's blocks must be
// offered contiguously from whatever clock the receiver already has.
func sortBlocksForIntegration(blocks []*remoteBlock) {
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].id.Client != blocks[j].id.Client {
			return blocks[i].id.Client < blocks[j].id.Client
		}
		return blocks[i].id.Clock < blocks[j].id.Clock
	})
}
