package crdtstore

// ItemInfo packs the bookkeeping flags carried by every Item.
type ItemInfo uint8

const (
	// InfoCountable marks content that participates in index counting
	// (string/json/binary runs, embedded types and doc links). Format
	// markers and move operations are not countable.
	InfoCountable ItemInfo = 1 << iota
	// InfoKeepAlive prevents an item from being merged or GC'd even if
	// otherwise eligible, e.g. while a weak link still points to it.
	InfoKeepAlive
	// InfoDeleted marks a tombstoned item.
	InfoDeleted
	// InfoLinked marks an item that is the target of at least one weak
	// link, and therefore listed in Store.linkedBy.
	InfoLinked
)

func (i ItemInfo) has(flag ItemInfo) bool { return i&flag != 0 }

// ParentRef names the branch an Item belongs to. During normal operation
// it always resolves to a live Branch; while an incoming block's parent
// is not yet known locally, integration parks that block on the store's
// pending update instead of leaving a dangling ParentRef (see
// Txn.integrateBlocks).
type ParentRef struct {
	Branch *Branch
}

// Item is a single block in a client's append-only history: the atomic
// unit the CRDT orders and tombstones.
type Item struct {
	ID ID

	// LeftOrigin/RightOrigin are the CRDT anchors: the IDs of the logical
	// neighbours at insertion time, used to reconstruct position
	// deterministically regardless of delivery order.
	LeftOrigin, RightOrigin *ID

	// Left/Right are the current neighbours in the local linked list,
	// i.e. the materialised result of conflict resolution.
	Left, Right *Item

	Parent    ParentRef
	ParentSub *string

	Content ItemContent
	Info    ItemInfo

	// Redone is set when this item was the target of an undo/redo
	// operation and points at its successor.
	Redone *ID

	// Moved is set when a move operation currently owns this item; it
	// names the move's content-bearing item.
	Moved *ID
}

func (it *Item) Deleted() bool   { return it.Info.has(InfoDeleted) }
func (it *Item) Countable() bool { return it.Info.has(InfoCountable) }
func (it *Item) Linked() bool    { return it.Info.has(InfoLinked) }

// Len returns the item's content length (runes for text, element count
// otherwise; see ItemContent.Len).
func (it *Item) Len() uint32 { return it.Content.Len() }

// End returns the exclusive end clock of this item's clock range.
func (it *Item) End() Clock { return it.ID.Clock + Clock(it.Len()) }

// markDeleted tombstones the item in place and keeps its content; when
// SkipGC is off, commit later swaps that content for a length-only marker
// (see Txn.dropDeletedContent).
func (it *Item) markDeleted() { it.Info |= InfoDeleted }

// sameOriginAndBindingsAs reports whether two items could be merged: same
// client contiguity is checked by the caller; this only compares the
// CRDT-relevant fields the spec requires to match (origins, moved state,
// deleted state, format attributes, compatible content kinds).
func (a *Item) sameOriginAndBindingsAs(b *Item) bool {
	if a.Deleted() != b.Deleted() {
		return false
	}
	if !idPtrEqual(a.Moved, b.Moved) {
		return false
	}
	// Per the spec's open question, merging is best-effort; moved items
	// are excluded from merging entirely rather than risking move
	// semantics on a subtle predicate.
	if a.Moved != nil || b.Moved != nil {
		return false
	}
	// Weak-link referrers and keep-alive pins are keyed by item pointer;
	// merging would orphan them.
	if a.Info.has(InfoKeepAlive) || b.Info.has(InfoKeepAlive) || a.Linked() || b.Linked() {
		return false
	}
	if a.Parent.Branch != b.Parent.Branch {
		return false
	}
	// Keyed items are addressed by pointer from their branch's map and
	// key chain; coalescing them would strand those references.
	if a.ParentSub != nil || b.ParentSub != nil {
		return false
	}
	if a.Content.Kind() != b.Content.Kind() {
		return false
	}
	switch a.Content.Kind() {
	case ContentKindString, ContentKindJSON, ContentKindDeleted:
		// mergeable payloads
	default:
		return false
	}
	// b must directly follow a: b's left origin is a's last element.
	aEnd := ID{Client: a.ID.Client, Clock: a.End() - 1}
	return idPtrEqual(b.LeftOrigin, &aEnd) && idPtrEqual(a.RightOrigin, b.RightOrigin)
}

func idPtrEqual(a, b *ID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// GCRange is a compact tombstone standing in for a contiguous run of
// deleted items whose content has been dropped once GC is enabled.
type GCRange struct {
	ID     ID
	Length uint32
}

func (g GCRange) End() Clock { return g.ID.Clock + Clock(g.Length) }

// BlockCell is either a live Item or a GCRange. Exactly one of the two
// fields is non-nil/non-zero-length.
type BlockCell struct {
	Item *Item
	GC   *GCRange
}

func cellFromItem(it *Item) BlockCell { return BlockCell{Item: it} }
func cellFromGC(g GCRange) BlockCell  { return BlockCell{GC: &g} }

// ID returns the cell's starting ID, valid for either variant.
func (c BlockCell) ID() ID {
	if c.Item != nil {
		return c.Item.ID
	}
	return c.GC.ID
}

// End returns the cell's exclusive end clock.
func (c BlockCell) End() Clock {
	if c.Item != nil {
		return c.Item.End()
	}
	return c.GC.End()
}

// Len returns the cell's length in clock units. An Item's clock span is
// its content length by construction (End is ID.Clock plus Len), so for an
// Item cell the two coincide; for a GC range it is the range's Length.
func (c BlockCell) Len() uint32 {
	return uint32(c.End() - c.ID().Clock)
}
