package crdtstore

import "fmt"

// Txn is the sole mutation scope. A read Txn may coexist with any number
// of other read Txns; a write Txn excludes all others (see Document's
// readers-writer discipline in store.go). Txns are never shared across
// goroutines.
type Txn struct {
	doc      *Document
	writable bool
	origin   any

	beforeState *StateVector
	afterState  *StateVector
	deleteSet   *DeleteSet
	prevMoved   map[ID]*ID

	// newMoves collects the move items created or integrated by this
	// transaction; commit resolves exactly these, never items from
	// earlier transactions.
	newMoves []*Item

	// subdocsAdded/Removed accumulate sub-document map changes for the
	// ObserveSubdocs dispatch at commit.
	subdocsAdded   []DocAddr
	subdocsRemoved []DocAddr

	// touched preserves first-touch order so direct observers fire in
	// branch-pointer-stable order, per the commit ordering rule.
	touchedOrder []*Branch
	touched      map[*Branch][]Change

	done bool
}

func newTxn(doc *Document, writable bool, origin any) *Txn {
	t := &Txn{
		doc:      doc,
		writable: writable,
		origin:   origin,
		touched:  make(map[*Branch][]Change),
	}
	if writable {
		t.beforeState = doc.store.blocks.StateVector()
		t.deleteSet = NewDeleteSet()
		t.prevMoved = make(map[ID]*ID)
	}
	return t
}

func (t *Txn) requireWritable() {
	if !t.writable {
		panic("crdtstore: mutation attempted on a read-only transaction")
	}
}

func (t *Txn) touch(b *Branch, ch Change) {
	if _, ok := t.touched[b]; !ok {
		t.touchedOrder = append(t.touchedOrder, b)
	}
	t.touched[b] = append(t.touched[b], ch)
}

// --- local creation -------------------------------------------------

// position names an insertion point within a branch's sequence as a pair
// of current neighbours.
type position struct {
	branch *Branch
	left   *Item
	right  *Item
}

// indexToPosition resolves (branch, index) to an insertion anchor,
// splitting the item straddling index if necessary.
func (t *Txn) indexToPosition(b *Branch, index int) (position, error) {
	if index == 0 {
		return position{branch: b, left: nil, right: b.Start}, nil
	}
	if index == b.contentLen {
		// append at the end: find last live item, keeping whatever follows
		// it (tombstones, markers) linked after the new item
		var last *Item
		for it := b.Start; it != nil; it = it.Right {
			if !it.Deleted() && it.Countable() {
				last = it
			}
		}
		return position{branch: b, left: last, right: last.Right}, nil
	}
	it, local, err := b.GetAt(index)
	if err != nil {
		return position{}, err
	}
	if local == 0 {
		return position{branch: b, left: it.Left, right: it}, nil
	}
	newRight, err := t.splitBlock(it, uint32(local))
	if err != nil {
		return position{}, err
	}
	return position{branch: b, left: it, right: newRight}, nil
}

// splitBlock cleaves an item through the block store and keeps the weak
// link back-index covering both halves of the cut.
func (t *Txn) splitBlock(it *Item, offset uint32) (*Item, error) {
	right, err := t.doc.store.blocks.SplitBlock(it, offset)
	if err != nil {
		return nil, err
	}
	t.doc.store.linkedBy.propagateSplit(it, right)
	return right, nil
}

// itemCleanEnd returns the item whose clock range ends exactly at
// id.Clock+1, splitting the covering item first if id falls mid-run. Left
// origins name the last element of their neighbour, so this is how an
// origin becomes a concrete left anchor.
func (t *Txn) itemCleanEnd(id ID) *Item {
	cell, ok := t.doc.store.blocks.Get(id)
	if !ok || cell.Item == nil {
		return nil
	}
	it := cell.Item
	if it.End() != id.Clock+1 {
		if _, err := t.splitBlock(it, uint32(id.Clock+1-it.ID.Clock)); err != nil {
			return nil
		}
	}
	return it
}

// itemCleanStart returns the item starting exactly at id, splitting the
// covering item first if id falls mid-run.
func (t *Txn) itemCleanStart(id ID) *Item {
	cell, ok := t.doc.store.blocks.Get(id)
	if !ok || cell.Item == nil {
		return nil
	}
	it := cell.Item
	if it.ID.Clock == id.Clock {
		return it
	}
	right, err := t.splitBlock(it, uint32(id.Clock-it.ID.Clock))
	if err != nil {
		return nil
	}
	return right
}

func originOf(it *Item) *ID {
	if it == nil {
		return nil
	}
	last := ID{Client: it.ID.Client, Clock: it.End() - 1}
	return &last
}

// createItem allocates a new local Item at pos, with the given content,
// links it into the branch chain and block store, and returns it.
func (t *Txn) createItem(pos position, parentSub *string, content ItemContent) *Item {
	t.requireWritable()
	store := t.doc.store
	client := store.options.ClientID
	id := ID{Client: client, Clock: store.blocks.Clock(client)}

	item := &Item{
		ID:        id,
		Parent:    ParentRef{Branch: pos.branch},
		ParentSub: parentSub,
		Content:   content,
	}
	// embedded types and doc links occupy one countable slot each; only
	// format markers and move operations are invisible to index counting
	if content.Kind() != ContentKindFormat && content.Kind() != ContentKindMove {
		item.Info |= InfoCountable
	}

	if parentSub == nil {
		item.LeftOrigin = originOf(pos.left)
		item.RightOrigin = idOrNil(pos.right)
		item.Left = pos.left
		item.Right = pos.right
		if pos.left != nil {
			pos.left.Right = item
		} else {
			pos.branch.Start = item
		}
		if pos.right != nil {
			pos.right.Left = item
		}
	} else {
		// Keyed items never join the branch's positional sequence. Each
		// key instead threads its own chain through Left/Right, anchored
		// by the overwritten predecessor; the chain's last item is the
		// key's current value.
		prev := pos.branch.Map[*parentSub]
		item.Left = prev
		item.LeftOrigin = originOf(prev)
		if prev != nil {
			prev.Right = item
		}
	}
	if err := store.blocks.Push(cellFromItem(item)); err != nil {
		panic(err) // local allocation is always contiguous by construction
	}

	if ct, ok := content.(*ContentType); ok {
		ct.Branch.Item = item
		store.registry[ct.Branch] = struct{}{}
	}
	if content.Kind() == ContentKindMove {
		t.newMoves = append(t.newMoves, item)
	}

	if parentSub != nil {
		if prev := item.Left; prev != nil && !prev.Deleted() {
			prev.markDeleted()
			t.deleteSet.Add(prev.ID, prev.Len())
		}
		pos.branch.Map[*parentSub] = item
	}

	pos.branch.blockLen++
	// contentLen is the sequence length; keyed items never count toward it
	if item.Countable() && parentSub == nil {
		pos.branch.contentLen += int(item.Len())
	}

	change := Change{Kind: ChangeAdd, Len: int(item.Len())}
	if parentSub != nil {
		change.Kind = ChangeUpdate
		change.Key = *parentSub
	} else {
		change.Index = sequenceIndexOf(pos.branch, item)
	}
	t.touch(pos.branch, change)
	return item
}

func idOrNil(it *Item) *ID {
	if it == nil {
		return nil
	}
	id := it.ID
	return &id
}

// deleteRange tombstones length countable units starting at index within
// b, returning the number of units actually removed (fewer than length
// if the sequence is shorter).
func (t *Txn) deleteRange(b *Branch, index, length int) int {
	t.requireWritable()
	removed := 0
	remaining := index
	it := b.Start
	for it != nil && removed < length {
		if it.Deleted() || !it.Countable() {
			it = it.Right
			continue
		}
		l := int(it.Len())
		if remaining > 0 {
			if remaining < l {
				if split, err := t.splitBlock(it, uint32(remaining)); err == nil {
					it = split
					l = int(it.Len())
				}
			} else {
				remaining -= l
				it = it.Right
				continue
			}
			remaining = 0
		}
		toRemove := length - removed
		if toRemove < l {
			if _, err := t.splitBlock(it, uint32(toRemove)); err == nil {
				l = toRemove
			}
		}
		it.markDeleted()
		b.contentLen -= l
		removed += l
		t.deleteSet.Add(it.ID, uint32(l))
		t.touch(b, Change{Kind: ChangeRemove, Index: index, Len: l})
		it = it.Right
	}
	return removed
}

// deleteKey tombstones the current item backing key, if any.
func (t *Txn) deleteKey(b *Branch, key string) bool {
	t.requireWritable()
	it := b.Map[key]
	if it == nil || it.Deleted() {
		return false
	}
	it.markDeleted()
	if cd, ok := it.Content.(*ContentDoc); ok {
		t.doc.store.subdocs.unlink(cd.Addr)
		t.subdocsRemoved = append(t.subdocsRemoved, cd.Addr)
	}
	t.deleteSet.Add(it.ID, it.Len())
	t.touch(b, Change{Kind: ChangeRemove, Key: key})
	return true
}

// --- remote integration (YATA) --------------------------------------

// remoteBlock is the decoded, not-yet-linked form of an incoming block.
// parentName is set when the parent is (or should be) a root branch;
// parentItem is set when the parent is a nested branch, named by its
// embedding item's ID.
type remoteBlock struct {
	id          ID
	leftOrigin  *ID
	rightOrigin *ID
	parentName  string
	parentItem  *ID
	parentSub   *string
	content     ItemContent
	isGC        bool   // true for a GC-range placeholder: reserves an ID range with no parent/content
	gcLength    uint32 // valid when isGC is true
}

func (rb *remoteBlock) length() uint32 {
	if rb.content != nil {
		return rb.content.Len()
	}
	return rb.gcLength
}

// sliceFrom returns the suffix of rb starting offset clock units in. Used
// both to stitch an incoming block whose prefix is already integrated
// locally and, on the encode side, to clip a merged cell at the clock a
// peer already holds. The suffix's left origin is the last element of the
// clipped prefix, the same anchor a split would have produced.
func (rb *remoteBlock) sliceFrom(offset uint32) *remoteBlock {
	id := ID{Client: rb.id.Client, Clock: rb.id.Clock + Clock(offset)}
	if rb.isGC {
		return &remoteBlock{id: id, isGC: true, gcLength: rb.gcLength - offset}
	}
	_, right := rb.content.SplitAt(offset)
	lo := ID{Client: rb.id.Client, Clock: id.Clock - 1}
	return &remoteBlock{
		id:          id,
		leftOrigin:  &lo,
		rightOrigin: rb.rightOrigin,
		parentName:  rb.parentName,
		parentItem:  rb.parentItem,
		parentSub:   rb.parentSub,
		content:     right,
	}
}

// integrateBlocks integrates an ordered (by ascending clock per client)
// batch of remote blocks plus an accompanying delete set. Blocks that
// cannot be integrated because of missing dependencies are parked on the
// store's pending update; ErrPendingUpdate itself is returned in that
// case, but everything else that could be integrated has been. Any blocks
// already parked from a previous call are folded in first, so a later
// apply that supplies their missing dependency integrates them
// automatically without the caller resubmitting them.
func (t *Txn) integrateBlocks(blocks []*remoteBlock, ds *DeleteSet) error {
	t.requireWritable()
	store := t.doc.store

	if store.pending != nil {
		blocks = append(append([]*remoteBlock(nil), store.pending.blocks...), blocks...)
		store.pending = nil
	}
	sortBlocksForIntegration(blocks)

	var parked []*remoteBlock
	missing := NewStateVector()

	// A fixed-point loop: one forward pass may leave a block parked only
	// because a dependency introduced later in the very same batch (by a
	// different client) hadn't been integrated yet. Repeat until a full
	// pass makes no further progress.
	pass := blocks
	for len(pass) > 0 {
		parked = nil
		missing = NewStateVector()
		progressed := false

		for _, rb := range pass {
			have := store.blocks.Clock(rb.id.Client)
			if rb.id.Clock > have {
				parked = append(parked, rb)
				missing.Set(rb.id.Client, rb.id.Clock)
				continue
			}
			if rb.id.Clock < have {
				overlap := uint32(have - rb.id.Clock)
				if overlap >= rb.length() {
					continue // fully integrated
				}
				if !rb.isGC && !rb.content.Splittable() {
					continue
				}
				// stitch: integrate only the unseen suffix
				rb = rb.sliceFrom(overlap)
			}
			if rb.isGC {
				// A GC-range placeholder only reserves its clock range; a
				// receiver who never saw the original content has nothing to
				// link into any branch, so it bypasses origin/parent
				// resolution entirely.
				if err := store.blocks.Push(cellFromGC(GCRange{ID: rb.id, Length: rb.gcLength})); err != nil {
					panic(err)
				}
				progressed = true
				continue
			}
			branch, ok := t.resolveParent(rb)
			if !ok {
				parked = append(parked, rb)
				if rb.parentItem != nil {
					missing.Set(rb.parentItem.Client, rb.parentItem.Clock+1)
				}
				continue
			}
			if !t.originsResolved(rb) {
				parked = append(parked, rb)
				if rb.leftOrigin != nil {
					missing.Set(rb.leftOrigin.Client, rb.leftOrigin.Clock+1)
				}
				if rb.rightOrigin != nil {
					missing.Set(rb.rightOrigin.Client, rb.rightOrigin.Clock+1)
				}
				continue
			}
			t.integrateOne(branch, rb)
			progressed = true
		}

		if !progressed || len(parked) == len(pass) {
			break
		}
		pass = parked
	}

	if ds != nil {
		t.applyDeleteSet(ds)
	}

	if len(parked) > 0 {
		store.pending = &pendingUpdate{blocks: parked, missing: missing}
		return ErrPendingUpdate
	}
	return nil
}

func (t *Txn) resolveParent(rb *remoteBlock) (*Branch, bool) {
	store := t.doc.store
	if rb.parentItem != nil {
		it := store.blocks.GetItem(*rb.parentItem)
		if it == nil {
			return nil, false
		}
		ct, ok := it.Content.(*ContentType)
		if !ok {
			return nil, false
		}
		return ct.Branch, true
	}
	return store.getOrCreateRoot(rb.parentName, TypeUndefined), true
}

// originsResolved reports whether both origin clocks are covered by the
// local store. Coverage, not exact item lookup, is the test: an origin may
// fall mid-run (integrateOne splits the covering item into a clean anchor)
// or inside a GC range (the anchor is gone but causality is satisfied).
func (t *Txn) originsResolved(rb *remoteBlock) bool {
	blocks := t.doc.store.blocks
	if rb.leftOrigin != nil && rb.leftOrigin.Clock >= blocks.Clock(rb.leftOrigin.Client) {
		return false
	}
	if rb.rightOrigin != nil && rb.rightOrigin.Clock >= blocks.Clock(rb.rightOrigin.Client) {
		return false
	}
	return true
}

// integrateOne places a single, dependency-satisfied block using the
// YATA conflict resolution rule described in the design: starting right
// after the resolved left neighbour, scan forward while a concurrent
// item o shares our left origin and has a strictly larger client id (o
// then keeps the earlier position and we continue past it); otherwise we
// stop and take the position immediately before the first item we did
// not scan past. Keyed (map-entry) items run the same scan over their
// per-key chain; the chain's last item is the key's winning value.
func (t *Txn) integrateOne(branch *Branch, rb *remoteBlock) *Item {
	store := t.doc.store
	var left, right *Item

	if rb.leftOrigin != nil {
		left = t.itemCleanEnd(*rb.leftOrigin)
	}
	if rb.rightOrigin != nil {
		right = t.itemCleanStart(*rb.rightOrigin)
	}

	var scanStart *Item
	switch {
	case left != nil:
		scanStart = left.Right
	case rb.parentSub != nil:
		scanStart = chainHead(branch, *rb.parentSub)
	default:
		scanStart = branch.Start
	}

	o := scanStart
	for o != nil && o != right && o.Parent.Branch == branch {
		if idPtrEqual(o.LeftOrigin, rb.leftOrigin) && o.ID.Client > rb.id.Client {
			left = o
			o = o.Right
			continue
		}
		break
	}
	finalRight := o

	item := &Item{
		ID:          rb.id,
		LeftOrigin:  rb.leftOrigin,
		RightOrigin: rb.rightOrigin,
		Left:        left,
		Right:       finalRight,
		Parent:      ParentRef{Branch: branch},
		ParentSub:   rb.parentSub,
		Content:     rb.content,
	}
	if rb.content.Kind() != ContentKindFormat && rb.content.Kind() != ContentKindMove {
		item.Info |= InfoCountable
	}

	if left != nil {
		left.Right = item
	} else if rb.parentSub == nil {
		branch.Start = item
	}
	if finalRight != nil {
		finalRight.Left = item
	}
	if err := store.blocks.Push(cellFromItem(item)); err != nil {
		panic(err)
	}

	if ct, ok := item.Content.(*ContentType); ok {
		ct.Branch.Item = item
		store.registry[ct.Branch] = struct{}{}
	}
	if item.Content.Kind() == ContentKindMove {
		t.newMoves = append(t.newMoves, item)
	}
	if cd, ok := item.Content.(*ContentDoc); ok {
		t.subdocsAdded = append(t.subdocsAdded, cd.Addr)
	}

	if item.ParentSub != nil {
		if branch.Map == nil {
			branch.Map = make(map[string]*Item)
		}
		if item.Right == nil {
			// chain tail: this write wins the key, superseding its left
			branch.Map[*item.ParentSub] = item
			if prev := item.Left; prev != nil && !prev.Deleted() {
				prev.markDeleted()
				t.deleteSet.Add(prev.ID, prev.Len())
			}
		} else {
			item.markDeleted()
			t.deleteSet.Add(item.ID, item.Len())
		}
	}

	branch.blockLen++
	if item.Countable() && item.ParentSub == nil {
		branch.contentLen += int(item.Len())
	}

	change := Change{Kind: ChangeAdd, Len: int(item.Len())}
	if item.ParentSub != nil {
		change.Kind = ChangeUpdate
		change.Key = *item.ParentSub
	} else {
		change.Index = sequenceIndexOf(branch, item)
	}
	t.touch(branch, change)
	return item
}

// chainHead walks a key's chain back from its current winner to the
// first item ever integrated for that key.
func chainHead(branch *Branch, key string) *Item {
	it := branch.Map[key]
	if it == nil {
		return nil
	}
	for it.Left != nil {
		it = it.Left
	}
	return it
}

// applyDeleteSet marks every item named by ds as deleted, splitting items
// so range boundaries align with cell boundaries first.
func (t *Txn) applyDeleteSet(ds *DeleteSet) {
	for _, client := range ds.Clients() {
		for _, r := range ds.Ranges(client) {
			t.applyDeleteRange(client, r)
		}
	}
}

func (t *Txn) applyDeleteRange(client ClientID, r idRange) {
	store := t.doc.store
	clock := r.start
	end := r.end()
	for clock < end {
		cell, ok := store.blocks.Get(ID{Client: client, Clock: clock})
		if !ok {
			return
		}
		if cell.Item == nil {
			// GC range: already tombstoned
			clock = cell.End()
			continue
		}
		it := cell.Item
		// align the left boundary
		if it.ID.Clock < clock {
			if split, err := t.splitBlock(it, uint32(clock-it.ID.Clock)); err == nil {
				it = split
			}
		}
		// align the right boundary; on a split failure delete what we can
		if it.End() > end {
			_, _ = t.splitBlock(it, uint32(end-it.ID.Clock))
		}
		if !it.Deleted() {
			it.markDeleted()
			if it.Parent.Branch != nil {
				if it.Countable() && it.ParentSub == nil {
					it.Parent.Branch.contentLen -= int(it.Len())
				}
				t.touch(it.Parent.Branch, Change{Kind: ChangeRemove, Len: int(it.Len())})
			}
			if cd, ok := it.Content.(*ContentDoc); ok {
				store.subdocs.unlink(cd.Addr)
				t.subdocsRemoved = append(t.subdocsRemoved, cd.Addr)
			}
			t.deleteSet.Add(it.ID, it.Len())
		}
		clock = it.End()
	}
}

// --- moves -------------------------------------------------------------

// resolveMoves relocates, for every move item this transaction created or
// integrated, the named source range to sit immediately after the move
// item within the same branch. Only this transaction's own move items are
// considered: moves from earlier commits are already resolved, and
// re-running them would dislodge anything inserted near the moved range
// since. Only intra-branch moves are supported; see DESIGN.md for the
// scoping rationale.
func (t *Txn) resolveMoves() {
	for _, it := range t.newMoves {
		if it.Deleted() {
			continue
		}
		mv, ok := it.Content.(*ContentMove)
		if !ok {
			continue
		}
		t.applyMove(it, mv)
	}
}

func (t *Txn) applyMove(moveItem *Item, mv *ContentMove) {
	store := t.doc.store
	start := store.blocks.GetItem(mv.Start)
	end := store.blocks.GetItem(mv.End)
	if start == nil || end == nil || start.Parent.Branch != moveItem.Parent.Branch {
		return
	}
	if start.Moved != nil && *start.Moved == moveItem.ID {
		return // already resolved
	}
	branch := start.Parent.Branch

	removedAt := sequenceIndexOf(branch, start)
	movedLen := 0
	for it := start; it != nil; it = it.Right {
		if !it.Deleted() && it.Countable() {
			movedLen += int(it.Len())
		}
		if it == end {
			break
		}
	}

	// detach [start,end]
	beforeStart := start.Left
	afterEnd := end.Right
	if beforeStart != nil {
		beforeStart.Right = afterEnd
	} else {
		branch.Start = afterEnd
	}
	if afterEnd != nil {
		afterEnd.Left = beforeStart
	}

	for it := start; it != nil; {
		next := it.Right
		prev := it.Moved
		t.prevMoved[it.ID] = prev
		id := moveItem.ID
		it.Moved = &id
		if it == end {
			break
		}
		it = next
	}

	// splice in after moveItem
	oldRight := moveItem.Right
	moveItem.Right = start
	start.Left = moveItem
	end.Right = oldRight
	if oldRight != nil {
		oldRight.Left = end
	}

	// a move is an observable content-level effect: removed from the old
	// position, added at the resolved one
	t.touch(branch, Change{Kind: ChangeRemove, Index: removedAt, Len: movedLen})
	t.touch(branch, Change{Kind: ChangeAdd, Index: sequenceIndexOf(branch, start), Len: movedLen})
}

// --- commit ----------------------------------------------------------

// Commit finalises a write transaction: resolves moves, computes the
// after-state, and dispatches observer events in the order the design
// mandates (direct observers in branch-pointer-stable order, then deep
// observers ordered by increasing path length, then store-level update
// events, then after-transaction, then cleanup). It is an error to call
// Commit twice or on a read-only Txn.
func (t *Txn) Commit() error {
	t.requireWritable()
	if t.done {
		return fmt.Errorf("crdtstore: transaction already finished")
	}
	store := t.doc.store

	t.resolveMoves()

	if !store.options.SkipGC {
		t.dropDeletedContent()
	}
	for client := range store.blocks.clients {
		store.blocks.mergeAdjacent(client)
	}

	t.afterState = store.blocks.StateVector()

	events := t.buildEvents()
	for _, e := range events {
		for _, cb := range e.Target.observers {
			if cb != nil {
				cb(e)
			}
		}
	}
	t.dispatchDeep(events)

	changed := !t.deleteSet.IsEmpty() || !t.afterState.Equal(t.beforeState)
	if changed {
		t.doc.fireUpdate(t)
	}
	if len(t.subdocsAdded) > 0 || len(t.subdocsRemoved) > 0 {
		t.doc.fireSubdocs(t.subdocsAdded, t.subdocsRemoved)
	}
	t.doc.fireAfterTransaction(t)
	t.doc.fireCleanup(t.origin)

	t.doc.releaseWriteLock()
	t.done = true
	return nil
}

// Abort ends the transaction without committing and releases the
// document's lock (the write lock for a write Txn, the read lock for a
// read Txn). Go has no destructors, so a Txn that is not committed must be
// aborted explicitly to release the lock.
//
// Abort does not roll anything back: items already created, linked or
// tombstoned by this transaction stay in the store as they are. It only
// skips the commit steps (move resolution, merging, observer dispatch).
func (t *Txn) Abort() {
	if t.done {
		return
	}
	if t.writable {
		t.doc.releaseWriteLock()
	} else {
		t.doc.releaseReadLock()
	}
	t.done = true
}

// dropDeletedContent replaces tombstoned payloads with length-only
// deleted markers, preserving every item's ID range and chain position so
// later-arriving blocks can still anchor their origins against the
// tombstones. Adjacent markers from the same run coalesce in the merge
// pass that follows, giving the compact per-client tombstone layout
// without unlinking anything. Items a weak link still points at keep
// their content.
func (t *Txn) dropDeletedContent() {
	for _, cs := range t.doc.store.blocks.clients {
		for _, cell := range cs.cells {
			it := cell.Item
			if it == nil || !it.Deleted() || it.Info.has(InfoKeepAlive) || it.Linked() {
				continue
			}
			switch it.Content.Kind() {
			case ContentKindString, ContentKindJSON, ContentKindBinary:
				it.Content = NewContentDeleted(it.Len())
			}
		}
	}
}

func (t *Txn) buildEvents() []Event {
	events := make([]Event, 0, len(t.touchedOrder))
	for _, b := range t.touchedOrder {
		events = append(events, Event{
			Target:  b,
			Path:    path(t.doc.rootOf(b), b),
			Changes: t.touched[b],
		})
	}
	return events
}

func (t *Txn) dispatchDeep(events []Event) {
	sortEventsByPathLen(events)
	// Deep observers fire on every ancestor of a touched branch, each
	// receiving only the ordered events within its own subtree; edits to
	// unrelated containers in the same transaction stay invisible to it.
	seen := make(map[*Branch]bool)
	for _, e := range events {
		for b := e.Target; b != nil; b = parentBranchOf(b) {
			if seen[b] {
				continue
			}
			seen[b] = true
			if len(b.deepObservers) == 0 {
				continue
			}
			scoped := eventsInSubtree(events, b)
			for _, cb := range b.deepObservers {
				if cb != nil {
					cb(scoped)
				}
			}
		}
	}
}

// eventsInSubtree filters events to those whose target lies within root's
// subtree, root itself included. Order is preserved.
func eventsInSubtree(events []Event, root *Branch) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		for b := e.Target; b != nil; b = parentBranchOf(b) {
			if b == root {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func parentBranchOf(b *Branch) *Branch {
	if b.Item == nil {
		return nil
	}
	return b.Item.Parent.Branch
}

// Accessors -------------------------------------------------------------

// Document returns the document this transaction belongs to.
func (t *Txn) Document() *Document { return t.doc }
