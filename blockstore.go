package crdtstore

import (
	"fmt"
	"sort"

	"github.com/gholt/brimtext"
)

// clientSeq is one client's dense, clock-sorted run of block cells,
// covering [0, nextClock) without gaps. This mirrors the teacher's
// per-key location-map bucket: a compact, binary-searchable index of
// where a given logical address currently lives.
type clientSeq struct {
	cells []BlockCell
}

// findPivot returns the index of the cell whose clock range contains
// clock, via binary search on cells (sorted, contiguous, non-overlapping
// by construction).
func (cs *clientSeq) findPivot(clock Clock) (int, bool) {
	n := len(cs.cells)
	i := sort.Search(n, func(i int) bool { return cs.cells[i].End() > clock })
	if i >= n {
		return n, false
	}
	if cs.cells[i].ID().Clock > clock {
		return i, false
	}
	return i, true
}

func (cs *clientSeq) nextClock() Clock {
	if n := len(cs.cells); n > 0 {
		return cs.cells[n-1].End()
	}
	return 0
}

// BlockStore is the per-client mapping of a document's full block log:
// client -> dense clock-ordered sequence of BlockCells.
type BlockStore struct {
	clients map[ClientID]*clientSeq
}

// NewBlockStore returns an empty block store.
func NewBlockStore() *BlockStore {
	return &BlockStore{clients: make(map[ClientID]*clientSeq)}
}

func (bs *BlockStore) seqFor(client ClientID) *clientSeq {
	cs, ok := bs.clients[client]
	if !ok {
		cs = &clientSeq{}
		bs.clients[client] = cs
	}
	return cs
}

// Clock returns the next unused clock value for client (0 if unknown).
func (bs *BlockStore) Clock(client ClientID) Clock {
	cs, ok := bs.clients[client]
	if !ok {
		return 0
	}
	return cs.nextClock()
}

// StateVector summarises every client's next-clock.
func (bs *BlockStore) StateVector() *StateVector {
	sv := NewStateVector()
	for c, cs := range bs.clients {
		if n := cs.nextClock(); n > 0 {
			sv.Set(c, n)
		}
	}
	return sv
}

// Get returns the cell covering id.Clock for id.Client, if any.
func (bs *BlockStore) Get(id ID) (BlockCell, bool) {
	cs, ok := bs.clients[id.Client]
	if !ok {
		return BlockCell{}, false
	}
	i, ok := cs.findPivot(id.Clock)
	if !ok {
		return BlockCell{}, false
	}
	return cs.cells[i], true
}

// GetItem returns the live Item exactly at id, or nil if id falls inside
// a GC range, mid-item (not at its start), or is unknown. Integration
// logic that needs "the item whose range contains id but may need
// splitting" should use FindPivot directly.
func (bs *BlockStore) GetItem(id ID) *Item {
	cell, ok := bs.Get(id)
	if !ok || cell.Item == nil || cell.Item.ID != id {
		return nil
	}
	return cell.Item
}

// FindPivot locates the cell containing clock for client and returns its
// index within that client's sequence.
func (bs *BlockStore) FindPivot(client ClientID, clock Clock) (index int, ok bool) {
	cs, exists := bs.clients[client]
	if !exists {
		return 0, false
	}
	return cs.findPivot(clock)
}

// Push appends cell to the end of its client's sequence, enforcing gapless
// contiguity.
func (bs *BlockStore) Push(cell BlockCell) error {
	cs := bs.seqFor(cell.ID().Client)
	if want := cs.nextClock(); cell.ID().Clock != want {
		return fmt.Errorf("crdtstore: non-contiguous push for client %d: have clock %d, want %d",
			cell.ID().Client, cell.ID().Clock, want)
	}
	cs.cells = append(cs.cells, cell)
	return nil
}

// Insert places cell at position index within client's sequence, used for
// local splits that must slot a new cell between two existing ones
// without appending at the tail.
func (bs *BlockStore) Insert(client ClientID, index int, cell BlockCell) {
	cs := bs.seqFor(client)
	cs.cells = append(cs.cells, BlockCell{})
	copy(cs.cells[index+1:], cs.cells[index:])
	cs.cells[index] = cell
}

// SplitBlock cleaves item at internal offset, producing a fresh Item
// covering the content suffix starting at offset. The original item is
// truncated in place to length offset; the new item is linked into the
// neighbour chain between the original and its former right neighbour,
// with its left origin set to the ID of the last retained element of the
// original's prefix. If the original was moved, the new right inherits
// the move binding.
func (bs *BlockStore) SplitBlock(item *Item, offset uint32) (*Item, error) {
	if offset == 0 || offset >= item.Len() {
		return nil, fmt.Errorf("crdtstore: split offset %d out of range for item of length %d", offset, item.Len())
	}
	if !item.Content.Splittable() {
		return nil, fmt.Errorf("crdtstore: content kind %d is not splittable", item.Content.Kind())
	}
	leftContent, rightContent := item.Content.SplitAt(offset)

	splitPointID := ID{Client: item.ID.Client, Clock: item.ID.Clock + Clock(offset)}
	prefixLastID := ID{Client: item.ID.Client, Clock: splitPointID.Clock - 1}

	newItem := &Item{
		ID:          splitPointID,
		LeftOrigin:  &prefixLastID,
		RightOrigin: item.RightOrigin,
		Left:        item,
		Right:       item.Right,
		Parent:      item.Parent,
		ParentSub:   item.ParentSub,
		Content:     rightContent,
		Info:        item.Info,
		Moved:       item.Moved,
	}
	if item.Right != nil {
		item.Right.Left = newItem
	}
	item.Right = newItem
	item.Content = leftContent

	cs := bs.seqFor(item.ID.Client)
	idx, ok := cs.findPivot(item.ID.Clock)
	if !ok {
		return nil, fmt.Errorf("crdtstore: split target %s not present in block store", item.ID)
	}
	bs.Insert(item.ID.Client, idx+1, cellFromItem(newItem))
	return newItem, nil
}

// mergeAdjacent coalesces consecutive same-client cells that qualify as
// mergeable under Item.sameOriginAndBindingsAs, replacing each coalesced
// run with a single Item cell. Only Item cells participate; GC-range
// cells (placeholders received over the wire) are left untouched.
func (bs *BlockStore) mergeAdjacent(client ClientID) {
	cs, ok := bs.clients[client]
	if !ok {
		return
	}
	out := cs.cells[:0:0]
	i := 0
	for i < len(cs.cells) {
		cell := cs.cells[i]
		if cell.Item == nil {
			out = append(out, cell)
			i++
			continue
		}
		merged := cell.Item
		j := i + 1
		for j < len(cs.cells) && cs.cells[j].Item != nil &&
			cs.cells[j].Item.ID.Clock == merged.End() &&
			merged.sameOriginAndBindingsAs(cs.cells[j].Item) &&
			merged.Right == cs.cells[j].Item {
			next := cs.cells[j].Item
			merged = joinItems(merged, next)
			j++
		}
		out = append(out, cellFromItem(merged))
		i = j
	}
	cs.cells = out
}

// joinItems concatenates a and b (b immediately follows a, already
// verified mergeable by the caller) into a single Item occupying a's slot
// in the linked list.
func joinItems(a, b *Item) *Item {
	merged := &Item{
		ID:          a.ID,
		LeftOrigin:  a.LeftOrigin,
		RightOrigin: b.RightOrigin,
		Left:        a.Left,
		Right:       b.Right,
		Parent:      a.Parent,
		ParentSub:   a.ParentSub,
		Content:     mergeContent(a.Content, b.Content),
		Info:        a.Info,
	}
	if merged.Left != nil {
		merged.Left.Right = merged
	} else {
		merged.Parent.Branch.Start = merged
	}
	if merged.Right != nil {
		merged.Right.Left = merged
	}
	return merged
}

func mergeContent(a, b ItemContent) ItemContent {
	switch av := a.(type) {
	case *ContentString:
		bv := b.(*ContentString)
		return &ContentString{Value: append(append([]rune(nil), av.Value...), bv.Value...)}
	case *ContentJSON:
		bv := b.(*ContentJSON)
		return &ContentJSON{Values: append(append([]any(nil), av.Values...), bv.Values...)}
	case *ContentDeletedMarker:
		bv := b.(*ContentDeletedMarker)
		return &ContentDeletedMarker{length: av.length + bv.length}
	default:
		panic(fmt.Errorf("crdtstore: content kind %d is not mergeable", a.Kind()))
	}
}

// Dump renders a human-readable table of the block store's contents,
// grouped by client: clock range, tombstone status, and content kind.
// Formatting follows the teacher's use of brimtext for aligned debug
// tables.
func (bs *BlockStore) Dump() string {
	clients := make([]ClientID, 0, len(bs.clients))
	for c := range bs.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i] < clients[j] })

	rows := [][]string{{"client", "range", "kind", "tombstone"}}
	for _, c := range clients {
		for _, cell := range bs.clients[c].cells {
			kind := "gc-range"
			tomb := "-"
			if cell.Item != nil {
				kind = fmt.Sprintf("%d", cell.Item.Content.Kind())
				if cell.Item.Deleted() {
					tomb = "yes"
				} else {
					tomb = "no"
				}
			} else {
				tomb = "yes"
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", c),
				fmt.Sprintf("[%d,%d)", cell.ID().Clock, cell.End()),
				kind,
				tomb,
			})
		}
	}
	return brimtext.Align(rows, nil)
}
