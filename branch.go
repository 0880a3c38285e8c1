package crdtstore

import "fmt"

// TypeRef discriminates the kind of shared container a Branch
// implements. Array/Map/Text/Xml* share one substrate (Branch) and differ
// only in which substrate features they use and how their content is
// interpreted; this tag plus the thin facades in array.go/mapbranch.go/
// text.go/xml.go stand in for a subclass hierarchy.
type TypeRef uint8

const (
	TypeUndefined TypeRef = iota
	TypeArray
	TypeMap
	TypeText
	TypeXMLElement
	TypeXMLFragment
	TypeXMLText
	TypeWeakLink
)

// PathSegmentKind discriminates a Path segment.
type PathSegmentKind uint8

const (
	PathKey PathSegmentKind = iota
	PathIndex
)

// PathSegment is one hop on the way from a root branch to a nested one:
// either a map key or a zero-based sequence index.
type PathSegment struct {
	Kind  PathSegmentKind
	Key   string
	Index int
}

// Path is the deque of segments describing how to reach a branch from its
// root ancestor, outermost segment first.
type Path []PathSegment

// Branch is a shared container node: the common substrate for Array,
// Map, Text, and the XML family. It is either root (held in the
// Document's name map, addressable by name) or nested (owned by an Item
// of content kind ContentType).
type Branch struct {
	TypeRef TypeRef

	// Start is the head of the sequence, if this branch uses sequence
	// storage (Array, Text, XmlFragment, XmlElement).
	Start *Item

	// Map holds, for branches that use keyed storage (Map, XmlElement's
	// attributes), the most-recently-integrated non-superseded Item for
	// each key.
	Map map[string]*Item

	// Item is the embedding Item if this branch is nested; nil for root
	// branches.
	Item *Item

	// Name is set for root branches only.
	Name string

	blockLen   int
	contentLen int

	observers     []func(Event)
	deepObservers []func([]Event)
}

// NewBranch allocates an unattached branch of the given kind. Embedded
// branches are attached to their owning Item by the caller immediately
// after construction (see ContentType).
func NewBranch(typeRef TypeRef) *Branch {
	b := &Branch{TypeRef: typeRef}
	if typeRef == TypeMap || typeRef == TypeXMLElement {
		b.Map = make(map[string]*Item)
	}
	return b
}

// Len returns the branch's sequence length in declared units (countable,
// non-deleted content only).
func (b *Branch) Len() int { return b.contentLen }

// IsRoot reports whether this branch is stored in the document's root
// name map rather than owned by an embedding Item.
func (b *Branch) IsRoot() bool { return b.Item == nil }

// GetAt performs a linear scan from Start, skipping deleted items, and
// returns the item whose countable range contains index along with the
// local offset of index within that item's content.
func (b *Branch) GetAt(index int) (*Item, int, error) {
	if index < 0 {
		return nil, 0, fmt.Errorf("crdtstore: negative index %d", index)
	}
	remaining := index
	for it := b.Start; it != nil; it = it.Right {
		if it.Deleted() || !it.Countable() {
			continue
		}
		l := int(it.Len())
		if remaining < l {
			return it, remaining, nil
		}
		remaining -= l
	}
	return nil, 0, fmt.Errorf("%w: index %d out of range (length %d)", ErrNotFound, index, b.contentLen)
}

// Get returns the current value stored under key, or false if the key is
// absent or tombstoned.
func (b *Branch) Get(key string) (ItemContent, bool) {
	it, ok := b.Map[key]
	if !ok || it == nil || it.Deleted() {
		return nil, false
	}
	return it.Content, true
}

// Entries iterates over the branch's live map entries.
func (b *Branch) Entries(fn func(key string, it *Item) bool) {
	for k, it := range b.Map {
		if it == nil || it.Deleted() {
			continue
		}
		if !fn(k, it) {
			return
		}
	}
}

// Iter walks the branch's live sequence items in order, skipping deleted
// items.
func (b *Branch) Iter(fn func(it *Item) bool) {
	for it := b.Start; it != nil; it = it.Right {
		if it.Deleted() {
			continue
		}
		if !fn(it) {
			return
		}
	}
}

// path walks item.Parent upward from target until root is reached,
// recording a key or computed index at each step. Segments are returned
// outermost-first.
func path(root, target *Branch) Path {
	var segs []PathSegment
	cur := target
	for cur != nil && cur != root {
		item := cur.Item
		if item == nil {
			break
		}
		parent := item.Parent.Branch
		if item.ParentSub != nil {
			segs = append(segs, PathSegment{Kind: PathKey, Key: *item.ParentSub})
		} else {
			idx := sequenceIndexOf(parent, item)
			segs = append(segs, PathSegment{Kind: PathIndex, Index: idx})
		}
		cur = parent
	}
	// reverse: segs were collected innermost-first
	out := make(Path, len(segs))
	for i, s := range segs {
		out[len(segs)-1-i] = s
	}
	return out
}

// sequenceIndexOf returns the countable index of item within parent's
// live sequence, counting only live, countable predecessors.
func sequenceIndexOf(parent *Branch, item *Item) int {
	idx := 0
	for it := parent.Start; it != nil; it = it.Right {
		if it == item {
			return idx
		}
		if !it.Deleted() && it.Countable() {
			idx += int(it.Len())
		}
	}
	return idx
}

// Observe registers a direct observer, fired once per commit that
// touched this branch.
func (b *Branch) Observe(cb func(Event)) Subscription {
	b.observers = append(b.observers, cb)
	idx := len(b.observers) - 1
	return subFunc(func() {
		b.observers[idx] = nil
	})
}

// ObserveDeep registers a deep observer, fired once per commit with the
// full list of events for this branch and all descendants touched.
func (b *Branch) ObserveDeep(cb func([]Event)) Subscription {
	b.deepObservers = append(b.deepObservers, cb)
	idx := len(b.deepObservers) - 1
	return subFunc(func() {
		b.deepObservers[idx] = nil
	})
}
