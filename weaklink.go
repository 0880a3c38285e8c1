package crdtstore

// linkedBy is a non-owning back-index from a tombstonable Item to the set
// of branches that weakly reference it. It is maintained as a plain
// mapping, updated whenever a weak branch is created, invalidated, or
// when an item it refers to is split (the index then covers both halves
// of the cut).
type linkedBy struct {
	m map[*Item]map[*Branch]struct{}
}

func newLinkedBy() *linkedBy { return &linkedBy{m: make(map[*Item]map[*Branch]struct{})} }

func (lb *linkedBy) add(item *Item, branch *Branch) {
	set, ok := lb.m[item]
	if !ok {
		set = make(map[*Branch]struct{})
		lb.m[item] = set
	}
	set[branch] = struct{}{}
	item.Info |= InfoLinked
}

func (lb *linkedBy) remove(item *Item, branch *Branch) {
	set, ok := lb.m[item]
	if !ok {
		return
	}
	delete(set, branch)
	if len(set) == 0 {
		delete(lb.m, item)
		item.Info &^= InfoLinked
	}
}

// propagateSplit copies item's linking branches onto its newly split-off
// right half, since references keyed by the pre-split item must still
// resolve after the cut.
func (lb *linkedBy) propagateSplit(original, newRight *Item) {
	set, ok := lb.m[original]
	if !ok {
		return
	}
	for b := range set {
		lb.add(newRight, b)
	}
}

// Referrers returns the branches currently weakly linking to item.
func (lb *linkedBy) Referrers(item *Item) []*Branch {
	set := lb.m[item]
	out := make([]*Branch, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	return out
}

// WeakLink is a non-owning reference to a sequence item: a TypeWeakLink
// branch registered in the store's back-index. The link never keeps its
// target alive; it only tracks it, across splits included.
type WeakLink struct {
	branch *Branch
	doc    *Document
	target *Item
}

// Quote creates a weak link to the item currently holding index.
func (a *Array) Quote(t *Txn, index int) (*WeakLink, error) {
	t.requireWritable()
	it, _, err := a.branch.GetAt(index)
	if err != nil {
		return nil, err
	}
	b := NewBranch(TypeWeakLink)
	a.doc.store.registry[b] = struct{}{}
	a.doc.store.linkedBy.add(it, b)
	return &WeakLink{branch: b, doc: a.doc, target: it}, nil
}

// Branch returns the link's backing TypeWeakLink branch.
func (w *WeakLink) Branch() *Branch { return w.branch }

// Deref resolves the linked content, or false if the target has been
// tombstoned.
func (w *WeakLink) Deref() (ItemContent, bool) {
	if w.target == nil || w.target.Deleted() {
		return nil, false
	}
	return w.target.Content, true
}

// Unlink removes the link from the store's back-index.
func (w *WeakLink) Unlink(t *Txn) {
	t.requireWritable()
	w.doc.store.linkedBy.remove(w.target, w.branch)
	delete(w.doc.store.registry, w.branch)
}
