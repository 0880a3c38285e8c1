package crdtstore

// Map is a thin facade over a keyed-shaped Branch.
type Map struct {
	branch *Branch
	doc    *Document
}

func (m *Map) Branch() *Branch { return m.branch }

// Len returns the number of live keys.
func (m *Map) Len() int {
	n := 0
	m.branch.Entries(func(string, *Item) bool { n++; return true })
	return n
}

// Set writes key to value within the given write transaction. Each key's
// writes form a chain ordered by the same YATA rule the sequences use;
// the chain's last item is the key's current value, so a causal overwrite
// always wins and concurrent writers are resolved by the client-id tie
// rule (see transaction.go's integrateOne).
func (m *Map) Set(t *Txn, key string, value any) {
	key2 := key
	t.createItem(position{branch: m.branch}, &key2, NewContentJSON(value))
}

// SetEmbed writes a new nested branch under key and returns it.
func (m *Map) SetEmbed(t *Txn, key string, typeRef TypeRef) *Branch {
	nested := NewBranch(typeRef)
	key2 := key
	t.createItem(position{branch: m.branch}, &key2, NewContentType(nested))
	return nested
}

// SetDoc links child as a sub-document stored under key. The link is
// recorded in the parent store's sub-document map, rejected with
// ErrCyclicSubdoc if it would make a document its own ancestor, and
// reported through ObserveSubdocs at commit.
func (m *Map) SetDoc(t *Txn, key string, child *Document) error {
	t.requireWritable()
	store := m.doc.store
	parentAddr := DocAddr{Guid: store.options.Guid, CollectionID: store.options.CollectionID}
	childAddr := DocAddr{Guid: child.store.options.Guid, CollectionID: child.store.options.CollectionID}
	if err := store.subdocs.link(parentAddr, childAddr, child); err != nil {
		return err
	}
	if prev := m.branch.Map[key]; prev != nil && !prev.Deleted() {
		if cd, ok := prev.Content.(*ContentDoc); ok {
			store.subdocs.unlink(cd.Addr)
			t.subdocsRemoved = append(t.subdocsRemoved, cd.Addr)
		}
	}
	key2 := key
	it := t.createItem(position{branch: m.branch}, &key2, &ContentDoc{Addr: childAddr, Opts: child.store.options})
	child.store.parent = it
	t.subdocsAdded = append(t.subdocsAdded, childAddr)
	return nil
}

// Get returns the current value at key.
func (m *Map) Get(key string) (any, bool) {
	c, ok := m.branch.Get(key)
	if !ok {
		return nil, false
	}
	switch v := c.(type) {
	case *ContentJSON:
		if len(v.Values) > 0 {
			return v.Values[0], true
		}
		return nil, true
	case *ContentType:
		return v.Branch, true
	case *ContentBinary:
		return v.Data, true
	default:
		return nil, true
	}
}

// Delete removes key, returning whether a live entry existed.
func (m *Map) Delete(t *Txn, key string) bool {
	return t.deleteKey(m.branch, key)
}

// Keys returns the set of live keys.
func (m *Map) Keys() []string {
	var out []string
	m.branch.Entries(func(k string, _ *Item) bool { out = append(out, k); return true })
	return out
}
