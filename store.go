package crdtstore

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// pendingUpdate holds remote blocks whose integration was deferred
// because of missing causal dependencies, plus the state vector recording
// what is required before a retry can make further progress.
type pendingUpdate struct {
	blocks  []*remoteBlock
	missing *StateVector
}

// Store is the root aggregate of a document: options, the name->root
// branch map, the registry of live branches, the block store, pending
// updates, the sub-document map, and the weak-link back-index. It is the
// sole mutable aggregate; there are no hidden singletons.
type Store struct {
	options Options

	roots    map[string]*Branch
	registry map[*Branch]struct{}
	blocks   *BlockStore

	pending   *pendingUpdate
	pendingDS *DeleteSet

	subdocs  *subdocRegistry
	linkedBy *linkedBy

	parent *Item // set when this store is itself a sub-document
}

func newStore(opts Options) *Store {
	return &Store{
		options:  opts,
		roots:    make(map[string]*Branch),
		registry: make(map[*Branch]struct{}),
		blocks:   NewBlockStore(),
		subdocs:  newSubdocRegistry(),
		linkedBy: newLinkedBy(),
	}
}

// getOrCreateRoot returns the named root branch, creating it lazily (and
// repairing its TypeRef if it had only ever been seen with TypeUndefined)
// on first use.
func (s *Store) getOrCreateRoot(name string, typeRef TypeRef) *Branch {
	b, ok := s.roots[name]
	if !ok {
		b = NewBranch(typeRef)
		b.Name = name
		s.roots[name] = b
		s.registry[b] = struct{}{}
		return b
	}
	if b.TypeRef == TypeUndefined && typeRef != TypeUndefined {
		b.TypeRef = typeRef
		if typeRef == TypeMap || typeRef == TypeXMLElement {
			if b.Map == nil {
				b.Map = make(map[string]*Item)
			}
		}
	}
	return b
}

// Document is the embedder-facing handle on a Store: it adds the
// readers-writer concurrency discipline and the observer subscription
// surface named in spec §6, on top of the core Store.
type Document struct {
	store *Store
	mu    sync.RWMutex
	log   *zap.Logger

	updateV1Cbs []UpdateCallback
	updateV2Cbs []UpdateCallback
	cleanupCbs  []TxnCleanupCallback
	afterCbs    []AfterTxnCallback
	subdocsCbs  []SubdocsCallback
	destroyCbs  []DestroyCallback

	destroyed bool
}

// Open creates a new, empty Document with the given options.
func Open(opts ...Option) *Document {
	o := resolveOptions(opts...)
	return &Document{
		store: newStore(o),
		log:   o.Logger,
	}
}

// ClientID returns the document's local client identifier.
func (d *Document) ClientID() ClientID { return d.store.options.ClientID }

// Guid returns the document's unique identifier.
func (d *Document) Guid() string { return d.store.options.Guid }

// ReadTxn acquires a read transaction. It returns ErrAlreadyBorrowed
// instead of blocking if a write Txn currently holds the lock.
func (d *Document) ReadTxn() (*Txn, error) {
	if !d.mu.TryRLock() {
		return nil, ErrAlreadyBorrowed
	}
	return newTxn(d, false, nil), nil
}

// WriteTxn acquires a write transaction. It returns ErrAlreadyBorrowedMut
// instead of blocking if any transaction currently holds the lock.
// origin is an opaque tag later visible to observers, used to de-duplicate
// echo loops across peers.
func (d *Document) WriteTxn(origin any) (*Txn, error) {
	if !d.mu.TryLock() {
		return nil, ErrAlreadyBorrowedMut
	}
	return newTxn(d, true, origin), nil
}

func (d *Document) releaseWriteLock() { d.mu.Unlock() }
func (d *Document) releaseReadLock()  { d.mu.RUnlock() }

func (d *Document) rootOf(b *Branch) *Branch {
	cur := b
	for cur.Item != nil {
		p := cur.Item.Parent.Branch
		if p == nil {
			break
		}
		cur = p
	}
	return cur
}

// Array returns the named root Array branch, creating it on first use.
func (d *Document) Array(name string) *Array {
	return &Array{branch: d.store.getOrCreateRoot(name, TypeArray), doc: d}
}

// Map returns the named root Map branch, creating it on first use.
func (d *Document) Map(name string) *Map {
	return &Map{branch: d.store.getOrCreateRoot(name, TypeMap), doc: d}
}

// Text returns the named root Text branch, creating it on first use.
func (d *Document) Text(name string) *Text {
	return &Text{branch: d.store.getOrCreateRoot(name, TypeText), doc: d}
}

// XMLFragment returns the named root XmlFragment branch, creating it on
// first use.
func (d *Document) XMLFragment(name string) *XMLFragment {
	return &XMLFragment{branch: d.store.getOrCreateRoot(name, TypeXMLFragment), doc: d}
}

// Destroy marks the document destroyed and fires ObserveDestroy
// callbacks. It does not release memory; Go's garbage collector owns
// that once the Document becomes unreachable.
func (d *Document) Destroy() {
	if d.destroyed {
		return
	}
	d.destroyed = true
	for _, cb := range d.destroyCbs {
		if cb != nil {
			cb()
		}
	}
}

// --- observer subscriptions ---------------------------------------------

func (d *Document) ObserveUpdateV1(cb UpdateCallback) Subscription {
	d.updateV1Cbs = append(d.updateV1Cbs, cb)
	idx := len(d.updateV1Cbs) - 1
	return subFunc(func() { d.updateV1Cbs[idx] = nil })
}

func (d *Document) ObserveUpdateV2(cb UpdateCallback) Subscription {
	d.updateV2Cbs = append(d.updateV2Cbs, cb)
	idx := len(d.updateV2Cbs) - 1
	return subFunc(func() { d.updateV2Cbs[idx] = nil })
}

func (d *Document) ObserveTransactionCleanup(cb TxnCleanupCallback) Subscription {
	d.cleanupCbs = append(d.cleanupCbs, cb)
	idx := len(d.cleanupCbs) - 1
	return subFunc(func() { d.cleanupCbs[idx] = nil })
}

func (d *Document) ObserveAfterTransaction(cb AfterTxnCallback) Subscription {
	d.afterCbs = append(d.afterCbs, cb)
	idx := len(d.afterCbs) - 1
	return subFunc(func() { d.afterCbs[idx] = nil })
}

func (d *Document) ObserveSubdocs(cb SubdocsCallback) Subscription {
	d.subdocsCbs = append(d.subdocsCbs, cb)
	idx := len(d.subdocsCbs) - 1
	return subFunc(func() { d.subdocsCbs[idx] = nil })
}

func (d *Document) ObserveDestroy(cb DestroyCallback) Subscription {
	d.destroyCbs = append(d.destroyCbs, cb)
	idx := len(d.destroyCbs) - 1
	return subFunc(func() { d.destroyCbs[idx] = nil })
}

// --- commit-time event firing, called from Txn.Commit -------------------

func (d *Document) fireUpdate(t *Txn) {
	if len(d.updateV1Cbs) > 0 {
		if update, err := d.EncodeDiffV1(t.beforeState); err == nil {
			for _, cb := range d.updateV1Cbs {
				if cb != nil {
					cb(update, t.origin)
				}
			}
		} else {
			d.log.Warn("failed to encode v1 update for observers", zap.Error(err))
		}
	}
	if len(d.updateV2Cbs) > 0 {
		if update, err := d.EncodeDiffV2(t.beforeState); err == nil {
			for _, cb := range d.updateV2Cbs {
				if cb != nil {
					cb(update, t.origin)
				}
			}
		} else {
			d.log.Warn("failed to encode v2 update for observers", zap.Error(err))
		}
	}
}

func (d *Document) fireSubdocs(added, removed []DocAddr) {
	for _, cb := range d.subdocsCbs {
		if cb != nil {
			cb(added, removed)
		}
	}
}

func (d *Document) fireAfterTransaction(t *Txn) {
	for _, cb := range d.afterCbs {
		if cb != nil {
			cb(t.beforeState, t.afterState, t.origin)
		}
	}
}

func (d *Document) fireCleanup(origin any) {
	for _, cb := range d.cleanupCbs {
		if cb != nil {
			cb(origin)
		}
	}
}

// Dump renders a brimtext-aligned table of the document's block store,
// for debugging.
func (d *Document) Dump() string {
	return d.store.blocks.Dump()
}

// String satisfies fmt.Stringer with a short identity summary.
func (d *Document) String() string {
	return fmt.Sprintf("Document{guid=%s client=%d}", d.store.options.Guid, d.store.options.ClientID)
}
