package crdtstore

import "fmt"

// Array is a thin facade over a sequence-shaped Branch.
type Array struct {
	branch *Branch
	doc    *Document
}

func (a *Array) Branch() *Branch { return a.branch }

// Len returns the number of live elements.
func (a *Array) Len() int { return a.branch.contentLen }

// Insert inserts values at index within the given write transaction.
func (a *Array) Insert(t *Txn, index int, values ...any) error {
	pos, err := t.indexToPosition(a.branch, index)
	if err != nil {
		return err
	}
	t.createItem(pos, nil, NewContentJSON(values...))
	return nil
}

// InsertEmbed inserts a new nested branch of kind typeRef at index and
// returns it.
func (a *Array) InsertEmbed(t *Txn, index int, typeRef TypeRef) (*Branch, error) {
	pos, err := t.indexToPosition(a.branch, index)
	if err != nil {
		return nil, err
	}
	nested := NewBranch(typeRef)
	t.createItem(pos, nil, NewContentType(nested))
	return nested, nil
}

// Delete removes length elements starting at index.
func (a *Array) Delete(t *Txn, index, length int) int {
	return t.deleteRange(a.branch, index, length)
}

// Move relocates length elements starting at index to sit at dest, with
// dest expressed in pre-move indices and outside the moved range. The
// move is recorded as a content-level operation and resolved at commit,
// which reports it to observers as a removal at the old position and an
// addition at the new one.
func (a *Array) Move(t *Txn, index, length, dest int) error {
	t.requireWritable()
	if length <= 0 {
		return fmt.Errorf("crdtstore: move length must be positive, got %d", length)
	}
	if dest > index && dest < index+length {
		return fmt.Errorf("crdtstore: move destination %d falls inside the moved range [%d,%d)", dest, index, index+length)
	}
	from, err := t.indexToPosition(a.branch, index)
	if err != nil {
		return err
	}
	to, err := t.indexToPosition(a.branch, index+length)
	if err != nil {
		return err
	}
	start, end := from.right, to.left
	for start != nil && (start.Deleted() || !start.Countable()) {
		start = start.Right
	}
	for end != nil && (end.Deleted() || !end.Countable()) {
		end = end.Left
	}
	if start == nil || end == nil {
		return fmt.Errorf("%w: move range [%d,%d) holds no live elements", ErrNotFound, index, index+length)
	}
	pos, err := t.indexToPosition(a.branch, dest)
	if err != nil {
		return err
	}
	t.createItem(pos, nil, NewContentMove(start.ID, end.ID, false, true, 0))
	return nil
}

// Get returns the element at index.
func (a *Array) Get(index int) (any, error) {
	it, local, err := a.branch.GetAt(index)
	if err != nil {
		return nil, err
	}
	switch c := it.Content.(type) {
	case *ContentJSON:
		return c.Values[local], nil
	case *ContentString:
		return string(c.Value[local]), nil
	case *ContentType:
		return c.Branch, nil
	case *ContentBinary:
		return c.Data, nil
	default:
		return nil, nil
	}
}

// ToSlice materialises the array's live contents.
func (a *Array) ToSlice() []any {
	out := make([]any, 0, a.branch.contentLen)
	a.branch.Iter(func(it *Item) bool {
		switch c := it.Content.(type) {
		case *ContentJSON:
			out = append(out, c.Values...)
		case *ContentType:
			out = append(out, c.Branch)
		case *ContentBinary:
			out = append(out, c.Data)
		}
		return true
	})
	return out
}
