package crdtstore

import "strings"

// Text is a thin facade over a sequence-shaped Branch whose items carry
// ContentString (runs of runes) and ContentFormat (embedded attribute
// markers). Formatting marks are stored inline as zero-length, single-slot
// items rather than as a side table, matching how the rest of the content
// substrate represents annotations.
type Text struct {
	branch *Branch
	doc    *Document
}

func (t *Text) Branch() *Branch { return t.branch }

// Len returns the number of live runes.
func (t *Text) Len() int { return t.branch.contentLen }

// Insert inserts s at the rune offset index.
func (t *Text) Insert(txn *Txn, index int, s string) error {
	pos, err := txn.indexToPosition(t.branch, index)
	if err != nil {
		return err
	}
	txn.createItem(pos, nil, NewContentString(s))
	return nil
}

// Format marks the rune range [index, index+length) with a key/value
// attribute, without altering the underlying characters. The range is
// bracketed by two zero-length marker items: one carrying value at
// index, and one carrying nil at index+length to close the range, the
// same two-marker shape Yjs-style rich text uses instead of a side table.
func (t *Text) Format(txn *Txn, index, length int, key string, value any) error {
	end := index + length
	endPos, err := txn.indexToPosition(t.branch, end)
	if err != nil {
		return err
	}
	txn.createItem(endPos, nil, NewContentFormat(key, nil))

	startPos, err := txn.indexToPosition(t.branch, index)
	if err != nil {
		return err
	}
	txn.createItem(startPos, nil, NewContentFormat(key, value))
	return nil
}

// Delete removes length runes starting at index.
func (t *Text) Delete(txn *Txn, index, length int) int {
	return txn.deleteRange(t.branch, index, length)
}

// String materializes the text's live character content, ignoring
// interleaved format markers.
func (t *Text) String() string {
	var sb strings.Builder
	t.branch.Iter(func(it *Item) bool {
		if cs, ok := it.Content.(*ContentString); ok {
			sb.WriteString(cs.String())
		}
		return true
	})
	return sb.String()
}
