package crdtstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWrite(t *testing.T, d *Document, fn func(*Txn)) {
	t.Helper()
	txn, err := d.WriteTxn(nil)
	require.NoError(t, err)
	fn(txn)
	require.NoError(t, txn.Commit())
}

func TestConcurrentTextInsertAtOriginBreaksTiesByClient(t *testing.T) {
	a := Open(OptClientID(1))
	b := Open(OptClientID(2))

	mustWrite(t, a, func(txn *Txn) {
		require.NoError(t, a.Text("doc").Insert(txn, 0, "ab"))
	})
	mustWrite(t, b, func(txn *Txn) {
		require.NoError(t, b.Text("doc").Insert(txn, 0, "cd"))
	})

	updateFromA := a.EncodeStateAsUpdateV1(nil)
	updateFromB := b.EncodeStateAsUpdateV1(nil)

	require.NoError(t, b.ApplyUpdateV1(updateFromA, nil))
	require.NoError(t, a.ApplyUpdateV1(updateFromB, nil))

	assert.Equal(t, "cdab", a.Text("doc").String())
	assert.Equal(t, "cdab", b.Text("doc").String())
}

func TestConcurrentMapWriteConvergesOnSameWinner(t *testing.T) {
	a := Open(OptClientID(1))
	b := Open(OptClientID(2))

	mustWrite(t, a, func(txn *Txn) { a.Map("m").Set(txn, "k", "A") })
	mustWrite(t, b, func(txn *Txn) { b.Map("m").Set(txn, "k", "B") })

	updA := a.EncodeStateAsUpdateV1(nil)
	updB := b.EncodeStateAsUpdateV1(nil)
	require.NoError(t, b.ApplyUpdateV1(updA, nil))
	require.NoError(t, a.ApplyUpdateV1(updB, nil))

	// The client-id tie rule places the higher client's item earlier in
	// the key chain, so client 1's write ends up last and wins the key.
	va, _ := a.Map("m").Get("k")
	vb, _ := b.Map("m").Get("k")
	assert.Equal(t, "A", va)
	assert.Equal(t, "A", vb)

	// The losing item is tombstoned but still present in the block log.
	for _, d := range []*Document{a, b} {
		cell, ok := d.store.blocks.Get(ID{Client: 2, Clock: 0})
		require.True(t, ok)
		require.NotNil(t, cell.Item)
		assert.True(t, cell.Item.Deleted())
	}
}

func TestMapCausalOverwriteWinsEverywhere(t *testing.T) {
	a := Open(OptClientID(9))
	b := Open(OptClientID(1))

	mustWrite(t, a, func(txn *Txn) { a.Map("m").Set(txn, "k", "old") })
	require.NoError(t, b.ApplyUpdateV1(a.EncodeStateAsUpdateV1(nil), nil))

	// b has seen a's write; its overwrite anchors on it and must win on
	// both replicas despite b's lower client id.
	mustWrite(t, b, func(txn *Txn) { b.Map("m").Set(txn, "k", "new") })
	require.NoError(t, a.ApplyUpdateV1(b.EncodeStateAsUpdateV1(nil), nil))

	va, _ := a.Map("m").Get("k")
	vb, _ := b.Map("m").Get("k")
	assert.Equal(t, "new", va)
	assert.Equal(t, "new", vb)
}

func TestConcurrentInsertAndDeleteAcrossSplitConverges(t *testing.T) {
	a := Open(OptClientID(1))
	mustWrite(t, a, func(txn *Txn) {
		require.NoError(t, a.Text("doc").Insert(txn, 0, "hello world"))
	})

	b := Open(OptClientID(2))
	require.NoError(t, b.ApplyUpdateV1(a.EncodeStateAsUpdateV1(nil), nil))
	require.Equal(t, "hello world", b.Text("doc").String())

	baseState := b.EncodeStateVector()

	mustWrite(t, a, func(txn *Txn) {
		require.NoError(t, a.Text("doc").Insert(txn, 4, "X"))
	})
	mustWrite(t, b, func(txn *Txn) {
		b.Text("doc").Delete(txn, 3, 5)
	})

	sv, err := DecodeStateVector(baseState)
	require.NoError(t, err)
	updA := a.EncodeStateAsUpdateV1(sv)
	updB := b.EncodeStateAsUpdateV1(sv)

	require.NoError(t, b.ApplyUpdateV1(updA, nil))
	require.NoError(t, a.ApplyUpdateV1(updB, nil))

	assert.Equal(t, a.Text("doc").String(), b.Text("doc").String())
}

func TestPendingUpdateReconcilesOnceDependencyArrives(t *testing.T) {
	d := Open(OptClientID(1))
	d.Array("arr") // creates the root branch so the remote block's parent resolves

	// A remote block from client 7 whose left origin is client 7's own
	// clock-5 block, which this store has never seen.
	leftOrigin := ID{Client: 7, Clock: 5}
	dependent := &remoteBlock{
		id:         ID{Client: 7, Clock: 6},
		leftOrigin: &leftOrigin,
		parentName: "arr",
		content:    NewContentJSON("second"),
	}

	txn, err := d.WriteTxn(nil)
	require.NoError(t, err)
	err = txn.integrateBlocks([]*remoteBlock{dependent}, nil)
	require.ErrorIs(t, err, ErrPendingUpdate)
	require.NoError(t, txn.Commit())
	assert.Equal(t, 0, d.Array("arr").Len())

	// Now deliver client 7's blocks 0..5 (a single contiguous run standing
	// in for "first" in the six-slot sequence): this satisfies dependent's
	// left origin and should integrate it automatically in the same call.
	earlier := &remoteBlock{
		id:         ID{Client: 7, Clock: 0},
		parentName: "arr",
		content:    NewContentJSON("a", "b", "c", "d", "e", "first"),
	}

	txn2, err := d.WriteTxn(nil)
	require.NoError(t, err)
	err = txn2.integrateBlocks([]*remoteBlock{earlier}, nil)
	require.NoError(t, err)
	require.NoError(t, txn2.Commit())

	assert.Equal(t, 7, d.Array("arr").Len())
	assert.Equal(t, "second", d.Array("arr").ToSlice()[6])
}

func TestDeepObserverFiresWithPathLengthForNestedEdit(t *testing.T) {
	d := Open(OptClientID(1))
	var nestedText *Text
	var nestedArrayBranch *Branch

	mustWrite(t, d, func(txn *Txn) {
		m := d.Map("root")
		arrayBranch := m.SetEmbed(txn, "items", TypeArray)
		nestedArrayBranch = arrayBranch
		arr := &Array{branch: arrayBranch, doc: d}
		textBranch, err := arr.InsertEmbed(txn, 0, TypeText)
		require.NoError(t, err)
		nestedText = &Text{branch: textBranch, doc: d}
	})

	var gotPathLen = -1
	var gotTarget *Branch
	d.Map("root").Branch().ObserveDeep(func(events []Event) {
		for _, e := range events {
			if e.Target == nestedText.branch {
				gotPathLen = len(e.Path)
				gotTarget = e.Target
			}
		}
	})

	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, nestedText.Insert(txn, 0, "hi"))
	})

	assert.Equal(t, 2, gotPathLen)
	assert.Same(t, nestedText.branch, gotTarget)
	_ = nestedArrayBranch
}

func TestArrayMoveResolvesAtCommitAndReportsDeltas(t *testing.T) {
	d := Open(OptClientID(1))
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 0, "x", "y", "z"))
	})

	var changes []Change
	d.Array("a").Branch().Observe(func(e Event) { changes = append(changes, e.Changes...) })

	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Move(txn, 0, 1, 3))
	})
	assert.Equal(t, []any{"y", "z", "x"}, d.Array("a").ToSlice())

	assert.Contains(t, changes, Change{Kind: ChangeRemove, Index: 0, Len: 1})
	assert.Contains(t, changes, Change{Kind: ChangeAdd, Index: 2, Len: 1})

	// the moved item carries its Moved binding
	it, _, err := d.Array("a").Branch().GetAt(2)
	require.NoError(t, err)
	require.NotNil(t, it.Moved)

	// a later unrelated edit to the same branch must not re-run the move
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 3, "w"))
	})
	assert.Equal(t, []any{"y", "z", "x", "w"}, d.Array("a").ToSlice())
}

func TestArrayMoveRejectsDestinationInsideRange(t *testing.T) {
	d := Open(OptClientID(1))
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 0, "x", "y", "z"))
	})
	txn, err := d.WriteTxn(nil)
	require.NoError(t, err)
	assert.Error(t, d.Array("a").Move(txn, 0, 2, 1))
	txn.Abort()
	assert.Equal(t, []any{"x", "y", "z"}, d.Array("a").ToSlice())
}

func TestDeepObserverOnlySeesItsOwnSubtree(t *testing.T) {
	d := Open(OptClientID(1))
	var nested *Text
	mustWrite(t, d, func(txn *Txn) {
		m := d.Map("m")
		arrBranch := m.SetEmbed(txn, "items", TypeArray)
		arr := &Array{branch: arrBranch, doc: d}
		textBranch, err := arr.InsertEmbed(txn, 0, TypeText)
		require.NoError(t, err)
		nested = &Text{branch: textBranch, doc: d}
	})

	var got [][]Event
	d.Map("m").Branch().ObserveDeep(func(events []Event) { got = append(got, events) })

	// one transaction touching both an unrelated root and the nested text
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("unrelated").Insert(txn, 0, "noise"))
		require.NoError(t, nested.Insert(txn, 0, "hi"))
	})

	require.Len(t, got, 1)
	require.Len(t, got[0], 1)
	assert.Same(t, nested.branch, got[0][0].Target)
}

func TestSnapshotReproducesDocumentContentAsOfCapture(t *testing.T) {
	d := Open(OptClientID(1), OptSkipGC(true))
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Text("doc").Insert(txn, 0, "hello"))
	})
	snap := d.Snapshot()

	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Text("doc").Insert(txn, 5, " world"))
	})
	assert.Equal(t, "hello world", d.Text("doc").String())

	// The snapshot encoding replays the state as of the capture, not the
	// edits performed since.
	data, err := d.EncodeStateFromSnapshotV1(snap)
	require.NoError(t, err)

	replay := Open(OptClientID(9), OptSkipGC(true))
	require.NoError(t, replay.ApplyUpdateV1(data, nil))
	assert.Equal(t, "hello", replay.Text("doc").String())
}

func TestSnapshotWithoutSkipGCIsRejected(t *testing.T) {
	d := Open(OptClientID(1))
	snap := d.Snapshot()
	_, err := d.EncodeStateFromSnapshotV1(snap)
	assert.ErrorIs(t, err, ErrGCRequired)
}

func TestWriteTxnExcludesConcurrentReaders(t *testing.T) {
	d := Open(OptClientID(1))
	w, err := d.WriteTxn(nil)
	require.NoError(t, err)
	_, err = d.ReadTxn()
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)
	require.NoError(t, w.Commit())

	r, err := d.ReadTxn()
	require.NoError(t, err)
	_, err = d.WriteTxn(nil)
	assert.ErrorIs(t, err, ErrAlreadyBorrowedMut)
	r.Abort()
}

func TestArrayDeleteAndGet(t *testing.T) {
	d := Open(OptClientID(1))
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 0, "x", "y", "z"))
	})
	mustWrite(t, d, func(txn *Txn) {
		n := d.Array("a").Delete(txn, 1, 1)
		assert.Equal(t, 1, n)
	})
	assert.Equal(t, []any{"x", "z"}, d.Array("a").ToSlice())
}

func TestMapDeleteRemovesKey(t *testing.T) {
	d := Open(OptClientID(1))
	mustWrite(t, d, func(txn *Txn) {
		d.Map("m").Set(txn, "k", "v")
	})
	_, ok := d.Map("m").Get("k")
	require.True(t, ok)
	mustWrite(t, d, func(txn *Txn) {
		assert.True(t, d.Map("m").Delete(txn, "k"))
	})
	_, ok = d.Map("m").Get("k")
	assert.False(t, ok)
}
