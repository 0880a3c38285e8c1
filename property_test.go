package crdtstore

import (
	"testing"

	"pgregory.net/rapid"
)

// textOp is one scripted Text mutation applied by the property machines
// below: either an insertion of a short run at a clamped index, or a
// deletion of a clamped range.
type textOp struct {
	insert bool
	index  int
	text   string
	length int
}

func genTextOp(t *rapid.T) textOp {
	if rapid.Bool().Draw(t, "isInsert") {
		return textOp{
			insert: true,
			index:  rapid.IntRange(0, 20).Draw(t, "index"),
			text:   rapid.StringN(1, 3, -1).Draw(t, "text"),
		}
	}
	return textOp{
		index:  rapid.IntRange(0, 20).Draw(t, "index"),
		length: rapid.IntRange(1, 5).Draw(t, "length"),
	}
}

func applyTextOp(d *Document, op textOp) {
	txn, err := d.WriteTxn(nil)
	if err != nil {
		return
	}
	text := d.Text("doc")
	n := text.Len()
	if op.insert {
		idx := op.index
		if idx > n {
			idx = n
		}
		_ = text.Insert(txn, idx, op.text)
	} else if n > 0 {
		idx := op.index % n
		length := op.length
		if idx+length > n {
			length = n - idx
		}
		if length > 0 {
			text.Delete(txn, idx, length)
		}
	}
	_ = txn.Commit()
}

// TestConvergenceUnderReorderedUpdateDelivery checks that two replicas
// each performing an independent, randomly generated script of local
// edits converge to the same text regardless of the order updates are
// exchanged in, and that applying the same update twice (idempotence)
// does not change the result.
func TestConvergenceUnderReorderedUpdateDelivery(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		opsA := rapid.SliceOfN(rapid.Custom(genTextOp), 1, 6).Draw(t, "opsA")
		opsB := rapid.SliceOfN(rapid.Custom(genTextOp), 1, 6).Draw(t, "opsB")

		a := Open(OptClientID(1))
		b := Open(OptClientID(2))
		for _, op := range opsA {
			applyTextOp(a, op)
		}
		for _, op := range opsB {
			applyTextOp(b, op)
		}

		updA := a.EncodeStateAsUpdateV1(nil)
		updB := b.EncodeStateAsUpdateV1(nil)

		// Deliver in one order to replica a, the opposite order to a
		// fresh replica c, and apply updA to b twice (idempotence).
		if err := b.ApplyUpdateV1(updA, nil); err != nil && err != ErrPendingUpdate {
			t.Fatalf("apply updA into b: %v", err)
		}
		if err := b.ApplyUpdateV1(updA, nil); err != nil && err != ErrPendingUpdate {
			t.Fatalf("re-apply updA into b: %v", err)
		}

		c := Open(OptClientID(3))
		if err := c.ApplyUpdateV1(updB, nil); err != nil && err != ErrPendingUpdate {
			t.Fatalf("apply updB into c: %v", err)
		}
		if err := c.ApplyUpdateV1(updA, nil); err != nil && err != ErrPendingUpdate {
			t.Fatalf("apply updA into c: %v", err)
		}

		if err := a.ApplyUpdateV1(updB, nil); err != nil && err != ErrPendingUpdate {
			t.Fatalf("apply updB into a: %v", err)
		}

		if a.Text("doc").String() != b.Text("doc").String() {
			t.Fatalf("a and b diverged: %q vs %q", a.Text("doc").String(), b.Text("doc").String())
		}
		if a.Text("doc").String() != c.Text("doc").String() {
			t.Fatalf("a and c diverged: %q vs %q", a.Text("doc").String(), c.Text("doc").String())
		}
	})
}

// TestStateVectorCodecRoundTripProperty checks DecodeStateVector(Encode
// StateVector(sv)) == sv for arbitrary client/clock maps.
func TestStateVectorCodecRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		clients := rapid.SliceOfDistinct(rapid.Uint64Range(0, 50), func(c uint64) uint64 { return c }).Draw(t, "clients")
		sv := NewStateVector()
		for _, c := range clients {
			clk := rapid.Uint64Range(0, 1000).Draw(t, "clock")
			sv.Set(ClientID(c), Clock(clk))
		}

		data := EncodeStateVector(sv)
		got, err := DecodeStateVector(data)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if !sv.Equal(got) {
			t.Fatalf("round trip mismatch: %v vs %v", sv, got)
		}
	})
}

// TestStateVectorMonotonicAfterLocalEdits checks that a replica's own
// state vector never decreases as it performs further local edits.
func TestStateVectorMonotonicAfterLocalEdits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ops := rapid.SliceOfN(rapid.Custom(genTextOp), 1, 8).Draw(t, "ops")
		d := Open(OptClientID(1))
		prev := NewStateVector()
		for _, op := range ops {
			applyTextOp(d, op)
			cur := d.EncodeStateVector()
			curSV, err := DecodeStateVector(cur)
			if err != nil {
				t.Fatalf("decode state vector: %v", err)
			}
			if !curSV.GreaterOrEqual(prev) {
				t.Fatalf("state vector decreased: %v -> %v", prev, curSV)
			}
			prev = curSV
		}
	})
}

// TestDeleteSetMergeIsMonotonicAndOrderIndependent checks that merging a
// batch of delete ranges into a DeleteSet in any order produces the same
// final set of merged ranges, and that the merged set is never smaller
// than either input.
func TestDeleteSetMergeIsMonotonicAndOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		var starts []Clock
		for i := 0; i < n; i++ {
			starts = append(starts, Clock(rapid.IntRange(0, 40).Draw(t, "start")))
		}

		forward := NewDeleteSet()
		backward := NewDeleteSet()
		for i := 0; i < n; i++ {
			length := uint32(rapid.IntRange(1, 5).Draw(t, "length"))
			forward.Add(ID{Client: 1, Clock: starts[i]}, length)
			backward.Add(ID{Client: 1, Clock: starts[n-1-i]}, length)
		}

		if len(forward.Ranges(1)) != len(backward.Ranges(1)) {
			t.Fatalf("merge order affected range count: %d vs %d", len(forward.Ranges(1)), len(backward.Ranges(1)))
		}
		for _, r := range forward.Ranges(1) {
			if !backward.Contains(ID{Client: 1, Clock: r.start}) {
				t.Fatalf("range %v present in forward but not backward", r)
			}
		}
	})
}

// TestUpdateCodecRoundTripProperty checks that arbitrary remote block
// batches survive an encode/decode cycle through both wire versions.
func TestUpdateCodecRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		var blocks []*remoteBlock
		var client uint64 = 1
		var clock uint64
		for i := 0; i < n; i++ {
			id := ID{Client: ClientID(client), Clock: Clock(clock)}
			s := rapid.StringN(0, 5, -1).Draw(t, "s")
			clock += uint64(len([]rune(s))) + 1
			blocks = append(blocks, &remoteBlock{
				id:         id,
				parentName: "root",
				content:    NewContentString(s),
			})
		}

		data1 := EncodeUpdateV1(blocks, NewDeleteSet())
		gotBlocks1, _, err := DecodeUpdateV1(data1)
		if err != nil {
			t.Fatalf("v1 decode: %v", err)
		}
		if len(gotBlocks1) != len(blocks) {
			t.Fatalf("v1 block count mismatch: %d vs %d", len(gotBlocks1), len(blocks))
		}

		data2 := EncodeUpdateV2(blocks, NewDeleteSet())
		gotBlocks2, _, err := DecodeUpdateV2(data2)
		if err != nil {
			t.Fatalf("v2 decode: %v", err)
		}
		if len(gotBlocks2) != len(blocks) {
			t.Fatalf("v2 block count mismatch: %d vs %d", len(gotBlocks2), len(blocks))
		}
		for i := range blocks {
			if gotBlocks1[i].id != blocks[i].id || gotBlocks2[i].id != blocks[i].id {
				t.Fatalf("id mismatch at %d", i)
			}
			wantStr := blocks[i].content.(*ContentString).String()
			if gotBlocks1[i].content.(*ContentString).String() != wantStr {
				t.Fatalf("v1 content mismatch at %d", i)
			}
			if gotBlocks2[i].content.(*ContentString).String() != wantStr {
				t.Fatalf("v2 content mismatch at %d", i)
			}
		}
	})
}
