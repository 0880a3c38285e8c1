package crdtstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDocLinksSubdocumentAndFiresObserver(t *testing.T) {
	parent := Open(OptClientID(1), OptGuid("parent"))
	child := Open(OptClientID(2), OptGuid("child"))

	var added, removed []DocAddr
	parent.ObserveSubdocs(func(a, r []DocAddr) {
		added = append(added, a...)
		removed = append(removed, r...)
	})

	mustWrite(t, parent, func(txn *Txn) {
		require.NoError(t, parent.Map("docs").SetDoc(txn, "c", child))
	})

	require.Len(t, added, 1)
	assert.Equal(t, "child", added[0].Guid)
	assert.Same(t, child, parent.store.subdocs.docs[added[0]])
	require.NotNil(t, child.store.parent)

	mustWrite(t, parent, func(txn *Txn) {
		require.True(t, parent.Map("docs").Delete(txn, "c"))
	})

	require.Len(t, removed, 1)
	assert.Equal(t, "child", removed[0].Guid)
	_, ok := parent.store.subdocs.docs[removed[0]]
	assert.False(t, ok)
}

func TestSetDocRejectsSelfLink(t *testing.T) {
	p := Open(OptClientID(1), OptGuid("p"))
	txn, err := p.WriteTxn(nil)
	require.NoError(t, err)
	defer txn.Abort()
	assert.ErrorIs(t, p.Map("docs").SetDoc(txn, "self", p), ErrCyclicSubdoc)
}

func TestSetDocRejectsAncestorCycle(t *testing.T) {
	a := Open(OptClientID(1), OptGuid("a"))
	b := Open(OptClientID(2), OptGuid("b"))
	mustWrite(t, a, func(txn *Txn) {
		require.NoError(t, a.Map("docs").SetDoc(txn, "b", b))
	})
	// b is now below a in a's registry; linking a under b from the same
	// registry's point of view must close a cycle.
	err := a.store.subdocs.link(
		DocAddr{Guid: "b"},
		DocAddr{Guid: "a"},
		a,
	)
	assert.ErrorIs(t, err, ErrCyclicSubdoc)
}

func TestShardHintIsStableAndBounded(t *testing.T) {
	addr := DocAddr{Guid: "doc-1", CollectionID: "coll"}
	first := addr.ShardHint(8)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, addr.ShardHint(8))
	}
	assert.Less(t, first, uint64(8))
	assert.Equal(t, uint64(0), addr.ShardHint(0))
}
