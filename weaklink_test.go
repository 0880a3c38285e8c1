package crdtstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakLinkSurvivesSplitOfTargetRun(t *testing.T) {
	d := Open(OptClientID(1))
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 0, "x", "y", "z"))
	})

	var link *WeakLink
	mustWrite(t, d, func(txn *Txn) {
		var err error
		link, err = d.Array("a").Quote(txn, 0)
		require.NoError(t, err)
	})

	c, ok := link.Deref()
	require.True(t, ok)
	assert.Equal(t, "x", c.(*ContentJSON).Values[0])

	// Splitting the quoted run must propagate the back-index to the new
	// right half.
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 1, "mid"))
	})

	rightHalf, _, err := d.Array("a").Branch().GetAt(2)
	require.NoError(t, err)
	assert.Contains(t, d.store.linkedBy.Referrers(rightHalf), link.Branch())

	// Linked halves are pinned out of the merge pass, so the referrer
	// index stays keyed by live item pointers.
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 4, "tail"))
	})
	_, ok = link.Deref()
	assert.True(t, ok)
}

func TestWeakLinkUnlinkClearsReferrers(t *testing.T) {
	d := Open(OptClientID(1))
	mustWrite(t, d, func(txn *Txn) {
		require.NoError(t, d.Array("a").Insert(txn, 0, "only"))
	})
	var link *WeakLink
	mustWrite(t, d, func(txn *Txn) {
		var err error
		link, err = d.Array("a").Quote(txn, 0)
		require.NoError(t, err)
	})
	target, _, err := d.Array("a").Branch().GetAt(0)
	require.NoError(t, err)
	require.True(t, target.Linked())

	mustWrite(t, d, func(txn *Txn) {
		link.Unlink(txn)
	})
	assert.Empty(t, d.store.linkedBy.Referrers(target))
	assert.False(t, target.Linked())
}
