package crdtstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeleteSetMergesOverlappingAndAdjoiningRanges(t *testing.T) {
	ds := NewDeleteSet()
	ds.Add(ID{Client: 1, Clock: 0}, 3) // [0,3)
	ds.Add(ID{Client: 1, Clock: 3}, 2) // [3,5) adjoins
	ds.Add(ID{Client: 1, Clock: 10}, 2)

	ranges := ds.Ranges(1)
	if assert.Len(t, ranges, 2) {
		assert.Equal(t, idRange{start: 0, len: 5}, ranges[0])
		assert.Equal(t, idRange{start: 10, len: 2}, ranges[1])
	}
}

func TestDeleteSetContains(t *testing.T) {
	ds := NewDeleteSet()
	ds.Add(ID{Client: 1, Clock: 5}, 4)
	assert.True(t, ds.Contains(ID{Client: 1, Clock: 5}))
	assert.True(t, ds.Contains(ID{Client: 1, Clock: 8}))
	assert.False(t, ds.Contains(ID{Client: 1, Clock: 9}))
	assert.False(t, ds.Contains(ID{Client: 2, Clock: 5}))
}

func TestDeleteSetIsEmpty(t *testing.T) {
	ds := NewDeleteSet()
	assert.True(t, ds.IsEmpty())
	ds.Add(ID{Client: 1, Clock: 0}, 1)
	assert.False(t, ds.IsEmpty())
}

func TestDeleteSetMerge(t *testing.T) {
	a := NewDeleteSet()
	a.Add(ID{Client: 1, Clock: 0}, 2)
	b := NewDeleteSet()
	b.Add(ID{Client: 1, Clock: 2}, 2)
	b.Add(ID{Client: 2, Clock: 0}, 1)
	a.Merge(b)
	assert.Equal(t, []idRange{{start: 0, len: 4}}, a.Ranges(1))
	assert.Equal(t, []idRange{{start: 0, len: 1}}, a.Ranges(2))
}
