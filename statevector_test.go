package crdtstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateVectorGetSet(t *testing.T) {
	sv := NewStateVector()
	assert.Equal(t, Clock(0), sv.Get(1))
	sv.Set(1, 5)
	sv.Set(2, 3)
	assert.Equal(t, Clock(5), sv.Get(1))
	assert.Equal(t, []ClientID{1, 2}, sv.Clients())
}

func TestStateVectorGreaterOrEqual(t *testing.T) {
	a := NewStateVector()
	a.Set(1, 5)
	a.Set(2, 3)
	b := NewStateVector()
	b.Set(1, 4)
	assert.True(t, a.GreaterOrEqual(b))
	b.Set(2, 4)
	assert.False(t, a.GreaterOrEqual(b))
}

func TestStateVectorEqualIgnoresZeroEntries(t *testing.T) {
	a := NewStateVector()
	a.Set(1, 5)
	a.Set(3, 0)
	b := NewStateVector()
	b.Set(1, 5)
	assert.True(t, a.Equal(b))
}

func TestStateVectorCloneIsIndependent(t *testing.T) {
	a := NewStateVector()
	a.Set(1, 5)
	b := a.Clone()
	b.Set(1, 9)
	assert.Equal(t, Clock(5), a.Get(1))
	assert.Equal(t, Clock(9), b.Get(1))
}
