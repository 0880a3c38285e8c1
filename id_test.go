package crdtstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientHashRequiresEightBytes(t *testing.T) {
	_, err := clientHash([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = clientHash(make([]byte, 16))
	assert.Error(t, err, "a 16-byte input must be rejected: the wire contract is a single 8-byte u64")

	v, err := clientHash([]byte{1, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestIDOrdering(t *testing.T) {
	a := ID{Client: 1, Clock: 5}
	b := ID{Client: 1, Clock: 6}
	c := ID{Client: 2, Clock: 0}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
}

func TestNewClientIDWithinSafeRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := NewClientID()
		assert.Less(t, uint64(id), maxSafeClientID)
	}
}
