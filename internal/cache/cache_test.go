package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCache(t *testing.T) {
	c := NewMapCache(2)
	k1, k2, k3 := Key([]byte("a")), Key([]byte("b")), Key([]byte("c"))
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k1, Key([]byte("a")))

	_, ok := c.Get(k1)
	assert.False(t, ok)

	resp := []byte{1, 2, 3}
	c.Put(k1, resp)
	resp[0] = 9

	got, ok := c.Get(k1)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got, "cache stores a copy")
	got[1] = 9
	again, _ := c.Get(k1)
	assert.Equal(t, []byte{1, 2, 3}, again, "cache returns a copy")

	c.Put(k2, []byte{4})
	c.Put(k3, []byte{5})
	assert.Equal(t, 2, c.Size())
	_, ok = c.Get(k3)
	assert.True(t, ok)

	c.Put(k3, []byte{6})
	assert.Equal(t, 2, c.Size(), "overwrite does not evict")
}

func TestMapCache_Unbounded(t *testing.T) {
	c := NewMapCache(0)
	for i := 0; i < 100; i++ {
		c.Put(uint64(i), nil)
	}
	assert.Equal(t, 100, c.Size())
}
