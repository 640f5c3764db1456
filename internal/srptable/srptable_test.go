package srptable

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndComputeSRP(t *testing.T) {
	tbl := New(0)
	key := Key{Tag: TagMain, Ordinal: 3}

	require.False(t, tbl.IsNotNull(key))
	require.NoError(t, tbl.Insert(key, 40))
	require.True(t, tbl.IsNotNull(key))
	require.False(t, tbl.IsInterned(key))

	tbl.SetBaseAddressForTag(TagMain, 1000)
	off, err := tbl.ComputeSRP(key, 1048)
	require.NoError(t, err)
	// absolute = 1000 + 40 = 1040; site = 1048 -> offset -8
	require.Equal(t, int64(-8), off)
}

func TestComputeSRPUnmarkedKeyReturnsZero(t *testing.T) {
	tbl := New(0)
	off, err := tbl.ComputeSRP(Key{Tag: TagUTF8, Ordinal: 99}, 500)
	require.NoError(t, err)
	require.Equal(t, int64(0), off)
}

func TestComputeSRPMissingBaseIsError(t *testing.T) {
	tbl := New(0)
	key := Key{Tag: TagVariableInfo, Ordinal: 1}
	require.NoError(t, tbl.Insert(key, 10))
	_, err := tbl.ComputeSRP(key, 0)
	require.Error(t, err)
}

func TestSetInternedAt(t *testing.T) {
	tbl := New(0)
	key := Key{Tag: TagUTF8, Ordinal: 7}
	tbl.SetInternedAt(key, 5000)
	require.True(t, tbl.IsInterned(key))
	require.True(t, tbl.IsNotNull(key))

	off, err := tbl.ComputeSRP(key, 5008)
	require.NoError(t, err)
	require.Equal(t, int64(-8), off)
}

func TestOutOfMemory(t *testing.T) {
	tbl := New(2)
	require.NoError(t, tbl.Insert(Key{Tag: TagMain, Ordinal: 1}, 1))
	require.NoError(t, tbl.Insert(Key{Tag: TagMain, Ordinal: 2}, 2))
	require.ErrorIs(t, tbl.Insert(Key{Tag: TagMain, Ordinal: 3}, 3), ErrOutOfMemory)
	// updating an existing key never counts against the cap
	require.NoError(t, tbl.Insert(Key{Tag: TagMain, Ordinal: 1}, 99))
}

func TestClearResetsState(t *testing.T) {
	tbl := New(0)
	key := Key{Tag: TagMain, Ordinal: 1}
	require.NoError(t, tbl.Insert(key, 10))
	tbl.SetBaseAddressForTag(TagMain, 100)
	tbl.Clear()
	require.False(t, tbl.IsNotNull(key))
	_, err := tbl.ComputeSRP(key, 0)
	require.NoError(t, err) // unmarked after clear, returns 0 not an error
}
