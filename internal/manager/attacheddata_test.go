package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/region"
)

func TestAttachedDataUpdateClearsMarker(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	payload := EncodeAttachedDataItem(0x2000, []byte("abcd"))
	e := writeItem(t, l, region.ItemAttachedData, payload)

	adm := NewAttachedDataManager()
	require.NoError(t, adm.StoreNew(l, e))

	rec, ok := adm.FindByROMMethod(0x2000)
	require.True(t, ok)
	require.False(t, rec.IsPartiallyWritten())

	rec.BeginUpdate()
	require.True(t, rec.IsPartiallyWritten())

	require.NoError(t, rec.CommitUpdate([]byte("wxyz")))
	require.False(t, rec.IsPartiallyWritten())
	require.Equal(t, []byte("wxyz"), rec.Value)
}

func TestAttachedDataCommitRejectsSizeMismatch(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	payload := EncodeAttachedDataItem(0x3000, []byte("abcd"))
	e := writeItem(t, l, region.ItemAttachedData, payload)

	adm := NewAttachedDataManager()
	require.NoError(t, adm.StoreNew(l, e))
	rec, _ := adm.FindByROMMethod(0x3000)

	require.Error(t, rec.CommitUpdate([]byte("too long now")))
}
