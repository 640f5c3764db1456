package manager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/region"
)

func mkLayer(t *testing.T) *region.Layer {
	t.Helper()
	l, err := region.CreateLayer(filepath.Join(t.TempDir(), "layer0.scc"), region.CreateOptions{
		TotalSize:  256 * 1024,
		RWAreaSize: 4096,
	}, nil)
	require.NoError(t, err)
	return l
}

// writeItem allocates, writes, and commits one metadata-only item,
// returning its walked region.Entry (Offset/TrailerOff populated) so
// tests can feed it straight into a manager's StoreNew.
func writeItem(t *testing.T, l *region.Layer, typ region.ItemType, payload []byte) region.Entry {
	t.Helper()
	itemOff, err := l.AllocateItem(uint32(len(payload)), region.CategoryNormal)
	require.NoError(t, err)
	l.WriteItem(itemOff, region.ItemHeader{DataLen: uint32(len(payload)), DataType: typ}, payload, region.CategoryNormal)
	l.Commit()

	c, ok := l.FindStart()
	require.True(t, ok)
	var last region.Entry
	for {
		e, ok, err := l.NextEntry(&c)
		require.NoError(t, err)
		if !ok {
			break
		}
		if e.Offset == itemOff {
			last = e
		}
	}
	require.Equal(t, itemOff, last.Offset, "walked entry must be the one just written")
	return last
}
