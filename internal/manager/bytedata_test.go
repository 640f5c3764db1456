package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/region"
)

func TestByteDataIndexedFind(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	payload := EncodeByteDataItem(KindJCL, "java/lang/Object", true, false, true, false, []byte("jcl bytes"))
	e := writeItem(t, l, region.ItemByteData, payload)

	bm := NewByteDataManager()
	require.NoError(t, bm.StoreNew(l, e))

	rec, ok := bm.FindIndexed(KindJCL, "java/lang/Object")
	require.True(t, ok)
	require.Equal(t, []byte("jcl bytes"), rec.Value)

	_, ok = bm.FindIndexed(KindJCL, "missing")
	require.False(t, ok)
}

func TestByteDataUnindexedByOffset(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	payload := EncodeByteDataItem(KindZipCache, "", false, false, false, false, []byte("zip index bytes"))
	e := writeItem(t, l, region.ItemUnindexedByteData, payload)

	bm := NewByteDataManager()
	require.NoError(t, bm.StoreNew(l, e))

	rec, ok := bm.FindByOffset(e.Offset)
	require.True(t, ok)
	require.Equal(t, []byte("zip index bytes"), rec.Value)
}

func TestByteDataOverwriteInPlace(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	payload := EncodeByteDataItem(KindAOTHeader, "header", true, false, false, true, []byte("aaaa"))
	e := writeItem(t, l, region.ItemByteData, payload)

	bm := NewByteDataManager()
	require.NoError(t, bm.StoreNew(l, e))

	rec, ok := bm.FindIndexed(KindAOTHeader, "header")
	require.True(t, ok)

	require.NoError(t, bm.OverwriteInPlace(rec, []byte("bbbb")))
	require.Equal(t, []byte("bbbb"), rec.Value)

	// confirm it actually mutated the mapped bytes, not just the local slice
	c, ok := l.FindStart()
	require.True(t, ok)
	var walked region.Entry
	for {
		ent, ok, err := l.NextEntry(&c)
		require.NoError(t, err)
		if !ok {
			break
		}
		if ent.Offset == e.Offset {
			walked = ent
		}
	}
	require.Contains(t, string(walked.Payload), "bbbb")

	require.Error(t, bm.OverwriteInPlace(rec, []byte("too-long-now")))
}

func TestByteDataOverwriteInPlaceRejectsWithoutPermission(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	payload := EncodeByteDataItem(KindJITHint, "hint", true, false, false, false, []byte("aaaa"))
	e := writeItem(t, l, region.ItemByteData, payload)

	bm := NewByteDataManager()
	require.NoError(t, bm.StoreNew(l, e))
	rec, _ := bm.FindIndexed(KindJITHint, "hint")

	require.Error(t, bm.OverwriteInPlace(rec, []byte("bbbb")))
}
