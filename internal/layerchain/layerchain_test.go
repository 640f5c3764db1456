package layerchain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/region"
)

func mkLayer(t *testing.T, dir, name string, layerNumber uint32) *region.Layer {
	t.Helper()
	l, err := region.CreateLayer(filepath.Join(dir, name), region.CreateOptions{
		TotalSize:   64 * 1024,
		RWAreaSize:  4096,
		LayerNumber: layerNumber,
	}, nil)
	require.NoError(t, err)
	return l
}

func writePrereq(t *testing.T, l *region.Layer, prereqID region.UniqueID) {
	t.Helper()
	payload := []byte(prereqID.String())
	segOff, itemOff, err := l.Allocate(uint32(len(payload)), uint32(len(payload)), region.CategoryNormal, false)
	require.NoError(t, err)
	l.WriteSegment(segOff, payload)
	l.WriteItem(itemOff, region.ItemHeader{DataLen: uint32(len(payload)), DataType: region.ItemPrereqCache}, payload, region.CategoryNormal)
	l.Commit()
}

func TestAttachSingleLayer(t *testing.T) {
	dir := t.TempDir()
	l0 := mkLayer(t, dir, "layer0.scc", 0)
	l0.Close()

	c, err := Attach(filepath.Join(dir, "layer0.scc"), region.OpenLayer, nil)
	require.NoError(t, err)
	defer c.Detach()
	require.Equal(t, 1, c.Depth())
	require.Equal(t, c.Top(), c.Layers()[0])
}

func TestAttachWithPrerequisite(t *testing.T) {
	dir := t.TempDir()
	l0 := mkLayer(t, dir, "layer0.scc", 0)
	id0 := l0.UniqueID()
	id0.Path = filepath.Join(dir, "layer0.scc")
	l0.Close()

	l1 := mkLayer(t, dir, "layer1.scc", 1)
	writePrereq(t, l1, id0)
	l1.Close()

	c, err := Attach(filepath.Join(dir, "layer1.scc"), region.OpenLayer, nil)
	require.NoError(t, err)
	defer c.Detach()
	require.Equal(t, 2, c.Depth())
	require.Equal(t, uint32(0), c.LayerNumber(0))
	require.Equal(t, uint32(1), c.LayerNumber(1))
}

func TestAttachRejectsMissingPrerequisite(t *testing.T) {
	dir := t.TempDir()
	id0 := region.UniqueID{Path: filepath.Join(dir, "missing.scc"), Layer: 0}

	l1 := mkLayer(t, dir, "layer1.scc", 1)
	writePrereq(t, l1, id0)
	l1.Close()

	_, err := Attach(filepath.Join(dir, "layer1.scc"), region.OpenLayer, nil)
	require.Error(t, err)
}

func TestAttachRejectsMismatchedUniqueID(t *testing.T) {
	dir := t.TempDir()
	l0 := mkLayer(t, dir, "layer0.scc", 0)
	l0.Close()

	bogus := region.UniqueID{Path: filepath.Join(dir, "layer0.scc"), Layer: 99, CreatedAt: 1}

	l1 := mkLayer(t, dir, "layer1.scc", 1)
	writePrereq(t, l1, bogus)
	l1.Close()

	_, err := Attach(filepath.Join(dir, "layer1.scc"), region.OpenLayer, nil)
	require.Error(t, err)
}

func TestAddressToOffsetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l0 := mkLayer(t, dir, "layer0.scc", 0)
	l0.Close()

	c, err := Attach(filepath.Join(dir, "layer0.scc"), region.OpenLayer, nil)
	require.NoError(t, err)
	defer c.Detach()

	addr, ok := c.OffsetToAddress(0, 128)
	require.True(t, ok)
	layerIdx, offset, ok := c.AddressToOffset(addr)
	require.True(t, ok)
	require.Equal(t, 0, layerIdx)
	require.Equal(t, uint64(128), offset)
}
