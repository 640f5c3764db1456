package region

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOpts() CreateOptions {
	return CreateOptions{
		TotalSize:   64 * 1024,
		SoftMaxSize: 0,
		RWAreaSize:  4096,
		MinAOT:      0,
		MaxAOT:      0,
		MinJIT:      0,
		MaxJIT:      0,
		LayerNumber: 0,
	}
}

func TestCreateAndOpenLayer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer0.scc")

	l, err := CreateLayer(path, testOpts(), nil)
	require.NoError(t, err)
	defer l.Close()

	require.Equal(t, uint64(64*1024), l.TotalSize())
	require.Equal(t, uint32(0), l.LayerNumber())
	require.False(t, l.FullFlags().Has(FullBlock))

	l2, err := OpenLayer(path, nil)
	require.NoError(t, err)
	defer l2.Close()
	require.Equal(t, l.BuildID(), l2.BuildID())
}

func TestAllocateRespectsInvariant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer0.scc")
	l, err := CreateLayer(path, testOpts(), nil)
	require.NoError(t, err)
	defer l.Close()

	segOff, itemOff, err := l.Allocate(128, 32, CategoryNormal, false)
	require.NoError(t, err)
	require.Equal(t, uint64(HeaderSize), segOff)
	require.Less(t, segOff, itemOff)
	require.LessOrEqual(t, l.FreeBytes(), uint64(0)+l.TotalSize())
}

func TestAllocateFailsWhenFull(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer0.scc")
	opts := testOpts()
	opts.TotalSize = 8192
	opts.RWAreaSize = 4096
	l, err := CreateLayer(path, opts, nil)
	require.NoError(t, err)
	defer l.Close()

	_, _, err = l.Allocate(16*1024, 16, CategoryNormal, false)
	require.ErrorIs(t, err, ErrStoreFull)
	require.True(t, l.FullFlags().Has(FullBlock))
}

func TestWriteItemAndWalk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer0.scc")
	l, err := CreateLayer(path, testOpts(), nil)
	require.NoError(t, err)
	defer l.Close()

	payload := []byte("hello rom class bytes")
	segOff, itemOff, err := l.Allocate(uint32(len(payload)), uint32(len(payload)), CategoryNormal, false)
	require.NoError(t, err)

	l.WriteSegment(segOff, payload)
	trailerOff := l.WriteItem(itemOff, ItemHeader{DataLen: uint32(len(payload)), DataType: ItemClasspath}, payload, CategoryNormal)
	l.Commit()

	require.False(t, l.Stale(trailerOff))
	l.SetStale(trailerOff)
	require.True(t, l.Stale(trailerOff))
	// idempotent
	l.SetStale(trailerOff)
	require.True(t, l.Stale(trailerOff))

	c, ok := l.FindStart()
	require.True(t, ok)

	entry, ok, err := l.NextEntry(&c)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ItemClasspath, entry.Header.DataType)
	require.Equal(t, payload, entry.Payload)
	require.Equal(t, trailerOff, entry.TrailerOff)

	_, ok, err = l.NextEntry(&c)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWalkDetectsBadItemType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer0.scc")
	l, err := CreateLayer(path, testOpts(), nil)
	require.NoError(t, err)
	defer l.Close()

	payload := []byte("x")
	segOff, itemOff, err := l.Allocate(uint32(len(payload)), uint32(len(payload)), CategoryNormal, false)
	require.NoError(t, err)
	l.WriteSegment(segOff, payload)
	l.WriteItem(itemOff, ItemHeader{DataLen: uint32(len(payload)), DataType: ItemClasspath}, payload, CategoryNormal)

	// corrupt the type byte in place
	l.mf.data[itemOff+4] = 0xFF

	c, ok := l.FindStart()
	require.True(t, ok)
	_, _, err = l.NextEntry(&c)
	require.Error(t, err)

	code, _ := l.Corrupt()
	require.Equal(t, CorruptionBadItemType, code)
	require.True(t, l.FullFlags().Has(FullReadOnly))
}

func TestUniqueIDRoundTrip(t *testing.T) {
	id := UniqueID{
		Path:              "/var/cache/scc/layer0.scc",
		CreatedAt:         1234567890,
		MetadataBytes:     10,
		ClassBytes:        20,
		LineNumberBytes:   30,
		VariableInfoBytes: 40,
		Layer:             2,
	}
	s := id.String()
	parsed, err := ParseUniqueID(s)
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
}

func TestAttachDetachJVM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer0.scc")
	l, err := CreateLayer(path, testOpts(), nil)
	require.NoError(t, err)
	defer l.Close()

	id, slot, err := l.AttachJVM()
	require.NoError(t, err)
	require.NotEqual(t, -1, slot)
	require.NotEmpty(t, id.String())

	l.DetachJVM(slot)
	id2, slot2, err := l.AttachJVM()
	require.NoError(t, err)
	require.Equal(t, slot, slot2)
	require.NotEqual(t, id, id2)
}

func TestAcquireReleaseWriteReentrant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer0.scc")
	l, err := CreateLayer(path, testOpts(), nil)
	require.NoError(t, err)
	defer l.Close()

	_, slot, err := l.AttachJVM()
	require.NoError(t, err)

	crashed, err := l.AcquireWrite(slot)
	require.NoError(t, err)
	require.False(t, crashed)

	crashed, err = l.AcquireWrite(slot)
	require.NoError(t, err)
	require.False(t, crashed)

	require.NoError(t, l.ReleaseWrite(slot))
	require.NoError(t, l.ReleaseWrite(slot))
}
