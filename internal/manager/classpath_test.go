package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/region"
	"github.com/Voskan/scc-cachemap/internal/tsmanager"
)

func writeClassFile(t *testing.T, path string) int64 {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("jar bytes"), 0o644))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.ModTime().UnixNano()
}

func TestClasspathUpdateReturnsFreshWrapper(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	jar := filepath.Join(t.TempDir(), "a.jar")
	ts := writeClassFile(t, jar)
	entries := []ClasspathEntry{{Path: jar, Protocol: tsmanager.ProtocolArchive, Timestamp: ts}}

	e := writeItem(t, l, region.ItemClasspath, EncodeClasspathItem(entries))

	cm := NewClasspathManager(16)
	require.NoError(t, cm.StoreNew(l, e))

	w, err := cm.Update(entries)
	require.NoError(t, err)
	require.NotNil(t, w)
}

func TestClasspathUpdateMarksStaleWhenChanged(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	jar := filepath.Join(t.TempDir(), "a.jar")
	ts := writeClassFile(t, jar)
	entries := []ClasspathEntry{{Path: jar, Protocol: tsmanager.ProtocolArchive, Timestamp: ts}}

	e := writeItem(t, l, region.ItemClasspath, EncodeClasspathItem(entries))
	cm := NewClasspathManager(16)
	require.NoError(t, cm.StoreNew(l, e))

	require.NoError(t, os.WriteFile(jar, []byte("changed, much longer content now"), 0o644))

	w, err := cm.Update(entries)
	require.NoError(t, err)
	require.Nil(t, w)
	require.True(t, l.Stale(e.TrailerOff))
}

func TestClasspathValidate(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()
	entries := []ClasspathEntry{
		{Path: "/a.jar", Protocol: tsmanager.ProtocolArchive, Timestamp: 1},
		{Path: "/b.jar", Protocol: tsmanager.ProtocolArchive, Timestamp: 2},
	}
	e := writeItem(t, l, region.ItemClasspath, EncodeClasspathItem(entries))
	cm := NewClasspathManager(16)
	require.NoError(t, cm.StoreNew(l, e))

	wrapper, ok := cm.LookupByOffset(e.Offset)
	require.True(t, ok)

	caller := []ClasspathEntry{
		{Path: "/a.jar", Protocol: tsmanager.ProtocolArchive, Timestamp: 1},
		{Path: "/b.jar", Protocol: tsmanager.ProtocolArchive, Timestamp: 2},
		{Path: "/c.jar", Protocol: tsmanager.ProtocolArchive, Timestamp: 3},
	}
	require.True(t, cm.Validate(wrapper, 1, caller))
	require.False(t, cm.Validate(wrapper, 5, caller))

	caller[1].Timestamp = 999
	require.False(t, cm.Validate(wrapper, 1, caller))
}

func TestIdentifiedMatchShortCircuit(t *testing.T) {
	cm := NewClasspathManager(16)
	w := &ClasspathWrapper{}
	cm.RecordIdentifiedMatch(42, w)

	got, ok := cm.IdentifiedMatch(42)
	require.True(t, ok)
	require.Same(t, w, got)

	_, ok = cm.IdentifiedMatch(7)
	require.False(t, ok)
}

func TestClasspathReset(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()
	entries := []ClasspathEntry{{Path: "/a.jar", Protocol: tsmanager.ProtocolArchive, Timestamp: 1}}
	e := writeItem(t, l, region.ItemClasspath, EncodeClasspathItem(entries))
	cm := NewClasspathManager(16)
	require.NoError(t, cm.StoreNew(l, e))
	cm.Reset()

	_, ok := cm.LookupByOffset(e.Offset)
	require.False(t, ok)
}
