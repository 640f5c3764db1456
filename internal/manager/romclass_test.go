package manager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/region"
	"github.com/Voskan/scc-cachemap/internal/tsmanager"
)

func setupROMClassFixture(t *testing.T) (*region.Layer, *ClasspathManager, *ROMClassManager, ClasspathEntry) {
	t.Helper()
	l := mkLayer(t)
	jar := filepath.Join(t.TempDir(), "a.jar")
	ts := writeClassFile(t, jar)
	cpe := ClasspathEntry{Path: jar, Protocol: tsmanager.ProtocolArchive, Timestamp: ts}

	cpEntry := writeItem(t, l, region.ItemClasspath, EncodeClasspathItem([]ClasspathEntry{cpe}))
	cm := NewClasspathManager(16)
	require.NoError(t, cm.StoreNew(l, cpEntry))

	rm := NewROMClassManager(cm)
	rcPayload := EncodeROMClassItem("com/example/Foo", cpEntry.Offset, 0, 0, "", "", 0, 0)
	rcEntry := writeItem(t, l, region.ItemROMClass, rcPayload)
	require.NoError(t, rm.StoreNew(l, rcEntry))

	return l, cm, rm, cpe
}

func TestLocateROMClassFound(t *testing.T) {
	_, _, rm, cpe := setupROMClassFixture(t)
	caller := []ClasspathEntry{cpe}

	res, rec, _, err := rm.LocateROMClass("com/example/Foo", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, Found, res)
	require.NotNil(t, rec)
}

func TestLocateROMClassNotFound(t *testing.T) {
	_, _, rm, cpe := setupROMClassFixture(t)
	caller := []ClasspathEntry{cpe}

	res, _, _, err := rm.LocateROMClass("com/example/Missing", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, NotFound, res)
}

func TestLocateROMClassDoTryWait(t *testing.T) {
	_, _, rm, cpe := setupROMClassFixture(t)
	caller := []ClasspathEntry{cpe}

	rm.MarkPending("com/example/Pending")
	res, _, _, err := rm.LocateROMClass("com/example/Pending", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, DoTryWait, res)

	rm.ClearPending("com/example/Pending")
	res, _, _, err = rm.LocateROMClass("com/example/Pending", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, NotFound, res)
}

func TestLocateROMClassScopeMismatchNotFound(t *testing.T) {
	l, cm, rm, cpe := setupROMClassFixture(t)
	_ = l
	_ = cm
	caller := []ClasspathEntry{cpe}

	res, _, _, err := rm.LocateROMClass("com/example/Foo", caller, "partitionX", "")
	require.NoError(t, err)
	require.Equal(t, NotFound, res)
}

func TestLocateROMClassMarkedItemStale(t *testing.T) {
	l, _, rm, cpe := setupROMClassFixture(t)
	caller := []ClasspathEntry{cpe}

	res, rec, _, err := rm.LocateROMClass("com/example/Foo", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, Found, res)

	l.SetStale(rec.TrailerOff)

	res, _, _, err = rm.LocateROMClass("com/example/Foo", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, MarkedItemStale, res)
}

// TestLocateROMClassFoundShadow reproduces the canonical shadowing case: a
// classpath of [dir, jar], a class cached from the jar at index 1, and a
// .class file that shows up afterward in the directory entry at index 0 —
// earlier on the classpath than where the class was actually found. The
// cached entry is still perfectly valid, but the directory hit must take
// precedence on a real classload, so LocateROMClass reports FOUND_SHADOW
// instead of FOUND.
func TestLocateROMClassFoundShadow(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	dir := t.TempDir()
	jar := filepath.Join(t.TempDir(), "a.jar")
	jarTS := writeClassFile(t, jar)

	dirEntry := ClasspathEntry{Path: dir, Protocol: tsmanager.ProtocolDirectory}
	jarEntry := ClasspathEntry{Path: jar, Protocol: tsmanager.ProtocolArchive, Timestamp: jarTS}
	caller := []ClasspathEntry{dirEntry, jarEntry}

	cpEntry := writeItem(t, l, region.ItemClasspath, EncodeClasspathItem(caller))
	cm := NewClasspathManager(16)
	require.NoError(t, cm.StoreNew(l, cpEntry))

	rm := NewROMClassManager(cm)
	rcPayload := EncodeROMClassItem("com/example/Foo", cpEntry.Offset, 1, 0, "", "", 0, 0)
	rcEntry := writeItem(t, l, region.ItemROMClass, rcPayload)
	require.NoError(t, rm.StoreNew(l, rcEntry))

	res, rec, _, err := rm.LocateROMClass("com/example/Foo", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, Found, res)
	require.NotNil(t, rec)

	classFile := filepath.Join(dir, "com", "example", "Foo.class")
	require.NoError(t, os.MkdirAll(filepath.Dir(classFile), 0o755))
	require.NoError(t, os.WriteFile(classFile, []byte("new bytes"), 0o644))

	res, rec, _, err = rm.LocateROMClass("com/example/Foo", caller, "", "")
	require.NoError(t, err)
	require.Equal(t, FoundShadow, res)
	require.NotNil(t, rec)
}

func TestOrphanPromotedInPlace(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()
	cm := NewClasspathManager(16)
	rm := NewROMClassManager(cm)

	payload := EncodeROMClassItem("com/example/Bar", 0, 0, 0, "", "", 0, 0)
	e := writeItem(t, l, region.ItemOrphan, payload)
	require.NoError(t, rm.StoreNew(l, e))

	l.PromoteOrphan(e.Offset)

	c, ok := l.FindStart()
	require.True(t, ok)
	var promoted region.Entry
	for {
		ent, ok, err := l.NextEntry(&c)
		require.NoError(t, err)
		if !ok {
			break
		}
		if ent.Offset == e.Offset {
			promoted = ent
		}
	}
	require.Equal(t, region.ItemROMClass, promoted.Header.DataType)
	require.NoError(t, rm.StoreNew(l, promoted))

	rm.mu.RLock()
	rec := rm.byOffset[e.Offset]
	rm.mu.RUnlock()
	require.False(t, rec.IsOrphan())
}
