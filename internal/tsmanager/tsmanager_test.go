package tsmanager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data string) int64 {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.ModTime().UnixNano()
}

func TestCheckArchiveUnchanged(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "app.jar")
	ts := writeFile(t, jar, "jar bytes")

	entry := Entry{Path: jar, Protocol: ProtocolArchive, Timestamp: ts}
	res, newTS, err := Check(entry, "", 0)
	require.NoError(t, err)
	require.Equal(t, Unchanged, res)
	require.Equal(t, ts, newTS)
}

func TestCheckArchiveChanged(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "app.jar")
	ts := writeFile(t, jar, "v1")

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, os.WriteFile(jar, []byte("v2, longer content"), 0o644))

	entry := Entry{Path: jar, Protocol: ProtocolArchive, Timestamp: ts}
	res, newTS, err := Check(entry, "", 0)
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.NotEqual(t, ts, newTS)
}

func TestCheckArchiveDisappeared(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "app.jar")
	ts := writeFile(t, jar, "jar bytes")
	require.NoError(t, os.Remove(jar))

	entry := Entry{Path: jar, Protocol: ProtocolArchive, Timestamp: ts}
	res, _, err := Check(entry, "", 0)
	require.NoError(t, err)
	require.Equal(t, Disappeared, res)
}

func TestCheckArchiveDoesNotExist(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "never-existed.jar")

	entry := Entry{Path: jar, Protocol: ProtocolArchive, Timestamp: -1}
	res, _, err := Check(entry, "", 0)
	require.NoError(t, err)
	require.Equal(t, DoesNotExist, res)
}

func TestCheckDirectoryPerClass(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "com", "example"), 0o755))
	classFile := filepath.Join(dir, "com", "example", "Foo.class")
	classTS := writeFile(t, classFile, "classfile bytes")

	entry := Entry{Path: dir, Protocol: ProtocolDirectory, Timestamp: -1}

	res, newTS, err := Check(entry, "com/example/Foo", classTS)
	require.NoError(t, err)
	require.Equal(t, Unchanged, res)
	require.Equal(t, classTS, newTS)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, os.WriteFile(classFile, []byte("changed classfile bytes, longer"), 0o644))

	res, newTS, err = Check(entry, "com/example/Foo", classTS)
	require.NoError(t, err)
	require.Equal(t, Changed, res)
	require.NotEqual(t, classTS, newTS)
}

func TestCheckDirectoryMissingClass(t *testing.T) {
	dir := t.TempDir()
	entry := Entry{Path: dir, Protocol: ProtocolDirectory, Timestamp: -1}

	res, _, err := Check(entry, "com/example/Missing", -1)
	require.NoError(t, err)
	require.Equal(t, DoesNotExist, res)
}
