package tsmanager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherFlagsLikelyStaleOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "Foo.class")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	w, err := NewWatcher(nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WatchDirectory(dir))
	require.False(t, w.LikelyStale(file))

	require.NoError(t, os.WriteFile(file, []byte("v2, changed"), 0o644))

	require.Eventually(t, func() bool {
		return w.LikelyStale(file)
	}, time.Second, 10*time.Millisecond)

	w.ClearLikelyStale(file)
	require.False(t, w.LikelyStale(file))
}
