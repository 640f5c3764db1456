package manager

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/region"
)

func TestScopeInternAndLookup(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	e := writeItem(t, l, region.ItemScope, []byte("partition:foo"))
	sm := NewScopeManager()
	sm.StoreNew(l, e)

	off, ok := sm.Intern("partition:foo")
	require.True(t, ok)
	require.Equal(t, e.Offset, off)

	_, ok = sm.Intern("missing")
	require.False(t, ok)

	sm.Reset()
	_, ok = sm.Intern("partition:foo")
	require.False(t, ok)
}
