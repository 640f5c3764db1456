package builder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/manager"
	"github.com/Voskan/scc-cachemap/internal/region"
)

func mkLayer(t *testing.T) *region.Layer {
	t.Helper()
	l, err := region.CreateLayer(filepath.Join(t.TempDir(), "layer0.scc"), region.CreateOptions{
		TotalSize:  512 * 1024,
		RWAreaSize: 4096,
	}, nil)
	require.NoError(t, err)
	return l
}

// literalOracle hands back a fixed plan regardless of the bytes given,
// standing in for the external class-file parser in tests.
type literalOracle struct{ plan *ClassPlan }

func (o literalOracle) Plan([]byte) (*ClassPlan, error) { return o.plan, nil }

func fooPlan() *ClassPlan {
	return &ClassPlan{
		Name:           "com/example/Foo",
		SuperclassName: "java/lang/Object",
		Interfaces:     []string{"java/io/Serializable"},
		UTF8Constants:  []string{"a constant"},
		Methods: []MethodPlan{
			{Name: "<init>", Descriptor: "()V", Code: []byte{0x2a, 0xb1}},
		},
		Modifiers: 0x21,
	}
}

func TestStoreROMClassRoundTrip(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	rom := manager.NewROMClassManager(manager.NewClasspathManager(16))
	scope := manager.NewScopeManager()
	interner := NewInternTable()
	d := NewDriver(l, rom, scope, interner, nil)

	res, err := d.StoreROMClass(Request{
		Name:           "com/example/Foo",
		Oracle:         literalOracle{plan: fooPlan()},
		ClassTimestamp: 1000,
	})
	require.NoError(t, err)
	require.False(t, res.Reused)
	require.NotNil(t, res.Record)
	require.Equal(t, "com/example/Foo", res.Record.Name)
	require.Greater(t, res.Record.SegmentLen, uint32(0))

	locRes, rec, _, err := rom.LocateROMClass("com/example/Foo", nil, "", "")
	require.NoError(t, err)
	require.Equal(t, manager.Found, locRes)
	require.Equal(t, res.Record.Offset, rec.Offset)
}

func TestStoreROMClassInternsSharedUTF8(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	rom := manager.NewROMClassManager(manager.NewClasspathManager(16))
	scope := manager.NewScopeManager()
	interner := NewInternTable()
	d := NewDriver(l, rom, scope, interner, nil)

	_, err := d.StoreROMClass(Request{Name: "com/example/Foo", Oracle: literalOracle{plan: fooPlan()}})
	require.NoError(t, err)

	barPlan := fooPlan()
	barPlan.Name = "com/example/Bar"
	_, err = d.StoreROMClass(Request{Name: "com/example/Bar", Oracle: literalOracle{plan: barPlan}})
	require.NoError(t, err)

	addr, ok := interner.Lookup("java/lang/Object")
	require.True(t, ok)
	require.NotZero(t, addr)
}

func TestStoreROMClassReusesProbableMatch(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	rom := manager.NewROMClassManager(manager.NewClasspathManager(16))
	scope := manager.NewScopeManager()
	interner := NewInternTable()
	d := NewDriver(l, rom, scope, interner, nil)

	first, err := d.StoreROMClass(Request{Name: "com/example/Foo", Oracle: literalOracle{plan: fooPlan()}})
	require.NoError(t, err)

	second, err := d.StoreROMClass(Request{
		Name:          "com/example/Foo",
		Oracle:        literalOracle{plan: fooPlan()},
		ProbableMatch: first.Record,
	})
	require.NoError(t, err)
	require.True(t, second.Reused)
	require.Equal(t, first.Record.Offset, second.Record.Offset)
}

func TestStoreROMClassWritesScopeOnce(t *testing.T) {
	l := mkLayer(t)
	defer l.Close()

	rom := manager.NewROMClassManager(manager.NewClasspathManager(16))
	scope := manager.NewScopeManager()
	interner := NewInternTable()
	d := NewDriver(l, rom, scope, interner, nil)

	plan := fooPlan()
	_, err := d.StoreROMClass(Request{Name: "com/example/Foo", Oracle: literalOracle{plan: plan}, PartitionScope: "partition:one"})
	require.NoError(t, err)

	off1, ok := scope.Intern("partition:one")
	require.True(t, ok)

	barPlan := fooPlan()
	barPlan.Name = "com/example/Bar"
	_, err = d.StoreROMClass(Request{Name: "com/example/Bar", Oracle: literalOracle{plan: barPlan}, PartitionScope: "partition:one"})
	require.NoError(t, err)

	off2, ok := scope.Intern("partition:one")
	require.True(t, ok)
	require.Equal(t, off1, off2)
}
