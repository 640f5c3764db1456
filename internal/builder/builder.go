// Package builder implements the ROM-class build driver: parse (external
// oracle) -> measure -> attempt reuse -> allocate -> lay
// down -> commit, run under the layer's write mutex with manager indexes
// updated in lock-step so a find immediately after a store sees it
// without waiting for the next metadata walk.
package builder

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Voskan/scc-cachemap/internal/allocstrategy"
	"github.com/Voskan/scc-cachemap/internal/cursor"
	"github.com/Voskan/scc-cachemap/internal/manager"
	"github.com/Voskan/scc-cachemap/internal/region"
	"github.com/Voskan/scc-cachemap/internal/srptable"
)

// Request is one StoreROMClass call's input.
type Request struct {
	// Name is the binary class name being loaded, known before any
	// parsing happens; it is the key the build driver announces as
	// pending and the key singleflight collapses concurrent identical
	// requests on.
	Name string

	Oracle     ClassOracle
	ClassBytes []byte

	ClasspathWrapperOff uint64
	ClasspathIndex      int
	ClassTimestamp      int64
	PartitionScope      string
	ModContextScope     string
	JVMID               uint16

	// ProbableMatch is a caller-supplied "this looks like it might
	// already be cached" hint; when set it is compared against the new
	// build before anything is allocated. It is the only reuse candidate:
	// the driver does not look up other candidates in the ROM-class
	// manager.
	ProbableMatch *manager.ROMClassRecord
}

// Result is what a successful build reports back.
type Result struct {
	Reused bool // true if an existing ROM class was reused, no bytes written
	Record *manager.ROMClassRecord
}

// Driver orchestrates the six-stage pipeline against one layer chain's
// write head, its managers, and a shared cross-build intern table.
type Driver struct {
	layer    *region.Layer
	strategy allocstrategy.Strategy
	rom      *manager.ROMClassManager
	scope    *manager.ScopeManager
	interner *InternTable
	logger   *zap.Logger

	sf      singleflight.Group
	latency *movingAverage
}

// NewDriver constructs a build driver writing ROM classes into layer via
// the segment allocation strategy, the normal path for a shared cache.
func NewDriver(layer *region.Layer, rom *manager.ROMClassManager, scope *manager.ScopeManager, interner *InternTable, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		layer:    layer,
		strategy: allocstrategy.NewSegment(layer),
		rom:      rom,
		scope:    scope,
		interner: interner,
		logger:   logger,
		latency:  newMovingAverage(0.2),
	}
}

// AverageStoreLatency is the weighted moving average of observed commit
// latencies, used by callers that received DO_TRY_WAIT from
// ROMClassManager.LocateROMClass to size their wait before re-checking
//.
func (d *Driver) AverageStoreLatency() time.Duration { return d.latency.value() }

// StoreROMClass runs the full pipeline. Concurrent calls for the same
// class name collapse through singleflight, keyed by the name alone (the
// class bytes are not compared): only the first caller actually builds,
// later callers for the same name block and receive its result.
func (d *Driver) StoreROMClass(req Request) (*Result, error) {
	d.rom.MarkPending(req.Name)
	defer d.rom.ClearPending(req.Name)

	v, err, _ := d.sf.Do(req.Name, func() (interface{}, error) {
		return d.build(req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (d *Driver) build(req Request) (res *Result, err error) {
	start := time.Now()
	defer func() { d.latency.observe(time.Since(start)) }()

	plan, err := req.Oracle.Plan(req.ClassBytes)
	if err != nil {
		return nil, fmt.Errorf("builder: parse: %w", err)
	}

	// Step 2: measure. Out-of-line debug is only honored when the
	// strategy supports it; internal/allocstrategy's
	// Segment strategy never does, so the first counting pass already
	// folds everything — the "second inline pass" is a no-op retry in
	// that case and is skipped.
	table := srptable.New(0)
	measureSession := newSession(table, d.interner)
	counting := cursor.NewCounting(table)
	layoutROMClass(counting, counting, counting, plan, measureSession)
	if counting.Err() != nil {
		return nil, fmt.Errorf("builder: measure: %w", counting.Err())
	}
	mainLen := counting.Count()

	// Step 3: attempt reuse.
	if req.ProbableMatch != nil {
		if matched, tried := d.tryReuse(plan, req.ProbableMatch); tried && matched {
			return &Result{Reused: true, Record: req.ProbableMatch}, nil
		}
	}

	// Step 4: allocate.
	table.Clear()
	layout, handle, err := d.strategy.Allocate(allocstrategy.Request{
		MainLen:          mainLen,
		Category:         region.CategoryNormal,
		SegmentExclusive: plan.Anonymous,
	})
	if err != nil {
		return nil, err
	}
	table.SetBaseAddressForTag(srptable.TagMain, layout.AbsSiteBase)
	table.SetBaseAddressForTag(srptable.TagUTF8, layout.AbsSiteBase)
	table.SetBaseAddressForTag(srptable.TagLineNumber, layout.AbsSiteBase)
	table.SetBaseAddressForTag(srptable.TagVariableInfo, layout.AbsSiteBase)

	// Step 5: lay down.
	writeSession := newSession(table, d.interner)
	writing := cursor.NewWriting(layout.Main, layout.AbsSiteBase, table)
	layoutROMClass(writing, writing, writing, plan, writeSession)
	if writing.Err() != nil {
		return nil, fmt.Errorf("builder: lay down: %w", writing.Err())
	}
	actualLen := uint32(writing.Pos())

	// Step 6: commit.
	if err := d.strategy.UpdateFinalROMSize(handle, actualLen); err != nil {
		return nil, err
	}
	d.layer.WriteSegment(layout.AbsSiteBase, layout.Main[:actualLen])

	for i, s := range writeSession.interned {
		addr, _ := table.ComputeSRP(writeSession.internedKey[i], 0)
		d.interner.Record(s, uint64(addr))
	}

	if err := d.ensureScope(req.PartitionScope); err != nil {
		return nil, err
	}
	if err := d.ensureScope(req.ModContextScope); err != nil {
		return nil, err
	}

	payload := manager.EncodeROMClassItem(req.Name, req.ClasspathWrapperOff, req.ClasspathIndex,
		req.ClassTimestamp, req.PartitionScope, req.ModContextScope, layout.AbsSiteBase, actualLen)
	itemOff, err := d.layer.AllocateItem(uint32(len(payload)), region.CategoryNormal)
	if err != nil {
		return nil, err
	}
	hdr := region.ItemHeader{DataLen: uint32(len(payload)), DataType: region.ItemROMClass, JVMID: req.JVMID}
	trailerOff := d.layer.WriteItem(itemOff, hdr, payload, region.CategoryNormal)
	d.layer.Commit()

	entry := region.Entry{
		Header:     hdr,
		Payload:    d.layer.ReadAt(itemOff+8, uint32(len(payload))),
		Offset:     itemOff,
		TrailerOff: trailerOff,
	}
	if err := d.rom.StoreNew(d.layer, entry); err != nil {
		return nil, err
	}
	rec, _ := d.rom.LookupByOffset(itemOff)

	d.logger.Debug("builder: stored ROM class",
		zap.String("name", req.Name), zap.Uint32("bytes", actualLen))

	return &Result{Record: rec}, nil
}

// ensureScope interns scopeStr into the scope manager, writing a fresh
// SCOPE item when it hasn't been seen before. A blank scope is the common case (no
// partition / no module-context restriction) and is left unwritten.
func (d *Driver) ensureScope(scopeStr string) error {
	if scopeStr == "" {
		return nil
	}
	if _, ok := d.scope.Intern(scopeStr); ok {
		return nil
	}
	payload := []byte(scopeStr)
	itemOff, err := d.layer.AllocateItem(uint32(len(payload)), region.CategoryNormal)
	if err != nil {
		return err
	}
	hdr := region.ItemHeader{DataLen: uint32(len(payload)), DataType: region.ItemScope}
	trailerOff := d.layer.WriteItem(itemOff, hdr, payload, region.CategoryNormal)
	d.layer.Commit()
	d.scope.StoreNew(d.layer, region.Entry{Header: hdr, Payload: d.layer.ReadAt(itemOff+8, uint32(len(payload))), Offset: itemOff, TrailerOff: trailerOff})
	return nil
}

// tryReuse runs a comparing cursor against candidate's already-committed
// bytes. tried reports whether a comparison was run at all: it is false
// when the candidate records no segment bytes (SegmentLen == 0), so
// callers can tell "tried and failed" from "nothing to try".
func (d *Driver) tryReuse(plan *ClassPlan, candidate *manager.ROMClassRecord) (matched, tried bool) {
	if candidate.SegmentLen == 0 {
		return false, false
	}
	existing := d.layer.ReadAt(candidate.SegmentOffset, candidate.SegmentLen)
	comparing := cursor.NewComparing(existing)
	// Strings the candidate itself wrote inline were recorded into the
	// interner after its commit; hide them so this walk writes them inline
	// again, as the candidate did.
	visible := NewInternTable()
	d.interner.mu.RLock()
	for h, es := range d.interner.entries {
		for _, e := range es {
			if e.addr < candidate.SegmentOffset || e.addr >= candidate.SegmentOffset+uint64(candidate.SegmentLen) {
				visible.entries[h] = append(visible.entries[h], e)
			}
		}
	}
	d.interner.mu.RUnlock()
	compareSession := newSession(srptable.New(0), visible)
	layoutROMClass(comparing, comparing, comparing, plan, compareSession)
	return comparing.Matches(), true
}
