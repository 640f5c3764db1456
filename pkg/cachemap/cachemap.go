// Package cachemap is the top-level, public API of a composite shared-class
// cache: Attach opens (and recursively attaches the prerequisites of) a
// layer chain and populates its six managers; Refresh replays metadata
// appended by other processes since the last observed update counter;
// MarkStaleMatching and the AOT method operations flip item state in place;
// FindROMClass/StoreROMClass are the hot-path find/store pair.
//
// Where a generic cache shards one key space across N shards, a CacheMap
// instead coordinates a layerchain.Chain of region.Layer files plus the
// fixed set of internal/manager indexes and one internal/builder.Driver.
package cachemap

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Voskan/scc-cachemap/internal/builder"
	"github.com/Voskan/scc-cachemap/internal/history"
	"github.com/Voskan/scc-cachemap/internal/layerchain"
	"github.com/Voskan/scc-cachemap/internal/manager"
	"github.com/Voskan/scc-cachemap/internal/reentrant"
	"github.com/Voskan/scc-cachemap/internal/region"
)

// CacheMap is one attached composite cache: a chain of layer files plus the
// in-memory indexes built from walking their metadata.
type CacheMap struct {
	cfg     *config
	chain   *layerchain.Chain
	mgrs    *managers
	driver  *builder.Driver
	history *history.Recorder

	jvmSlot   int
	refreshMu reentrant.Mutex

	metaMu        sync.Mutex
	hasScanned    bool
	lastMetaFront uint64

	metrics metricsSink
	logger  *zap.Logger
}

// Attach opens topPath, recursively attaching every prerequisite layer it
// declares, then scans every layer bottom-up into
// the six managers. Only the top layer's scan is taken under its write
// mutex — lower layers are sealed once superseded (layerchain.Chain never
// writes to them again), so their metadata is immutable and needs no lock
// to read safely.
func Attach(topPath string, opts ...Option) (*CacheMap, error) {
	cfg := defaultConfig()
	applyOptions(cfg, opts)

	opener := func(path string) (*region.Layer, error) { return region.OpenLayer(path, cfg.logger) }
	chain, err := layerchain.Attach(topPath, opener, cfg.logger)
	if err != nil {
		return nil, err
	}

	mgrs := newManagers(cfg)
	cm := &CacheMap{
		cfg:     cfg,
		chain:   chain,
		mgrs:    mgrs,
		metrics: newMetricsSink(cfg.registry),
		logger:  cfg.logger,
	}

	layers := chain.Layers()
	for i, l := range layers {
		if i < len(layers)-1 {
			if _, _, err := scanLayer(l, mgrs, 0, false); err != nil {
				chain.Detach()
				return nil, fmt.Errorf("cachemap: scanning prerequisite layer %s: %w", l.Path(), err)
			}
			continue
		}

		slot, _, err := l.AttachJVM()
		if err != nil {
			chain.Detach()
			return nil, fmt.Errorf("cachemap: attach JVM slot: %w", err)
		}
		cm.jvmSlot = slot

		crashDetected, err := l.AcquireWrite(slot)
		if err != nil {
			chain.Detach()
			return nil, fmt.Errorf("cachemap: acquire write mutex for startup scan: %w", err)
		}
		if crashDetected {
			// Drop and rebuild from the surviving committed tail rather
			// than trusting a partial in-memory index left by an
			// interrupted writer.
			mgrs.reset()
			if cm.logger != nil {
				cm.logger.Warn("cachemap: crash detected on attach, rebuilding indexes", zap.String("path", l.Path()))
			}
		}
		newest, any, err := scanLayer(l, mgrs, 0, false)
		l.ReleaseWrite(slot)
		if err != nil {
			chain.Detach()
			return nil, fmt.Errorf("cachemap: scanning top layer %s: %w", l.Path(), err)
		}
		if any {
			cm.lastMetaFront, cm.hasScanned = newest, true
		}
	}

	cm.driver = builder.NewDriver(chain.Top(), mgrs.ROMClass, mgrs.Scope, builder.NewInternTable(), cfg.logger)

	if cfg.historyDir != "" {
		rec, err := history.Open(cfg.historyDir)
		if err != nil {
			chain.Detach()
			return nil, fmt.Errorf("cachemap: opening history store: %w", err)
		}
		cm.history = rec
	}

	return cm, nil
}

// Detach releases this process's JVM-ID slot and unmaps every layer.
func (cm *CacheMap) Detach() error {
	cm.chain.Top().DetachJVM(cm.jvmSlot)
	var firstErr error
	if cm.history != nil {
		firstErr = cm.history.Close()
	}
	if err := cm.chain.Detach(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// scanLayer walks l's metadata from the newest committed item toward older
// ones, handing every entry to all six managers (each StoreNew already
// no-ops on item types it doesn't own, per internal/manager's shared
// skeleton) and stopping once it reaches an item already covered by a
// prior scan (hasStop, stopAt). newest is the smallest offset seen (the
// first entry returned, since items are allocated by decreasing address),
// the high-water mark the next incremental scan should stop at.
func scanLayer(l *region.Layer, mgrs *managers, stopAt uint64, hasStop bool) (newest uint64, any bool, err error) {
	c, ok := l.FindStart()
	if !ok {
		return 0, false, nil
	}
	first := true
	for {
		entry, ok, err := l.NextEntry(&c)
		if err != nil {
			return 0, any, err
		}
		if !ok {
			break
		}
		if hasStop && entry.Offset >= stopAt {
			break
		}
		if first {
			newest, first, any = entry.Offset, false, true
		}
		if err := dispatchEntry(mgrs, l, entry); err != nil {
			return 0, any, err
		}
	}
	return newest, any, nil
}

func dispatchEntry(mgrs *managers, l *region.Layer, e region.Entry) error {
	if err := mgrs.Classpath.StoreNew(l, e); err != nil {
		return err
	}
	if err := mgrs.ROMClass.StoreNew(l, e); err != nil {
		return err
	}
	mgrs.Scope.StoreNew(l, e)
	if err := mgrs.ByteData.StoreNew(l, e); err != nil {
		return err
	}
	if err := mgrs.CompiledMethod.StoreNew(l, e); err != nil {
		return err
	}
	if err := mgrs.AttachedData.StoreNew(l, e); err != nil {
		return err
	}
	return nil
}

// advanceMetaFront records offset as the newest item this process has
// itself committed, so a subsequent Refresh's stop condition does not
// re-walk (and re-index, duplicating bucket entries for) work this
// process already did directly via StoreROMClass/ensureScope.
func (cm *CacheMap) advanceMetaFront(offset uint64) {
	cm.metaMu.Lock()
	defer cm.metaMu.Unlock()
	if !cm.hasScanned || offset < cm.lastMetaFront {
		cm.lastMetaFront, cm.hasScanned = offset, true
	}
}

// Refresh replays into the managers any metadata another process appended
// to the top layer since this process's last scan, under the re-entrant refresh mutex so a caller already
// holding it can call back in without deadlocking.
func (cm *CacheMap) Refresh() error {
	fresh := cm.refreshMu.Lock(cm.jvmSlot)
	defer cm.refreshMu.Unlock(cm.jvmSlot)
	if !fresh {
		return nil
	}

	top := cm.chain.Top()
	cm.metaMu.Lock()
	stopAt, hasStop := cm.lastMetaFront, cm.hasScanned
	cm.metaMu.Unlock()

	newest, any, err := scanLayer(top, cm.mgrs, stopAt, hasStop)
	if err != nil {
		return fmt.Errorf("cachemap: refresh: %w", err)
	}
	if any {
		cm.advanceMetaFront(newest)
	}
	return nil
}

// FindROMClass locates a cached ROM class, optionally honoring a single
// bounded try-wait retry when another process is mid-store.
func (cm *CacheMap) FindROMClass(name string, callerCP []manager.ClasspathEntry, partition, modContext string) (manager.LocateResult, *manager.ROMClassRecord, *manager.ClasspathEntry, error) {
	res, rec, cpe, err := cm.mgrs.ROMClass.LocateROMClass(name, callerCP, partition, modContext)
	if err != nil {
		return res, rec, cpe, err
	}
	if res == manager.DoTryWait {
		time.Sleep(cm.driver.AverageStoreLatency())
		res, rec, cpe, err = cm.mgrs.ROMClass.LocateROMClass(name, callerCP, partition, modContext)
		if err != nil {
			return res, rec, cpe, err
		}
	}
	cm.metrics.incFind(res.String())
	return res, rec, cpe, nil
}

// StoreROMClass builds and commits a new ROM class via the build driver,
// then advances this process's own metadata high-water mark so a later
// Refresh does not re-index what was just written directly.
func (cm *CacheMap) StoreROMClass(req builder.Request) (*builder.Result, error) {
	res, err := cm.driver.StoreROMClass(req)
	if err != nil {
		cm.metrics.incStore("error")
		return nil, err
	}
	if !res.Reused {
		cm.advanceMetaFront(res.Record.Offset)
	}
	if res.Reused {
		cm.metrics.incStore("reused")
	} else {
		cm.metrics.incStore("stored")
	}
	return res, nil
}

// Classpath returns the attached chain's classpath manager, for callers
// that need Update/Validate/IdentifiedMatch directly.
func (cm *CacheMap) Classpath() *manager.ClasspathManager { return cm.mgrs.Classpath }

// ByteData returns the attached chain's byte-data manager.
func (cm *CacheMap) ByteData() *manager.ByteDataManager { return cm.mgrs.ByteData }

// AttachedData returns the attached chain's attached-data manager.
func (cm *CacheMap) AttachedData() *manager.AttachedDataManager { return cm.mgrs.AttachedData }

// CompiledMethod returns the attached chain's compiled-method manager.
func (cm *CacheMap) CompiledMethod() *manager.CompiledMethodManager { return cm.mgrs.CompiledMethod }

// Depth returns how many layers are attached.
func (cm *CacheMap) Depth() int { return cm.chain.Depth() }
