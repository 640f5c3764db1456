package cachemap

// Snapshot assembles the flat javacore stats structure for
// the top layer: per-layer byte counters straight off the header, plus a
// metadata walk to compute the stale percentage (reading committed items
// and their single-byte stale flags needs no lock) and the byte-data
// manager's per-sub-kind usage breakdown.

import (
	"time"

	"github.com/Voskan/scc-cachemap/internal/history"
	"github.com/Voskan/scc-cachemap/internal/region"
)

var fullFlagNames = []struct {
	bit  region.FullFlag
	name string
}{
	{region.FullBlock, "BlockFull"},
	{region.FullAOT, "AOTFull"},
	{region.FullJIT, "JITFull"},
	{region.FullAvailable, "AvailableFull"},
	{region.FullReadOnly, "ReadOnly"},
	{region.FullSoftMax, "SoftMaxFull"},
}

// Snapshot builds a point-in-time history.Stats for cacheID, identifying
// this cache across snapshots (normally cm.Fingerprint()).
func (cm *CacheMap) Snapshot(cacheID string, now time.Time) (history.Stats, error) {
	top := cm.chain.Top()

	total, stale, err := cm.countStaleness()
	if err != nil {
		return history.Stats{}, err
	}
	var percentStale float64
	if total > 0 {
		percentStale = 100 * float64(stale) / float64(total)
	}

	used := top.TotalSize() - top.FreeBytes()
	var percentFull float64
	if soft := top.SoftMaxSize(); soft > 0 {
		percentFull = 100 * float64(used) / float64(soft)
	} else if total := top.TotalSize(); total > 0 {
		percentFull = 100 * float64(used) / float64(total)
	}

	var flags []string
	flagBits := top.FullFlags()
	for _, f := range fullFlagNames {
		if flagBits.Has(f.bit) {
			flags = append(flags, f.name)
		}
	}

	var subKinds []*history.SubKindUsage
	for _, u := range cm.mgrs.ByteData.Usage() {
		if u.Bytes == 0 && u.Count == 0 {
			continue
		}
		subKinds = append(subKinds, &history.SubKindUsage{SubKind: u.Kind.String(), Bytes: u.Bytes, Count: u.Count})
	}

	return history.Stats{
		Timestamp:    now.UnixNano(),
		CacheID:      cacheID,
		Layer:        int32(top.LayerNumber()),
		SoftmxBytes:  top.SoftMaxSize(),
		FreeBytes:    top.FreeBytes(),
		UsedBytes:    used,
		MinAOTBytes:  top.MinAOTBytes(),
		MaxAOTBytes:  top.MaxAOTBytes(),
		MinJITBytes:  top.MinJITBytes(),
		MaxJITBytes:  top.MaxJITBytes(),
		PercentFull:  percentFull,
		PercentStale: percentStale,
		FullFlags:    flags,
		SubKinds:     subKinds,
	}, nil
}

// RecordSnapshot takes a Snapshot and, if history was enabled via
// WithHistory, appends it to the embedded recorder.
func (cm *CacheMap) RecordSnapshot(cacheID string, now time.Time) error {
	if cm.history == nil {
		return nil
	}
	snap, err := cm.Snapshot(cacheID, now)
	if err != nil {
		return err
	}
	return cm.history.Record(snap)
}

// History exposes the underlying recorder for direct Query/FlagTrend
// calls (e.g. from cmd/sccctl history); nil if WithHistory was never set.
func (cm *CacheMap) History() *history.Recorder { return cm.history }

// Fingerprint returns the top layer's unique cache ID fingerprint, a stable
// identifier suitable as a history cacheID across renames of the backing
// file (see region.UniqueID.Fingerprint).
func (cm *CacheMap) Fingerprint() string {
	return cm.chain.Top().UniqueID().Fingerprint()
}

// PublishLayerMetrics refreshes the scc_layer_bytes and scc_full_flag
// gauges for every attached layer. A noop when WithMetrics was never set.
func (cm *CacheMap) PublishLayerMetrics() {
	for i, l := range cm.chain.Layers() {
		cm.metrics.setLayerBytes(i, "segment", float64(l.TotalSize()-l.FreeBytes()-l.RWSize()))
		cm.metrics.setLayerBytes(i, "free", float64(l.FreeBytes()))
		cm.metrics.setLayerBytes(i, "aot_used", float64(l.AOTUsedBytes()))
		cm.metrics.setLayerBytes(i, "jit_used", float64(l.JITUsedBytes()))

		flagBits := l.FullFlags()
		for _, f := range fullFlagNames {
			cm.metrics.setFullFlag(i, f.name, flagBits.Has(f.bit))
		}
	}
}

func (cm *CacheMap) countStaleness() (total, stale int, err error) {
	top := cm.chain.Top()
	c, ok := top.FindStart()
	if !ok {
		return 0, 0, nil
	}
	for {
		entry, ok, err := top.NextEntry(&c)
		if err != nil {
			return total, stale, err
		}
		if !ok {
			break
		}
		total++
		if top.Stale(entry.TrailerOff) {
			stale++
		}
	}
	return total, stale, nil
}
