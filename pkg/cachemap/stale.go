package cachemap

import "github.com/Voskan/scc-cachemap/internal/region"

// MarkStaleMatching walks the top layer's metadata under its write mutex
// and flips the stale bit on every item match accepts, in one critical
// section. SetStale is idempotent, so a
// predicate that re-matches an already-stale item costs nothing extra.
func (cm *CacheMap) MarkStaleMatching(match func(region.Entry) bool) (int, error) {
	top := cm.chain.Top()
	if _, err := top.AcquireWrite(cm.jvmSlot); err != nil {
		return 0, err
	}
	defer top.ReleaseWrite(cm.jvmSlot)

	c, ok := top.FindStart()
	if !ok {
		return 0, nil
	}
	marked := 0
	for {
		entry, ok, err := top.NextEntry(&c)
		if err != nil {
			return marked, err
		}
		if !ok {
			break
		}
		if match(entry) {
			top.SetStale(entry.TrailerOff)
			marked++
		}
	}
	cm.metrics.incStaleMarks(marked)
	return marked, nil
}

// MarkClasspathStale is a convenience wrapper matching the one most common
// caller of MarkStaleMatching: LocateROMClass returned DoMarkCPEIStale and
// the caller now wants the offending classpath entry's wrapper item
// flipped, so the next find does not keep proposing the same stale match.
func (cm *CacheMap) MarkClasspathStale(wrapperOffset uint64) error {
	w, ok := cm.mgrs.Classpath.LookupByOffset(wrapperOffset)
	if !ok {
		return nil
	}
	w.SetStale()
	cm.metrics.incStaleMarks(1)
	return nil
}
