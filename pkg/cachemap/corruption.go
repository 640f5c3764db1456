package cachemap

// corruption.go surfaces a layer's corruption state with call-chain
// context. github.com/pkg/errors gives CheckCorruption's caller a
// stack-annotated error distinct from a plain fmt.Errorf, the way the
// rest of internal/region's corruption paths are designed to be wrapped
// (the comment on internal/region/errors.go's error kinds points here).

import (
	"github.com/pkg/errors"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// ErrCacheCorrupt is the sentinel CheckCorruption wraps; callers can
// errors.Is against it regardless of which layer or code triggered it.
var ErrCacheCorrupt = errors.New("cachemap: cache corruption detected")

// CheckCorruption inspects every attached layer and returns a wrapped
// ErrCacheCorrupt naming the offending layer and corruption code if any
// layer has flagged itself corrupt, nil otherwise. Callers are expected to
// call this before trusting a find result in contexts where silent
// data loss would be worse than refusing access outright.
func (cm *CacheMap) CheckCorruption() error {
	for i, l := range cm.chain.Layers() {
		if code, offset := l.Corrupt(); code != region.CorruptionNone {
			return errors.Wrapf(ErrCacheCorrupt, "layer %d (%s): code %d at offset %d", i, l.Path(), code, offset)
		}
	}
	return nil
}
