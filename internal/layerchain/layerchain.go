// Package layerchain maintains the attached chain of composite caches
// and the offset table that resolves addresses across
// it: a (layer, offset) pair identifies a byte uniquely no matter which
// process attached the chain at which base address, since every process
// maps each layer file independently.
//
// Attach order is a small slice walked linearly, layer numbers assigned
// monotonically, oldest-to-newest, and permanent: layer 0 is always the
// oldest.
package layerchain

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// addrRange is one attached layer's mapped byte range, published at attach
// and withdrawn at detach.
type addrRange struct {
	header unsafe.Pointer
	size   uint64
}

// Chain is an attached, ordered sequence of layers: index 0 is the oldest
// (layer 0, read-only once superseded), the last index is the current top
// (the only writable layer).
type Chain struct {
	layers []*region.Layer
	ranges []addrRange
	logger *zap.Logger
}

// Opener opens an existing layer file by path; normally region.OpenLayer.
type Opener func(path string) (*region.Layer, error)

// Attach opens topPath and recursively attaches every prerequisite layer it
// declares, bottom-up, validating that each prerequisite's actual unique ID
// matches what the dependent layer recorded.
func Attach(topPath string, open Opener, logger *zap.Logger) (*Chain, error) {
	top, err := open(topPath)
	if err != nil {
		return nil, fmt.Errorf("layerchain: open %s: %w", topPath, err)
	}

	prereqIDs, err := prereqUniqueIDs(top)
	if err != nil {
		top.Close()
		return nil, err
	}

	var below []*region.Layer
	if len(prereqIDs) > 0 {
		// A single linear prerequisite chain: each layer names exactly one
		// immediate prerequisite, recursively attached.
		expected := prereqIDs[0]
		prior, err := open(expected.Path)
		if err != nil {
			top.Close()
			return nil, fmt.Errorf("layerchain: prerequisite %s: %w", expected.Path, err)
		}
		priorChain, err := attachBelow(prior, open, logger)
		if err != nil {
			top.Close()
			return nil, err
		}
		if actual := priorChain.Top().UniqueID(); !actual.Equal(expected) {
			priorChain.Detach()
			top.Close()
			return nil, fmt.Errorf("layerchain: prerequisite %s unique ID mismatch: expected %s, got %s",
				expected.Path, expected.String(), actual.String())
		}
		below = priorChain.layers
	}

	layers := append(below, top)
	c := &Chain{layers: layers, logger: logger}
	c.rebuildRanges()

	if logger != nil {
		logger.Info("layerchain: attached", zap.Int("depth", len(layers)), zap.String("top", topPath))
	}
	return c, nil
}

// attachBelow attaches prior (already opened) and everything below it,
// without re-validating prior's own unique ID against anyone — the caller
// does that once control returns here.
func attachBelow(prior *region.Layer, open Opener, logger *zap.Logger) (*Chain, error) {
	prereqIDs, err := prereqUniqueIDs(prior)
	if err != nil {
		prior.Close()
		return nil, err
	}
	var below []*region.Layer
	if len(prereqIDs) > 0 {
		expected := prereqIDs[0]
		grandparent, err := open(expected.Path)
		if err != nil {
			prior.Close()
			return nil, fmt.Errorf("layerchain: prerequisite %s: %w", expected.Path, err)
		}
		grandChain, err := attachBelow(grandparent, open, logger)
		if err != nil {
			prior.Close()
			return nil, err
		}
		if actual := grandChain.Top().UniqueID(); !actual.Equal(expected) {
			grandChain.Detach()
			prior.Close()
			return nil, fmt.Errorf("layerchain: prerequisite %s unique ID mismatch: expected %s, got %s",
				expected.Path, expected.String(), actual.String())
		}
		below = grandChain.layers
	}
	layers := append(below, prior)
	c := &Chain{layers: layers, logger: logger}
	c.rebuildRanges()
	return c, nil
}

// prereqUniqueIDs scans l's metadata for PREREQ_CACHE items and parses each
// payload as a region.UniqueID.
func prereqUniqueIDs(l *region.Layer) ([]region.UniqueID, error) {
	var ids []region.UniqueID
	c, ok := l.FindStart()
	if !ok {
		return nil, nil
	}
	for {
		entry, ok, err := l.NextEntry(&c)
		if err != nil {
			return nil, fmt.Errorf("layerchain: %s: walking metadata: %w", l.Path(), err)
		}
		if !ok {
			break
		}
		if entry.Header.DataType == region.ItemPrereqCache {
			id, err := region.ParseUniqueID(string(entry.Payload))
			if err != nil {
				return nil, fmt.Errorf("layerchain: %s: bad PREREQ_CACHE payload: %w", l.Path(), err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Chain) rebuildRanges() {
	c.ranges = make([]addrRange, len(c.layers))
	for i, l := range c.layers {
		c.ranges[i] = addrRange{header: l.BaseAddr(), size: l.TotalSize()}
	}
}

// Layers returns the attached chain ordered oldest (layer 0) to newest (top).
func (c *Chain) Layers() []*region.Layer { return c.layers }

// Top returns the current writable layer.
func (c *Chain) Top() *region.Layer { return c.layers[len(c.layers)-1] }

// Depth returns how many layers are attached.
func (c *Chain) Depth() int { return len(c.layers) }

// Detach closes every layer in the chain, top to bottom, and withdraws
// their published ranges.
func (c *Chain) Detach() error {
	var firstErr error
	for i := len(c.layers) - 1; i >= 0; i-- {
		if err := c.layers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.layers = nil
	c.ranges = nil
	return firstErr
}

// AddressToOffset resolves an absolute mapped address to the (layer,
// offset) pair that names it, scanning the small, bounded layer-range
// table linearly.
func (c *Chain) AddressToOffset(p unsafe.Pointer) (layerIdx int, offset uint64, ok bool) {
	addr := uintptr(p)
	for i, r := range c.ranges {
		base := uintptr(r.header)
		if addr >= base && addr < base+uintptr(r.size) {
			return i, uint64(addr - base), true
		}
	}
	return 0, 0, false
}

// OffsetToAddress is the inverse of AddressToOffset.
func (c *Chain) OffsetToAddress(layerIdx int, offset uint64) (unsafe.Pointer, bool) {
	if layerIdx < 0 || layerIdx >= len(c.ranges) {
		return nil, false
	}
	r := c.ranges[layerIdx]
	if offset >= r.size {
		return nil, false
	}
	return unsafe.Add(r.header, offset), true
}

// LayerNumber returns the public layer-number field recorded at creation
// for the attached layer at slice index idx (these may differ from idx if
// layers were ever skipped, though in this port they coincide).
func (c *Chain) LayerNumber(idx int) uint32 {
	return c.layers[idx].LayerNumber()
}
