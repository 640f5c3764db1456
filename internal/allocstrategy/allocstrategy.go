// Package allocstrategy implements the three allocation strategies
// behind one interface: segment (the normal path, backed by a
// region.Layer's segment area), supplied buffer (caller provides three
// fixed buffers up front), and caller-owned (used when embedding).
package allocstrategy

import (
	"fmt"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// Request describes one ROM-class build's space needs, collapsed here to
// the three buffers a strategy can place independently: main holds
// everything a strategy that can't honor out-of-line debug folds
// together.
type Request struct {
	MainLen         uint32
	LineNumberLen   uint32
	VariableInfoLen uint32
	Category        region.AllocCategory
	SegmentExclusive bool // anonymous classes: keep the reservation unshrunk

	// CallerBuffer is read only by the caller-owned strategy: the
	// embedder's exact-size buffer for this one build call. Every other
	// strategy ignores it.
	CallerBuffer []byte
}

// Layout is the set of destination buffers a strategy handed back.
// LineNumber and VariableInfo are nil when the strategy folded them into
// Main (SupportsOutOfLineDebug() == false).
type Layout struct {
	Main         []byte
	LineNumber   []byte
	VariableInfo []byte
	// AbsSiteBase is the absolute address Main[0] corresponds to, for
	// cursor.NewWriting's SRP site-address math. Zero for strategies with
	// no absolute-address meaning (supplied buffer, caller-owned).
	AbsSiteBase uint64
}

// Handle is the opaque token UpdateFinalROMSize needs to find what it
// must shrink; its shape is private to each strategy.
type Handle interface {
	isHandle()
}

// Strategy is the interface all three allocation kinds implement.
type Strategy interface {
	Name() string
	// SupportsOutOfLineDebug reports whether this strategy can honor
	// separate line-number/variable-info buffers. internal/builder's
	// driver always uses the segment strategy, which reports false, and
	// does not consult this method.
	SupportsOutOfLineDebug() bool
	Allocate(req Request) (Layout, Handle, error)
	// UpdateFinalROMSize must be called after commit to shrink any
	// over-reservation down to the bytes actually used.
	UpdateFinalROMSize(h Handle, actualMainLen uint32) error
}

// ErrBufferExhausted is returned by the supplied-buffer and caller-owned
// strategies when a request does not fit in the remaining capacity.
var ErrBufferExhausted = fmt.Errorf("allocstrategy: buffer exhausted")
