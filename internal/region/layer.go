package region

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Voskan/scc-cachemap/internal/reentrant"
	"github.com/Voskan/scc-cachemap/internal/unsafehelpers"
)

// AllocCategory tells Allocate which reserved-byte headroom an allocation
// competes for.
type AllocCategory uint8

const (
	CategoryNormal AllocCategory = iota
	CategoryAOT
	CategoryJIT
)

// CreateOptions configures a brand-new layer file.
type CreateOptions struct {
	TotalSize   uint64
	SoftMaxSize uint64
	RWAreaSize  uint64
	MinAOT      uint64
	MaxAOT      uint64
	MinJIT      uint64
	MaxJIT      uint64
	LayerNumber uint32
	ReadOnly    bool
}

// Layer is one attached composite cache: a mapped file plus the
// in-process write-mutex bookkeeping around it. Layer never interprets
// item payloads; that is internal/manager's job.
type Layer struct {
	path   string
	mf     *mappedFile
	logger *zap.Logger

	// in-process write mutex, keyed by JVM-ID slot so the same attach can
	// re-enter (the refresh path calls in while already holding it) while
	// every other attach still blocks.
	writeMu reentrant.Mutex
}

// OpenLayer opens and validates an existing layer file.
func OpenLayer(path string, logger *zap.Logger) (*Layer, error) {
	mf, err := openMappedFile(path)
	if err != nil {
		return nil, err
	}
	l := &Layer{path: path, mf: mf, logger: logger}
	if err := l.validateHeader(); err != nil {
		mf.close()
		return nil, err
	}
	return l, nil
}

// CreateLayer creates and opens a brand-new layer file.
func CreateLayer(path string, opts CreateOptions, logger *zap.Logger) (*Layer, error) {
	if opts.TotalSize <= HeaderSize+opts.RWAreaSize {
		return nil, fmt.Errorf("region: total size %d too small for header+rw area %d", opts.TotalSize, HeaderSize+opts.RWAreaSize)
	}
	header := make([]byte, HeaderSize)
	copy(header[offMagic:offMagic+4], Magic)
	binary.LittleEndian.PutUint32(header[offVersion:], FormatVersion)
	feat := FeaturePointerWidth64
	binary.LittleEndian.PutUint64(header[offFeatureBits:], feat)
	buildID := BuildIDFor()
	copy(header[offBuildID:offBuildID+16], buildID[:])
	binary.LittleEndian.PutUint64(header[offCreatedAt:], uint64(nowNanos()))
	binary.LittleEndian.PutUint64(header[offTotalSize:], opts.TotalSize)
	binary.LittleEndian.PutUint64(header[offSoftMaxSize:], opts.SoftMaxSize)
	binary.LittleEndian.PutUint64(header[offSegAlloc:], HeaderSize)
	metaTop := opts.TotalSize - opts.RWAreaSize
	binary.LittleEndian.PutUint64(header[offMetaAlloc:], metaTop)
	binary.LittleEndian.PutUint64(header[offRWOffset:], metaTop)
	binary.LittleEndian.PutUint64(header[offRWSize:], opts.RWAreaSize)
	binary.LittleEndian.PutUint64(header[offMinAOT:], opts.MinAOT)
	binary.LittleEndian.PutUint64(header[offMaxAOT:], opts.MaxAOT)
	binary.LittleEndian.PutUint64(header[offMinJIT:], opts.MinJIT)
	binary.LittleEndian.PutUint64(header[offMaxJIT:], opts.MaxJIT)
	binary.LittleEndian.PutUint32(header[offLayerNumber:], opts.LayerNumber)
	if opts.ReadOnly {
		binary.LittleEndian.PutUint64(header[offFullFlags:], uint64(FullReadOnly))
	}

	mf, err := createMappedFile(path, opts.TotalSize, header)
	if err != nil {
		return nil, err
	}
	l := &Layer{path: path, mf: mf, logger: logger}
	if logger != nil {
		logger.Info("region: created layer",
			zap.String("path", path), zap.Uint32("layer", opts.LayerNumber),
			zap.Uint64("totalSize", opts.TotalSize))
	}
	return l, nil
}

func (l *Layer) validateHeader() error {
	if len(l.mf.data) < HeaderSize {
		return fmt.Errorf("region: %s: file smaller than header page", l.path)
	}
	if string(l.mf.data[offMagic:offMagic+4]) != Magic {
		return fmt.Errorf("%w: %s: bad magic", errCorrupt(CorruptionHeaderMismatch), l.path)
	}
	if v := binary.LittleEndian.Uint32(l.mf.data[offVersion:]); v != FormatVersion {
		return fmt.Errorf("region: %s: unsupported format version %d", l.path, v)
	}
	if binary.LittleEndian.Uint64(l.mf.data[offFeatureBits:])&FeatureCacheletSupport != 0 {
		return fmt.Errorf("region: %s: cachelet sub-mode not supported", l.path)
	}
	return nil
}

func errCorrupt(code CorruptionCode) error {
	return fmt.Errorf("region: corruption detected (code %d)", code)
}

// u64 returns a pointer suitable for atomic ops into the mapped header at a
// given field offset.
func (l *Layer) u64(off uintptr) *uint64 {
	return unsafehelpers.AtBase[uint64](unsafe.Pointer(&l.mf.data[0]), off)
}

func (l *Layer) u32(off uintptr) *uint32 {
	return unsafehelpers.AtBase[uint32](unsafe.Pointer(&l.mf.data[0]), off)
}

func (l *Layer) Path() string        { return l.path }
func (l *Layer) TotalSize() uint64   { return atomic.LoadUint64(l.u64(offTotalSize)) }
func (l *Layer) SoftMaxSize() uint64 { return atomic.LoadUint64(l.u64(offSoftMaxSize)) }
func (l *Layer) RWOffset() uint64    { return atomic.LoadUint64(l.u64(offRWOffset)) }
func (l *Layer) RWSize() uint64      { return atomic.LoadUint64(l.u64(offRWSize)) }
func (l *Layer) LayerNumber() uint32 { return atomic.LoadUint32(l.u32(offLayerNumber)) }
func (l *Layer) CreatedAt() int64    { return int64(atomic.LoadUint64(l.u64(offCreatedAt))) }

// UpdateCounter loads the update counter with acquire-ish semantics: Go's
// atomic package provides sequential consistency, which is a strict
// superset of the acquire barrier a reader needs before it trusts
// anything it walks afterward.
func (l *Layer) UpdateCounter() uint64 { return atomic.LoadUint64(l.u64(offUpdateCounter)) }

func (l *Layer) CrashCounter() uint64 { return atomic.LoadUint64(l.u64(offCrashCounter)) }

func (l *Layer) MinAOTBytes() uint64  { return atomic.LoadUint64(l.u64(offMinAOT)) }
func (l *Layer) MaxAOTBytes() uint64  { return atomic.LoadUint64(l.u64(offMaxAOT)) }
func (l *Layer) MinJITBytes() uint64  { return atomic.LoadUint64(l.u64(offMinJIT)) }
func (l *Layer) MaxJITBytes() uint64  { return atomic.LoadUint64(l.u64(offMaxJIT)) }
func (l *Layer) AOTUsedBytes() uint64 { return atomic.LoadUint64(l.u64(offAOTUsedBytes)) }
func (l *Layer) JITUsedBytes() uint64 { return atomic.LoadUint64(l.u64(offJITUsedBytes)) }

func (l *Layer) FullFlags() FullFlag {
	return FullFlag(atomic.LoadUint64(l.u64(offFullFlags)))
}

// SetFullFlag ORs bit into the flag set. Monotonic: never cleared except by
// ResetFullFlags (explicit shutdown/reset).
func (l *Layer) SetFullFlag(bit FullFlag) {
	p := l.u64(offFullFlags)
	for {
		old := atomic.LoadUint64(p)
		next := old | uint64(bit)
		if next == old || atomic.CompareAndSwapUint64(p, old, next) {
			return
		}
	}
}

func (l *Layer) ResetFullFlags() { atomic.StoreUint64(l.u64(offFullFlags), 0) }

func (l *Layer) BuildID() uuid.UUID {
	var id uuid.UUID
	copy(id[:], l.mf.data[offBuildID:offBuildID+16])
	return id
}

// UniqueID computes this layer's cross-process identity.
func (l *Layer) UniqueID() UniqueID {
	return UniqueID{
		Path:              l.path,
		CreatedAt:         l.CreatedAt(),
		MetadataBytes:     atomic.LoadUint64(l.u64(offMetadataBytes)),
		ClassBytes:        atomic.LoadUint64(l.u64(offClassBytes)),
		LineNumberBytes:   atomic.LoadUint64(l.u64(offLineNumberBytes)),
		VariableInfoBytes: atomic.LoadUint64(l.u64(offVariableInfoBytes)),
		Layer:             l.LayerNumber(),
	}
}

// FreeBytes returns the byte gap between the two bump pointers.
func (l *Layer) FreeBytes() uint64 {
	seg := atomic.LoadUint64(l.u64(offSegAlloc))
	meta := atomic.LoadUint64(l.u64(offMetaAlloc))
	if meta < seg {
		return 0
	}
	return meta - seg
}

func (l *Layer) Close() error { return l.mf.close() }

func (l *Layer) Flush() error { return l.mf.flush() }

// ReadAt returns a read-only view of length n starting at absolute file
// offset off. Callers never need a lock to read committed, immutable bytes
//.
func (l *Layer) ReadAt(off uint64, n uint32) []byte {
	return l.mf.data[off : off+uint64(n)]
}

// WriteAt copies src into the mapped file at an absolute offset. Only
// called by a cursor while the write mutex is held.
func (l *Layer) WriteAt(off uint64, src []byte) {
	copy(l.mf.data[off:], src)
}

// BaseAddr exposes the mapped region's base for SRP arithmetic confined to
// internal/cursor's leaf helpers.
func (l *Layer) BaseAddr() unsafe.Pointer { return unsafe.Pointer(&l.mf.data[0]) }
