// Package region implements the composite cache: one memory-mapped layer
// file holding a header, a segment area (ROM-class bytes, grows up), an
// optional read-write area, and a metadata area (cache items, grows down).
//
// The mapped file is shared across processes. Everything but the stale bit
// and the update counter is mutated only while the write mutex is held; the
// stale bit and update counter follow their own acquire/release ordering
// rules so readers never need the mutex.
package region

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// ItemType is the closed enumeration of cache item kinds.
type ItemType uint8

const (
	ItemOrphan ItemType = iota
	ItemROMClass
	ItemScopedROMClass
	ItemClasspath
	ItemScope
	ItemPrereqCache
	ItemByteData
	ItemUnindexedByteData
	ItemCompiledMethod
	ItemInvalidatedCompiledMethod
	ItemAttachedData
	ItemCachelet

	itemTypeCount
)

// Valid reports whether t is one of the closed enumeration values. Anything
// else observed in a committed item header is corruption.
func (t ItemType) Valid() bool { return t < itemTypeCount }

func (t ItemType) String() string {
	names := [...]string{
		"ORPHAN", "ROMCLASS", "SCOPED_ROMCLASS", "CLASSPATH", "SCOPE",
		"PREREQ_CACHE", "BYTE_DATA", "UNINDEXED_BYTE_DATA", "COMPILED_METHOD",
		"INVALIDATED_COMPILED_METHOD", "ATTACHED_DATA", "CACHELET",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "UNKNOWN"
}

// FullFlag is the bitset of cache-full conditions.
// Flags are monotonic within a layer's lifetime: once set they are only
// cleared by an explicit shutdown/reset.
type FullFlag uint32

const (
	FullBlock FullFlag = 1 << iota
	FullAOT
	FullJIT
	FullAvailable
	FullReadOnly
	FullSoftMax
)

func (f FullFlag) Has(bit FullFlag) bool { return f&bit != 0 }

// CorruptionCode enumerates the detectable corruption conditions.
type CorruptionCode uint32

const (
	CorruptionNone CorruptionCode = iota
	CorruptionBadItemType
	CorruptionBadWalkStep
	CorruptionSRPOutOfRange
	CorruptionHeaderMismatch
	CorruptionPointerOrder
)

const (
	// Magic identifies a cache-map region file. Feature bits (below)
	// distinguish pointer width / endianness flavor among files that share
	// this magic.
	Magic        = "SCCM"
	FormatVersion uint32 = 1

	// HeaderSize is one page; the header, including the JVM-ID slot table,
	// lives entirely within it.
	HeaderSize = 4096

	// Alignment for segment allocations and cache items.
	Alignment = 8

	maxJVMIDSlots = 64
	jvmIDSlotSize = 32
	jvmIDTableOff = 512
)

// feature bits
const (
	FeaturePointerWidth64 uint64 = 1 << iota
	FeatureBigEndianFlavor
	FeatureCacheletSupport // always unset by this port; see DESIGN.md Open Question (b)
)

// Header field byte offsets within the fixed HeaderSize page. All
// multi-byte fields are little-endian regardless of host architecture so a
// cache file is portable across machines of the same pointer width.
const (
	offMagic            = 0  // [4]byte
	offVersion          = 4  // uint32
	offFeatureBits      = 8  // uint64
	offBuildID          = 16 // [16]byte (uuid)
	offCreatedAt        = 32 // int64, unix nanos
	offTotalSize        = 40 // uint64
	offSoftMaxSize      = 48 // uint64
	offSegAlloc         = 56 // uint64, atomic
	offMetaAlloc        = 64 // uint64, atomic
	offRWOffset         = 72 // uint64
	offRWSize           = 80 // uint64
	offUpdateCounter    = 88 // uint64, atomic
	offCrashCounter     = 96 // uint64, atomic
	offFullFlags        = 104 // uint64 (atomic, bitset stored widened)
	offMinAOT           = 112 // uint64
	offMaxAOT           = 120 // uint64
	offMinJIT           = 128 // uint64
	offMaxJIT           = 136 // uint64
	offLayerNumber      = 144 // uint32
	offCorruptionCode   = 148 // uint32
	offCorruptionOffset = 152 // uint64
	offJVMIDCount       = 160 // uint32
	offClassBytes       = 168 // uint64, cumulative committed segment bytes
	offMetadataBytes    = 176 // uint64, cumulative committed metadata bytes
	offLineNumberBytes  = 184 // uint64
	offVariableInfoBytes = 192 // uint64
	offCacheletFlag     = 200 // uint32, 0/1; mirrors FeatureCacheletSupport for quick reads
	offAOTUsedBytes     = 208 // uint64, atomic
	offJITUsedBytes     = 216 // uint64, atomic
)

// itemHeaderSize is {dataLen uint32, dataType uint8, jvmID uint16, pad uint8}.
const itemHeaderSize = 8

// itemTrailerSize is {totalPaddedLen uint32, staleAndPad uint32} where the
// low byte of the second word is the stale flag.
const itemTrailerSize = 8

// ItemHeader is the fixed prefix of every cache item.
type ItemHeader struct {
	DataLen  uint32
	DataType ItemType
	JVMID    uint16
}

func encodeItemHeader(buf []byte, h ItemHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.DataLen)
	buf[4] = byte(h.DataType)
	binary.LittleEndian.PutUint16(buf[5:7], h.JVMID)
	buf[7] = 0
}

func decodeItemHeader(buf []byte) ItemHeader {
	return ItemHeader{
		DataLen:  binary.LittleEndian.Uint32(buf[0:4]),
		DataType: ItemType(buf[4]),
		JVMID:    binary.LittleEndian.Uint16(buf[5:7]),
	}
}

const staleBit uint32 = 1

func encodeItemTrailer(buf []byte, totalPaddedLen uint32, stale bool) {
	binary.LittleEndian.PutUint32(buf[0:4], totalPaddedLen)
	var flags uint32
	if stale {
		flags = staleBit
	}
	binary.LittleEndian.PutUint32(buf[4:8], flags)
}

func decodeTrailerLen(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf[0:4]) }
func decodeTrailerStale(buf []byte) bool {
	return binary.LittleEndian.Uint32(buf[4:8])&staleBit != 0
}

// UniqueID is the "cryptographic-style" identifier of one layer:
// path plus six fields rendered as hex tokens. String() adds no NUL
// terminator, and the PREREQ_CACHE payload of a dependent layer is parsed
// as the bare string.
type UniqueID struct {
	Path              string
	CreatedAt         int64
	MetadataBytes     uint64
	ClassBytes        uint64
	LineNumberBytes   uint64
	VariableInfoBytes uint64
	Layer             uint32
}

// BuildIDFor mints a fresh build ID the way every other layer-creation path
// does, via google/uuid.
func BuildIDFor() uuid.UUID { return uuid.New() }

// nowNanos exists so tests can stub time without touching the real clock;
// production code always calls time.Now().UnixNano().
var nowNanos = func() int64 { return time.Now().UnixNano() }
