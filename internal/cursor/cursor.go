// Package cursor implements the three build-time cursor kinds: a
// counting cursor (writes nothing, accumulates a byte count and records
// Mark offsets into an SRP table; internal/builder runs it once per
// build, to size the allocation), a writing
// cursor bound to a destination buffer that lays bytes down for real, and
// a comparing cursor that walks the same sequence of calls against an
// already-committed candidate's bytes to decide whether building a new ROM
// class would be byte-identical to one already in the cache (the builder's
// reuse check).
//
// All three share one interface so the builder's lay-down walk is written
// once and driven by whichever cursor the current pass needs.
package cursor

import (
	"github.com/Voskan/scc-cachemap/internal/srptable"
)

// Cursor is the interface all three cursor kinds implement.
// Endianness is little-endian by default (matching internal/region's
// on-disk format); WriteU16BE/WriteU32BE/WriteU64BE cover the "caller
// requests big-endian" escape hatch.
type Cursor interface {
	WriteU8(v uint8)
	WriteU16(v uint16)
	WriteU32(v uint32)
	WriteU64(v uint64)
	WriteU16BE(v uint16)
	WriteU32BE(v uint32)
	WriteU64BE(v uint64)
	WriteUTF8(s string)
	WriteData(b []byte)
	WriteSRP(key srptable.Key)
	WriteWSRP(key srptable.Key)
	Mark(key srptable.Key)
	PadToAlignment(n uint32)
	Skip(n uint32)
	PeekU32() uint32
	Pos() uint64
	// Err returns the first error encountered (an unresolved SRP base, an
	// out-of-memory key table) — checked once after a whole pass rather
	// than after every call, the way bufio.Writer reports flush errors.
	Err() error
}

func utf8EncodedLen(s string) int {
	n := 2 + len(s)
	if n%2 != 0 {
		n++
	}
	return n
}

func isPowerOfTwo(n uint32) bool { return n != 0 && n&(n-1) == 0 }
