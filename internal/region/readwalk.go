package region

import (
	"fmt"
	"sync/atomic"
)

// Cursor positions a reverse metadata iterator: items were allocated by
// decreasing address, so the most-recently-committed item sits at the
// lowest currently-used metadata address (equal to the current metaAlloc
// pointer). FindStart begins there; NextEntry walks toward higher
// addresses (older items), terminating cleanly at the metadata area's top
// boundary, or with corruption if the walk would cross back down past the
// segment allocation pointer.
type Cursor struct {
	pos uint64
}

// FindStart positions a reverse iterator at the last committed metadata
// item. Returns ok=false if no metadata has ever been committed.
func (l *Layer) FindStart() (Cursor, bool) {
	pos := atomic.LoadUint64(l.u64(offMetaAlloc))
	top := atomic.LoadUint64(l.u64(offRWOffset))
	if pos >= top {
		return Cursor{}, false
	}
	return Cursor{pos: pos}, true
}

// Entry is one walked cache item.
type Entry struct {
	Header     ItemHeader
	Payload    []byte
	Offset     uint64 // start of the item (header's first byte)
	TrailerOff uint64
}

// NextEntry reads the item at c's current position, validates its header,
// and advances c. ok is false (err nil) once the walk reaches the metadata
// top boundary with nothing left to read. err is non-nil on any detected
// corruption (item type outside the enumeration, or a trailer whose
// recorded length would step the cursor backward or past the segment
// pointer).
func (l *Layer) NextEntry(c *Cursor) (Entry, bool, error) {
	top := atomic.LoadUint64(l.u64(offRWOffset))
	seg := atomic.LoadUint64(l.u64(offSegAlloc))
	itemStart := c.pos
	if c.pos >= top {
		return Entry{}, false, nil
	}
	if c.pos < seg {
		l.markCorrupt(CorruptionPointerOrder, c.pos)
		return Entry{}, false, fmt.Errorf("%w: metadata cursor at %d below segment pointer %d", errCorrupt(CorruptionPointerOrder), c.pos, seg)
	}

	hdrBuf := l.ReadAt(c.pos, itemHeaderSize)
	hdr := decodeItemHeader(hdrBuf)
	if !hdr.DataType.Valid() {
		l.markCorrupt(CorruptionBadItemType, c.pos)
		return Entry{}, false, fmt.Errorf("%w: item type %d at offset %d", errCorrupt(CorruptionBadItemType), hdr.DataType, c.pos)
	}

	payloadOff := c.pos + itemHeaderSize
	if uint64(payloadOff)+uint64(hdr.DataLen) > top {
		l.markCorrupt(CorruptionBadWalkStep, c.pos)
		return Entry{}, false, fmt.Errorf("%w: item at %d overruns metadata area", errCorrupt(CorruptionBadWalkStep), c.pos)
	}
	payload := l.ReadAt(payloadOff, hdr.DataLen)
	trailerOff := payloadOff + uint64(hdr.DataLen)
	trailerBuf := l.ReadAt(trailerOff, itemTrailerSize)
	totalLen := decodeTrailerLen(trailerBuf)

	if totalLen == 0 || uint64(totalLen) > top-c.pos {
		l.markCorrupt(CorruptionBadWalkStep, c.pos)
		return Entry{}, false, fmt.Errorf("%w: non-positive or oversized walk step at offset %d", errCorrupt(CorruptionBadWalkStep), c.pos)
	}

	next := c.pos + uint64(totalLen)
	if next <= c.pos {
		l.markCorrupt(CorruptionBadWalkStep, c.pos)
		return Entry{}, false, fmt.Errorf("%w: walk step did not advance at offset %d", errCorrupt(CorruptionBadWalkStep), c.pos)
	}
	c.pos = next

	return Entry{Header: hdr, Payload: payload, Offset: itemStart, TrailerOff: trailerOff}, true, nil
}

func (l *Layer) markCorrupt(code CorruptionCode, offset uint64) {
	atomic.StoreUint32(l.u32(offCorruptionCode), uint32(code))
	atomic.StoreUint64(l.u64(offCorruptionOffset), offset)
	l.SetFullFlag(FullReadOnly)
}

// Corrupt reports whether this layer has detected corruption and should
// refuse further writes.
func (l *Layer) Corrupt() (CorruptionCode, uint64) {
	return CorruptionCode(atomic.LoadUint32(l.u32(offCorruptionCode))), atomic.LoadUint64(l.u64(offCorruptionOffset))
}

// Stale reads the stale bit in an item's trailer. Readable without any
// synchronization.
func (l *Layer) Stale(trailerOff uint64) bool {
	return decodeTrailerStale(l.ReadAt(trailerOff, itemTrailerSize))
}

// SetStale sets the stale bit in place with a single byte store, leaving
// the rest of the trailer untouched. Idempotent
//.
func (l *Layer) SetStale(trailerOff uint64) {
	l.mf.data[trailerOff+4] = byte(staleBit)
}

// PromoteOrphan flips an ORPHAN item's type byte to ROMCLASS in place.
// Safe because the item is otherwise immutable and readers tolerate
// either type for a given ROM class.
func (l *Layer) PromoteOrphan(itemOff uint64) {
	l.mf.data[itemOff+4] = byte(ItemROMClass)
}

// InvalidateCompiledMethod/RevalidateCompiledMethod flip a COMPILED_METHOD
// item's type tag without touching its bytes.
func (l *Layer) InvalidateCompiledMethod(itemOff uint64) {
	l.mf.data[itemOff+4] = byte(ItemInvalidatedCompiledMethod)
}

func (l *Layer) RevalidateCompiledMethod(itemOff uint64) {
	l.mf.data[itemOff+4] = byte(ItemCompiledMethod)
}
