package region

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Voskan/scc-cachemap/internal/unsafehelpers"
)

// jvmIDSlot mirrors one entry of the header's JVM-ID slot table: {uuid (16),
// pid (4), live (4), reserved (8)} = 32 bytes.
type jvmIDSlot struct {
	id   [16]byte
	pid  int32
	live uint32
}

func (l *Layer) slotAddr(i int) unsafe.Pointer {
	return unsafe.Add(l.BaseAddr(), jvmIDTableOff+i*jvmIDSlotSize)
}

func (l *Layer) readSlot(i int) jvmIDSlot {
	p := l.slotAddr(i)
	var s jvmIDSlot
	copy(s.id[:], unsafehelpers.ByteSliceFrom(p, 16))
	s.pid = int32(binary.LittleEndian.Uint32(unsafehelpers.ByteSliceFrom(unsafe.Add(p, 16), 4)))
	s.live = binary.LittleEndian.Uint32(unsafehelpers.ByteSliceFrom(unsafe.Add(p, 20), 4))
	return s
}

func (l *Layer) writeSlot(i int, s jvmIDSlot) {
	p := l.slotAddr(i)
	copy(unsafehelpers.ByteSliceFrom(p, 16), s.id[:])
	binary.LittleEndian.PutUint32(unsafehelpers.ByteSliceFrom(unsafe.Add(p, 16), 4), uint32(s.pid))
	binary.LittleEndian.PutUint32(unsafehelpers.ByteSliceFrom(unsafe.Add(p, 20), 4), s.live)
}

// AttachJVM assigns this process a JVM-ID slot. It returns the
// assigned slot's uuid and index.
func (l *Layer) AttachJVM() (uuid.UUID, int, error) {
	id := BuildIDFor()
	pid := int32(os.Getpid())
	for i := 0; i < maxJVMIDSlots; i++ {
		s := l.readSlot(i)
		if s.live == 0 || !processAlive(s.pid) {
			l.writeSlot(i, jvmIDSlot{id: id, pid: pid, live: 1})
			atomic.AddUint32(l.u32(offJVMIDCount), 1)
			return id, i, nil
		}
	}
	return uuid.Nil, -1, fmt.Errorf("region: %s: no free JVM-ID slot (max %d)", l.path, maxJVMIDSlots)
}

// DetachJVM releases a slot on clean shutdown.
func (l *Layer) DetachJVM(slot int) {
	if slot < 0 || slot >= maxJVMIDSlots {
		return
	}
	l.writeSlot(slot, jvmIDSlot{})
}

// AcquireWrite takes the in-process re-entrant mutex keyed by myJVMSlot,
// then the cross-process write mutex (OS flock) on first entry only, and
// returns whether the previous writer appears to have crashed mid-write
// (the last writer's JVM-ID slot is still marked live but its process is
// gone; the header crash counter is then bumped). Callers are
// assumed to already hold any external VM class-segment mutex before
// calling this. The same JVM slot may call in repeatedly; any other slot
// blocks until the holder fully releases.
func (l *Layer) AcquireWrite(myJVMSlot int) (crashDetected bool, err error) {
	if fresh := l.writeMu.Lock(myJVMSlot); !fresh {
		return false, nil
	}
	if err := l.mf.lockExclusive(); err != nil {
		l.writeMu.Unlock(myJVMSlot)
		return false, fmt.Errorf("region: %s: flock exclusive: %w", l.path, err)
	}

	last := l.readSlot(lastWriterIndex(l))
	if last.live != 0 && !processAlive(last.pid) {
		atomic.AddUint64(l.u64(offCrashCounter), 1)
		crashDetected = true
		if l.logger != nil {
			l.logger.Warn("region: detected interrupted writer, crash counter bumped",
				zap.String("path", l.path), zap.Int32("deadPID", last.pid))
		}
	}
	l.recordLastWriter(myJVMSlot)
	return crashDetected, nil
}

// lastWriterIndex and recordLastWriter track, out of band from the normal
// per-JVM slot table, which slot last held the write mutex. We store this
// as slot 0's companion "last writer" marker colocated at a reserved header
// word rather than a 65th slot, keeping the slot table's size fixed.
func lastWriterIndex(l *Layer) int {
	return int(atomic.LoadUint32(l.u32(offCacheletFlag + 4)))
}

func (l *Layer) recordLastWriter(slot int) {
	atomic.StoreUint32(l.u32(offCacheletFlag+4), uint32(slot))
}

// ReleaseWrite commits nothing by itself (callers call Commit explicitly
// after writing); it only releases the mutexes. myJVMSlot must match the
// slot passed to the corresponding AcquireWrite call.
func (l *Layer) ReleaseWrite(myJVMSlot int) error {
	if ok := l.writeMu.Unlock(myJVMSlot); !ok {
		return nil
	}
	if l.writeMu.Depth() > 0 {
		return nil
	}
	return l.mf.unlock()
}

// reserve checks segLen+metaLen (already padded/overhead-included by the
// caller) against free space and soft-max, setting the matching full flag
// on failure. It performs no bump; callers combine it with their own
// atomic pointer updates so a single reservation spans both areas.
func (l *Layer) reserve(segLen, metaLen uint32, category AllocCategory) error {
	free := l.FreeBytes()
	headroom := l.reservedHeadroom(category)
	if uint64(segLen)+uint64(metaLen)+headroom > free {
		l.classifyFull(category)
		return ErrStoreFull
	}
	if soft := l.SoftMaxSize(); soft != 0 {
		used := l.usedBytes() + uint64(segLen) + uint64(metaLen)
		if used > soft {
			l.SetFullFlag(FullSoftMax)
			return ErrStoreFull
		}
	}
	return nil
}

// Allocate reserves segLen bytes from the segment area and metaLen bytes
// (plus item header/trailer overhead) from the metadata area in one
// reservation. Caller must hold the write
// mutex. segmentExclusive is accepted but not acted on here: the segment
// bytes are not padded to a page boundary and no fresh page is started.
//
// Use this only when one caller owns both halves of the reservation and
// will write a single item tying them together; otherwise prefer
// AllocateSegment/AllocateItem so neither side reserves space the other
// never writes (an unwritten item slot breaks the metadata read walk,
// since its trailer would record a zero length).
func (l *Layer) Allocate(segLen, metaLen uint32, category AllocCategory, segmentExclusive bool) (segOff, itemOff uint64, err error) {
	segLen = uint32(unsafehelpers.AlignUp(uintptr(segLen), Alignment))
	metaLen = uint32(unsafehelpers.AlignUp(uintptr(metaLen), Alignment)) + itemHeaderSize + itemTrailerSize

	if err := l.reserve(segLen, metaLen, category); err != nil {
		return 0, 0, err
	}

	segOff = atomic.AddUint64(l.u64(offSegAlloc), uint64(segLen)) - uint64(segLen)
	itemOff = atomic.AddUint64(l.u64(offMetaAlloc), ^(uint64(metaLen) - 1)) // subtract metaLen
	_ = segmentExclusive
	return segOff, itemOff, nil
}

// AllocateSegment reserves segLen bytes from the segment area only, for
// strategies that write a paired metadata item separately via
// AllocateItem once the item's payload shape is known.
func (l *Layer) AllocateSegment(segLen uint32, category AllocCategory) (segOff uint64, err error) {
	segLen = uint32(unsafehelpers.AlignUp(uintptr(segLen), Alignment))
	if err := l.reserve(segLen, 0, category); err != nil {
		return 0, err
	}
	return atomic.AddUint64(l.u64(offSegAlloc), uint64(segLen)) - uint64(segLen), nil
}

// AllocateItem reserves metaLen bytes (plus item header/trailer overhead)
// from the metadata area only.
func (l *Layer) AllocateItem(metaLen uint32, category AllocCategory) (itemOff uint64, err error) {
	metaLen = uint32(unsafehelpers.AlignUp(uintptr(metaLen), Alignment)) + itemHeaderSize + itemTrailerSize
	if err := l.reserve(0, metaLen, category); err != nil {
		return 0, err
	}
	return atomic.AddUint64(l.u64(offMetaAlloc), ^(uint64(metaLen) - 1)), nil
}

func (l *Layer) usedBytes() uint64 {
	seg := atomic.LoadUint64(l.u64(offSegAlloc)) - HeaderSize
	metaTop := atomic.LoadUint64(l.u64(offRWOffset))
	meta := metaTop - atomic.LoadUint64(l.u64(offMetaAlloc))
	return seg + meta
}

func (l *Layer) reservedHeadroom(category AllocCategory) uint64 {
	if category != CategoryNormal {
		return 0
	}
	minAOT := atomic.LoadUint64(l.u64(offMinAOT))
	minJIT := atomic.LoadUint64(l.u64(offMinJIT))
	aotUsed := atomic.LoadUint64(l.u64(offAOTUsedBytes))
	jitUsed := atomic.LoadUint64(l.u64(offJITUsedBytes))
	var h uint64
	if aotUsed < minAOT {
		h += minAOT - aotUsed
	}
	if jitUsed < minJIT {
		h += minJIT - jitUsed
	}
	return h
}

func (l *Layer) classifyFull(category AllocCategory) {
	switch category {
	case CategoryAOT:
		l.SetFullFlag(FullAOT)
	case CategoryJIT:
		l.SetFullFlag(FullJIT)
	default:
		l.SetFullFlag(FullBlock)
	}
	l.SetFullFlag(FullAvailable)
}

// WriteItem lays down one cache item's header+payload+trailer at the
// offsets Allocate returned, and returns the absolute offset of the
// trailer (needed later for stale-bit flips).
func (l *Layer) WriteItem(itemOff uint64, hdr ItemHeader, payload []byte, category AllocCategory) (trailerOff uint64) {
	buf := make([]byte, itemHeaderSize+len(payload)+itemTrailerSize)
	encodeItemHeader(buf, hdr)
	copy(buf[itemHeaderSize:], payload)
	totalLen := uint32(unsafehelpers.AlignUp(uintptr(len(payload)), Alignment)) + itemHeaderSize + itemTrailerSize
	encodeItemTrailer(buf[itemHeaderSize+len(payload):], totalLen, false)
	l.WriteAt(itemOff, buf)
	trailerOff = itemOff + uint64(itemHeaderSize+len(payload))

	switch category {
	case CategoryAOT:
		atomic.AddUint64(l.u64(offAOTUsedBytes), uint64(len(payload)))
	case CategoryJIT:
		atomic.AddUint64(l.u64(offJITUsedBytes), uint64(len(payload)))
	}
	atomic.AddUint64(l.u64(offMetadataBytes), uint64(len(buf)))
	return trailerOff
}

// WriteSegment copies payload into the segment area at segOff and updates
// the cumulative class-byte counter used by UniqueID.
func (l *Layer) WriteSegment(segOff uint64, payload []byte) {
	l.WriteAt(segOff, payload)
	atomic.AddUint64(l.u64(offClassBytes), uint64(len(payload)))
}

// UpdateFinalROMSize shrinks the segment reservation to the actually-used
// size after a ROM class is laid down. When segmentExclusive
// is set, the reservation is left at its reserved length instead; the
// rest of the page past it is not claimed, so a later allocation can
// still start on that page.
func (l *Layer) UpdateFinalROMSize(segOff uint64, reservedLen, actualLen uint32, segmentExclusive bool) {
	if segmentExclusive || actualLen >= reservedLen {
		return
	}
	give := uint64(reservedLen - actualLen)
	if give == 0 {
		return
	}
	atomic.AddUint64(l.u64(offSegAlloc), ^(give - 1))
}

// Commit bumps the global update counter with a release barrier (Go's
// atomic add already provides sequential consistency, a strict superset of
// release) so readers that subsequently load the counter observe every
// byte this writer laid down.
func (l *Layer) Commit() uint64 {
	return atomic.AddUint64(l.u64(offUpdateCounter), 1)
}

func processAlive(pid int32) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(int(pid))
	if err != nil {
		return false
	}
	return proc.Signal(sigZero) == nil
}
