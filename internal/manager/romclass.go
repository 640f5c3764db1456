package manager

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Voskan/scc-cachemap/internal/region"
	"github.com/Voskan/scc-cachemap/internal/tsmanager"
)

// LocateResult is one of the six outcomes LocateROMClass can return.
type LocateResult int

const (
	Found LocateResult = iota
	NotFound
	DoMarkCPEIStale
	DoTryWait
	FoundShadow
	MarkedItemStale
)

func (r LocateResult) String() string {
	switch r {
	case Found:
		return "FOUND"
	case NotFound:
		return "NOTFOUND"
	case DoMarkCPEIStale:
		return "DO_MARK_CPEI_STALE"
	case DoTryWait:
		return "DO_TRY_WAIT"
	case FoundShadow:
		return "FOUND_SHADOW"
	case MarkedItemStale:
		return "MARKED_ITEM_STALE"
	default:
		return "UNKNOWN"
	}
}

// ROMClassRecord is one class name's cached bucket entry: either an
// ORPHAN placeholder or a committed ROMCLASS/SCOPED_ROMCLASS, tied back
// to the classpath entry it was compiled against.
type ROMClassRecord struct {
	item
	Name                string
	Kind                region.ItemType
	ClasspathWrapperOff uint64
	ClasspathIndex      int
	ClassTimestamp      int64
	PartitionScope      string
	ModContextScope     string
	SegmentOffset       uint64 // absolute offset of the ROM class's own bytes in the segment area
	SegmentLen          uint32
}

func (r *ROMClassRecord) IsOrphan() bool { return r.Kind == region.ItemOrphan }

// ROMClassManager indexes ROM classes (and their orphan placeholders) by
// class name and resolves finds against the classpath and scope managers
//.
type ROMClassManager struct {
	mu       sync.RWMutex
	buckets  map[string][]*ROMClassRecord
	byOffset map[uint64]*ROMClassRecord
	pending  map[string]int // in-flight stores this process knows about, for DO_TRY_WAIT

	cp *ClasspathManager
}

func NewROMClassManager(cp *ClasspathManager) *ROMClassManager {
	return &ROMClassManager{
		buckets:  make(map[string][]*ROMClassRecord),
		byOffset: make(map[uint64]*ROMClassRecord),
		pending:  make(map[string]int),
		cp:       cp,
	}
}

// EncodeROMClassItem renders the bookkeeping a builder commits alongside
// the real ROM-class bytes: everything LocateROMClass needs to validate a
// future find without re-reading the whole class.
func EncodeROMClassItem(name string, classpathWrapperOff uint64, classpathIndex int, classTimestamp int64, partitionScope, modContextScope string, segmentOffset uint64, segmentLen uint32) []byte {
	value := make([]byte, 8+4+8+2+len(partitionScope)+2+len(modContextScope)+8+4)
	binary.LittleEndian.PutUint64(value[0:8], classpathWrapperOff)
	binary.LittleEndian.PutUint32(value[8:12], uint32(classpathIndex))
	binary.LittleEndian.PutUint64(value[12:20], uint64(classTimestamp))
	pos := 20
	binary.LittleEndian.PutUint16(value[pos:pos+2], uint16(len(partitionScope)))
	pos += 2
	pos += copy(value[pos:], partitionScope)
	binary.LittleEndian.PutUint16(value[pos:pos+2], uint16(len(modContextScope)))
	pos += 2
	pos += copy(value[pos:], modContextScope)
	binary.LittleEndian.PutUint64(value[pos:pos+8], segmentOffset)
	pos += 8
	binary.LittleEndian.PutUint32(value[pos:pos+4], segmentLen)
	return encodeKeyed(name, value)
}

func decodeROMClassValue(value []byte) (cpOff uint64, cpIndex int, classTS int64, partition, modContext string, segOff uint64, segLen uint32, err error) {
	if len(value) < 20+2 {
		return 0, 0, 0, "", "", 0, 0, fmt.Errorf("manager: rom-class value too short")
	}
	cpOff = binary.LittleEndian.Uint64(value[0:8])
	cpIndex = int(int32(binary.LittleEndian.Uint32(value[8:12])))
	classTS = int64(binary.LittleEndian.Uint64(value[12:20]))
	pos := 20
	plen := int(binary.LittleEndian.Uint16(value[pos : pos+2]))
	pos += 2
	if pos+plen+2 > len(value) {
		return 0, 0, 0, "", "", 0, 0, fmt.Errorf("manager: rom-class value truncated (partition)")
	}
	partition = string(value[pos : pos+plen])
	pos += plen
	mlen := int(binary.LittleEndian.Uint16(value[pos : pos+2]))
	pos += 2
	if pos+mlen+8+4 > len(value) {
		return 0, 0, 0, "", "", 0, 0, fmt.Errorf("manager: rom-class value truncated (modcontext)")
	}
	modContext = string(value[pos : pos+mlen])
	pos += mlen
	segOff = binary.LittleEndian.Uint64(value[pos : pos+8])
	pos += 8
	segLen = binary.LittleEndian.Uint32(value[pos : pos+4])
	return cpOff, cpIndex, classTS, partition, modContext, segOff, segLen, nil
}

// StoreNew indexes an ORPHAN/ROMCLASS/SCOPED_ROMCLASS item. An item whose
// offset is already known is an in-place type-tag promotion —
// the existing record's Kind is updated rather than inserting a duplicate
// bucket entry.
func (m *ROMClassManager) StoreNew(l *region.Layer, e region.Entry) error {
	switch e.Header.DataType {
	case region.ItemOrphan, region.ItemROMClass, region.ItemScopedROMClass:
	default:
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byOffset[e.Offset]; ok {
		existing.Kind = e.Header.DataType
		return nil
	}

	name, value, err := decodeKeyed(e.Payload)
	if err != nil {
		return err
	}
	cpOff, cpIndex, classTS, partition, modContext, segOff, segLen, err := decodeROMClassValue(value)
	if err != nil {
		return err
	}
	rec := &ROMClassRecord{
		item:                item{Layer: l, Offset: e.Offset, TrailerOff: e.TrailerOff, JVMID: e.Header.JVMID},
		Name:                name,
		Kind:                e.Header.DataType,
		ClasspathWrapperOff: cpOff,
		ClasspathIndex:      cpIndex,
		ClassTimestamp:      classTS,
		PartitionScope:      partition,
		ModContextScope:     modContext,
		SegmentOffset:       segOff,
		SegmentLen:          segLen,
	}
	m.buckets[name] = append(m.buckets[name], rec)
	m.byOffset[e.Offset] = rec
	return nil
}

// LookupByOffset resolves a ROM-class record by its metadata item's
// absolute offset, used by the build driver right after StoreNew to hand
// the caller back the record it just inserted.
func (m *ROMClassManager) LookupByOffset(offset uint64) (*ROMClassRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byOffset[offset]
	return rec, ok
}

// MarkPending/ClearPending let the build driver announce "I am about to
// store this class", giving concurrent finders in the same process a
// DO_TRY_WAIT hint instead of a flat miss.
func (m *ROMClassManager) MarkPending(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[name]++
}

func (m *ROMClassManager) ClearPending(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[name] > 0 {
		m.pending[name]--
		if m.pending[name] == 0 {
			delete(m.pending, name)
		}
	}
}

// LocateROMClass walks name's bucket, honoring partition/mod-context
// scope filters and classpath validation, and returns one of the six
// LocateResult outcomes.
func (m *ROMClassManager) LocateROMClass(name string, callerCP []ClasspathEntry, partition, modContext string) (LocateResult, *ROMClassRecord, *ClasspathEntry, error) {
	m.mu.RLock()
	bucket := append([]*ROMClassRecord(nil), m.buckets[name]...)
	pending := m.pending[name] > 0
	m.mu.RUnlock()

	sawStale := false
	for _, rec := range bucket {
		if rec.IsOrphan() {
			continue
		}
		if rec.PartitionScope != partition || rec.ModContextScope != modContext {
			continue
		}
		if rec.Stale() {
			sawStale = true
			continue
		}

		// A record committed without a classpath (wrapper offset 0 is the
		// header page, never an item) matches a caller that presents none.
		if rec.ClasspathWrapperOff == 0 && len(callerCP) == 0 {
			return Found, rec, nil, nil
		}

		wrapper, ok := m.cp.LookupByOffset(rec.ClasspathWrapperOff)
		if !ok || !m.cp.Validate(wrapper, rec.ClasspathIndex, callerCP) {
			changed, cpe, err := classpathEntryChanged(wrapper, rec.ClasspathIndex)
			if err != nil {
				return NotFound, nil, nil, err
			}
			if changed {
				return DoMarkCPEIStale, rec, cpe, nil
			}
			continue
		}

		shadowed, err := classShadowed(rec, callerCP, rec.ClasspathIndex)
		if err != nil {
			return NotFound, nil, nil, err
		}
		if shadowed {
			return FoundShadow, rec, nil, nil
		}
		return Found, rec, nil, nil
	}

	if sawStale {
		return MarkedItemStale, nil, nil, nil
	}
	if pending {
		return DoTryWait, nil, nil, nil
	}
	return NotFound, nil, nil, nil
}

func classpathEntryChanged(wrapper *ClasspathWrapper, index int) (bool, *ClasspathEntry, error) {
	if wrapper == nil || index < 0 || index >= len(wrapper.Entries) {
		return false, nil, nil
	}
	cpe := wrapper.Entries[index]
	res, _, err := tsmanager.Check(tsmanager.Entry{Path: cpe.Path, Protocol: cpe.Protocol, Timestamp: cpe.Timestamp}, "", 0)
	if err != nil {
		return false, nil, err
	}
	return res != tsmanager.Unchanged, &cpe, nil
}

// classShadowed reports whether rec's class now also resolves from a
// directory entry earlier in callerCP than the index it was actually
// found/cached at — a .class file created after caching in a directory
// that precedes the cached entry shadows the cached class, even though
// the cached entry itself is still perfectly valid. Archive entries are
// stamped once for the whole archive and never shadow a later entry on
// their own, so only directory entries before index are examined.
func classShadowed(rec *ROMClassRecord, callerCP []ClasspathEntry, index int) (bool, error) {
	if index < 0 || index > len(callerCP) {
		return false, nil
	}
	for i := 0; i < index; i++ {
		cpe := callerCP[i]
		if cpe.Protocol != tsmanager.ProtocolDirectory {
			continue
		}
		res, _, err := tsmanager.Check(tsmanager.Entry{Path: cpe.Path, Protocol: cpe.Protocol}, rec.Name, -1)
		if err != nil {
			return false, err
		}
		if res == tsmanager.Changed {
			return true, nil
		}
	}
	return false, nil
}

// Reset clears all in-process indexes.
func (m *ROMClassManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[string][]*ROMClassRecord)
	m.byOffset = make(map[uint64]*ROMClassRecord)
	m.pending = make(map[string]int)
}
