package manager

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Voskan/scc-cachemap/internal/clockpro"
	"github.com/Voskan/scc-cachemap/internal/region"
	"github.com/Voskan/scc-cachemap/internal/tsmanager"
)

// ContainerState is the per-entry open/closed/force-check/only-stamp-once
// bitset recorded with each classpath entry. The manager stores and
// decodes it as given by the caller; no zip-open hook feeds or updates it.
type ContainerState uint8

const (
	ContainerOpen ContainerState = 1 << iota
	ContainerClosed
	ContainerForceCheck
	ContainerOnlyStampOnce
)

// ClasspathEntry is one element of a classpath, as recorded in a
// ClasspathWrapper or presented by a caller for validation.
type ClasspathEntry struct {
	Path      string
	Protocol  tsmanager.Protocol
	Timestamp int64
	State     ContainerState
}

// ClasspathWrapper is one classpath as committed to a layer: an ordered
// list of entries plus the item location needed to flip its stale bit.
type ClasspathWrapper struct {
	item
	Entries []ClasspathEntry
}

type classpathBucketSlot struct {
	wrapper *ClasspathWrapper
	index   int // this entry's position within wrapper.Entries
}

// ClasspathManager indexes classpath wrappers by every entry path they
// contain, and short-circuits repeat validations from the same
// classloader via a bounded positive-match cache.
type ClasspathManager struct {
	mu       sync.RWMutex
	buckets  map[string][]classpathBucketSlot
	byOffset map[uint64]*ClasspathWrapper

	// identified is internal/clockpro's CLOCK-Pro ring, repurposed from
	// a generic value-eviction policy into a bounded
	// cache of (classloader ID -> matched wrapper) pairs: real cache
	// entries are never evicted, but a same-JVM cache of *prior
	// positive validations* is exactly the bounded, evictable
	// structure CLOCK-Pro already implements.
	identified *clockpro.Clock[int64, *ClasspathWrapper]
}

// NewClasspathManager constructs a manager whose identified-classpaths
// short-circuit holds at most capacity entries (weighted 1 each).
func NewClasspathManager(capacity int64) *ClasspathManager {
	return &ClasspathManager{
		buckets:    make(map[string][]classpathBucketSlot),
		byOffset:   make(map[uint64]*ClasspathWrapper),
		identified: clockpro.NewClock[int64, *ClasspathWrapper](capacity, func(*ClasspathWrapper) int { return 1 }, nil),
	}
}

func encodeClasspathWrapper(entries []ClasspathEntry) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(len(entries)))
	for _, e := range entries {
		rec := make([]byte, 2+len(e.Path)+1+8+1)
		binary.LittleEndian.PutUint16(rec[0:2], uint16(len(e.Path)))
		copy(rec[2:2+len(e.Path)], e.Path)
		off := 2 + len(e.Path)
		rec[off] = byte(e.Protocol)
		binary.LittleEndian.PutUint64(rec[off+1:off+9], uint64(e.Timestamp))
		rec[off+9] = byte(e.State)
		buf = append(buf, rec...)
	}
	return buf
}

func decodeClasspathWrapper(payload []byte) ([]ClasspathEntry, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("manager: classpath payload too short")
	}
	count := binary.LittleEndian.Uint32(payload[0:4])
	pos := 4
	entries := make([]ClasspathEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(payload) {
			return nil, fmt.Errorf("manager: classpath payload truncated at entry %d", i)
		}
		plen := int(binary.LittleEndian.Uint16(payload[pos : pos+2]))
		pos += 2
		if pos+plen+9 > len(payload) {
			return nil, fmt.Errorf("manager: classpath payload truncated at entry %d", i)
		}
		path := string(payload[pos : pos+plen])
		pos += plen
		proto := tsmanager.Protocol(payload[pos])
		ts := int64(binary.LittleEndian.Uint64(payload[pos+1 : pos+9]))
		state := ContainerState(payload[pos+9])
		pos += 10
		entries = append(entries, ClasspathEntry{Path: path, Protocol: proto, Timestamp: ts, State: state})
	}
	return entries, nil
}

// EncodeItem renders entries into the ItemClasspath payload a builder
// would commit.
func EncodeClasspathItem(entries []ClasspathEntry) []byte { return encodeClasspathWrapper(entries) }

// StoreNew indexes a CLASSPATH item discovered by a metadata walk.
func (m *ClasspathManager) StoreNew(l *region.Layer, e region.Entry) error {
	if e.Header.DataType != region.ItemClasspath {
		return nil
	}
	entries, err := decodeClasspathWrapper(e.Payload)
	if err != nil {
		return err
	}
	w := &ClasspathWrapper{
		item:    item{Layer: l, Offset: e.Offset, TrailerOff: e.TrailerOff, JVMID: e.Header.JVMID},
		Entries: entries,
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ce := range entries {
		m.buckets[ce.Path] = append(m.buckets[ce.Path], classpathBucketSlot{wrapper: w, index: i})
	}
	m.byOffset[e.Offset] = w
	return nil
}

// LookupByOffset resolves a classpath wrapper by its item's absolute
// offset, the only reference the ROM-class manager stores per record (it
// keeps no pointer of its own to avoid a dependency cycle on construction
// order between the two managers).
func (m *ClasspathManager) LookupByOffset(offset uint64) (*ClasspathWrapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.byOffset[offset]
	return w, ok
}

// Update looks for an already-cached wrapper whose entries equal caller's
// classpath and whose timestamps are all still fresh. If one is found, it
// is returned; any matching-but-stale wrapper found along the way has its
// item marked stale so the caller sees it rewritten on the next store
//.
func (m *ClasspathManager) Update(caller []ClasspathEntry) (*ClasspathWrapper, error) {
	if len(caller) == 0 {
		return nil, nil
	}
	m.mu.RLock()
	candidates := append([]classpathBucketSlot(nil), m.buckets[caller[0].Path]...)
	m.mu.RUnlock()

	for _, cand := range candidates {
		w := cand.wrapper
		if !classpathEqual(w.Entries, caller) {
			continue
		}
		fresh, err := classpathFresh(w.Entries)
		if err != nil {
			return nil, err
		}
		if fresh {
			return w, nil
		}
		w.SetStale()
	}
	return nil, nil
}

func classpathEqual(a, b []ClasspathEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || a[i].Protocol != b[i].Protocol {
			return false
		}
	}
	return true
}

func classpathFresh(entries []ClasspathEntry) (bool, error) {
	for _, e := range entries {
		res, _, err := tsmanager.Check(tsmanager.Entry{Path: e.Path, Protocol: e.Protocol, Timestamp: e.Timestamp}, "", 0)
		if err != nil {
			return false, err
		}
		if res != tsmanager.Unchanged {
			return false, nil
		}
	}
	return true, nil
}

// Validate tests whether a ROM class found via foundWrapper is a legal
// match for callerCP: the cached classpath entry it was found at
// (identified by confirmedIndex) must appear in the caller's classpath at
// the same index, and every entry up to and including that index must
// match by path and timestamp. A caller classpath that holds the entry at
// an earlier index is not accepted.
func (m *ClasspathManager) Validate(foundWrapper *ClasspathWrapper, confirmedIndex int, callerCP []ClasspathEntry) bool {
	if confirmedIndex < 0 || confirmedIndex >= len(foundWrapper.Entries) {
		return false
	}
	if confirmedIndex >= len(callerCP) {
		return false
	}
	for i := 0; i <= confirmedIndex; i++ {
		if foundWrapper.Entries[i].Path != callerCP[i].Path {
			return false
		}
		if foundWrapper.Entries[i].Timestamp != callerCP[i].Timestamp {
			return false
		}
	}
	return true
}

// IdentifiedMatch consults the same-JVM short-circuit for a classloader
// that has previously validated successfully.
func (m *ClasspathManager) IdentifiedMatch(classloaderID int64) (*ClasspathWrapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.identified.Get(classloaderID)
	return w, ok
}

// RecordIdentifiedMatch remembers a positive validation for classloaderID.
func (m *ClasspathManager) RecordIdentifiedMatch(classloaderID int64, w *ClasspathWrapper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identified.Put(classloaderID, w)
}

// Reset clears all in-process indexes/cleanup()",
// invoked on crash recovery and shutdown). It never touches the mapped
// file: committed items are immutable until explicitly marked stale.
func (m *ClasspathManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets = make(map[string][]classpathBucketSlot)
	m.byOffset = make(map[uint64]*ClasspathWrapper)
	m.identified.Reset()
}
