package manager

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/biogo/store/llrb"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// ByteDataKind is the closed sub-kind enumeration the byte-data manager
// indexes separately.
type ByteDataKind uint8

const (
	KindJCL ByteDataKind = iota
	KindZipCache
	KindJITHint
	KindAOTHeader
	KindAOTClassChain
	KindAOTThunk
	KindStartupHints

	byteDataKindCount
)

func (k ByteDataKind) String() string {
	names := [...]string{"JCL", "ZIPCACHE", "JITHINT", "AOTHEADER", "AOTCLASSCHAIN", "AOTTHUNK", "STARTUP_HINTS"}
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

const (
	flagIndexed uint8 = 1 << iota
	flagPrivate
	flagSingleStore
	flagOverwriteInPlace
)

// ByteDataRecord is one stored record. Value is a live slice into the
// mapped file (the same backing array region.Entry.Payload exposes), so
// OverwriteInPlace can mutate committed bytes directly for fixed-size
// records without a new allocation.
type ByteDataRecord struct {
	item
	Kind             ByteDataKind
	Key              string // empty for unindexed records
	Indexed          bool
	Private          bool
	SingleStore      bool
	OverwritableInPlace bool
	Value            []byte
}

// llrbItem adapts a ByteDataRecord into biogo/store/llrb's ordered-tree
// interface, sorted by Key, for the indexed sub-kind catalogs.
type llrbItem struct {
	key string
	rec *ByteDataRecord
}

func (a llrbItem) Compare(b llrb.Comparable) int {
	other := b.(llrbItem)
	switch {
	case a.key < other.key:
		return -1
	case a.key > other.key:
		return 1
	default:
		return 0
	}
}

// ByteDataManager indexes BYTE_DATA and UNINDEXED_BYTE_DATA items, one
// sorted catalog per sub-kind for indexed records.
type ByteDataManager struct {
	mu         sync.RWMutex
	catalogs   [byteDataKindCount]*llrb.Tree
	unindexed  []*ByteDataRecord
	byOffset   map[uint64]*ByteDataRecord
}

func NewByteDataManager() *ByteDataManager {
	m := &ByteDataManager{byOffset: make(map[uint64]*ByteDataRecord)}
	for i := range m.catalogs {
		m.catalogs[i] = &llrb.Tree{}
	}
	return m
}

// EncodeByteDataItem renders the BYTE_DATA/UNINDEXED_BYTE_DATA payload a
// builder commits. key is ignored (and may be empty) for unindexed
// records; the item's own type (region.ItemByteData vs.
// region.ItemUnindexedByteData) is the builder's concern, not this
// payload's.
func EncodeByteDataItem(kind ByteDataKind, key string, indexed, private, singleStore, overwriteInPlace bool, value []byte) []byte {
	var flags uint8
	if indexed {
		flags |= flagIndexed
	}
	if private {
		flags |= flagPrivate
	}
	if singleStore {
		flags |= flagSingleStore
	}
	if overwriteInPlace {
		flags |= flagOverwriteInPlace
	}
	prefix := make([]byte, 1+1+2+len(key))
	prefix[0] = byte(kind)
	prefix[1] = flags
	binary.LittleEndian.PutUint16(prefix[2:4], uint16(len(key)))
	copy(prefix[4:], key)
	return append(prefix, value...)
}

func decodeByteDataPayload(payload []byte) (kind ByteDataKind, flags uint8, key string, value []byte, err error) {
	if len(payload) < 4 {
		return 0, 0, "", nil, fmt.Errorf("manager: byte-data payload too short")
	}
	kind = ByteDataKind(payload[0])
	flags = payload[1]
	klen := int(binary.LittleEndian.Uint16(payload[2:4]))
	if 4+klen > len(payload) {
		return 0, 0, "", nil, fmt.Errorf("manager: byte-data payload truncated (key)")
	}
	key = string(payload[4 : 4+klen])
	value = payload[4+klen:]
	return kind, flags, key, value, nil
}

// StoreNew indexes a BYTE_DATA or UNINDEXED_BYTE_DATA item.
func (m *ByteDataManager) StoreNew(l *region.Layer, e region.Entry) error {
	if e.Header.DataType != region.ItemByteData && e.Header.DataType != region.ItemUnindexedByteData {
		return nil
	}
	kind, flags, key, value, err := decodeByteDataPayload(e.Payload)
	if err != nil {
		return err
	}
	if int(kind) >= int(byteDataKindCount) {
		return fmt.Errorf("manager: byte-data item has unknown sub-kind %d", kind)
	}
	rec := &ByteDataRecord{
		item:                item{Layer: l, Offset: e.Offset, TrailerOff: e.TrailerOff, JVMID: e.Header.JVMID},
		Kind:                kind,
		Key:                 key,
		Indexed:             flags&flagIndexed != 0,
		Private:             flags&flagPrivate != 0,
		SingleStore:         flags&flagSingleStore != 0,
		OverwritableInPlace: flags&flagOverwriteInPlace != 0,
		Value:               value,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Indexed {
		m.catalogs[kind].Insert(llrbItem{key: key, rec: rec})
	} else {
		m.unindexed = append(m.unindexed, rec)
	}
	m.byOffset[e.Offset] = rec
	return nil
}

// FindIndexed looks up an indexed record by sub-kind and key.
func (m *ByteDataManager) FindIndexed(kind ByteDataKind, key string) (*ByteDataRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if int(kind) >= int(byteDataKindCount) {
		return nil, false
	}
	found := m.catalogs[kind].Get(llrbItem{key: key})
	if found == nil {
		return nil, false
	}
	return found.(llrbItem).rec, true
}

// FindByOffset resolves a record (indexed or unindexed) by its item's
// absolute offset — how other records address an unindexed one.
func (m *ByteDataManager) FindByOffset(offset uint64) (*ByteDataRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byOffset[offset]
	return rec, ok
}

// OverwriteInPlace replaces a fixed-size record's value bytes without a
// new item — overwrite-in-place semantics for fixed-size records when
// layered in the top cache. Fails if the record wasn't stored with that
// permission or the new value's length differs.
func (m *ByteDataManager) OverwriteInPlace(rec *ByteDataRecord, newValue []byte) error {
	if !rec.OverwritableInPlace {
		return fmt.Errorf("manager: record %s/%s is not overwrite-in-place", rec.Kind, rec.Key)
	}
	if len(newValue) != len(rec.Value) {
		return fmt.Errorf("manager: overwrite-in-place size mismatch: have %d, want %d", len(newValue), len(rec.Value))
	}
	copy(rec.Value, newValue)
	return nil
}

// SubKindUsage is one sub-kind's aggregate byte/record count, for the
// javacore stats snapshot.
type SubKindUsage struct {
	Kind  ByteDataKind
	Bytes uint64
	Count uint64
}

// Usage aggregates bytes and record counts per sub-kind across both the
// indexed catalogs and the unindexed list.
func (m *ByteDataManager) Usage() []SubKindUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	usage := make([]SubKindUsage, byteDataKindCount)
	for k := range usage {
		usage[k].Kind = ByteDataKind(k)
	}
	for k, tree := range m.catalogs {
		tree.Do(func(c llrb.Comparable) bool {
			rec := c.(llrbItem).rec
			usage[k].Bytes += uint64(len(rec.Value))
			usage[k].Count++
			return false
		})
	}
	for _, rec := range m.unindexed {
		usage[rec.Kind].Bytes += uint64(len(rec.Value))
		usage[rec.Kind].Count++
	}
	return usage
}

func (m *ByteDataManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.catalogs {
		m.catalogs[i] = &llrb.Tree{}
	}
	m.unindexed = nil
	m.byOffset = make(map[uint64]*ByteDataRecord)
}
