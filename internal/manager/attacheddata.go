package manager

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// AttachedDataRecord keys a record by the resolved address of its
// associated ROM method, like CompiledMethodRecord. It
// supports in-place update under the write mutex: corruptMarker is a live
// 8-byte slice into the mapped file, set non-zero before a mutation and
// cleared after, so a writer that crashes mid-update leaves a detectable
// partial write for the next attach to find.
type AttachedDataRecord struct {
	item
	ROMMethodAddr uint64
	corruptMarker []byte // live 8-byte slice
	Value         []byte // live slice, the record's current bytes
}

type AttachedDataManager struct {
	mu       sync.RWMutex
	byROM    map[uint64]*AttachedDataRecord
	byOffset map[uint64]*AttachedDataRecord
}

func NewAttachedDataManager() *AttachedDataManager {
	return &AttachedDataManager{
		byROM:    make(map[uint64]*AttachedDataRecord),
		byOffset: make(map[uint64]*AttachedDataRecord),
	}
}

// EncodeAttachedDataItem renders an ATTACHED_DATA payload: the ROM-method
// address, an 8-byte corruption marker (always zero at initial store),
// then the record's bytes.
func EncodeAttachedDataItem(romMethodAddr uint64, value []byte) []byte {
	buf := make([]byte, 8+8+len(value))
	binary.LittleEndian.PutUint64(buf[0:8], romMethodAddr)
	copy(buf[16:], value)
	return buf
}

func (m *AttachedDataManager) StoreNew(l *region.Layer, e region.Entry) error {
	if e.Header.DataType != region.ItemAttachedData {
		return nil
	}
	if len(e.Payload) < 16 {
		return fmt.Errorf("manager: attached-data payload too short")
	}
	addr := binary.LittleEndian.Uint64(e.Payload[0:8])

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byOffset[e.Offset]; ok {
		return nil
	}
	rec := &AttachedDataRecord{
		item:          item{Layer: l, Offset: e.Offset, TrailerOff: e.TrailerOff, JVMID: e.Header.JVMID},
		ROMMethodAddr: addr,
		corruptMarker: e.Payload[8:16],
		Value:         e.Payload[16:],
	}
	m.byROM[addr] = rec
	m.byOffset[e.Offset] = rec
	return nil
}

func (m *AttachedDataManager) FindByROMMethod(romMethodAddr uint64) (*AttachedDataRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.byROM[romMethodAddr]
	return rec, ok
}

// IsPartiallyWritten reports whether rec's corruption marker is set,
// meaning a previous update began but never committed.
func (rec *AttachedDataRecord) IsPartiallyWritten() bool {
	return binary.LittleEndian.Uint64(rec.corruptMarker) != 0
}

// BeginUpdate sets rec's corruption marker. Caller must already hold the
// layer's write mutex.
func (rec *AttachedDataRecord) BeginUpdate() {
	binary.LittleEndian.PutUint64(rec.corruptMarker, 1)
}

// CommitUpdate copies newValue over rec's bytes in place and clears the
// corruption marker. newValue must be exactly len(rec.Value) bytes —
// attached data is fixed-size once stored.
func (rec *AttachedDataRecord) CommitUpdate(newValue []byte) error {
	if len(newValue) != len(rec.Value) {
		return fmt.Errorf("manager: attached-data update size mismatch: have %d, want %d", len(newValue), len(rec.Value))
	}
	copy(rec.Value, newValue)
	binary.LittleEndian.PutUint64(rec.corruptMarker, 0)
	return nil
}

func (m *AttachedDataManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byROM = make(map[uint64]*AttachedDataRecord)
	m.byOffset = make(map[uint64]*AttachedDataRecord)
}
