package manager

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// CompiledMethodRecord keys a compiled (AOT) method record by the
// absolute, offset-resolved address of its associated ROM method, and
// additionally carries the class/method/signature triple the AOT method
// operation wildcard-matches against — without it, "recompile
// every method under com/acme/*" would have nothing to match on besides an
// opaque address.
type CompiledMethodRecord struct {
	item
	ROMMethodAddr uint64
	ClassName     string
	MethodName    string
	Signature     string
	Invalidated   bool
}

// CompiledMethodManager indexes COMPILED_METHOD /
// INVALIDATED_COMPILED_METHOD items.
type CompiledMethodManager struct {
	mu       sync.RWMutex
	byROM    map[uint64][]*CompiledMethodRecord
	byOffset map[uint64]*CompiledMethodRecord
	all      []*CompiledMethodRecord
}

func NewCompiledMethodManager() *CompiledMethodManager {
	return &CompiledMethodManager{
		byROM:    make(map[uint64][]*CompiledMethodRecord),
		byOffset: make(map[uint64]*CompiledMethodRecord),
	}
}

// EncodeCompiledMethodItem renders a COMPILED_METHOD payload: the resolved
// ROM-method address, the class/method/signature triple, and the compiled
// code bytes.
func EncodeCompiledMethodItem(romMethodAddr uint64, className, methodName, signature string, code []byte) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf[0:8], romMethodAddr)
	buf = appendLenPrefixed(buf, className)
	buf = appendLenPrefixed(buf, methodName)
	buf = appendLenPrefixed(buf, signature)
	buf = append(buf, code...)
	return buf
}

func appendLenPrefixed(buf []byte, s string) []byte {
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(s)))
	buf = append(buf, lenBuf...)
	return append(buf, s...)
}

func readLenPrefixed(payload []byte, pos int) (s string, next int, err error) {
	if pos+2 > len(payload) {
		return "", 0, fmt.Errorf("manager: compiled-method payload truncated (length prefix)")
	}
	n := int(binary.LittleEndian.Uint16(payload[pos : pos+2]))
	pos += 2
	if pos+n > len(payload) {
		return "", 0, fmt.Errorf("manager: compiled-method payload truncated (string body)")
	}
	return string(payload[pos : pos+n]), pos + n, nil
}

func decodeCompiledMethodPayload(payload []byte) (addr uint64, className, methodName, signature string, err error) {
	if len(payload) < 8 {
		return 0, "", "", "", fmt.Errorf("manager: compiled-method payload too short")
	}
	addr = binary.LittleEndian.Uint64(payload[0:8])
	pos := 8
	if className, pos, err = readLenPrefixed(payload, pos); err != nil {
		return 0, "", "", "", err
	}
	if methodName, pos, err = readLenPrefixed(payload, pos); err != nil {
		return 0, "", "", "", err
	}
	if signature, _, err = readLenPrefixed(payload, pos); err != nil {
		return 0, "", "", "", err
	}
	return addr, className, methodName, signature, nil
}

func (m *CompiledMethodManager) StoreNew(l *region.Layer, e region.Entry) error {
	if e.Header.DataType != region.ItemCompiledMethod && e.Header.DataType != region.ItemInvalidatedCompiledMethod {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byOffset[e.Offset]; ok {
		existing.Invalidated = e.Header.DataType == region.ItemInvalidatedCompiledMethod
		return nil
	}

	addr, class, method, sig, err := decodeCompiledMethodPayload(e.Payload)
	if err != nil {
		return err
	}
	rec := &CompiledMethodRecord{
		item:          item{Layer: l, Offset: e.Offset, TrailerOff: e.TrailerOff, JVMID: e.Header.JVMID},
		ROMMethodAddr: addr,
		ClassName:     class,
		MethodName:    method,
		Signature:     sig,
		Invalidated:   e.Header.DataType == region.ItemInvalidatedCompiledMethod,
	}
	m.byROM[addr] = append(m.byROM[addr], rec)
	m.byOffset[e.Offset] = rec
	m.all = append(m.all, rec)
	return nil
}

// FindByROMMethod returns every compiled-method record for a ROM method
// address, including invalidated ones — callers filter by Invalidated.
func (m *CompiledMethodManager) FindByROMMethod(romMethodAddr uint64) []*CompiledMethodRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*CompiledMethodRecord(nil), m.byROM[romMethodAddr]...)
}

// All returns every indexed compiled-method record, for the AOT method
// operation's wildcard walk.
func (m *CompiledMethodManager) All() []*CompiledMethodRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*CompiledMethodRecord(nil), m.all...)
}

// Invalidate flips rec's type tag to INVALIDATED_COMPILED_METHOD, purging
// it from normal finds while preserving its bytes.
func (m *CompiledMethodManager) Invalidate(rec *CompiledMethodRecord) {
	rec.Layer.InvalidateCompiledMethod(rec.Offset)
	m.mu.Lock()
	rec.Invalidated = true
	m.mu.Unlock()
}

// Revalidate is the inverse of Invalidate.
func (m *CompiledMethodManager) Revalidate(rec *CompiledMethodRecord) {
	rec.Layer.RevalidateCompiledMethod(rec.Offset)
	m.mu.Lock()
	rec.Invalidated = false
	m.mu.Unlock()
}

func (m *CompiledMethodManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byROM = make(map[uint64][]*CompiledMethodRecord)
	m.byOffset = make(map[uint64]*CompiledMethodRecord)
	m.all = nil
}
