// Package srptable implements the per-build-session SRP (self-relative
// pointer) key table: a map from caller-minted keys to the
// not-yet-written offset their data will eventually land at, used so a
// writing cursor can emit a signed offset to a key before that key's bytes
// have actually been placed.
//
// Keys are bucketed by FarmHash over their serialized (tag, ordinal) pair,
// distinct from the xxhash used elsewhere so the two hash-table-heavy
// subsystems in this repo (managers, SRP keys) don't share one hash's
// collision bias.
package srptable

import (
	"encoding/binary"
	"fmt"
	"sync"

	farm "github.com/dgryski/go-farm"
)

// Tag selects which sub-region of a build a key's offset is relative to.
type Tag uint8

const (
	TagMain Tag = iota
	TagLineNumber
	TagVariableInfo
	TagUTF8
	TagIntermediateClassData

	tagCount
)

func (t Tag) String() string {
	names := [...]string{"MAIN", "LINE_NUMBER", "VARIABLE_INFO", "UTF8", "INTERMEDIATE_CLASS_DATA"}
	if int(t) < len(names) {
		return names[t]
	}
	return "UNKNOWN"
}

// Key identifies one logical reference slot: a constant-pool item, a
// method's stack map, a debug-info record, ... minted by the builder's key
// producer, never reused within one build session.
type Key struct {
	Tag     Tag
	Ordinal uint32
}

func (k Key) serialize() [5]byte {
	var b [5]byte
	b[0] = byte(k.Tag)
	binary.LittleEndian.PutUint32(b[1:], k.Ordinal)
	return b
}

type entry struct {
	key          Key
	offset       uint64
	marked       bool
	interned     bool
	internedAddr uint64
}

// ErrOutOfMemory is returned by Insert once the key space has grown past
// the table's configured capacity.
var ErrOutOfMemory = fmt.Errorf("srptable: out of memory")

const defaultNumBuckets = 256

// Table is one build session's SRP key table. Not safe for use across
// build sessions; callers construct a fresh Table per ROM-class build.
type Table struct {
	mu      sync.Mutex
	buckets [][]entry
	maxKeys int
	count   int
	tagBase [tagCount]uint64
	tagSet  [tagCount]bool
}

// New constructs a Table. maxKeys <= 0 means unbounded.
func New(maxKeys int) *Table {
	return &Table{buckets: make([][]entry, defaultNumBuckets), maxKeys: maxKeys}
}

func (t *Table) bucketIndex(key Key) int {
	b := key.serialize()
	return int(farm.Hash64(b[:]) % uint64(len(t.buckets)))
}

func (t *Table) findLocked(key Key) (idx, pos int, ok bool) {
	idx = t.bucketIndex(key)
	for i, e := range t.buckets[idx] {
		if e.key == key {
			return idx, i, true
		}
	}
	return idx, -1, false
}

// Insert records that key's data lands at offset within its tag's
// sub-region (called by the measuring cursor as it walks).
func (t *Table) Insert(key Key, offset uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, pos, ok := t.findLocked(key)
	if ok {
		t.buckets[idx][pos].offset = offset
		t.buckets[idx][pos].marked = true
		return nil
	}
	if t.maxKeys > 0 && t.count >= t.maxKeys {
		return ErrOutOfMemory
	}
	t.buckets[idx] = append(t.buckets[idx], entry{key: key, offset: offset, marked: true})
	t.count++
	return nil
}

// IsNotNull reports whether key has been marked with an offset (via
// Insert) or interned (via SetInternedAt).
func (t *Table) IsNotNull(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, pos, ok := t.findLocked(key)
	if !ok {
		return false
	}
	e := t.buckets[idx][pos]
	return e.marked || e.interned
}

// IsInterned reports whether key was redirected at an existing UTF-8 copy
// via SetInternedAt rather than resolved through its tag's base address.
func (t *Table) IsInterned(key Key) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, pos, ok := t.findLocked(key)
	return ok && t.buckets[idx][pos].interned
}

// SetInternedAt marks key as resolving to an existing absolute address
// instead of an offset within one of this build's own sub-regions (used
// when a UTF-8 is found already interned elsewhere in the attached chain).
func (t *Table) SetInternedAt(key Key, absoluteAddr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, pos, ok := t.findLocked(key)
	if ok {
		t.buckets[idx][pos].interned = true
		t.buckets[idx][pos].internedAddr = absoluteAddr
		return
	}
	t.buckets[idx] = append(t.buckets[idx], entry{key: key, interned: true, internedAddr: absoluteAddr, marked: true})
	t.count++
}

// SetBaseAddressForTag fixes the absolute address of a tagged sub-region
// once its size is known and it has been allocated.
func (t *Table) SetBaseAddressForTag(tag Tag, base uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tagBase[tag] = base
	t.tagSet[tag] = true
}

// ComputeSRP returns the signed offset from srpSiteAddr to key's resolved
// address, or 0 if key is unmarked.
func (t *Table) ComputeSRP(key Key, srpSiteAddr uint64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, pos, ok := t.findLocked(key)
	if !ok {
		return 0, nil
	}
	e := t.buckets[idx][pos]
	if e.interned {
		return int64(e.internedAddr) - int64(srpSiteAddr), nil
	}
	if !e.marked {
		return 0, nil
	}
	if !t.tagSet[key.Tag] {
		return 0, fmt.Errorf("srptable: base address for tag %s not set", key.Tag)
	}
	abs := t.tagBase[key.Tag] + e.offset
	return int64(abs) - int64(srpSiteAddr), nil
}

// Clear resets the table between the size-computation pass and the final
// layout pass, keeping the same Table instance.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.buckets {
		t.buckets[i] = nil
	}
	t.count = 0
	t.tagBase = [tagCount]uint64{}
	t.tagSet = [tagCount]bool{}
}
