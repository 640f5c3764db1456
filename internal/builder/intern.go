package builder

import (
	"sync"

	"github.com/minio/highwayhash"
)

// internHashKey is the fixed 256-bit key HighwayHash requires. It is a
// constant, not a secret: the intern table is a lookup structure, not a
// MAC, so a fixed key is correct here (it only needs to be stable across
// a process's lifetime so repeated lookups of the same string hash the
// same way).
var internHashKey = [32]byte{
	0x53, 0x43, 0x43, 0x4d, 0x2d, 0x69, 0x6e, 0x74,
	0x65, 0x72, 0x6e, 0x2d, 0x74, 0x61, 0x62, 0x6c,
	0x65, 0x2d, 0x68, 0x61, 0x73, 0x68, 0x2d, 0x6b,
	0x65, 0x79, 0x2d, 0x76, 0x31, 0x00, 0x00, 0x00,
}

// InternTable is the cross-build UTF-8 intern manager. Every candidate
// UTF-8 is HighwayHash-keyed before the lookup, keeping lookup cost
// independent of string length on the common path.
type InternTable struct {
	mu      sync.RWMutex
	entries map[uint64][]internedString
}

type internedString struct {
	value string
	addr  uint64
}

// NewInternTable constructs an empty intern table. One table is shared by
// every build against the same layer chain.
func NewInternTable() *InternTable {
	return &InternTable{entries: make(map[uint64][]internedString)}
}

func internHash(s string) uint64 {
	return highwayhash.Sum64([]byte(s), internHashKey[:])
}

// Lookup returns the absolute address of an existing copy of s, if any
// build has interned one.
func (t *InternTable) Lookup(s string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries[internHash(s)] {
		if e.value == s {
			return e.addr, true
		}
	}
	return 0, false
}

// Record registers a newly-written inline copy of s at addr so later
// builds can redirect to it instead of writing their own copy.
func (t *InternTable) Record(s string, addr uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := internHash(s)
	for _, e := range t.entries[h] {
		if e.value == s {
			return
		}
	}
	t.entries[h] = append(t.entries[h], internedString{value: s, addr: addr})
}

// Reset drops every interned entry (crash recovery: addresses from an
// aborted layer may no longer be valid).
func (t *InternTable) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[uint64][]internedString)
}
