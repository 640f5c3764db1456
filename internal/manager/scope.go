package manager

import (
	"sync"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// ScopeManager maps a UTF-8 scope string (a partition name, a modification
// context, or a prerequisite-cache identifier) to the interned SCOPE item
// that holds it, so other items can reference it by offset instead of
// repeating the string.
type ScopeManager struct {
	mu      sync.RWMutex
	byScope map[string]scopeEntry
}

type scopeEntry struct {
	item
	Offset uint64 // absolute offset of the SCOPE item holding the string (its header, not its payload)
}

func NewScopeManager() *ScopeManager {
	return &ScopeManager{byScope: make(map[string]scopeEntry)}
}

// StoreNew indexes a SCOPE item discovered by a metadata walk. The payload
// is the scope string verbatim (no key framing needed — SCOPE items have
// no separate value).
func (m *ScopeManager) StoreNew(l *region.Layer, e region.Entry) {
	if e.Header.DataType != region.ItemScope {
		return
	}
	scope := string(e.Payload)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byScope[scope] = scopeEntry{
		item:   item{Layer: l, Offset: e.Offset, TrailerOff: e.TrailerOff, JVMID: e.Header.JVMID},
		Offset: e.Offset,
	}
}

// Intern returns the already-interned offset for scope if present.
func (m *ScopeManager) Intern(scope string) (offset uint64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byScope[scope]
	return e.Offset, ok
}

func (m *ScopeManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byScope = make(map[string]scopeEntry)
}
