package builder

import (
	"github.com/Voskan/scc-cachemap/internal/cursor"
	"github.com/Voskan/scc-cachemap/internal/srptable"
)

// session tracks one build pass's UTF-8 interning decisions so the same
// plan, walked twice with two different cursor kinds, makes identical
// decisions both times (required for the counting pass's byte count to
// match what the writing pass actually lays down). A fresh session is
// used per pass; the cross-build InternTable it wraps is the only state
// carried between passes (and between builds).
type session struct {
	table       *srptable.Table
	global      *InternTable
	local       map[string]srptable.Key
	nextOrdinal uint32
	interned    []string // strings written inline this pass, for Record after commit
	internedKey []srptable.Key
}

func newSession(table *srptable.Table, global *InternTable) *session {
	return &session{table: table, global: global, local: make(map[string]srptable.Key)}
}

// ref writes a reference to s: an SRP to an existing copy (global intern
// table or already written earlier in this same build) or, the first
// time s is seen in this build, an inline WriteUTF8 plus a freshly
// minted key other references redirect to.
func (s *session) ref(c cursor.Cursor, str string) {
	if key, ok := s.local[str]; ok {
		c.WriteSRP(key)
		return
	}
	key := srptable.Key{Tag: srptable.TagUTF8, Ordinal: s.nextOrdinal}
	s.nextOrdinal++
	s.local[str] = key

	if addr, ok := s.global.Lookup(str); ok {
		s.table.SetInternedAt(key, addr)
		c.WriteSRP(key)
		return
	}
	c.Mark(key)
	c.WriteUTF8(str)
	s.interned = append(s.interned, str)
	s.internedKey = append(s.internedKey, key)
}

// refOptional writes a zero-valued (unmarked) SRP when str is empty,
// covering ClassPlan.SuperclassName for java/lang/Object.
func (s *session) refOptional(c cursor.Cursor, str string) {
	if str == "" {
		c.WriteSRP(srptable.Key{Tag: srptable.TagUTF8, Ordinal: ^uint32(0)})
		return
	}
	s.ref(c, str)
}

// layoutROMClass is the one walk driven once by
// a Counting cursor (measure), once by a Writing cursor (lay down), and
// once by a Comparing cursor (reuse check) — the same call sequence
// every time, only the cursor implementation differs.
func layoutROMClass(main, lineNumbers, variableInfo cursor.Cursor, plan *ClassPlan, s *session) {
	main.Mark(srptable.Key{Tag: srptable.TagMain, Ordinal: 0})
	main.WriteU32(plan.Modifiers)
	s.ref(main, plan.Name)
	s.refOptional(main, plan.SuperclassName)

	main.WriteU32(uint32(len(plan.Interfaces)))
	for _, iface := range plan.Interfaces {
		s.ref(main, iface)
	}

	main.WriteU32(uint32(len(plan.UTF8Constants)))
	for _, u := range plan.UTF8Constants {
		s.ref(main, u)
	}

	main.WriteU32(uint32(len(plan.Methods)))
	for _, m := range plan.Methods {
		s.ref(main, m.Name)
		s.ref(main, m.Descriptor)
		main.WriteU32(uint32(len(m.Code)))
		main.WriteData(m.Code)

		main.WriteU32(uint32(len(m.LineNumbers)))
		lineNumbers.WriteData(m.LineNumbers)

		main.WriteU32(uint32(len(m.VariableInfo)))
		variableInfo.WriteData(m.VariableInfo)
	}

	main.WriteU32(uint32(len(plan.RawClassData)))
	main.WriteData(plan.RawClassData)
	main.PadToAlignment(8)
}
