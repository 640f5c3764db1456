package builder

import "testing"

func TestInternTableRecordAndLookup(t *testing.T) {
	tbl := NewInternTable()
	if _, ok := tbl.Lookup("java/lang/Object"); ok {
		t.Fatalf("expected miss before Record")
	}
	tbl.Record("java/lang/Object", 0x4000)
	addr, ok := tbl.Lookup("java/lang/Object")
	if !ok || addr != 0x4000 {
		t.Fatalf("expected hit at 0x4000, got %v %v", addr, ok)
	}
	tbl.Record("java/lang/Object", 0x9999) // second Record for same string is a no-op
	addr, _ = tbl.Lookup("java/lang/Object")
	if addr != 0x4000 {
		t.Fatalf("Record must not overwrite an existing entry, got %v", addr)
	}
}

func TestInternTableReset(t *testing.T) {
	tbl := NewInternTable()
	tbl.Record("a", 1)
	tbl.Reset()
	if _, ok := tbl.Lookup("a"); ok {
		t.Fatalf("expected miss after Reset")
	}
}
