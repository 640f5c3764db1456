package cursor

import (
	"encoding/binary"

	"github.com/Voskan/scc-cachemap/internal/srptable"
)

// Writing lays bytes down for real into a pre-allocated destination buffer
// (normally a slice view into a region.Layer's mapped bytes). absSiteBase
// is the absolute address buf[0] corresponds to, needed to compute each
// SRP as a signed offset from its own storage site to its target.
//
// Interning is not this cursor's concern: the builder decides, for each
// UTF-8, whether to call WriteUTF8 (write inline) or skip straight to
// WriteSRP/WriteWSRP against a key the intern table already resolved via
// srptable.Table.SetInternedAt.
type Writing struct {
	buf         []byte
	pos         uint32
	absSiteBase uint64
	table       *srptable.Table
	order       binary.ByteOrder
	err         error
}

var _ Cursor = (*Writing)(nil)

// NewWriting constructs a writing cursor over buf. table must be non-nil
// whenever Mark, WriteSRP, or WriteWSRP will be called.
func NewWriting(buf []byte, absSiteBase uint64, table *srptable.Table) *Writing {
	return &Writing{buf: buf, absSiteBase: absSiteBase, table: table, order: binary.LittleEndian}
}

func (w *Writing) WriteU8(v uint8) {
	w.buf[w.pos] = v
	w.pos++
}

func (w *Writing) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
}

func (w *Writing) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

func (w *Writing) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

func (w *Writing) WriteU16BE(v uint16) {
	binary.BigEndian.PutUint16(w.buf[w.pos:], v)
	w.pos += 2
}

func (w *Writing) WriteU32BE(v uint32) {
	binary.BigEndian.PutUint32(w.buf[w.pos:], v)
	w.pos += 4
}

func (w *Writing) WriteU64BE(v uint64) {
	binary.BigEndian.PutUint64(w.buf[w.pos:], v)
	w.pos += 8
}

// WriteUTF8 writes a 2-byte length, the bytes, and one pad byte if the
// total is odd.
func (w *Writing) WriteUTF8(s string) {
	binary.LittleEndian.PutUint16(w.buf[w.pos:], uint16(len(s)))
	w.pos += 2
	copy(w.buf[w.pos:], s)
	w.pos += uint32(len(s))
	if (2+len(s))%2 != 0 {
		w.buf[w.pos] = 0
		w.pos++
	}
}

func (w *Writing) WriteData(b []byte) {
	copy(w.buf[w.pos:], b)
	w.pos += uint32(len(b))
}

func (w *Writing) WriteSRP(key srptable.Key) {
	siteAddr := w.absSiteBase + uint64(w.pos)
	off, err := w.table.ComputeSRP(key, siteAddr)
	if err != nil && w.err == nil {
		w.err = err
	}
	binary.LittleEndian.PutUint32(w.buf[w.pos:], uint32(int32(off)))
	w.pos += 4
}

func (w *Writing) WriteWSRP(key srptable.Key) {
	siteAddr := w.absSiteBase + uint64(w.pos)
	off, err := w.table.ComputeSRP(key, siteAddr)
	if err != nil && w.err == nil {
		w.err = err
	}
	binary.LittleEndian.PutUint64(w.buf[w.pos:], uint64(off))
	w.pos += 8
}

func (w *Writing) Mark(key srptable.Key) {
	if w.table == nil {
		return
	}
	if err := w.table.Insert(key, uint64(w.pos)); err != nil && w.err == nil {
		w.err = err
	}
}

func (w *Writing) PadToAlignment(n uint32) {
	if !isPowerOfTwo(n) {
		panic("cursor: alignment must be a power of two")
	}
	rem := w.pos % n
	if rem == 0 {
		return
	}
	pad := n - rem
	for i := uint32(0); i < pad; i++ {
		w.buf[w.pos] = 0
		w.pos++
	}
}

func (w *Writing) Skip(n uint32) { w.pos += n }

func (w *Writing) PeekU32() uint32 { return binary.LittleEndian.Uint32(w.buf[w.pos:]) }

func (w *Writing) Pos() uint64 { return uint64(w.pos) }

func (w *Writing) Err() error { return w.err }
