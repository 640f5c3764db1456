package cursor

import "github.com/Voskan/scc-cachemap/internal/srptable"

// Counting accumulates a byte count without writing anything. A ROM-class
// build runs one over the whole layout to size the final allocation, then
// (when SRP keys need offsets fixed before the writing pass) a second time
// purely to populate an srptable.Table via Mark.
type Counting struct {
	count uint32
	table *srptable.Table
	err   error
}

var _ Cursor = (*Counting)(nil)

// NewCounting constructs a counting cursor. table may be nil if this pass
// only needs the final size and never calls Mark.
func NewCounting(table *srptable.Table) *Counting {
	return &Counting{table: table}
}

func (c *Counting) WriteU8(uint8)    { c.count++ }
func (c *Counting) WriteU16(uint16)  { c.count += 2 }
func (c *Counting) WriteU32(uint32)  { c.count += 4 }
func (c *Counting) WriteU64(uint64)  { c.count += 8 }
func (c *Counting) WriteU16BE(uint16) { c.count += 2 }
func (c *Counting) WriteU32BE(uint32) { c.count += 4 }
func (c *Counting) WriteU64BE(uint64) { c.count += 8 }

func (c *Counting) WriteUTF8(s string) { c.count += uint32(utf8EncodedLen(s)) }
func (c *Counting) WriteData(b []byte) { c.count += uint32(len(b)) }
func (c *Counting) WriteSRP(srptable.Key)  { c.count += 4 }
func (c *Counting) WriteWSRP(srptable.Key) { c.count += 8 }

func (c *Counting) Mark(key srptable.Key) {
	if c.table == nil {
		return
	}
	if err := c.table.Insert(key, uint64(c.count)); err != nil && c.err == nil {
		c.err = err
	}
}

func (c *Counting) PadToAlignment(n uint32) {
	if !isPowerOfTwo(n) {
		panic("cursor: alignment must be a power of two")
	}
	if rem := c.count % n; rem != 0 {
		c.count += n - rem
	}
}

func (c *Counting) Skip(n uint32)   { c.count += n }
func (c *Counting) PeekU32() uint32 { return 0 }
func (c *Counting) Pos() uint64     { return uint64(c.count) }
func (c *Counting) Err() error      { return c.err }

// Count returns the final accumulated byte count.
func (c *Counting) Count() uint32 { return c.count }
