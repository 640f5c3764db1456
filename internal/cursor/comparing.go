package cursor

import (
	"encoding/binary"
	"strings"
	"unicode"

	"github.com/Voskan/scc-cachemap/internal/srptable"
)

// Comparing walks the same call sequence a writing cursor would, but
// against an already-committed candidate's bytes, to decide whether
// building a new ROM class would be byte-identical to one already in the
// cache. SRP slots can't be compared
// meaningfully here — at reuse-check time no base addresses are fixed yet
// — so they are skipped rather than checked.
//
// Lambda-class names carry an index with a bounded-length numeric
// variance (e.g. "Foo$$Lambda$12/0x..." vs "Foo$$Lambda$47/0x...");
// WriteUTF8 tolerates that one difference while still requiring an exact
// match everywhere else.
type Comparing struct {
	existing   []byte
	pos        uint32
	mismatched bool
}

var _ Cursor = (*Comparing)(nil)

// NewComparing constructs a comparing cursor against a candidate's bytes.
func NewComparing(existing []byte) *Comparing {
	return &Comparing{existing: existing}
}

func (c *Comparing) remaining() []byte {
	if c.pos >= uint32(len(c.existing)) {
		return nil
	}
	return c.existing[c.pos:]
}

func (c *Comparing) checkBytes(want []byte) {
	have := c.remaining()
	if len(have) < len(want) {
		c.mismatched = true
		c.pos += uint32(len(want))
		return
	}
	for i := range want {
		if have[i] != want[i] {
			c.mismatched = true
			break
		}
	}
	c.pos += uint32(len(want))
}

func (c *Comparing) WriteU8(v uint8) { c.checkBytes([]byte{v}) }

func (c *Comparing) WriteU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	c.checkBytes(b[:])
}

func (c *Comparing) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	c.checkBytes(b[:])
}

func (c *Comparing) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	c.checkBytes(b[:])
}

func (c *Comparing) WriteU16BE(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	c.checkBytes(b[:])
}

func (c *Comparing) WriteU32BE(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	c.checkBytes(b[:])
}

func (c *Comparing) WriteU64BE(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	c.checkBytes(b[:])
}

func (c *Comparing) WriteUTF8(s string) {
	have := c.remaining()
	total := utf8EncodedLen(s)
	if len(have) < 2 {
		c.mismatched = true
		c.pos += uint32(total)
		return
	}
	n := int(binary.LittleEndian.Uint16(have))
	haveTotal := 2 + n
	if haveTotal%2 != 0 {
		haveTotal++
	}
	if len(have) < haveTotal {
		c.mismatched = true
		c.pos += uint32(total)
		return
	}
	existingStr := string(have[2 : 2+n])
	if existingStr != s && !lambdaIndexVariant(existingStr, s) {
		c.mismatched = true
	}
	c.pos += uint32(total)
}

func (c *Comparing) WriteData(b []byte) { c.checkBytes(b) }

func (c *Comparing) WriteSRP(srptable.Key)  { c.pos += 4 }
func (c *Comparing) WriteWSRP(srptable.Key) { c.pos += 8 }

func (c *Comparing) Mark(srptable.Key) {}

func (c *Comparing) PadToAlignment(n uint32) {
	if !isPowerOfTwo(n) {
		panic("cursor: alignment must be a power of two")
	}
	if rem := c.pos % n; rem != 0 {
		c.pos += n - rem
	}
}

func (c *Comparing) Skip(n uint32) { c.pos += n }

func (c *Comparing) PeekU32() uint32 {
	have := c.remaining()
	if len(have) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(have)
}

func (c *Comparing) Pos() uint64 { return uint64(c.pos) }

func (c *Comparing) Err() error { return nil }

// Matches reports whether every comparison so far has succeeded and the
// candidate's bytes are fully consumed.
func (c *Comparing) Matches() bool {
	return !c.mismatched && c.pos == uint32(len(c.existing))
}

// lambdaIndexVariant reports whether a and b are identical except for a
// single run of digits following a "$$Lambda$" marker — the synthetic
// index javac assigns lambda classes, which legitimately differs between
// two structurally-identical classes built in different JVM runs.
func lambdaIndexVariant(a, b string) bool {
	const marker = "$$Lambda$"
	ai := strings.Index(a, marker)
	bi := strings.Index(b, marker)
	if ai < 0 || bi < 0 {
		return false
	}
	if a[:ai] != b[:bi] {
		return false
	}
	aRest := a[ai+len(marker):]
	bRest := b[bi+len(marker):]
	aDigits, aTail := splitLeadingDigits(aRest)
	bDigits, bTail := splitLeadingDigits(bRest)
	if aDigits == "" || bDigits == "" {
		return false
	}
	return aTail == bTail
}

func splitLeadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && unicode.IsDigit(rune(s[i])) {
		i++
	}
	return s[:i], s[i:]
}
