package cursor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Voskan/scc-cachemap/internal/srptable"
)

func TestCountingBasic(t *testing.T) {
	c := NewCounting(nil)
	c.WriteU8(1)
	c.WriteU16(2)
	c.WriteU32(3)
	c.WriteU64(4)
	c.WriteUTF8("hi") // 2+2=4, even, no pad
	c.WriteUTF8("odd") // 2+3=5, odd -> pad to 6
	require.Equal(t, uint32(1+2+4+8+4+6), c.Count())
}

func TestCountingPadToAlignment(t *testing.T) {
	c := NewCounting(nil)
	c.WriteU8(1)
	c.PadToAlignment(8)
	require.Equal(t, uint32(8), c.Count())
	c.PadToAlignment(8)
	require.Equal(t, uint32(8), c.Count())
}

func TestCountingPadPanicsOnNonPowerOfTwo(t *testing.T) {
	c := NewCounting(nil)
	require.Panics(t, func() { c.PadToAlignment(3) })
}

func TestCountingMarksIntoTable(t *testing.T) {
	tbl := srptable.New(0)
	c := NewCounting(tbl)
	key := srptable.Key{Tag: srptable.TagMain, Ordinal: 1}
	c.WriteU32(0xdeadbeef)
	c.Mark(key)
	require.True(t, tbl.IsNotNull(key))
}

func TestWritingRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriting(buf, 0x1000, nil)
	w.WriteU8(0xAB)
	w.WriteU16(0x1234)
	w.WriteU32(0xCAFEBABE)
	require.Equal(t, byte(0xAB), buf[0])
	require.Equal(t, uint16(0x1234), leU16(buf[1:3]))
	require.Equal(t, uint32(0xCAFEBABE), leU32(buf[3:7]))
	require.Equal(t, uint64(7), w.Pos())
}

func TestWritingUTF8Padding(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriting(buf, 0, nil)
	w.WriteUTF8("odd") // len 3 -> total 6 (padded)
	require.Equal(t, uint64(6), w.Pos())
	require.Equal(t, byte(0), buf[5])
}

func TestWritingSRPRoundTrip(t *testing.T) {
	tbl := srptable.New(0)
	key := srptable.Key{Tag: srptable.TagMain, Ordinal: 5}
	require.NoError(t, tbl.Insert(key, 16))
	tbl.SetBaseAddressForTag(srptable.TagMain, 0x2000)

	buf := make([]byte, 32)
	w := NewWriting(buf, 0x2000, tbl)
	w.Skip(8) // move to offset 8, site addr 0x2008
	w.WriteSRP(key)
	require.NoError(t, w.Err())
	// target absolute = 0x2000+16 = 0x2010; site = 0x2008 -> +8
	require.Equal(t, int32(8), int32(leU32(buf[8:12])))
}

func TestWritingPadToAlignmentZeroFills(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	w := NewWriting(buf, 0, nil)
	w.WriteU8(1)
	w.PadToAlignment(4)
	require.Equal(t, uint64(4), w.Pos())
	require.Equal(t, []byte{1, 0, 0, 0}, buf[0:4])
}

func TestComparingIdenticalMatches(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriting(buf, 0, nil)
	w.WriteU8(7)
	w.WriteUTF8("Foo")
	w.WriteU32(99)
	n := w.Pos()

	c := NewComparing(buf[:n])
	c.WriteU8(7)
	c.WriteUTF8("Foo")
	c.WriteU32(99)
	require.True(t, c.Matches())
}

func TestComparingDetectsMismatch(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriting(buf, 0, nil)
	w.WriteU8(7)
	n := w.Pos()

	c := NewComparing(buf[:n])
	c.WriteU8(8)
	require.False(t, c.Matches())
}

func TestComparingToleratesLambdaIndexVariance(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriting(buf, 0, nil)
	w.WriteUTF8("com/example/Foo$$Lambda$12/0x00000abc")
	n := w.Pos()

	c := NewComparing(buf[:n])
	c.WriteUTF8("com/example/Foo$$Lambda$47/0x00000abc")
	require.True(t, c.Matches())
}

func TestComparingRejectsDifferentLambdaTail(t *testing.T) {
	buf := make([]byte, 64)
	w := NewWriting(buf, 0, nil)
	w.WriteUTF8("com/example/Foo$$Lambda$12/0x00000abc")
	n := w.Pos()

	c := NewComparing(buf[:n])
	c.WriteUTF8("com/example/Foo$$Lambda$12/0xDIFFERENT")
	require.False(t, c.Matches())
}

func leU16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
