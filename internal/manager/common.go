// Package manager implements the per-item-type indexes: classpath,
// ROM-class, scope, byte-data, compiled-method and attached-data
// managers. Every manager shares one skeleton — a hash table keyed by
// the manager's own index, lazy population from a metadata walk via
// StoreNew, and a reset/cleanup pair for crash recovery and shutdown —
// generalized from a single generic key/value shard into six typed
// indexes, one per item kind.
package manager

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/Voskan/scc-cachemap/internal/region"
)

// encodeKeyed is the payload framing of ROM-class items
// (ORPHAN/ROMCLASS/SCOPED_ROMCLASS): a 2-byte length-prefixed UTF-8 index
// key followed by an opaque value. The class name is the key, so the
// manager can stay agnostic to the rest of the ROM class's shape; the
// other managers use framings of their own.
func encodeKeyed(key string, value []byte) []byte {
	buf := make([]byte, 2+len(key)+len(value))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(key)))
	n := copy(buf[2:], key)
	copy(buf[2+n:], value)
	return buf
}

func decodeKeyed(payload []byte) (key string, value []byte, err error) {
	if len(payload) < 2 {
		return "", nil, fmt.Errorf("manager: payload too short for key length prefix")
	}
	klen := int(binary.LittleEndian.Uint16(payload[0:2]))
	if 2+klen > len(payload) {
		return "", nil, fmt.Errorf("manager: payload too short for key of length %d", klen)
	}
	return string(payload[2 : 2+klen]), payload[2+klen:], nil
}

// KeyHash is an xxhash-based string hash (promoted from an indirect
// badger dependency to a direct one). The managers' own bucket tables are
// Go maps keyed by the string itself and do not call it.
func KeyHash(s string) uint64 { return xxhash.Sum64String(s) }

// item is the bookkeeping every manager keeps per indexed cache entry: the
// walked item's location (for stale-bit and type-tag flips) plus which
// layer it came from, since a chain may have several.
type item struct {
	Layer      *region.Layer
	Offset     uint64
	TrailerOff uint64
	JVMID      uint16
}

func (it item) Stale() bool       { return it.Layer.Stale(it.TrailerOff) }
func (it item) SetStale()         { it.Layer.SetStale(it.TrailerOff) }
