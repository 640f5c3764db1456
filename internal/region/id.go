package region

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// String renders the unique cache ID as path followed
// by six hex tokens (creation timestamp, metadata byte count, class byte
// count, line-number-table byte count, variable-info byte count, layer
// number) separated by a non-hex delimiter. The result is what gets written
// verbatim into a dependent layer's PREREQ_CACHE scope string.
func (id UniqueID) String() string {
	var b strings.Builder
	b.WriteString(id.Path)
	b.WriteByte('#')
	fmt.Fprintf(&b, "%x.%x.%x.%x.%x.%x",
		uint64(id.CreatedAt), id.MetadataBytes, id.ClassBytes,
		id.LineNumberBytes, id.VariableInfoBytes, uint64(id.Layer))
	return b.String()
}

// ParseUniqueID reverses UniqueID.String. It is used when a dependent layer
// attaches and must compare its recorded PREREQ_CACHE expectation against
// the prerequisite file's actual computed ID.
func ParseUniqueID(s string) (UniqueID, error) {
	hashIdx := strings.LastIndexByte(s, '#')
	if hashIdx < 0 {
		return UniqueID{}, fmt.Errorf("region: malformed unique cache id %q: missing path delimiter", s)
	}
	path := s[:hashIdx]
	fields := strings.Split(s[hashIdx+1:], ".")
	if len(fields) != 6 {
		return UniqueID{}, fmt.Errorf("region: malformed unique cache id %q: expected 6 fields, got %d", s, len(fields))
	}
	parsed := make([]uint64, 6)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 16, 64)
		if err != nil {
			return UniqueID{}, fmt.Errorf("region: malformed unique cache id %q: field %d: %w", s, i, err)
		}
		parsed[i] = v
	}
	return UniqueID{
		Path:              path,
		CreatedAt:         int64(parsed[0]),
		MetadataBytes:     parsed[1],
		ClassBytes:        parsed[2],
		LineNumberBytes:   parsed[3],
		VariableInfoBytes: parsed[4],
		Layer:             uint32(parsed[5]),
	}, nil
}

// Equal reports byte-identical equality, required across processes for a
// successful attach.
func (id UniqueID) Equal(other UniqueID) bool {
	return id.String() == other.String()
}

// Fingerprint returns a short, stable identifier derived from the unique
// cache ID, hashed with blake2b-256 rather than the raw String() form. The
// path component of String() moves when a layer file is copied or renamed;
// the fingerprint doesn't, so it's what history and telemetry key on instead
// of a filesystem path.
func (id UniqueID) Fingerprint() string {
	sum := blake2b.Sum256([]byte(id.String()))
	return hex.EncodeToString(sum[:16])
}
