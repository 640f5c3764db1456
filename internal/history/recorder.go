package history

import (
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gogo/protobuf/proto"
)

// Recorder appends timestamped javacore snapshots to an embedded Badger
// database, repurposed from an L2 value-store example into an append-only
// history log: `cmd/sccctl dump --record` writes, `cmd/sccctl history`
// reads back trends, and nothing here ever touches cache
// state itself (see the package doc comment).
type Recorder struct {
	db *badger.DB
}

// Open opens (creating if absent) a Badger database rooted at dir.
func Open(dir string) (*Recorder, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", dir, err)
	}
	return &Recorder{db: db}, nil
}

func (r *Recorder) Close() error { return r.db.Close() }

// Record appends one snapshot, keyed by cache ID and timestamp so Query can
// walk one cache's history independently of any other cache recorded in the
// same database.
func (r *Recorder) Record(s Stats) error {
	if s.CacheID == "" {
		return fmt.Errorf("history: record: empty cache ID")
	}
	payload, err := proto.Marshal(&s)
	if err != nil {
		return fmt.Errorf("history: marshal snapshot: %w", err)
	}
	key := encodeKey(s.CacheID, s.Timestamp)
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// Query returns up to limit of cacheID's most recent snapshots, oldest
// first (the order a trend line or a table-driven CLI print wants).
func (r *Recorder) Query(cacheID string, limit int) ([]Stats, error) {
	if limit <= 0 {
		return nil, nil
	}
	prefix := keyPrefix(cacheID)

	var out []Stats
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			item := it.Item()
			var snap Stats
			if err := item.Value(func(val []byte) error {
				return proto.Unmarshal(val, &snap)
			}); err != nil {
				return fmt.Errorf("history: unmarshal snapshot: %w", err)
			}
			out = append(out, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// FlagSample is one point on a full-flag trend line.
type FlagSample struct {
	Timestamp int64
	Set       bool
}

// FlagTrend reports how flag (e.g. "AOTFull") has been set across cacheID's
// last limit snapshots, answering "how did scc_full_flag trend over the
// last N snapshots" without an external time-series database.
func (r *Recorder) FlagTrend(cacheID, flag string, limit int) ([]FlagSample, error) {
	snaps, err := r.Query(cacheID, limit)
	if err != nil {
		return nil, err
	}
	samples := make([]FlagSample, len(snaps))
	for i, s := range snaps {
		samples[i] = FlagSample{Timestamp: s.Timestamp, Set: s.HasFlag(flag)}
	}
	return samples, nil
}

func encodeKey(cacheID string, ts int64) []byte {
	key := append(keyPrefix(cacheID), make([]byte, 8)...)
	binary.BigEndian.PutUint64(key[len(key)-8:], uint64(ts))
	return key
}

func keyPrefix(cacheID string) []byte {
	prefix := make([]byte, len(cacheID)+1)
	copy(prefix, cacheID)
	prefix[len(cacheID)] = 0
	return prefix
}
