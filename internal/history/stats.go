// Package history records point-in-time javacore-stats snapshots to an
// embedded Badger database, independent of the mapped cache region itself
// (a find/store never touches it; only an explicit snapshot call does).
package history

import "github.com/gogo/protobuf/proto"

// SubKindUsage is one byte-data sub-kind's usage at snapshot time (JCL,
// ZIPCACHE, JITHINT, AOTHEADER, ...).
type SubKindUsage struct {
	SubKind string `protobuf:"bytes,1,opt,name=sub_kind,json=subKind,proto3" json:"sub_kind"`
	Bytes   uint64 `protobuf:"varint,2,opt,name=bytes,proto3" json:"bytes"`
	Count   uint64 `protobuf:"varint,3,opt,name=count,proto3" json:"count"`
}

func (m *SubKindUsage) Reset()         { *m = SubKindUsage{} }
func (m *SubKindUsage) String() string { return proto.CompactTextString(m) }
func (*SubKindUsage) ProtoMessage()    {}

// Stats is the flat javacore stats structure: per-layer and aggregate
// counters, exported by a cache map and persisted here as a timestamped
// snapshot. The same struct backs cmd/sccctl's JSON, YAML, and proto
// encoders, so every format is a view of one source of truth.
type Stats struct {
	Timestamp int64  `protobuf:"varint,1,opt,name=timestamp,proto3" json:"timestamp"`
	CacheID   string `protobuf:"bytes,2,opt,name=cache_id,json=cacheId,proto3" json:"cache_id"`
	Layer     int32  `protobuf:"varint,3,opt,name=layer,proto3" json:"layer"`

	SoftmxBytes uint64 `protobuf:"varint,4,opt,name=softmx_bytes,json=softmxBytes,proto3" json:"softmx_bytes"`
	FreeBytes   uint64 `protobuf:"varint,5,opt,name=free_bytes,json=freeBytes,proto3" json:"free_bytes"`
	UsedBytes   uint64 `protobuf:"varint,6,opt,name=used_bytes,json=usedBytes,proto3" json:"used_bytes"`

	MinAOTBytes uint64 `protobuf:"varint,7,opt,name=min_aot_bytes,json=minAotBytes,proto3" json:"min_aot_bytes"`
	MaxAOTBytes uint64 `protobuf:"varint,8,opt,name=max_aot_bytes,json=maxAotBytes,proto3" json:"max_aot_bytes"`
	MinJITBytes uint64 `protobuf:"varint,9,opt,name=min_jit_bytes,json=minJitBytes,proto3" json:"min_jit_bytes"`
	MaxJITBytes uint64 `protobuf:"varint,10,opt,name=max_jit_bytes,json=maxJitBytes,proto3" json:"max_jit_bytes"`

	PercentFull  float64 `protobuf:"fixed64,11,opt,name=percent_full,json=percentFull,proto3" json:"percent_full"`
	PercentStale float64 `protobuf:"fixed64,12,opt,name=percent_stale,json=percentStale,proto3" json:"percent_stale"`

	// FullFlags names whichever of BlockFull/AOTFull/JITFull/AvailableFull/
	// ReadOnly were set at snapshot time.
	FullFlags []string        `protobuf:"bytes,13,rep,name=full_flags,json=fullFlags,proto3" json:"full_flags"`
	SubKinds  []*SubKindUsage `protobuf:"bytes,14,rep,name=sub_kinds,json=subKinds,proto3" json:"sub_kinds"`
}

func (s *Stats) Reset()         { *s = Stats{} }
func (s *Stats) String() string { return proto.CompactTextString(s) }
func (*Stats) ProtoMessage()    {}

// HasFlag reports whether name is among the flags set at snapshot time.
func (s *Stats) HasFlag(name string) bool {
	for _, f := range s.FullFlags {
		if f == name {
			return true
		}
	}
	return false
}
