package allocstrategy

import "github.com/Voskan/scc-cachemap/internal/region"

// Segment is the normal strategy: contiguous bytes from a layer's segment
// area. The mapped file is never grown and a failed reservation is not
// retried: region.ErrStoreFull is returned to the caller as is.
// Anonymous classes set SegmentExclusive so the final size report never
// shrinks the reservation; the reservation is not padded to the end of
// its page, so a later allocation may still share that page.
type Segment struct {
	layer *region.Layer
}

var _ Strategy = (*Segment)(nil)

// NewSegment constructs a segment strategy over layer.
func NewSegment(layer *region.Layer) *Segment {
	return &Segment{layer: layer}
}

func (s *Segment) Name() string { return "segment" }

func (s *Segment) SupportsOutOfLineDebug() bool { return false }

type segmentHandle struct {
	layer            *region.Layer
	segOff           uint64
	reservedLen      uint32
	segmentExclusive bool
}

func (*segmentHandle) isHandle() {}

func (s *Segment) Allocate(req Request) (Layout, Handle, error) {
	total := req.MainLen + req.LineNumberLen + req.VariableInfoLen
	segOff, err := s.layer.AllocateSegment(total, req.Category)
	if err != nil {
		return Layout{}, nil, err
	}
	buf := s.layer.ReadAt(segOff, total)
	return Layout{Main: buf, AbsSiteBase: segOff}, &segmentHandle{
		layer:            s.layer,
		segOff:           segOff,
		reservedLen:      total,
		segmentExclusive: req.SegmentExclusive,
	}, nil
}

func (s *Segment) UpdateFinalROMSize(h Handle, actualMainLen uint32) error {
	sh := h.(*segmentHandle)
	s.layer.UpdateFinalROMSize(sh.segOff, sh.reservedLen, actualMainLen, sh.segmentExclusive)
	return nil
}
