// Package planner implements the Chunk Planner (spec §4.7): the
// deterministic mapping from a manifest's segment count to a chunk table,
// and the inverse mapping from a seek position to the chunk covering it.
package planner

// Defaults mirror spec §3: a small first chunk for fast start, larger
// regular chunks after it.
const (
	DefaultFirstChunkSegments   = 2
	DefaultRegularChunkSegments = 8
	SegmentDurationSecs         = 4.0
)

// Plan is the deterministic chunk↔segment↔time mapping for one manifest.
type Plan struct {
	TotalSegments        int
	FirstChunkSegments   int
	RegularChunkSegments int
}

// NewPlan builds a Plan, defaulting first/regular chunk sizes to the
// spec's §3 defaults when given as zero.
func NewPlan(totalSegments, firstChunkSegments, regularChunkSegments int) Plan {
	if firstChunkSegments <= 0 {
		firstChunkSegments = DefaultFirstChunkSegments
	}
	if regularChunkSegments <= 0 {
		regularChunkSegments = DefaultRegularChunkSegments
	}
	return Plan{
		TotalSegments:        totalSegments,
		FirstChunkSegments:   firstChunkSegments,
		RegularChunkSegments: regularChunkSegments,
	}
}

// TotalChunks returns 1 + ceil(max(0, N-F)/R) per spec §3.
func (p Plan) TotalChunks() int {
	n, f, r := p.TotalSegments, p.FirstChunkSegments, p.RegularChunkSegments
	if n <= 0 {
		return 0
	}
	remaining := n - f
	if remaining <= 0 {
		return 1
	}
	return 1 + ceilDiv(remaining, r)
}

// SegmentRange returns the half-open segment range [start, end) chunk i
// covers, per spec §3:
//
//	i==0 ⇒ [0, min(F, N))
//	i>0  ⇒ [F + (i-1)*R, min(F + i*R, N))
func (p Plan) SegmentRange(i int) (start, end int) {
	n, f, r := p.TotalSegments, p.FirstChunkSegments, p.RegularChunkSegments
	if i == 0 {
		end := f
		if end > n {
			end = n
		}
		if end < 0 {
			end = 0
		}
		return 0, end
	}
	start = f + (i-1)*r
	end = f + i*r
	if end > n {
		end = n
	}
	if start > end {
		start = end
	}
	return start, end
}

// ChunkDurationSecs estimates a chunk's duration from its segment count,
// assuming ~4s segments (spec §3).
func (p Plan) ChunkDurationSecs(i int) float64 {
	start, end := p.SegmentRange(i)
	return float64(end-start) * SegmentDurationSecs
}

// ChunkForPosition returns the chunk index covering a playback position
// in seconds, per spec §4.7:
//
//	seconds < F*4 ⇒ 0
//	else          ⇒ min(total-1, 1 + floor((seconds - F*4) / (R*4)))
func (p Plan) ChunkForPosition(seconds float64) int {
	total := p.TotalChunks()
	if total == 0 {
		return 0
	}
	firstDur := float64(p.FirstChunkSegments) * SegmentDurationSecs
	if seconds < firstDur {
		return 0
	}
	regularDur := float64(p.RegularChunkSegments) * SegmentDurationSecs
	if regularDur <= 0 {
		return total - 1
	}
	idx := 1 + int((seconds-firstDur)/regularDur)
	if idx > total-1 {
		idx = total - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
