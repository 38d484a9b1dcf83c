package planner

import "testing"

func TestPlanPartitionsExactly(t *testing.T) {
	cases := []struct {
		n, f, r int
	}{
		{40, 2, 8},
		{1, 2, 8},
		{2, 2, 8},
		{3, 2, 8},
		{100, 5, 17},
		{0, 2, 8},
	}

	for _, c := range cases {
		p := NewPlan(c.n, c.f, c.r)
		total := p.TotalChunks()

		covered := make([]bool, c.n)
		for i := 0; i < total; i++ {
			start, end := p.SegmentRange(i)
			if start > end {
				t.Fatalf("n=%d i=%d: start %d > end %d", c.n, i, start, end)
			}
			for s := start; s < end; s++ {
				if covered[s] {
					t.Fatalf("n=%d: segment %d covered by more than one chunk", c.n, s)
				}
				covered[s] = true
			}
		}
		for s, ok := range covered {
			if !ok {
				t.Fatalf("n=%d: segment %d not covered by any chunk (total=%d)", c.n, s, total)
			}
		}
	}
}

func TestChunkForPositionWithinRange(t *testing.T) {
	p := NewPlan(40, 2, 8)
	total := p.TotalChunks()

	for sec := 0.0; sec < float64(p.TotalSegments)*SegmentDurationSecs; sec += 1.0 {
		idx := p.ChunkForPosition(sec)
		if idx < 0 || idx >= total {
			t.Fatalf("chunk index %d out of range [0,%d) at t=%v", idx, total, sec)
		}
		start, end := p.SegmentRange(idx)
		lo := float64(start) * SegmentDurationSecs
		hi := float64(end) * SegmentDurationSecs
		// allow one segment of slack for integer rounding per spec invariant 2
		if sec < lo-SegmentDurationSecs || sec >= hi+SegmentDurationSecs {
			t.Fatalf("t=%v mapped to chunk %d covering [%v,%v)", sec, idx, lo, hi)
		}
	}
}

func TestExampleScenarioD(t *testing.T) {
	p := NewPlan(40, 2, 8)
	if got := p.TotalChunks(); got != 6 {
		t.Fatalf("total chunks = %d, want 6", got)
	}
	if s, e := p.SegmentRange(0); s != 0 || e != 2 {
		t.Fatalf("chunk 0 = [%d,%d), want [0,2)", s, e)
	}
	if s, e := p.SegmentRange(1); s != 2 || e != 10 {
		t.Fatalf("chunk 1 = [%d,%d), want [2,10)", s, e)
	}
	if s, e := p.SegmentRange(5); s != 34 || e != 40 {
		t.Fatalf("chunk 5 = [%d,%d), want [34,40)", s, e)
	}
}

func TestExampleScenarioESeekReprioritizeTarget(t *testing.T) {
	p := NewPlan(40, 2, 8)
	if got := p.ChunkForPosition(120); got != 4 {
		t.Fatalf("chunk for position 120s = %d, want 4", got)
	}
}

func TestSingleSegmentManifest(t *testing.T) {
	p := NewPlan(1, 2, 8)
	if got := p.TotalChunks(); got != 1 {
		t.Fatalf("total chunks = %d, want 1", got)
	}
	start, end := p.SegmentRange(0)
	if start != 0 || end != 1 {
		t.Fatalf("chunk 0 = [%d,%d), want [0,1)", start, end)
	}
}
