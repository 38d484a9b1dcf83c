package domain

// Chunk is one entry of a progressive stream's chunk table. A chunk whose
// IsReady is false is a placeholder filling a gap left by out-of-order
// downloads (invariant: workers never reorder indices, they only grow the
// slice and flip placeholders to ready).
type Chunk struct {
	Index         int     `json:"index"`
	FilePath      string  `json:"filePath,omitempty"`
	SegmentStart  int     `json:"segmentStart"`
	SegmentEnd    int     `json:"segmentEnd"`
	DurationSecs  float64 `json:"durationSecs"`
	IsReady       bool    `json:"isReady"`
}

// StreamProgress is the read-only reflection returned by
// get_stream_progress: how many chunks are ready out of the total, and
// whether the stream is complete.
type StreamProgress struct {
	Done     int  `json:"done"`
	Total    int  `json:"total"`
	Complete bool `json:"complete"`
}
