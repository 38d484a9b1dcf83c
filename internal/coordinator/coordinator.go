// Package coordinator implements the Stream Coordinator (spec §4.9): the
// per-track registry of progressive-stream state, the chunk download
// queue, and seek-driven reprioritization. Locking follows spec §5's
// shared-resource policy: one mutex per stream guards only constant-time
// bookkeeping (queue inspection, marker flips, chunks[i] assignment); all
// network and disk I/O happens outside it, in the Chunk Fetcher.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"hiflacstream/internal/domain"
	"hiflacstream/internal/domain/ports"
	"hiflacstream/internal/fetch"
	"hiflacstream/internal/manifest"
	"hiflacstream/internal/metrics"
	"hiflacstream/internal/planner"
)

// StartResult is returned from StartProgressiveStream — enough for the
// caller to immediately Play(FirstChunkPath) on the playback engine.
type StartResult struct {
	FirstChunkPath string
	TotalChunks    int
}

// NextChunkResult is returned from DownloadNextChunk.
type NextChunkResult struct {
	ChunkPath string
	ChunkIndex int
	IsLast    bool
	IsReady   bool
}

// streamState is one progressive stream's mutable bookkeeping. Every
// field below is only ever touched under mu, per spec §5: "critical
// sections are constant-time ... no network or disk I/O under the mutex."
type streamState struct {
	mu sync.Mutex

	trackID  domain.TrackID
	plan     planner.Plan
	initBytes []byte
	mediaURLs []string
	cacheDir string

	chunks            []domain.Chunk
	downloadQueue     []int
	inFlight          map[int]struct{}
	currentChunk      int
	priorityChunk     int
	needsReprioritize bool
	isComplete        bool

	metadata   domain.TrackMetadata
	sampleRate int
	bitDepth   int

	cancel context.CancelFunc
}

// Coordinator owns the registry of active progressive streams. One
// Coordinator is shared process-wide, mirroring the teacher's single
// torrent-engine instance holding all active torrent sessions.
type Coordinator struct {
	regMu   sync.Mutex
	streams map[domain.TrackID]*streamState

	fetcher     *fetch.Fetcher
	checkpoints ports.CheckpointRepository
	logger      *slog.Logger
}

// New builds a Coordinator. checkpoints may be nil, in which case
// checkpointing is a no-op (useful for tests and for offline/degraded mode).
func New(fetcher *fetch.Fetcher, checkpoints ports.CheckpointRepository, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		streams:     make(map[domain.TrackID]*streamState),
		fetcher:     fetcher,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

func (c *Coordinator) get(id domain.TrackID) (*streamState, bool) {
	c.regMu.Lock()
	defer c.regMu.Unlock()
	s, ok := c.streams[id]
	return s, ok
}

// StartProgressiveStream implements spec §4.9 start_progressive_stream:
// decode, parse, preview-check, fetch init once, install state with a
// full ascending download queue, then synchronously download chunk 0.
func (c *Coordinator) StartProgressiveStream(ctx context.Context, id domain.TrackID, manifestB64 string, expectedDurationMs int64, metadata domain.TrackMetadata, firstChunkSegs, regularChunkSegs int) (StartResult, error) {
	parsed, err := manifest.Parse(manifestB64, expectedDurationMs)
	if err != nil {
		if errors.Is(err, domain.ErrPreviewManifest) {
			metrics.PreviewRejectionsTotal.Inc()
		}
		return StartResult{}, err
	}
	if parsed.IsDirect() {
		return StartResult{}, fmt.Errorf("%w: manifest is a direct download, not progressive", domain.ErrManifest)
	}

	initBytes, err := c.fetcher.FetchInitSegment(ctx, parsed.InitURL)
	if err != nil {
		return StartResult{}, err
	}

	plan := planner.NewPlan(len(parsed.MediaURLs), firstChunkSegs, regularChunkSegs)
	total := plan.TotalChunks()

	queue := make([]int, total)
	for i := range queue {
		queue[i] = i
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &streamState{
		trackID:       id,
		plan:          plan,
		initBytes:     initBytes,
		mediaURLs:     parsed.MediaURLs,
		cacheDir:      c.fetcher.CacheDir,
		chunks:        make([]domain.Chunk, 0, total),
		downloadQueue: queue,
		inFlight:      make(map[int]struct{}),
		metadata:      metadata,
		cancel:        cancel,
	}

	c.regMu.Lock()
	c.streams[id] = s
	c.regMu.Unlock()
	metrics.ActiveStreams.Inc()

	path, err := c.downloadChunk(streamCtx, s, 0)
	if err != nil {
		return StartResult{}, err
	}

	return StartResult{FirstChunkPath: path, TotalChunks: total}, nil
}

// DownloadNextChunk implements spec §4.9 download_next_chunk.
func (c *Coordinator) DownloadNextChunk(ctx context.Context, id domain.TrackID) (NextChunkResult, error) {
	s, ok := c.get(id)
	if !ok {
		return NextChunkResult{}, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}

	s.mu.Lock()
	next := s.currentChunk + 1
	total := s.plan.TotalChunks()
	if next >= total {
		s.mu.Unlock()
		return NextChunkResult{ChunkIndex: next, IsLast: true, IsReady: false}, nil
	}
	if next < len(s.chunks) && s.chunks[next].IsReady {
		path := s.chunks[next].FilePath
		s.mu.Unlock()
		return NextChunkResult{ChunkPath: path, ChunkIndex: next, IsReady: true}, nil
	}
	s.mu.Unlock()

	path, err := c.downloadChunk(ctx, s, next)
	if err != nil {
		return NextChunkResult{ChunkIndex: next}, err
	}
	return NextChunkResult{ChunkPath: path, ChunkIndex: next, IsReady: true}, nil
}

// AdvanceChunk implements spec §4.9 advance_chunk: pure bookkeeping.
func (c *Coordinator) AdvanceChunk(id domain.TrackID) error {
	s, ok := c.get(id)
	if !ok {
		return fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}
	s.mu.Lock()
	s.currentChunk++
	s.mu.Unlock()
	return nil
}

// GetChunkByIndex, IsChunkReady, GetTotalChunks, GetStreamProgress are the
// read-only reflections listed in spec §4.9.
func (c *Coordinator) GetChunkByIndex(id domain.TrackID, i int) (domain.Chunk, error) {
	s, ok := c.get(id)
	if !ok {
		return domain.Chunk{}, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.chunks) {
		return domain.Chunk{Index: i}, nil
	}
	return s.chunks[i], nil
}

func (c *Coordinator) IsChunkReady(id domain.TrackID, i int) (bool, error) {
	ch, err := c.GetChunkByIndex(id, i)
	if err != nil {
		return false, err
	}
	return ch.IsReady, nil
}

func (c *Coordinator) GetTotalChunks(id domain.TrackID) (int, error) {
	s, ok := c.get(id)
	if !ok {
		return 0, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.TotalChunks(), nil
}

func (c *Coordinator) GetStreamProgress(id domain.TrackID) (domain.StreamProgress, error) {
	s, ok := c.get(id)
	if !ok {
		return domain.StreamProgress{}, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	done := 0
	for _, ch := range s.chunks {
		if ch.IsReady {
			done++
		}
	}
	return domain.StreamProgress{Done: done, Total: s.plan.TotalChunks(), Complete: s.isComplete}, nil
}

func (c *Coordinator) GetChunkForPosition(id domain.TrackID, seconds float64) (int, error) {
	s, ok := c.get(id)
	if !ok {
		return 0, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan.ChunkForPosition(seconds), nil
}

// ReprioritizeForSeek implements spec §4.9 reprioritize_for_seek: build a
// queue of every not-ready index from target ascending, followed by every
// not-ready index below target ascending.
func (c *Coordinator) ReprioritizeForSeek(id domain.TrackID, seekSeconds float64) ([]int, error) {
	s, ok := c.get(id)
	if !ok {
		return nil, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.plan.ChunkForPosition(seekSeconds)
	total := s.plan.TotalChunks()

	notReady := func(i int) bool {
		return i >= len(s.chunks) || !s.chunks[i].IsReady
	}

	queue := make([]int, 0, total)
	for i := target; i < total; i++ {
		if notReady(i) {
			queue = append(queue, i)
		}
	}
	for i := 0; i < target; i++ {
		if notReady(i) {
			queue = append(queue, i)
		}
	}

	s.downloadQueue = queue
	s.priorityChunk = target
	s.needsReprioritize = true
	s.currentChunk = target
	metrics.ReprioritizeTotal.Inc()

	return queue, nil
}

// DownloadAllChunksMultithreaded implements spec §4.9
// download_all_chunks_multithreaded: exactly 2 worker goroutines, each
// repeatedly claiming the first queued index that is neither ready nor
// in flight, until none remain or the stream is complete/removed.
func (c *Coordinator) DownloadAllChunksMultithreaded(ctx context.Context, id domain.TrackID) (int, error) {
	s, ok := c.get(id)
	if !ok {
		return 0, fmt.Errorf("%w: stream %s", domain.ErrNotFound, id)
	}

	var downloaded int32
	var wg sync.WaitGroup
	const workerCount = 2
	wg.Add(workerCount)

	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for {
				if _, stillActive := c.get(id); !stillActive {
					return
				}

				s.mu.Lock()
				if s.isComplete {
					s.mu.Unlock()
					return
				}
				idx, found := -1, false
				for _, i := range s.downloadQueue {
					if i >= len(s.chunks) || !s.chunks[i].IsReady {
						if _, busy := s.inFlight[i]; !busy {
							idx, found = i, true
							break
						}
					}
				}
				if found {
					s.inFlight[idx] = struct{}{}
				}
				s.mu.Unlock()

				if !found {
					return
				}

				if _, err := c.downloadChunk(ctx, s, idx); err != nil {
					c.logger.Warn("chunk download failed", "track", id, "chunk", idx, "error", err)
				} else {
					atomic.AddInt32(&downloaded, 1)
				}

				s.mu.Lock()
				delete(s.inFlight, idx)
				s.mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return int(downloaded), nil
}

// CleanupStream implements spec §4.9 cleanup_stream: remove state
// atomically and delete all chunk files named {id}_*.
func (c *Coordinator) CleanupStream(ctx context.Context, id domain.TrackID) error {
	c.regMu.Lock()
	s, ok := c.streams[id]
	if ok {
		delete(c.streams, id)
	}
	c.regMu.Unlock()
	if !ok {
		return nil
	}

	s.cancel()
	metrics.ActiveStreams.Dec()

	matches, err := filepath.Glob(filepath.Join(s.cacheDir, fmt.Sprintf("%s_*", id)))
	if err != nil {
		return fmt.Errorf("%w: glob chunk files: %v", domain.ErrFileIO, err)
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}

	if c.checkpoints != nil {
		_ = c.checkpoints.Delete(ctx, id)
	}
	return nil
}

// downloadChunk is the coordinator-side half of spec §4.8 download_chunk:
// snapshot under the mutex, fetch outside it, install the result under
// the mutex again, and checkpoint on the ready transition.
func (c *Coordinator) downloadChunk(ctx context.Context, s *streamState, i int) (string, error) {
	s.mu.Lock()
	start, end := s.plan.SegmentRange(i)
	if start >= len(s.mediaURLs) {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: chunk %d out of range", domain.ErrManifest, i)
	}
	if end > len(s.mediaURLs) {
		end = len(s.mediaURLs)
	}
	segmentURLs := append([]string(nil), s.mediaURLs[start:end]...)
	initBytes := s.initBytes
	trackID := s.trackID
	s.mu.Unlock()

	path, err := c.fetcher.FetchChunk(ctx, trackID, i, initBytes, segmentURLs)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	for len(s.chunks) <= i {
		s.chunks = append(s.chunks, domain.Chunk{Index: len(s.chunks)})
	}
	s.chunks[i] = domain.Chunk{
		Index:        i,
		FilePath:     path,
		SegmentStart: start,
		SegmentEnd:   end,
		DurationSecs: float64(end-start) * planner.SegmentDurationSecs,
		IsReady:      true,
	}
	total := s.plan.TotalChunks()
	complete := len(s.chunks) == total
	if complete {
		for _, ch := range s.chunks {
			if !ch.IsReady {
				complete = false
				break
			}
		}
	}
	s.isComplete = complete
	cp := s.checkpointLocked()
	s.mu.Unlock()

	c.persistCheckpoint(ctx, cp)
	return path, nil
}

// checkpointLocked snapshots the stream's progress into a StreamCheckpoint.
// Must be called with s.mu held.
func (s *streamState) checkpointLocked() domain.StreamCheckpoint {
	total := s.plan.TotalChunks()
	bitmap := make([]bool, total)
	for i := 0; i < total && i < len(s.chunks); i++ {
		bitmap[i] = s.chunks[i].IsReady
	}
	return domain.StreamCheckpoint{
		TrackID:      s.trackID,
		TotalChunks:  total,
		ReadyBitmap:  bitmap,
		CurrentChunk: s.currentChunk,
		SampleRate:   s.sampleRate,
		BitDepth:     s.bitDepth,
		TrackName:    s.metadata.Name,
		ArtistName:   s.metadata.Artist,
		AlbumName:    s.metadata.Album,
		UpdatedAt:    time.Now(),
	}
}

// persistCheckpoint is best-effort: a failure here never blocks playback
// or chunk downloads, per spec §7's FileError/NetworkError propagation
// policy generalized to Mongo writes.
func (c *Coordinator) persistCheckpoint(ctx context.Context, cp domain.StreamCheckpoint) {
	if c.checkpoints == nil {
		return
	}
	if err := c.checkpoints.Upsert(ctx, cp); err != nil {
		c.logger.Warn("checkpoint upsert failed", "track", cp.TrackID, "error", err)
	}
}
