// Package fetch implements the Chunk Fetcher (spec §4.8): writing a
// chunk's init + segment bytes to a temp file and renaming it into place
// atomically. The Stream Coordinator snapshots everything a fetch needs
// (init bytes, segment URLs, target path) under its mutex before calling
// in here — no network or disk I/O ever happens under that mutex, per
// spec §5's shared-resource policy.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"hiflacstream/internal/domain"
	"hiflacstream/internal/domain/ports"
	"hiflacstream/internal/metrics"
)

// Fetcher downloads a chunk's init + segment bytes and writes the
// fragmented MP4/m4a file. main builds one Fetcher for the process, so
// every stream's download workers share it; rate limiting (if configured)
// is per-Fetcher and so caps the combined segment-fetch bytes/sec of all
// streams, mirroring the teacher's SetDownloadRateLimit (SPEC_FULL §4.8).
type Fetcher struct {
	Client    ports.HTTPDoer
	CacheDir  string
	Limiter   *rate.Limiter // bytes/sec; nil = unlimited
	Timeout   int           // seconds, bounded total timeout per request (0 = none)
}

// NewFetcher builds a Fetcher with an otelhttp-instrumented client so every
// GET is recorded as a client span, a child of whatever span the request
// context carries.
func NewFetcher(cacheDir string, rateLimitBytesPerSec int64, timeoutSecs int) *Fetcher {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	var limiter *rate.Limiter
	if rateLimitBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimitBytesPerSec), int(rateLimitBytesPerSec))
	}
	return &Fetcher{Client: client, CacheDir: cacheDir, Limiter: limiter, Timeout: timeoutSecs}
}

// TempPath and FinalPath are the on-disk layout for one chunk, per spec §6:
// <app_data>/stream_cache/{id}_{i}.m4a[.tmp].
func (f *Fetcher) TempPath(trackID domain.TrackID, chunkIndex int) string {
	return filepath.Join(f.CacheDir, fmt.Sprintf("%s_%d.m4a.tmp", trackID, chunkIndex))
}

func (f *Fetcher) FinalPath(trackID domain.TrackID, chunkIndex int) string {
	return filepath.Join(f.CacheDir, fmt.Sprintf("%s_%d.m4a", trackID, chunkIndex))
}

// FetchChunk writes initBytes followed by each segment's bytes (fetched in
// order) to a temp file, then atomically renames it into place. On any
// segment error the temp file is removed and the error returned — the
// caller (Coordinator) leaves the chunk's placeholder is_ready=false so it
// can be retried, per spec §4.8.
func (f *Fetcher) FetchChunk(ctx context.Context, trackID domain.TrackID, chunkIndex int, initBytes []byte, segmentURLs []string) (string, error) {
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir cache dir: %v", domain.ErrFileIO, err)
	}

	tmpPath := f.TempPath(trackID, chunkIndex)
	finalPath := f.FinalPath(trackID, chunkIndex)

	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %v", domain.ErrFileIO, err)
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err := out.Write(initBytes); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: write init segment: %v", domain.ErrFileIO, err)
	}

	for _, url := range segmentURLs {
		n, err := f.fetchSegmentInto(ctx, url, out)
		if err != nil {
			_ = os.Remove(tmpPath)
			metrics.ChunkDownloadsTotal.WithLabelValues("error").Inc()
			return "", err
		}
		metrics.SegmentFetchBytes.Add(float64(n))
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: close temp file: %v", domain.ErrFileIO, err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: rename into place: %v", domain.ErrFileIO, err)
	}

	metrics.ChunkDownloadsTotal.WithLabelValues("ok").Inc()
	return finalPath, nil
}

// FetchInitSegment performs the single init_url GET done once at stream
// start (spec §4.9 step 4), returning the raw bytes to be snapshotted into
// the stream state.
func (f *Fetcher) FetchInitSegment(ctx context.Context, url string) ([]byte, error) {
	return f.fetchAll(ctx, url)
}

func (f *Fetcher) fetchSegmentInto(ctx context.Context, url string, w io.Writer) (int64, error) {
	body, err := f.fetchAll(ctx, url)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(body)
	if err != nil {
		return 0, fmt.Errorf("%w: write segment bytes: %v", domain.ErrFileIO, err)
	}
	return int64(n), nil
}

func (f *Fetcher) fetchAll(ctx context.Context, url string) ([]byte, error) {
	reqCtx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(f.Timeout)*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", domain.ErrNetwork, err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d for %s", domain.ErrNetwork, resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrNetwork, err)
	}

	if f.Limiter != nil {
		burst := f.Limiter.Burst()
		for remaining := len(body); remaining > 0 && burst > 0; remaining -= burst {
			if err := f.Limiter.WaitN(ctx, min(remaining, burst)); err != nil {
				return nil, fmt.Errorf("%w: rate limit wait: %v", domain.ErrNetwork, err)
			}
		}
	}
	return body, nil
}
