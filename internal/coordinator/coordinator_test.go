package coordinator

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"hiflacstream/internal/domain"
	"hiflacstream/internal/fetch"
)

func testManifestXML(segments int, srvURL string) string {
	xml := fmt.Sprintf(`<?xml version="1.0"?>
<MPD><Period><AdaptationSet>
<SegmentTemplate initialization="%s/init.mp4" media="%s/chunk-$Number$.m4s">
<SegmentTimeline>`, srvURL, srvURL)
	remaining := segments
	for remaining > 0 {
		r := remaining - 1
		if r > 9 {
			r = 9
		}
		xml += fmt.Sprintf(`<S r="%d"/>`, r)
		remaining -= r + 1
	}
	xml += `</SegmentTimeline>
</SegmentTemplate>
</AdaptationSet></Period></MPD>`
	return xml
}

func newTestCoordinator(t *testing.T, segments int) (*Coordinator, domain.TrackID, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "seg:"+r.URL.Path)
	}))

	xml := testManifestXML(segments, srv.URL)
	manifestB64 := base64.StdEncoding.EncodeToString([]byte(xml))

	dir, err := os.MkdirTemp("", "coord-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}

	f := &fetch.Fetcher{Client: srv.Client(), CacheDir: dir}
	c := New(f, nil, slog.Default())

	id := domain.TrackID("trk1")
	_, err = c.StartProgressiveStream(context.Background(), id, manifestB64, int64(segments)*4000, domain.TrackMetadata{Name: "T", Artist: "A", Album: "B"}, 2, 8)
	if err != nil {
		t.Fatalf("start stream: %v", err)
	}

	cleanup := func() {
		srv.Close()
		_ = os.RemoveAll(dir)
	}
	return c, id, cleanup
}

func TestStartProgressiveStreamDownloadsFirstChunk(t *testing.T) {
	c, id, cleanup := newTestCoordinator(t, 40)
	defer cleanup()

	total, err := c.GetTotalChunks(id)
	if err != nil {
		t.Fatalf("get total chunks: %v", err)
	}
	if total != 6 {
		t.Fatalf("total chunks = %d, want 6", total)
	}

	ready, err := c.IsChunkReady(id, 0)
	if err != nil {
		t.Fatalf("is chunk ready: %v", err)
	}
	if !ready {
		t.Fatalf("chunk 0 should be ready after start")
	}
}

func TestDownloadAllChunksMultithreadedCompletesStream(t *testing.T) {
	c, id, cleanup := newTestCoordinator(t, 40)
	defer cleanup()

	n, err := c.DownloadAllChunksMultithreaded(context.Background(), id)
	if err != nil {
		t.Fatalf("download all: %v", err)
	}
	if n != 5 {
		t.Fatalf("downloaded = %d, want 5 (chunks 1-5, chunk 0 already done)", n)
	}

	progress, err := c.GetStreamProgress(id)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if !progress.Complete || progress.Done != 6 || progress.Total != 6 {
		t.Fatalf("progress = %+v, want complete 6/6", progress)
	}
}

func TestReprioritizeForSeekOrdersNotReadyFromTarget(t *testing.T) {
	c, id, cleanup := newTestCoordinator(t, 40)
	defer cleanup()

	// chunk 0 ready from start; download chunk 1 too so only 2-5 remain.
	if _, err := c.DownloadNextChunk(context.Background(), id); err != nil {
		t.Fatalf("download next: %v", err)
	}

	queue, err := c.ReprioritizeForSeek(id, 120) // chunk_for_position(120) == 4
	if err != nil {
		t.Fatalf("reprioritize: %v", err)
	}
	want := []int{4, 5, 2, 3}
	if len(queue) != len(want) {
		t.Fatalf("queue = %v, want %v", queue, want)
	}
	for i := range want {
		if queue[i] != want[i] {
			t.Fatalf("queue = %v, want %v", queue, want)
		}
	}
}

func TestCleanupStreamRemovesChunkFiles(t *testing.T) {
	c, id, cleanup := newTestCoordinator(t, 40)
	defer cleanup()

	pattern := filepath.Join(c.fetcher.CacheDir, string(id)+"_*")
	if before, _ := filepath.Glob(pattern); len(before) == 0 {
		t.Fatalf("expected chunk files on disk before cleanup")
	}

	if err := c.CleanupStream(context.Background(), id); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, err := c.GetTotalChunks(id); err == nil {
		t.Fatalf("expected stream to be gone after cleanup")
	}
	if after, _ := filepath.Glob(pattern); len(after) != 0 {
		t.Fatalf("chunk files left after cleanup: %v", after)
	}
}

func TestPreviewManifestRejectedInstallsNoState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "x")
	}))
	defer srv.Close()

	xml := testManifestXML(8, srv.URL)
	manifestB64 := base64.StdEncoding.EncodeToString([]byte(xml))

	dir, err := os.MkdirTemp("", "coord-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(dir)

	f := &fetch.Fetcher{Client: srv.Client(), CacheDir: dir}
	c := New(f, nil, slog.Default())
	id := domain.TrackID("preview-trk")

	_, err = c.StartProgressiveStream(context.Background(), id, manifestB64, 180000, domain.TrackMetadata{}, 2, 8)
	if err == nil {
		t.Fatalf("expected preview rejection error")
	}

	if _, err := c.GetTotalChunks(id); err == nil {
		t.Fatalf("expected no state installed for rejected preview")
	}
}
