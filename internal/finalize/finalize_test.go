package finalize

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hiflacstream/internal/domain"
)

type fakeTranscoder struct {
	lastArgs []string
	failWith string
	createOutput bool
}

func (f *fakeTranscoder) Run(ctx context.Context, args []string) (string, error) {
	f.lastArgs = args
	if f.failWith != "" {
		return f.failWith, errFailed
	}
	if f.createOutput {
		out := args[len(args)-1]
		_ = os.WriteFile(out, []byte("transcoded"), 0o644)
	}
	return "", nil
}

var errFailed = &transcodeErr{}

type transcodeErr struct{}

func (e *transcodeErr) Error() string { return "transcode failed" }

func TestFinalizeSingleChunkUsesLibraryPath(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscoder{createOutput: true}
	f := New(tr, dir, t.TempDir(), "flac", "flac")

	chunk := filepath.Join(t.TempDir(), "chunk0.m4a")
	_ = os.WriteFile(chunk, []byte("x"), 0o644)

	out, err := f.Finalize(context.Background(), domain.TrackID("trk"), []string{chunk}, domain.TrackMetadata{Name: "Song", Artist: "Art/ist", Album: "Alb:um"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(dir, "Art_ist", "Alb_um", "Song.flac")
	if out != want {
		t.Fatalf("out = %q, want %q", out, want)
	}
	if tr.lastArgs[0] != "-y" || tr.lastArgs[2] != chunk {
		t.Fatalf("unexpected args: %v", tr.lastArgs)
	}
}

func TestFinalizeFallsBackToFlatPathWithoutMetadata(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscoder{createOutput: true}
	f := New(tr, dir, t.TempDir(), "flac", "flac")

	chunk := filepath.Join(t.TempDir(), "chunk0.m4a")
	_ = os.WriteFile(chunk, []byte("x"), 0o644)

	out, err := f.Finalize(context.Background(), domain.TrackID("trk42"), []string{chunk}, domain.TrackMetadata{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(dir, "trk42.flac")
	if out != want {
		t.Fatalf("out = %q, want %q", out, want)
	}
}

func TestFinalizeMultiChunkWritesConcatList(t *testing.T) {
	dir := t.TempDir()
	cacheDir := t.TempDir()
	tr := &fakeTranscoder{createOutput: true}
	f := New(tr, dir, cacheDir, "flac", "flac")

	chunk1 := filepath.Join(cacheDir, "trk_0.m4a")
	chunk2 := filepath.Join(cacheDir, "trk_1.m4a")
	_ = os.WriteFile(chunk1, []byte("a"), 0o644)
	_ = os.WriteFile(chunk2, []byte("b"), 0o644)

	_, err := f.Finalize(context.Background(), domain.TrackID("trk"), []string{chunk1, chunk2}, domain.TrackMetadata{Name: "S", Artist: "A", Album: "B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	foundConcatFlag := false
	for _, a := range tr.lastArgs {
		if a == "concat" {
			foundConcatFlag = true
		}
	}
	if !foundConcatFlag {
		t.Fatalf("expected -f concat in args: %v", tr.lastArgs)
	}

	// concat list must have been cleaned up after finalize.
	listPath := filepath.Join(cacheDir, "trk_concat.txt")
	if _, err := os.Stat(listPath); !os.IsNotExist(err) {
		t.Fatalf("concat list should be removed after finalize")
	}
}

func TestFinalizeTranscoderFailureReturnsError(t *testing.T) {
	dir := t.TempDir()
	tr := &fakeTranscoder{failWith: "ffmpeg: bad codec"}
	f := New(tr, dir, t.TempDir(), "flac", "flac")

	chunk := filepath.Join(t.TempDir(), "chunk0.m4a")
	_ = os.WriteFile(chunk, []byte("x"), 0o644)

	_, err := f.Finalize(context.Background(), domain.TrackID("trk"), []string{chunk}, domain.TrackMetadata{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "bad codec") {
		t.Fatalf("error should include transcoder stderr: %v", err)
	}
}
