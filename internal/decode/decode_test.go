package decode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"hiflacstream/internal/domain"
)

// writeFakeTool writes a shell script standing in for ffprobe/ffmpeg so
// the adapter can be tested without the real binaries installed.
func writeFakeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require a POSIX shell")
	}
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func TestDecodeProbesAndDecodesPCM(t *testing.T) {
	dir := t.TempDir()

	probeJSON := `{"streams":[{"codec_type":"audio","sample_rate":"44100","channels":2,"sample_fmt":"s16"}],"format":{"duration":"1.5"}}`
	ffprobe := writeFakeTool(t, dir, "fakeffprobe", `cat <<'EOF'
`+probeJSON+`
EOF
`)
	// ffmpeg emits 4 interleaved float32 frames (8 samples) of raw PCM.
	ffmpeg := writeFakeTool(t, dir, "fakeffmpeg", `printf '\000\000\000\000\000\000\200\077\000\000\000\000\000\000\200\077\000\000\000\000\000\000\200\077\000\000\000\000\000\000\200\077'
`)

	track := filepath.Join(dir, "track.flac")
	if err := os.WriteFile(track, []byte("fixture"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	a := New(ffprobe, ffmpeg)
	got, err := a.Decode(context.Background(), track)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SampleRate != 44100 || got.Channels != 2 {
		t.Fatalf("got rate=%d channels=%d", got.SampleRate, got.Channels)
	}
	if got.BitDepth != 16 {
		t.Fatalf("bit depth = %d, want 16", got.BitDepth)
	}
	if got.DeclaredSecs != 1.5 {
		t.Fatalf("declared secs = %v, want 1.5", got.DeclaredSecs)
	}
	if len(got.Samples) != 8 {
		t.Fatalf("sample count = %d, want 8", len(got.Samples))
	}
	for i, s := range got.Samples {
		if s != 0 && s != 1 {
			t.Fatalf("sample %d = %v, want 0 or 1", i, s)
		}
	}
}

func TestDecodeNoAudioStreamErrors(t *testing.T) {
	dir := t.TempDir()
	probeJSON := `{"streams":[{"codec_type":"video"}],"format":{"duration":"1.0"}}`
	ffprobe := writeFakeTool(t, dir, "fakeffprobe", `cat <<'EOF'
`+probeJSON+`
EOF
`)
	ffmpeg := writeFakeTool(t, dir, "fakeffmpeg", `exit 0
`)

	a := New(ffprobe, ffmpeg)
	_, err := a.Decode(context.Background(), filepath.Join(dir, "track.mp4"))
	if err == nil {
		t.Fatalf("expected error for missing audio stream")
	}
}

func TestDecodeProbeFailureWraps(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeFakeTool(t, dir, "fakeffprobe", `echo "no such file" >&2; exit 1
`)
	ffmpeg := writeFakeTool(t, dir, "fakeffmpeg", `exit 0
`)

	a := New(ffprobe, ffmpeg)
	path := filepath.Join(dir, "present.flac")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := a.Decode(context.Background(), path)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeMissingFileReturnsFileNotFound(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeFakeTool(t, dir, "fakeffprobe", `exit 1
`)
	ffmpeg := writeFakeTool(t, dir, "fakeffmpeg", `exit 0
`)

	a := New(ffprobe, ffmpeg)
	_, err := a.Decode(context.Background(), filepath.Join(dir, "missing.flac"))
	if !errors.Is(err, domain.ErrFileNotFound) {
		t.Fatalf("err = %v, want ErrFileNotFound", err)
	}
}

func TestDecodeInvalidDataReturnsUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	ffprobe := writeFakeTool(t, dir, "fakeffprobe", `echo "Invalid data found when processing input" >&2; exit 1
`)
	ffmpeg := writeFakeTool(t, dir, "fakeffmpeg", `exit 0
`)

	a := New(ffprobe, ffmpeg)
	path := filepath.Join(dir, "corrupt.flac")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	_, err := a.Decode(context.Background(), path)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}
