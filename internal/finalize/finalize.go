// Package finalize implements the Finalizer (spec §4.10): joining a
// complete progressive stream's chunk files into one lossless file in the
// permanent music library, via the bundled transcoder tool.
package finalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hiflacstream/internal/domain"
	"hiflacstream/internal/domain/ports"
	"hiflacstream/internal/metrics"
)

// sanitizeReplacer strips path-hostile characters from Artist/Album/Track
// components, per spec §4.10: "/ \ : * ? \" < > |" -> "_".
var sanitizeReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_",
	"?", "_", "\"", "_", "<", "_", ">", "_", "|", "_",
)

func sanitize(s string) string {
	return strings.TrimSpace(sanitizeReplacer.Replace(s))
}

// Finalizer drives the transcoder tool to join/re-encode chunk files.
type Finalizer struct {
	Transcoder    ports.Transcoder
	MusicDir      string
	CacheDir      string
	LosslessCodec string
	LosslessExt   string
}

// New builds a Finalizer from the subset of app.Config it needs.
func New(transcoder ports.Transcoder, musicDir, cacheDir, losslessCodec, losslessExt string) *Finalizer {
	return &Finalizer{
		Transcoder:    transcoder,
		MusicDir:      musicDir,
		CacheDir:      cacheDir,
		LosslessCodec: losslessCodec,
		LosslessExt:   losslessExt,
	}
}

// outputPath resolves the library destination per spec §4.10: sanitized
// Artist/Album/Track, falling back to a flat {id}.{ext} when metadata is
// incomplete.
func (f *Finalizer) outputPath(id domain.TrackID, meta domain.TrackMetadata) string {
	if meta.Artist == "" || meta.Album == "" || meta.Name == "" {
		return filepath.Join(f.MusicDir, fmt.Sprintf("%s.%s", id, f.LosslessExt))
	}
	return filepath.Join(
		f.MusicDir,
		sanitize(meta.Artist),
		sanitize(meta.Album),
		fmt.Sprintf("%s.%s", sanitize(meta.Name), f.LosslessExt),
	)
}

// Finalize joins chunkPaths (in order) into one lossless file at the
// library path derived from meta, per spec §4.10. A single chunk is
// transcoded directly; two or more are joined via a concat list.
func (f *Finalizer) Finalize(ctx context.Context, id domain.TrackID, chunkPaths []string, meta domain.TrackMetadata) (string, error) {
	if len(chunkPaths) == 0 {
		return "", fmt.Errorf("%w: no chunks to finalize", domain.ErrFileIO)
	}

	out := f.outputPath(id, meta)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		metrics.FinalizeFailuresTotal.Inc()
		return "", fmt.Errorf("%w: mkdir library dir: %v", domain.ErrFileIO, err)
	}

	start := time.Now()
	defer func() { metrics.FinalizeDuration.Observe(time.Since(start).Seconds()) }()

	var err error
	if len(chunkPaths) == 1 {
		err = f.finalizeSingle(ctx, chunkPaths[0], out)
	} else {
		err = f.finalizeConcat(ctx, id, chunkPaths, out)
	}
	if err != nil {
		metrics.FinalizeFailuresTotal.Inc()
		return "", err
	}

	return out, nil
}

func (f *Finalizer) finalizeSingle(ctx context.Context, chunkPath, out string) error {
	args := []string{"-y", "-i", chunkPath, "-c:a", f.LosslessCodec, "-compression_level", "5", out}
	stderr, err := f.Transcoder.Run(ctx, args)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrTranscoder, stderr)
	}
	return nil
}

func (f *Finalizer) finalizeConcat(ctx context.Context, id domain.TrackID, chunkPaths []string, out string) error {
	listPath := filepath.Join(f.CacheDir, fmt.Sprintf("%s_concat.txt", id))
	if err := writeConcatList(listPath, chunkPaths); err != nil {
		return err
	}
	defer os.Remove(listPath)

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath, "-c:a", f.LosslessCodec, "-compression_level", "5", out}
	stderr, err := f.Transcoder.Run(ctx, args)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrTranscoder, stderr)
	}
	return nil
}

// writeConcatList writes ffmpeg's concat-demuxer list format: one
// `file '<path>'` line per chunk, with embedded single quotes escaped per
// spec §4.10.
func writeConcatList(path string, chunkPaths []string) error {
	var b strings.Builder
	for _, p := range chunkPaths {
		escaped := strings.ReplaceAll(p, "'", `'\''`)
		b.WriteString(fmt.Sprintf("file '%s'\n", escaped))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("%w: write concat list: %v", domain.ErrFileIO, err)
	}
	return nil
}
