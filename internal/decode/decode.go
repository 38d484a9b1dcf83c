// Package decode implements the Decoder Adapter (spec §4.4) by shelling
// out to ffprobe (stream metadata) and ffmpeg (raw PCM decode), following
// the teacher's ffprobe.Prober subprocess pattern: exec.CommandContext,
// a bounded timeout when the caller's context carries none, and stderr
// captured for diagnostics on failure.
package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"hiflacstream/internal/domain"
)

// maxDecodeTimeout bounds a decode when the caller's context carries no
// deadline, mirroring the teacher's maxProbeTimeout.
const maxDecodeTimeout = 5 * time.Minute

// Adapter decodes a container file into DecodedAudio via ffprobe+ffmpeg.
type Adapter struct {
	FFProbePath string
	FFMPEGPath  string
}

func New(ffprobePath, ffmpegPath string) *Adapter {
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Adapter{FFProbePath: ffprobePath, FFMPEGPath: ffmpegPath}
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	SampleFmt  string `json:"sample_fmt"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

// Decode implements spec §4.4: probe for (rate, channels, bit depth,
// declared duration), then decode all packets to interleaved float32
// samples in [-1, 1] via ffmpeg's f32le raw PCM output.
func (a *Adapter) Decode(ctx context.Context, path string) (domain.DecodedAudio, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.DecodedAudio{}, fmt.Errorf("%w: %s", domain.ErrFileNotFound, path)
		}
		return domain.DecodedAudio{}, fmt.Errorf("%w: stat %s: %v", domain.ErrFileIO, path, err)
	}

	stream, declaredSecs, err := a.probe(ctx, path)
	if err != nil {
		return domain.DecodedAudio{}, err
	}

	rate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || rate <= 0 {
		return domain.DecodedAudio{}, fmt.Errorf("%w: unreadable sample rate %q", domain.ErrUnsupportedFormat, stream.SampleRate)
	}
	channels := stream.Channels
	if channels <= 0 {
		return domain.DecodedAudio{}, fmt.Errorf("%w: unreadable channel count", domain.ErrUnsupportedFormat)
	}
	bitDepth := bitDepthFor(stream.SampleFmt)

	samples, err := a.decodePCM(ctx, path, rate, channels)
	if err != nil {
		return domain.DecodedAudio{}, err
	}

	return domain.DecodedAudio{
		Samples:      samples,
		SampleRate:   rate,
		Channels:     channels,
		BitDepth:     bitDepth,
		DeclaredSecs: declaredSecs,
	}, nil
}

func (a *Adapter) probe(ctx context.Context, path string) (probeStream, float64, error) {
	ctx, cancel := withBoundedTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}
	cmd := exec.CommandContext(ctx, a.FFProbePath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return probeStream{}, 0, wrapProbeErr("ffprobe", err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return probeStream{}, 0, fmt.Errorf("%w: ffprobe output parse: %v", domain.ErrDecode, err)
	}

	for _, s := range out.Streams {
		if s.CodecType == "audio" {
			declared, _ := strconv.ParseFloat(out.Format.Duration, 64)
			return s, declared, nil
		}
	}
	return probeStream{}, 0, fmt.Errorf("%w: no audio stream found", domain.ErrUnsupportedFormat)
}

// decodePCM shells ffmpeg to raw interleaved f32le PCM at the source's
// own rate/channels (no implicit resampling — that is the Resampler's
// job, invoked later by the Playback Engine).
func (a *Adapter) decodePCM(ctx context.Context, path string, rate, channels int) ([]float32, error) {
	ctx, cancel := withBoundedTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "error",
		"-i", path,
		"-f", "f32le",
		"-ar", strconv.Itoa(rate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, a.FFMPEGPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	samples := parseF32LE(stdout.Bytes())

	// Non-fatal decode errors are logged here and the already decoded
	// prefix retained, per spec §4.4.
	if runErr != nil && len(samples) == 0 {
		return nil, wrapProbeErr("ffmpeg", runErr, stderr.String())
	}
	if runErr != nil {
		slog.Warn("ffmpeg failed after partial decode; keeping decoded prefix",
			"path", path, "samples", len(samples), "error", wrapProbeErr("ffmpeg", runErr, stderr.String()))
	}
	return samples, nil
}

func parseF32LE(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// bitDepthFor maps ffmpeg sample_fmt names to the declared source bit
// depth, per spec §4.4's S16/S24/S32/F32 set.
func bitDepthFor(sampleFmt string) int {
	switch {
	case strings.HasPrefix(sampleFmt, "s16"):
		return 16
	case strings.HasPrefix(sampleFmt, "s32"):
		return 32
	case strings.HasPrefix(sampleFmt, "flt"), strings.HasPrefix(sampleFmt, "f32"):
		return 32
	case strings.HasPrefix(sampleFmt, "s24"):
		return 24
	default:
		return 16
	}
}

func withBoundedTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, maxDecodeTimeout)
}

// wrapProbeErr classifies an ffprobe/ffmpeg subprocess failure by its
// stderr output: a missing/unreadable input maps to ErrFileNotFound, a
// container or codec ffmpeg can't read maps to ErrUnsupportedFormat,
// anything else is a generic ErrDecode. Reserve ErrTranscoder for the
// Finalizer's transcode-and-join tool, a distinct failure category.
func wrapProbeErr(tool string, err error, stderr string) error {
	msg := strings.TrimSpace(stderr)
	sentinel := domain.ErrDecode
	switch {
	case strings.Contains(msg, "No such file or directory"):
		sentinel = domain.ErrFileNotFound
	case strings.Contains(msg, "Invalid data found when processing input"),
		strings.Contains(msg, "Unsupported codec"),
		strings.Contains(msg, "Unknown encoder"),
		strings.Contains(msg, "moov atom not found"):
		sentinel = domain.ErrUnsupportedFormat
	}
	if msg == "" {
		return fmt.Errorf("%w: %s: %v", sentinel, tool, err)
	}
	return fmt.Errorf("%w: %s: %v: %s", sentinel, tool, err, msg)
}
