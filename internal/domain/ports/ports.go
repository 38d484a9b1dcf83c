package ports

import (
	"context"
	"io"
	"net/http"

	"hiflacstream/internal/domain"
)

// Decoder demuxes a container file and produces interleaved float frames.
// The default implementation shells out to ffmpeg/ffprobe (§4.4); tests
// substitute a fake that returns canned DecodedAudio.
type Decoder interface {
	Decode(ctx context.Context, path string) (domain.DecodedAudio, error)
}

// DeviceLister enumerates output devices and their supported
// (rate, channels) configurations for the Device Negotiator.
type DeviceLister interface {
	Devices(ctx context.Context) ([]DeviceInfo, error)
	DefaultDevice(ctx context.Context) (DeviceInfo, error)
}

// DeviceInfo describes one output device's supported configurations.
type DeviceInfo struct {
	Name           string
	SupportedRates map[int][]int // channels -> sorted supported rates
}

// Transcoder invokes the bundled transcoder tool (ffmpeg) to join and/or
// re-encode chunk files into one lossless output (§4.10 Finalizer).
type Transcoder interface {
	Run(ctx context.Context, args []string) (stderr string, err error)
}

// HTTPDoer is the minimal surface the Chunk Fetcher needs from an HTTP
// client, letting tests substitute a fake transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CheckpointRepository persists StreamCheckpoint documents recording the
// progress of in-flight progressive streams.
type CheckpointRepository interface {
	Upsert(ctx context.Context, cp domain.StreamCheckpoint) error
	Get(ctx context.Context, id domain.TrackID) (domain.StreamCheckpoint, error)
	Delete(ctx context.Context, id domain.TrackID) error
	ListIncomplete(ctx context.Context) ([]domain.StreamCheckpoint, error)
}

// HistoryRepository records best-effort play history entries.
type HistoryRepository interface {
	Record(ctx context.Context, entry domain.PlayHistoryEntry) error
}

// ReadCloserSeeker is satisfied by *os.File. It embeds only
// io.ReadWriteCloser (no Seek), and the Chunk Fetcher writes its temp
// files through *os.File directly rather than through this interface.
type ReadCloserSeeker interface {
	io.ReadWriteCloser
}

// OutputStream is one open, driver-bound output handle (spec §9
// "non-movable stream handle"). It must be started and stopped from the
// same goroutine that built it; the Playback Engine enforces this by
// confining it to its dedicated audio thread.
type OutputStream interface {
	// Start begins calling render for every output frame-slot until Stop.
	// render must not allocate or block, per spec §4.5/§5.
	Start(render func(out []float32)) error
	Stop() error
}

// OutputStreamBuilder constructs an OutputStream bound to a device and
// configuration. The default implementation is a host-audio-API-shaped
// collaborator seam (spec §4.1 NEW); tests substitute a fake that keeps
// render so the test itself can call it synchronously.
type OutputStreamBuilder interface {
	Build(ctx context.Context, deviceName string, channels, rate int) (OutputStream, error)
}
