// Package playback implements the Playback Engine (spec §4.5): a
// dedicated audio thread owning the output stream handle, a command
// channel for Play/AppendSamples/Pause/Resume/Stop/Seek/SetVolume/
// SetDevice/Shutdown, and the realtime-safe sample callback. Modeled
// after the original engine's command-channel + dedicated-thread design
// (see original_source/src-tauri/src/audio.rs), expressed in Go with
// runtime.LockOSThread instead of a non-Send foreign handle.
package playback

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"hiflacstream/internal/device"
	"hiflacstream/internal/domain"
	"hiflacstream/internal/domain/ports"
	"hiflacstream/internal/dsp"
	"hiflacstream/internal/metrics"
)

type commandKind int

const (
	cmdPlay commandKind = iota
	cmdAppendSamples
	cmdPause
	cmdResume
	cmdStop
	cmdSeek
	cmdSetVolume
	cmdSetDevice
	cmdShutdown
)

type command struct {
	kind    commandKind
	path    string
	seconds float64
	volume  float32
	device  string
	result  chan error
}

// Engine is the Playback Engine. One Engine owns one audio thread; build
// one per process (spec §9 "global lazy singleton" note does not apply
// here since the engine itself is long-lived, not a pooled resource).
type Engine struct {
	commands chan command

	decoder   ports.Decoder
	negotiate *device.Negotiator
	builder   ports.OutputStreamBuilder

	// sample buffer, guarded by a reader-writer lock: readers are the
	// realtime callback, writers are Play/AppendSamples (spec §5).
	bufMu  sync.RWMutex
	buffer []float32

	// cursor is mutated by the realtime callback without taking bufMu's
	// write lock (spec §4.5: the callback "never takes a write lock").
	cursor int64

	// playback state, guarded by its own reader-writer lock (spec §5).
	stateMu sync.RWMutex
	state   domain.PlaybackState

	stream      ports.OutputStream
	deviceName  string
	outRate     int
	outChannels int

	// history records PlayHistoryEntry documents on Play / natural
	// end-of-track, mirroring the teacher's watch-history repository.
	// Best-effort: a nil history or a write failure never blocks playback.
	history  ports.HistoryRepository
	finished chan domain.TrackID

	shutdownOnce sync.Once
	done         chan struct{}
}

// EngineOption configures optional Engine collaborators.
type EngineOption func(*Engine)

// WithHistoryRepository enables best-effort play-history recording.
func WithHistoryRepository(history ports.HistoryRepository) EngineOption {
	return func(e *Engine) { e.history = history }
}

// New builds an Engine and starts its dedicated audio thread. The caller
// must call Shutdown to release it.
func New(decoder ports.Decoder, devices ports.DeviceLister, builder ports.OutputStreamBuilder, opts ...EngineOption) *Engine {
	e := &Engine{
		commands:  make(chan command),
		decoder:   decoder,
		negotiate: device.New(devices),
		builder:   builder,
		state:     domain.PlaybackState{Volume: 1.0, RepeatMode: domain.RepeatOff},
		finished:  make(chan domain.TrackID, 4),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.audioThread()
	go e.historyWorker()
	return e
}

// historyWorker records natural-end-of-track completions off the
// realtime path; render() only ever does a non-blocking channel send.
func (e *Engine) historyWorker() {
	for {
		select {
		case <-e.done:
			return
		case id := <-e.finished:
			e.recordHistory(id, true)
		}
	}
}

func (e *Engine) recordHistory(id domain.TrackID, completed bool) {
	if e.history == nil || id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.history.Record(ctx, domain.PlayHistoryEntry{
		TrackID:   id,
		StartedAt: time.Now(),
		Completed: completed,
	})
}

// audioThread is the dedicated OS thread that owns the output stream
// handle and processes commands strictly in arrival order (spec §4.5,
// §5 ordering guarantees).
func (e *Engine) audioThread() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.done)

	for cmd := range e.commands {
		err := e.apply(cmd)
		if cmd.result != nil {
			cmd.result <- err
		}
		if cmd.kind == cmdShutdown {
			return
		}
	}
}

func (e *Engine) send(kind commandKind, cmd command) error {
	cmd.kind = kind
	cmd.result = make(chan error, 1)
	select {
	case e.commands <- cmd:
	case <-e.done:
		return fmt.Errorf("%w: audio thread stopped", domain.ErrStreamBuild)
	}
	return <-cmd.result
}

func (e *Engine) apply(cmd command) error {
	var err error
	switch cmd.kind {
	case cmdPlay:
		err = e.doPlay(cmd.path)
	case cmdAppendSamples:
		err = e.doAppendSamples(cmd.path)
	case cmdPause:
		err = e.doPause()
	case cmdResume:
		err = e.doResume()
	case cmdStop:
		err = e.doStop()
	case cmdSeek:
		err = e.doSeek(cmd.seconds)
	case cmdSetVolume:
		err = e.doSetVolume(cmd.volume)
	case cmdSetDevice:
		e.deviceName = cmd.device
	case cmdShutdown:
		err = e.doStop()
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.PlaybackCommandsTotal.WithLabelValues(commandName(cmd.kind), outcome).Inc()
	return err
}

func commandName(k commandKind) string {
	switch k {
	case cmdPlay:
		return "play"
	case cmdAppendSamples:
		return "append_samples"
	case cmdPause:
		return "pause"
	case cmdResume:
		return "resume"
	case cmdStop:
		return "stop"
	case cmdSeek:
		return "seek"
	case cmdSetVolume:
		return "set_volume"
	case cmdSetDevice:
		return "set_device"
	case cmdShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Play implements spec §4.5 Play: stop any current stream, decode,
// negotiate, convert, install the buffer, reset the cursor, start output.
func (e *Engine) Play(ctx context.Context, path string) error {
	return e.send(cmdPlay, command{path: path})
}

func (e *Engine) doPlay(path string) error {
	if e.stream != nil {
		_ = e.stream.Stop()
		e.stream = nil
	}

	audio, err := e.decoder.Decode(context.Background(), path)
	if err != nil {
		return err
	}

	res, err := e.negotiate.Negotiate(context.Background(), e.deviceName, audio.SampleRate, audio.Channels)
	if err != nil {
		return err
	}

	samples := audio.Samples
	if res.NeedsResample {
		samples = dsp.Resample(samples, audio.Channels, audio.SampleRate, res.Config.Rate)
		metrics.ResampleOpsTotal.Inc()
	}
	if res.NeedsRechannel {
		samples = dsp.Rechannel(samples, audio.Channels, res.Config.Channels)
		metrics.RechannelOpsTotal.Inc()
	}

	stream, err := e.builder.Build(context.Background(), e.deviceName, res.Config.Channels, res.Config.Rate)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStreamBuild, err)
	}
	if err := stream.Start(e.render); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStreamBuild, err)
	}

	e.bufMu.Lock()
	e.buffer = samples
	e.bufMu.Unlock()
	atomic.StoreInt64(&e.cursor, 0)

	e.stream = stream
	e.outRate = res.Config.Rate
	e.outChannels = res.Config.Channels

	e.stateMu.Lock()
	e.state.IsPlaying = true
	e.state.TrackFinished = false
	e.state.CurrentTrack = path
	e.state.DurationSecs = durationSecs(len(samples), res.Config.Rate, res.Config.Channels)
	e.state.SampleRate = res.Config.Rate
	e.state.BitDepth = audio.BitDepth
	e.state.Channels = res.Config.Channels
	e.stateMu.Unlock()

	go e.recordHistory(domain.TrackID(path), false)

	return nil
}

// AppendSamples implements spec §4.5 AppendSamples (gapless): decode at
// the currently active output config, convert, extend the buffer in
// place, update duration, clear track_finished, never move the cursor.
func (e *Engine) AppendSamples(ctx context.Context, path string) error {
	return e.send(cmdAppendSamples, command{path: path})
}

func (e *Engine) doAppendSamples(path string) error {
	if e.outRate == 0 || e.outChannels == 0 {
		return fmt.Errorf("%w: append requires an active stream", domain.ErrStreamBuild)
	}

	audio, err := e.decoder.Decode(context.Background(), path)
	if err != nil {
		return err
	}

	samples := audio.Samples
	if audio.SampleRate != e.outRate {
		samples = dsp.Resample(samples, audio.Channels, audio.SampleRate, e.outRate)
		metrics.ResampleOpsTotal.Inc()
	}
	if audio.Channels != e.outChannels {
		samples = dsp.Rechannel(samples, audio.Channels, e.outChannels)
		metrics.RechannelOpsTotal.Inc()
	}

	e.bufMu.Lock()
	e.buffer = append(e.buffer, samples...)
	newLen := len(e.buffer)
	e.bufMu.Unlock()

	e.stateMu.Lock()
	e.state.DurationSecs = durationSecs(newLen, e.outRate, e.outChannels)
	e.state.TrackFinished = false
	e.stateMu.Unlock()

	return nil
}

func (e *Engine) doPause() error {
	e.stateMu.Lock()
	e.state.IsPlaying = false
	e.stateMu.Unlock()
	return nil
}

func (e *Engine) doResume() error {
	e.stateMu.Lock()
	e.state.IsPlaying = true
	e.stateMu.Unlock()
	return nil
}

func (e *Engine) doStop() error {
	if e.stream != nil {
		_ = e.stream.Stop()
		e.stream = nil
	}
	e.bufMu.Lock()
	e.buffer = nil
	e.bufMu.Unlock()
	atomic.StoreInt64(&e.cursor, 0)

	e.stateMu.Lock()
	e.state.IsPlaying = false
	e.state.DurationSecs = 0
	e.state.PositionSecs = 0
	e.state.TrackFinished = false
	e.stateMu.Unlock()
	return nil
}

// doSeek implements spec §4.5 Seek: clamp to [0, duration], set
// cursor = round(seconds * rate * channels).
func (e *Engine) doSeek(seconds float64) error {
	e.stateMu.RLock()
	duration := e.state.DurationSecs
	e.stateMu.RUnlock()

	if seconds < 0 {
		seconds = 0
	}
	if seconds > duration {
		seconds = duration
	}

	newCursor := int64(math.Round(seconds * float64(e.outRate) * float64(e.outChannels)))
	atomic.StoreInt64(&e.cursor, newCursor)

	e.stateMu.Lock()
	e.state.PositionSecs = seconds
	e.stateMu.Unlock()
	return nil
}

func (e *Engine) doSetVolume(v float32) error {
	e.stateMu.Lock()
	e.state.Volume = v
	e.stateMu.Unlock()
	return nil
}

func (e *Engine) Pause(ctx context.Context) error             { return e.send(cmdPause, command{}) }
func (e *Engine) Resume(ctx context.Context) error             { return e.send(cmdResume, command{}) }
func (e *Engine) Stop(ctx context.Context) error               { return e.send(cmdStop, command{}) }
func (e *Engine) Seek(ctx context.Context, seconds float64) error {
	return e.send(cmdSeek, command{seconds: seconds})
}
func (e *Engine) SetVolume(ctx context.Context, v float32) error {
	return e.send(cmdSetVolume, command{volume: v})
}
func (e *Engine) SetDevice(ctx context.Context, name string) error {
	return e.send(cmdSetDevice, command{device: name})
}
// SetShuffle and SetRepeatMode are pure bookkeeping per spec Open
// Question 2: queue management lives outside the core, so the engine
// only records the flag for reflection in GetPlaybackState.
func (e *Engine) SetShuffle(ctx context.Context, shuffle bool) error {
	e.stateMu.Lock()
	e.state.Shuffle = shuffle
	e.stateMu.Unlock()
	return nil
}

func (e *Engine) SetRepeatMode(ctx context.Context, mode domain.RepeatMode) error {
	e.stateMu.Lock()
	e.state.RepeatMode = mode
	e.stateMu.Unlock()
	return nil
}

// GetAudioDevices lists output device names via the same DeviceLister the
// negotiator uses.
func (e *Engine) GetAudioDevices(ctx context.Context, lister ports.DeviceLister) ([]string, error) {
	devices, err := lister.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeviceConfig, err)
	}
	names := make([]string, len(devices))
	for i, d := range devices {
		names[i] = d.Name
	}
	return names, nil
}

func (e *Engine) Shutdown(ctx context.Context) error {
	var err error
	e.shutdownOnce.Do(func() {
		err = e.send(cmdShutdown, command{})
		close(e.commands)
	})
	return err
}

// GetPlaybackState returns the read-only state snapshot, with position
// recomputed from the live cursor.
func (e *Engine) GetPlaybackState() domain.PlaybackState {
	e.stateMu.RLock()
	state := e.state
	e.stateMu.RUnlock()

	if e.outRate > 0 && e.outChannels > 0 {
		cursor := atomic.LoadInt64(&e.cursor)
		state.PositionSecs = float64(cursor) / float64(e.outRate*e.outChannels)
	}
	metrics.PlaybackPositionSeconds.Set(state.PositionSecs)
	return state
}

// render is the realtime callback (spec §4.5): for every output
// frame-slot, emit buffer[cursor]*volume and advance the cursor, or
// silence if not playing / past the end. It takes only the buffer's read
// lock, reads is_playing/volume once, and never allocates.
func (e *Engine) render(out []float32) {
	e.bufMu.RLock()
	buf := e.buffer
	e.bufMu.RUnlock()

	e.stateMu.RLock()
	playing := e.state.IsPlaying
	volume := e.state.Volume
	track := domain.TrackID(e.state.CurrentTrack)
	e.stateMu.RUnlock()

	cursor := atomic.LoadInt64(&e.cursor)
	finished := false

	for i := range out {
		if playing && cursor < int64(len(buf)) {
			out[i] = buf[cursor] * volume
			cursor++
			continue
		}
		out[i] = 0
		if playing && len(buf) > 0 && cursor >= int64(len(buf)) {
			finished = true
		}
	}

	atomic.StoreInt64(&e.cursor, cursor)

	if finished {
		e.stateMu.Lock()
		e.state.TrackFinished = true
		e.state.IsPlaying = false
		e.stateMu.Unlock()

		select {
		case e.finished <- track:
		default:
		}
	}
}

func durationSecs(sampleCount, rate, channels int) float64 {
	if rate <= 0 || channels <= 0 {
		return 0
	}
	return float64(sampleCount) / float64(rate*channels)
}
