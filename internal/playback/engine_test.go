package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"hiflacstream/internal/domain"
	"hiflacstream/internal/domain/ports"
)

type fakeDecoder struct {
	byPath map[string]domain.DecodedAudio
}

func (f *fakeDecoder) Decode(ctx context.Context, path string) (domain.DecodedAudio, error) {
	audio, ok := f.byPath[path]
	if !ok {
		return domain.DecodedAudio{}, domain.ErrFileNotFound
	}
	return audio, nil
}

type fakeDeviceLister struct {
	dev ports.DeviceInfo
}

func (f *fakeDeviceLister) Devices(ctx context.Context) ([]ports.DeviceInfo, error) {
	return []ports.DeviceInfo{f.dev}, nil
}

func (f *fakeDeviceLister) DefaultDevice(ctx context.Context) (ports.DeviceInfo, error) {
	return f.dev, nil
}

type fakeStream struct {
	render func(out []float32)
	stopped bool
}

func (s *fakeStream) Start(render func(out []float32)) error {
	s.render = render
	return nil
}

func (s *fakeStream) Stop() error {
	s.stopped = true
	return nil
}

type fakeBuilder struct {
	last *fakeStream
}

func (b *fakeBuilder) Build(ctx context.Context, deviceName string, channels, rate int) (ports.OutputStream, error) {
	s := &fakeStream{}
	b.last = s
	return s, nil
}

func sineSamples(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i) / float32(n)
	}
	return out
}

type fakeHistory struct {
	mu      sync.Mutex
	entries []domain.PlayHistoryEntry
}

func (f *fakeHistory) Record(ctx context.Context, entry domain.PlayHistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistory) snapshot() []domain.PlayHistoryEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PlayHistoryEntry, len(f.entries))
	copy(out, f.entries)
	return out
}

func newTestEngine(t *testing.T) (*Engine, *fakeDecoder, *fakeBuilder) {
	t.Helper()
	dec := &fakeDecoder{byPath: map[string]domain.DecodedAudio{}}
	lister := &fakeDeviceLister{dev: ports.DeviceInfo{Name: "dev", SupportedRates: map[int][]int{2: {48000, 96000}}}}
	builder := &fakeBuilder{}
	e := New(dec, lister, builder)
	t.Cleanup(func() {
		_ = e.Shutdown(context.Background())
	})
	return e, dec, builder
}

func TestPlayExactMatchNeedsNoConversion(t *testing.T) {
	e, dec, _ := newTestEngine(t)
	dec.byPath["a.flac"] = domain.DecodedAudio{Samples: sineSamples(2048), SampleRate: 48000, Channels: 2, BitDepth: 24}

	if err := e.Play(context.Background(), "a.flac"); err != nil {
		t.Fatalf("play: %v", err)
	}
	state := e.GetPlaybackState()
	if !state.IsPlaying || state.SampleRate != 48000 || state.Channels != 2 {
		t.Fatalf("state = %+v", state)
	}
}

func TestAppendSamplesExtendsDurationWithoutMovingCursor(t *testing.T) {
	e, dec, _ := newTestEngine(t)
	dec.byPath["a.flac"] = domain.DecodedAudio{Samples: sineSamples(96000 * 2 * 10), SampleRate: 96000, Channels: 2, BitDepth: 24}
	dec.byPath["b.flac"] = domain.DecodedAudio{Samples: sineSamples(96000 * 2 * 7), SampleRate: 96000, Channels: 2, BitDepth: 24}

	if err := e.Play(context.Background(), "a.flac"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := e.Seek(context.Background(), 3); err != nil {
		t.Fatalf("seek: %v", err)
	}
	beforeCursor := e.GetPlaybackState().PositionSecs

	if err := e.AppendSamples(context.Background(), "b.flac"); err != nil {
		t.Fatalf("append: %v", err)
	}

	state := e.GetPlaybackState()
	if state.DurationSecs != 17 {
		t.Fatalf("duration = %v, want 17", state.DurationSecs)
	}
	if state.PositionSecs != beforeCursor {
		t.Fatalf("cursor moved: before=%v after=%v", beforeCursor, state.PositionSecs)
	}
}

func TestSeekClampsAndSetsCursor(t *testing.T) {
	e, dec, _ := newTestEngine(t)
	dec.byPath["a.flac"] = domain.DecodedAudio{Samples: sineSamples(48000 * 2 * 5), SampleRate: 48000, Channels: 2, BitDepth: 24}
	if err := e.Play(context.Background(), "a.flac"); err != nil {
		t.Fatalf("play: %v", err)
	}

	if err := e.Seek(context.Background(), 100); err != nil {
		t.Fatalf("seek: %v", err)
	}
	state := e.GetPlaybackState()
	if state.PositionSecs != state.DurationSecs {
		t.Fatalf("seek past end should clamp to duration: %+v", state)
	}

	if err := e.Seek(context.Background(), -5); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if e.GetPlaybackState().PositionSecs != 0 {
		t.Fatalf("seek below zero should clamp to 0")
	}
}

func TestRenderEmitsSilenceWhenNotPlaying(t *testing.T) {
	e, dec, builder := newTestEngine(t)
	dec.byPath["a.flac"] = domain.DecodedAudio{Samples: sineSamples(1024), SampleRate: 48000, Channels: 2, BitDepth: 24}
	if err := e.Play(context.Background(), "a.flac"); err != nil {
		t.Fatalf("play: %v", err)
	}
	if err := e.Pause(context.Background()); err != nil {
		t.Fatalf("pause: %v", err)
	}

	out := make([]float32, 16)
	builder.last.render(out)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %v, want 0 while paused", i, v)
		}
	}
}

func TestRenderMarksTrackFinishedAtBufferEnd(t *testing.T) {
	e, dec, builder := newTestEngine(t)
	dec.byPath["a.flac"] = domain.DecodedAudio{Samples: sineSamples(8), SampleRate: 48000, Channels: 2, BitDepth: 24}
	if err := e.Play(context.Background(), "a.flac"); err != nil {
		t.Fatalf("play: %v", err)
	}

	out := make([]float32, 16)
	builder.last.render(out)

	state := e.GetPlaybackState()
	if !state.TrackFinished || state.IsPlaying {
		t.Fatalf("state = %+v, want track finished and stopped", state)
	}
}

func TestHistoryRecordsPlayAndNaturalCompletion(t *testing.T) {
	dec := &fakeDecoder{byPath: map[string]domain.DecodedAudio{
		"a.flac": {Samples: sineSamples(8), SampleRate: 48000, Channels: 2, BitDepth: 24},
	}}
	lister := &fakeDeviceLister{dev: ports.DeviceInfo{Name: "dev", SupportedRates: map[int][]int{2: {48000}}}}
	builder := &fakeBuilder{}
	history := &fakeHistory{}
	e := New(dec, lister, builder, WithHistoryRepository(history))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })

	if err := e.Play(context.Background(), "a.flac"); err != nil {
		t.Fatalf("play: %v", err)
	}

	out := make([]float32, 16)
	builder.last.render(out)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(history.snapshot()) >= 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	entries := history.snapshot()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2 (started + completed)", entries)
	}
	if entries[0].TrackID != "a.flac" || entries[0].Completed {
		t.Fatalf("first entry = %+v, want uncompleted a.flac", entries[0])
	}
	if entries[1].TrackID != "a.flac" || !entries[1].Completed {
		t.Fatalf("second entry = %+v, want completed a.flac", entries[1])
	}
}
