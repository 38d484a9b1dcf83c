// Package audiodevice is the default host-audio-API-shaped collaborator
// (spec §4.1 NEW) behind ports.DeviceLister and ports.OutputStreamBuilder,
// grounded on the go-portaudio player's stream lifecycle
// (NewStream/Open/StartStream/Write/StopStream/Close, PaStreamParameters
// with DeviceIndex/ChannelCount/SampleFormat).
package audiodevice

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/drgolem/go-portaudio/portaudio"

	"hiflacstream/internal/domain"
	"hiflacstream/internal/domain/ports"
)

// candidateRates is the set of rates probed for every channel count when
// building a device's supported-configuration table. PortAudio itself
// exposes no "list every supported rate" query, so, like the teacher's
// player, we open and immediately close a trial stream per candidate.
var candidateRates = []int{44100, 48000, 88200, 96000, 176400, 192000}

// Lister enumerates a single named output device (the PortAudio output at
// the configured DeviceIndex) by probing candidate (channels, rate) pairs.
type Lister struct {
	DeviceIndex int
	DeviceName  string
}

func NewLister(deviceIndex int, deviceName string) *Lister {
	return &Lister{DeviceIndex: deviceIndex, DeviceName: deviceName}
}

func (l *Lister) Devices(ctx context.Context) ([]ports.DeviceInfo, error) {
	dev, err := l.DefaultDevice(ctx)
	if err != nil {
		return nil, err
	}
	return []ports.DeviceInfo{dev}, nil
}

func (l *Lister) DefaultDevice(ctx context.Context) (ports.DeviceInfo, error) {
	supported := map[int][]int{}
	for _, channels := range []int{2, 1} {
		var rates []int
		for _, rate := range candidateRates {
			if l.probe(channels, rate) {
				rates = append(rates, rate)
			}
		}
		if len(rates) > 0 {
			supported[channels] = rates
		}
	}
	if len(supported) == 0 {
		return ports.DeviceInfo{}, fmt.Errorf("%w: no output configuration accepted by device %d", domain.ErrNoDevice, l.DeviceIndex)
	}
	return ports.DeviceInfo{Name: l.DeviceName, SupportedRates: supported}, nil
}

func (l *Lister) probe(channels, rate int) bool {
	params := portaudio.PaStreamParameters{
		DeviceIndex:  l.DeviceIndex,
		ChannelCount: channels,
		SampleFormat: portaudio.SampleFmtInt32,
	}
	stream, err := portaudio.NewStream(params, float64(rate))
	if err != nil {
		return false
	}
	if err := stream.Open(framesPerBuffer); err != nil {
		return false
	}
	_ = stream.Close()
	return true
}

const framesPerBuffer = 512

// Builder constructs OutputStreams bound to a PortAudio device, matching
// the Playback Engine's ports.OutputStreamBuilder seam.
type Builder struct {
	DeviceIndex int
}

func NewBuilder(deviceIndex int) *Builder {
	return &Builder{DeviceIndex: deviceIndex}
}

func (b *Builder) Build(ctx context.Context, deviceName string, channels, rate int) (ports.OutputStream, error) {
	params := portaudio.PaStreamParameters{
		DeviceIndex:  b.DeviceIndex,
		ChannelCount: channels,
		SampleFormat: portaudio.SampleFmtInt32,
	}
	stream, err := portaudio.NewStream(params, float64(rate))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStreamBuild, err)
	}
	if err := stream.Open(framesPerBuffer); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStreamBuild, err)
	}
	return &Stream{stream: stream, channels: channels, framesPerBuffer: framesPerBuffer}, nil
}

// int32Scale converts a [-1, 1] float sample to full-range signed 32-bit
// PCM, the sample format negotiated with the device.
const int32Scale = float64(1<<31 - 1)

// Stream pulls frames from the engine's render callback on a dedicated
// writer goroutine, converts them to int32 PCM, and pushes them to
// PortAudio with blocking Write calls — the same producer/consumer split
// the teacher's player uses around its ringbuffer, simplified since the
// engine's buffer is already the queue.
type Stream struct {
	stream          *portaudio.PaStream
	channels        int
	framesPerBuffer int
	stop            chan struct{}
	done            chan struct{}
}

func (s *Stream) Start(render func(out []float32)) error {
	if err := s.stream.StartStream(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStreamBuild, err)
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.writeLoop(render)
	return nil
}

func (s *Stream) writeLoop(render func(out []float32)) {
	defer close(s.done)
	samples := make([]float32, s.framesPerBuffer*s.channels)
	raw := make([]byte, s.framesPerBuffer*s.channels*4)
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		render(samples)
		for i, v := range samples {
			scaled := int32(float64(v) * int32Scale)
			binary.LittleEndian.PutUint32(raw[i*4:], uint32(scaled))
		}
		if err := s.stream.Write(s.framesPerBuffer, raw); err != nil {
			return
		}
	}
}

func (s *Stream) Stop() error {
	if s.stop != nil {
		close(s.stop)
		<-s.done
	}
	if err := s.stream.StopStream(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStreamBuild, err)
	}
	return s.stream.Close()
}
