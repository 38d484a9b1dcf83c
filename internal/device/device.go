// Package device implements the Device Negotiator (spec §4.1): choosing
// an output (rate, channels) configuration for a decoded source against
// an output device's advertised capabilities, preferring no conversion.
package device

import (
	"context"
	"fmt"
	"sort"

	"hiflacstream/internal/domain"
	"hiflacstream/internal/domain/ports"
)

// Negotiator picks a StreamConfig via a pluggable ports.DeviceLister, so
// the core stays free of any platform audio binding.
type Negotiator struct {
	Devices ports.DeviceLister
}

func New(devices ports.DeviceLister) *Negotiator {
	return &Negotiator{Devices: devices}
}

// Result is the negotiated configuration plus the conversion flags the
// Playback Engine uses to decide whether to invoke the resampler and/or
// rechanneler.
type Result struct {
	Config        domain.StreamConfig
	NeedsResample bool
	NeedsRechannel bool
}

// Negotiate implements spec §4.1's priority order:
//  1. Exact match on both channels and rate.
//  2. Stereo at the source rate (rechannel only).
//  3. The highest supported rate for {srcChannels, 2}.
//  4. Device default.
func (n *Negotiator) Negotiate(ctx context.Context, deviceName string, srcRate, srcChannels int) (Result, error) {
	devices, err := n.Devices.Devices(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrDeviceConfig, err)
	}
	if len(devices) == 0 {
		return Result{}, fmt.Errorf("%w: no devices enumerated", domain.ErrNoDevice)
	}

	dev, ok := findDevice(devices, deviceName)
	if !ok {
		def, err := n.Devices.DefaultDevice(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", domain.ErrNoDevice, err)
		}
		dev = def
	}

	// 1. Exact match.
	if rates, ok := dev.SupportedRates[srcChannels]; ok && containsInt(rates, srcRate) {
		return Result{Config: domain.StreamConfig{Channels: srcChannels, Rate: srcRate}}, nil
	}

	// 2. Stereo at source rate.
	if rates, ok := dev.SupportedRates[2]; ok && containsInt(rates, srcRate) {
		return Result{
			Config:         domain.StreamConfig{Channels: 2, Rate: srcRate},
			NeedsRechannel: srcChannels != 2,
		}, nil
	}

	// 3. Highest supported rate for {srcChannels, 2}.
	if cfg, ok := highestRateFor(dev, srcChannels); ok {
		return Result{
			Config:         cfg,
			NeedsResample:  cfg.Rate != srcRate,
			NeedsRechannel: cfg.Channels != srcChannels,
		}, nil
	}
	if cfg, ok := highestRateFor(dev, 2); ok {
		return Result{
			Config:         cfg,
			NeedsResample:  cfg.Rate != srcRate,
			NeedsRechannel: cfg.Channels != srcChannels,
		}, nil
	}

	// 4. Device default: any configuration, deterministically the lowest
	// channel count then lowest rate so the choice is reproducible.
	cfg, ok := anyConfig(dev)
	if !ok {
		return Result{}, fmt.Errorf("%w: device %q advertises no configurations", domain.ErrDeviceConfig, dev.Name)
	}
	return Result{
		Config:         cfg,
		NeedsResample:  cfg.Rate != srcRate,
		NeedsRechannel: cfg.Channels != srcChannels,
	}, nil
}

func findDevice(devices []ports.DeviceInfo, name string) (ports.DeviceInfo, bool) {
	if name == "" {
		return ports.DeviceInfo{}, false
	}
	for _, d := range devices {
		if d.Name == name {
			return d, true
		}
	}
	return ports.DeviceInfo{}, false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func highestRateFor(dev ports.DeviceInfo, channels int) (domain.StreamConfig, bool) {
	rates, ok := dev.SupportedRates[channels]
	if !ok || len(rates) == 0 {
		return domain.StreamConfig{}, false
	}
	sorted := append([]int(nil), rates...)
	sort.Ints(sorted)
	return domain.StreamConfig{Channels: channels, Rate: sorted[len(sorted)-1]}, true
}

func anyConfig(dev ports.DeviceInfo) (domain.StreamConfig, bool) {
	channelsSorted := make([]int, 0, len(dev.SupportedRates))
	for ch := range dev.SupportedRates {
		channelsSorted = append(channelsSorted, ch)
	}
	if len(channelsSorted) == 0 {
		return domain.StreamConfig{}, false
	}
	sort.Ints(channelsSorted)
	ch := channelsSorted[0]
	rates := append([]int(nil), dev.SupportedRates[ch]...)
	sort.Ints(rates)
	if len(rates) == 0 {
		return domain.StreamConfig{}, false
	}
	return domain.StreamConfig{Channels: ch, Rate: rates[0]}, true
}
