package device

import (
	"context"
	"testing"

	"hiflacstream/internal/domain/ports"
)

type fakeDeviceLister struct {
	devices []ports.DeviceInfo
	def     ports.DeviceInfo
	err     error
}

func (f *fakeDeviceLister) Devices(ctx context.Context) ([]ports.DeviceInfo, error) {
	return f.devices, f.err
}

func (f *fakeDeviceLister) DefaultDevice(ctx context.Context) (ports.DeviceInfo, error) {
	return f.def, f.err
}

func TestNegotiateExactMatch(t *testing.T) {
	dev := ports.DeviceInfo{Name: "speakers", SupportedRates: map[int][]int{2: {44100, 48000}}}
	lister := &fakeDeviceLister{devices: []ports.DeviceInfo{dev}, def: dev}
	n := New(lister)

	res, err := n.Negotiate(context.Background(), "speakers", 48000, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NeedsResample || res.NeedsRechannel {
		t.Fatalf("exact match should need no conversion: %+v", res)
	}
	if res.Config.Rate != 48000 || res.Config.Channels != 2 {
		t.Fatalf("config = %+v", res.Config)
	}
}

func TestNegotiateStereoAtSourceRateRechannelOnly(t *testing.T) {
	dev := ports.DeviceInfo{Name: "speakers", SupportedRates: map[int][]int{2: {44100}}}
	lister := &fakeDeviceLister{devices: []ports.DeviceInfo{dev}, def: dev}
	n := New(lister)

	res, err := n.Negotiate(context.Background(), "speakers", 44100, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NeedsResample {
		t.Fatalf("should not need resample: %+v", res)
	}
	if !res.NeedsRechannel {
		t.Fatalf("should need rechannel mono->stereo: %+v", res)
	}
	if res.Config.Rate != 44100 || res.Config.Channels != 2 {
		t.Fatalf("config = %+v", res.Config)
	}
}

func TestNegotiateHighestSupportedRateUpsample(t *testing.T) {
	dev := ports.DeviceInfo{Name: "speakers", SupportedRates: map[int][]int{2: {48000, 96000}}}
	lister := &fakeDeviceLister{devices: []ports.DeviceInfo{dev}, def: dev}
	n := New(lister)

	res, err := n.Negotiate(context.Background(), "speakers", 44100, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Config.Rate != 96000 {
		t.Fatalf("expected highest rate 96000, got %d", res.Config.Rate)
	}
	if !res.NeedsResample {
		t.Fatalf("expected needs_resample=true")
	}
}

func TestNegotiateNoDevicesErrors(t *testing.T) {
	lister := &fakeDeviceLister{}
	n := New(lister)
	if _, err := n.Negotiate(context.Background(), "", 44100, 2); err == nil {
		t.Fatalf("expected error for empty device list")
	}
}
