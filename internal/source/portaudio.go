// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"bivo/internal/capture"
)

// DefaultDevice selects the host's default input device.
const DefaultDevice = -1

// Device describes an audio device found on the host.
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
}

// Swapped out in tests.
var (
	paDevicesFunc      = portaudio.Devices
	paDefaultInputFunc = portaudio.DefaultInputDevice
	paInitializeFunc   = portaudio.Initialize
	paTerminateFunc    = portaudio.Terminate
)

// Initialize sets up the PortAudio subsystem. Pair it with Terminate.
func Initialize() error {
	if err := paInitializeFunc(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paTerminateFunc(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices returns every device PortAudio can see. PortAudio must be
// initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		d := Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowInputLatency:   info.DefaultLowInputLatency,
			HighInputLatency:  info.DefaultHighInputLatency,
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices[i] = d
	}
	return devices, nil
}

// InputDevices returns only the devices with at least one input channel.
func InputDevices() ([]Device, error) {
	all, err := HostDevices()
	if err != nil {
		return nil, err
	}
	inputs := all[:0]
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}

// InputDevice resolves deviceID to a PortAudio device. DefaultDevice picks
// the system default input.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == DefaultDevice {
		return paDefaultInputFunc()
	}

	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if devices[deviceID].MaxInputChannels < 1 {
		return nil, fmt.Errorf("device %d (%s) has no input channels", deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}

// PortAudioConfig selects and tunes the microphone stream.
type PortAudioConfig struct {
	DeviceID        int
	FramesPerBuffer int
	LowLatency      bool
}

// PortAudio is the microphone Sample Source. The stream runs from Configure
// until Close; Start and Stop only gate whether the callback forwards
// samples, so Stop is a single atomic store and never waits on the audio
// thread.
type PortAudio struct {
	cfg    PortAudioConfig
	stream *portaudio.Stream
	sink   capture.Sink
	active atomic.Bool

	// Dropped counts callback samples that arrived while gated off.
	dropped atomic.Uint64
}

// NewPortAudio returns a microphone source. PortAudio must be initialized
// before Configure.
func NewPortAudio(cfg PortAudioConfig) *PortAudio {
	return &PortAudio{cfg: cfg}
}

// Configure opens a mono 16-bit input stream at params.SampleRate and starts
// it gated off. The gain is a hardware setting with no host counterpart and
// is ignored.
func (p *PortAudio) Configure(params capture.SourceParams, sink capture.Sink) error {
	if err := p.Close(); err != nil {
		return err
	}

	device, err := InputDevice(p.cfg.DeviceID)
	if err != nil {
		return err
	}

	latency := device.DefaultHighInputLatency
	if p.cfg.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  latency,
		},
		FramesPerBuffer: p.cfg.FramesPerBuffer,
		SampleRate:      float64(params.SampleRate),
	}

	p.sink = sink
	stream, err := portaudio.OpenStream(streamParams, p.process)
	if err != nil {
		return fmt.Errorf("open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start input stream on %q: %w", device.Name, err)
	}
	p.stream = stream
	return nil
}

// Start opens the gate.
func (p *PortAudio) Start() error {
	if p.stream == nil {
		return ErrNotConfigured
	}
	p.active.Store(true)
	return nil
}

// Stop closes the gate. Safe from the audio callback.
func (p *PortAudio) Stop() error {
	p.active.Store(false)
	return nil
}

// Dropped returns how many samples were discarded while gated off.
func (p *PortAudio) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops and closes the stream.
func (p *PortAudio) Close() error {
	p.active.Store(false)
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

// process is the PortAudio callback.
// Performance Critical:
// - Runs in a dedicated OS thread (LockOSThread)
// - No allocations, no logging, no locks
func (p *PortAudio) process(in []int16) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for i, s := range in {
		if !p.active.Load() {
			p.dropped.Add(uint64(len(in) - i))
			return
		}
		if !p.sink.Deliver(s) {
			p.dropped.Add(uint64(len(in) - i - 1))
			return
		}
	}
}
