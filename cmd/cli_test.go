// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bivo/internal/analysis"
	"bivo/internal/config"
	"bivo/internal/source"
	"bivo/internal/transport"
	"bivo/pkg/utils"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"list", "analyze", "request"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q missing: %v", name, err)
		}
	}
	for _, flag := range []string{"config", "source", "port", "device", "log-level", "verbose"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	root := NewRootCommand()
	if err := root.ParseFlags([]string{"--source", "tone", "--port", "/dev/ttyS1", "-d", "3", "-v"}); err != nil {
		t.Fatal(err)
	}
	opts := &options{source: "tone", port: "/dev/ttyS1", device: 3, verbose: true}

	cfg := config.Default()
	if err := opts.apply(root, &cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Sensor.Source != config.SourceTone || cfg.Transport.SerialPort != "/dev/ttyS1" || cfg.Sensor.InputDevice != 3 {
		t.Errorf("flags not applied: %+v", cfg)
	}
	if !cfg.Debug {
		t.Error("--verbose should enable debug")
	}
}

func TestUnsetFlagsKeepConfig(t *testing.T) {
	root := NewRootCommand()
	if err := root.ParseFlags(nil); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Transport.SerialPort = "/dev/ttyUSB0"
	cfg.Sensor.InputDevice = 2

	if err := (&options{device: config.DefaultInputDevice}).apply(root, &cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Transport.SerialPort != "/dev/ttyUSB0" || cfg.Sensor.InputDevice != 2 {
		t.Errorf("unset flags overrode config: %+v", cfg)
	}
}

func TestInvalidFlagRejected(t *testing.T) {
	root := NewRootCommand()
	if err := root.ParseFlags([]string{"--source", "radio"}); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	if err := (&options{source: "radio"}).apply(root, &cfg); err == nil {
		t.Error("unknown source should fail validation")
	}
}

func TestAnalyzeClip(t *testing.T) {
	const rate = 8192
	cfg := analysis.Config{WindowSize: 256, SampleScaler: 40, PowerThreshold: 1000, FreqLower: 288, FreqUpper: 352}

	// Three 0.25 s segments, the call fills windows 2-5 of the second one,
	// plus a partial tail that is never analysed.
	wave := utils.Waveform{{Frequency: 320, Amplitude: 200, Start: 0.3125, End: 0.4375}}
	clip := source.Clip{Samples: utils.GenerateWaveform(wave, 3*2048+100, rate), SampleRate: rate}

	rows, segLen, err := analyzeClip(clip, cfg, 0.25, analysis.Hann)
	if err != nil {
		t.Fatalf("analyzeClip: %v", err)
	}
	if segLen != 2048 || len(rows) != 3 {
		t.Fatalf("segLen=%d rows=%d, want 2048 and 3", segLen, len(rows))
	}
	for i, want := range []bool{false, true, false} {
		if rows[i].Verdict.Passed != want {
			t.Errorf("segment %d passed = %v, want %v", i, rows[i].Verdict.Passed, want)
		}
	}
	if rows[1].BinHz != 320 || rows[1].Start != 250*time.Millisecond {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if rows[1].Reference.PeakHz != 320 || rows[1].Reference.BandFraction < 0.9 {
		t.Errorf("row 1 reference = %+v", rows[1].Reference)
	}

	out := renderVerdicts("calls.wav", rate, segLen, rows)
	if !strings.Contains(out, "1 of 3 segments") {
		t.Errorf("report missing summary:\n%s", out)
	}
}

func TestAnalyzeShortClipIsOneSegment(t *testing.T) {
	cfg := analysis.Config{WindowSize: 256, SampleScaler: 1, PowerThreshold: 100, FreqLower: 0, FreqUpper: 4000}
	clip := source.Clip{Samples: make([]int16, 1000), SampleRate: 8000}

	rows, segLen, err := analyzeClip(clip, cfg, 4, analysis.Rectangular)
	if err != nil {
		t.Fatalf("analyzeClip: %v", err)
	}
	if segLen != 1000 || len(rows) != 1 || rows[0].Verdict.Passed {
		t.Errorf("segLen=%d rows=%+v", segLen, rows)
	}
}

func TestAnalyzeClipInvalidConfig(t *testing.T) {
	clip := source.Clip{Samples: make([]int16, 100), SampleRate: 8000}
	_, _, err := analyzeClip(clip, analysis.Config{WindowSize: 256, SampleScaler: 1}, 4, analysis.Rectangular)
	if err == nil {
		t.Error("window larger than the clip should fail")
	}
}

func TestAnalyzeCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "silence.wav")
	if err := source.WriteWAV(path, source.Clip{Samples: make([]int16, 19900), SampleRate: 19900}); err != nil {
		t.Fatal(err)
	}

	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"analyze", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if !strings.Contains(out.String(), "0 of 1 segments") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestSegmentPath(t *testing.T) {
	tests := []struct {
		out  string
		i, n int
		want string
	}{
		{"calls.wav", 0, 1, "calls.wav"},
		{"calls.wav", 0, 3, "calls-000.wav"},
		{"dir/calls.wav", 12, 20, "dir/calls-012.wav"},
		{"calls", 1, 2, "calls-001"},
	}
	for _, tt := range tests {
		if got := segmentPath(tt.out, tt.i, tt.n); got != tt.want {
			t.Errorf("segmentPath(%q, %d, %d) = %q, want %q", tt.out, tt.i, tt.n, got, tt.want)
		}
	}
}

func TestToneConfig(t *testing.T) {
	s := config.SensorConfig{
		Realtime: true,
		Tone: config.Tone{
			Period:    2,
			Sinusoids: []config.Sinusoid{{Frequency: 3000, Amplitude: 1000, Start: 0.5, End: 1}},
		},
	}
	got := toneConfig(s)
	want := utils.Sinusoid{Frequency: 3000, Amplitude: 1000, Start: 0.5, End: 1}
	if !got.Realtime || got.Period != 2 || len(got.Sinusoids) != 1 || got.Sinusoids[0] != want {
		t.Errorf("toneConfig = %+v", got)
	}
}

func TestRenderLists(t *testing.T) {
	ports := renderPorts([]transport.PortInfo{{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10c4", PID: "ea60"}})
	if !strings.Contains(ports, "/dev/ttyUSB0") || !strings.Contains(ports, "10c4:ea60") {
		t.Errorf("renderPorts:\n%s", ports)
	}
	if !strings.Contains(renderPorts(nil), "none found") {
		t.Error("empty port list should say so")
	}

	devices := renderDevices([]source.Device{{ID: 2, Name: "USB Mic", HostAPI: "ALSA", MaxInputChannels: 1, DefaultSampleRate: 48000}})
	if !strings.Contains(devices, "USB Mic") || !strings.Contains(devices, "[2]") {
		t.Errorf("renderDevices:\n%s", devices)
	}
}
