// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"bivo/internal/analysis"
	"bivo/internal/log"

	"gopkg.in/yaml.v3"
)

var configLog = log.Named("config")

// Config represents the main application configuration structure, loaded
// from YAML. It is fixed once the sensor starts.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn" or "error".
	Sensor    SensorConfig    `yaml:"sensor"`
	Analysis  analysis.Config `yaml:"analysis"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SensorConfig selects and configures the sample source.
type SensorConfig struct {
	Source          string  `yaml:"source"`            // "portaudio", "tone" or "wav".
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // PortAudio callback size.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
	SegmentSeconds  float64 `yaml:"segment_seconds"`   // Length of one captured segment.
	SampleRate      int     `yaml:"sample_rate"`       // Hz, 0 derives it from the microphone clock.
	BaseClockHz     int     `yaml:"base_clock_hz"`
	ClockPrescaler  int     `yaml:"clock_prescaler"`
	DownSampleRate  int     `yaml:"down_sample_rate"`
	MicGain         int     `yaml:"mic_gain"` // Passed to the source; PortAudio ignores it.
	WAVPath         string  `yaml:"wav_path"` // Clip replayed by the wav source.
	Realtime        bool    `yaml:"realtime"` // Pace tone and wav sources at the sample rate.
	Tone            Tone    `yaml:"tone"`     // Scene played by the tone source.
}

// Tone is a synthetic scene of time windowed sinusoids.
type Tone struct {
	Period    float64    `yaml:"period"` // Seconds, 0 plays once.
	Sinusoids []Sinusoid `yaml:"sinusoids"`
}

// Sinusoid is one tone in a scene.
type Sinusoid struct {
	Frequency float64 `yaml:"frequency"` // Hz.
	Amplitude float64 `yaml:"amplitude"` // Sample units.
	Phase     float64 `yaml:"phase"`     // Radians.
	Start     float64 `yaml:"start"`     // Seconds.
	End       float64 `yaml:"end"`       // Seconds, 0 for open ended.
}

// PipelineConfig tunes the retry loop.
type PipelineConfig struct {
	MaxAttempts           int           `yaml:"max_attempts"`            // 0 retries forever.
	Timeout               time.Duration `yaml:"timeout"`                 // Per record command, 0 waits forever.
	RetryWarnEvery        int           `yaml:"retry_warn_every"`        // Warn after this many failed captures.
	HandshakeEverySegment bool          `yaml:"handshake_every_segment"` // Repeat the handshake before each record.
}

// TransportConfig holds the host link and the observer transports.
type TransportConfig struct {
	SerialPort       string        `yaml:"serial_port"`        // e.g. "/dev/ttyUSB0".
	BaudRate         int           `yaml:"baud_rate"`          // 8N1 is fixed.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Publish forwarded segments over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPPacketGap     time.Duration `yaml:"udp_packet_gap"`     // Pause between datagrams of one segment.
	MonitorEnabled   bool          `yaml:"monitor_enabled"`    // Serve pipeline events over websocket.
	MonitorAddress   string        `yaml:"monitor_address"`
	LogEvents        bool          `yaml:"log_events"` // Log every pipeline event.
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Sensor: SensorConfig{
			Source:          DefaultSource,
			InputDevice:     DefaultInputDevice,
			FramesPerBuffer: DefaultFramesPerBuffer,
			SegmentSeconds:  DefaultSegmentSeconds,
			BaseClockHz:     DefaultBaseClockHz,
			ClockPrescaler:  DefaultClockPrescaler,
			DownSampleRate:  DefaultDownSampleRate,
			MicGain:         DefaultMicGain,
			Realtime:        true,
		},
		Analysis: analysis.Config{
			WindowSize:     DefaultWindowSize,
			SampleScaler:   DefaultSampleScaler,
			PowerThreshold: DefaultPowerThreshold,
			FreqLower:      DefaultFreqLower,
			FreqUpper:      DefaultFreqUpper,
		},
		Pipeline: PipelineConfig{
			MaxAttempts:           DefaultMaxAttempts,
			RetryWarnEvery:        DefaultRetryWarnEvery,
			HandshakeEverySegment: true,
		},
		Transport: TransportConfig{
			BaudRate:         DefaultBaudRate,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPPacketGap:     DefaultUDPPacketGap,
			MonitorAddress:   DefaultMonitorAddress,
		},
		Metrics: MetricsConfig{
			ListenAddress: DefaultMetricsAddress,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty, it searches default locations ("config.yaml"). If no file is
// found, it uses built-in defaults. After loading defaults or from file, it
// applies environment variable overrides and validates the final
// configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml", "bivo.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment overrides win over the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the whole configuration. Analysis errors wrap
// analysis.ErrConfigInvalid.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not recognized", c.LogLevel))
	}

	s := c.Sensor
	switch s.Source {
	case SourcePortAudio, SourceTone:
	case SourceWAV:
		if s.WAVPath == "" {
			errs = append(errs, errors.New("sensor.wav_path must be set for the wav source"))
		}
	default:
		errs = append(errs, fmt.Errorf("sensor.source %q must be one of %s, %s, %s",
			s.Source, SourcePortAudio, SourceTone, SourceWAV))
	}
	if s.InputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("sensor.input_device %d is below %d", s.InputDevice, MinDeviceID))
	}
	if s.FramesPerBuffer <= 0 || s.FramesPerBuffer > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("sensor.frames_per_buffer must be in [1, %d], got %d", MaxBufferFrames, s.FramesPerBuffer))
	}
	if s.SampleRate == 0 && (s.BaseClockHz <= 0 || s.ClockPrescaler < 0 || s.DownSampleRate <= 0) {
		errs = append(errs, errors.New("sensor clock settings cannot derive a sample rate"))
	}

	// The rest depends on a usable rate and segment length.
	rate := c.SampleRate()
	if rate < MinSampleRate || rate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("sample rate %d Hz outside [%d, %d]", rate, MinSampleRate, MaxSampleRate))
		return errors.Join(errs...)
	}
	segLen := c.SegmentLength()
	if s.SegmentSeconds <= 0 || segLen <= 0 || segLen > MaxSegmentSamples {
		errs = append(errs, fmt.Errorf("sensor.segment_seconds %v gives %d samples, want [1, %d]",
			s.SegmentSeconds, segLen, MaxSegmentSamples))
		return errors.Join(errs...)
	}

	if err := c.Analysis.Validate(rate, segLen); err != nil {
		errs = append(errs, err)
	}

	p := c.Pipeline
	if p.MaxAttempts < 0 || p.Timeout < 0 || p.RetryWarnEvery < 0 {
		errs = append(errs, errors.New("pipeline settings must not be negative"))
	}

	t := c.Transport
	if t.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("transport.baud_rate must be positive, got %d", t.BaudRate))
	}
	if t.UDPEnabled && !strings.Contains(t.UDPTargetAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress))
	}
	if t.UDPPacketGap < 0 {
		errs = append(errs, errors.New("transport.udp_packet_gap must not be negative"))
	}
	if t.MonitorEnabled && t.MonitorAddress == "" {
		errs = append(errs, errors.New("transport.monitor_address must be set when the monitor is enabled"))
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		errs = append(errs, errors.New("metrics.listen_address must be set when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of the loaded file.
// Values that fail to parse are ignored with a warning.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	envBool("ENV_DEBUG", "debug", &cfg.Debug)
	envString("ENV_LOG_LEVEL", "log_level", &cfg.LogLevel)

	// ENV_SENSOR_{...}

	envString("ENV_SENSOR_SOURCE", "sensor.source", &cfg.Sensor.Source)
	envInt("ENV_SENSOR_INPUT_DEVICE", "sensor.input_device", &cfg.Sensor.InputDevice)
	envInt("ENV_SENSOR_SAMPLE_RATE", "sensor.sample_rate", &cfg.Sensor.SampleRate)
	envString("ENV_SENSOR_WAV_PATH", "sensor.wav_path", &cfg.Sensor.WAVPath)

	// ENV_ANALYSIS_{...}

	envInt("ENV_ANALYSIS_POWER_THRESHOLD", "analysis.power_threshold", &cfg.Analysis.PowerThreshold)

	// ENV_SERIAL_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.

	envString("ENV_SERIAL_PORT", "transport.serial_port", &cfg.Transport.SerialPort)
	envInt("ENV_SERIAL_BAUD_RATE", "transport.baud_rate", &cfg.Transport.BaudRate)
	envBool("ENV_UDP_ENABLED", "transport.udp_enabled", &cfg.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", "transport.udp_target_address", &cfg.Transport.UDPTargetAddress)
	envDuration("ENV_UDP_PACKET_GAP", "transport.udp_packet_gap", &cfg.Transport.UDPPacketGap)

	// ENV_METRICS_{...}

	envBool("ENV_METRICS_ENABLED", "metrics.enabled", &cfg.Metrics.Enabled)
	envString("ENV_METRICS_ADDRESS", "metrics.listen_address", &cfg.Metrics.ListenAddress)
}

func envString(key, field string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		configLog.Infof("overriding %s from env: %s", field, val)
	}
}

func envBool(key, field string, dst *bool) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			configLog.Warnf("ignoring %s=%q: %v", key, val, err)
			return
		}
		*dst = b
		configLog.Infof("overriding %s from env: %v", field, b)
	}
}

func envInt(key, field string, dst *int) {
	if val, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			configLog.Warnf("ignoring %s=%q: %v", key, val, err)
			return
		}
		*dst = n
		configLog.Infof("overriding %s from env: %d", field, n)
	}
}

func envDuration(key, field string, dst *time.Duration) {
	if val, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			configLog.Warnf("ignoring %s=%q: %v", key, val, err)
			return
		}
		*dst = d
		configLog.Infof("overriding %s from env: %s", field, d)
	}
}
