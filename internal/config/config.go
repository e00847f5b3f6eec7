// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults for
// the sensor.
const (
	// Sample source
	DefaultSource          = SourcePortAudio
	DefaultInputDevice     = MinDeviceID // System default device
	DefaultFramesPerBuffer = 256
	DefaultSegmentSeconds  = 4.0

	// Microphone clock. The sample rate is derived from these unless
	// sensor.sample_rate is set: 19104000 / ((29+1) * 32) = 19900 Hz.
	DefaultBaseClockHz    = 19104000 // Measured, drifts with temperature
	DefaultClockPrescaler = 29
	DefaultDownSampleRate = 32
	DefaultMicGain        = 7

	// Spectral analysis
	DefaultWindowSize     = 256
	DefaultSampleScaler   = 50
	DefaultPowerThreshold = 20
	DefaultFreqLower      = 0
	DefaultFreqUpper      = 9950

	// Pipeline
	DefaultMaxAttempts    = 0 // Unbounded
	DefaultRetryWarnEvery = 100

	// Transport
	DefaultBaudRate         = 115200
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPPacketGap     = time.Millisecond
	DefaultMonitorAddress   = ":8080"
	DefaultMetricsAddress   = ":9464"

	// Limits
	MinDeviceID       = -1 // -1 represents system default device
	MinSampleRate     = 1000
	MaxSampleRate     = 192000
	MaxBufferFrames   = 8192
	MaxSegmentSamples = 1 << 24
)

// Sample source kinds.
const (
	SourcePortAudio = "portaudio"
	SourceTone      = "tone"
	SourceWAV       = "wav"
)
