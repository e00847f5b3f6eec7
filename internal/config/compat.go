// SPDX-License-Identifier: MIT
package config

import (
	"math"

	"bivo/internal/log"
)

// SampleRate returns the configured rate, or the one the microphone clock
// produces when sensor.sample_rate is 0.
func (c *Config) SampleRate() int {
	s := c.Sensor
	if s.SampleRate > 0 {
		return s.SampleRate
	}
	div := (s.ClockPrescaler + 1) * s.DownSampleRate
	if div <= 0 {
		return 0
	}
	return s.BaseClockHz / div
}

// SegmentLength returns the number of samples in one segment.
func (c *Config) SegmentLength() int {
	return int(math.Round(c.Sensor.SegmentSeconds * float64(c.SampleRate())))
}

// Level returns the effective log level. Debug forces LevelDebug.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}
