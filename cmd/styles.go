// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"strings"
	"time"

	"bivo/internal/analysis"
	"bivo/internal/source"
	"bivo/internal/transport"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8A8A8"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E0603A"))
)

func renderPorts(ports []transport.PortInfo) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Serial ports"))
	b.WriteString("\n\n")
	if len(ports) == 0 {
		b.WriteString(infoStyle.Render("  none found"))
		b.WriteString("\n")
		return b.String()
	}
	for _, p := range ports {
		b.WriteString("  ")
		b.WriteString(highlightStyle.Render(p.Name))
		if p.IsUSB {
			b.WriteString(infoStyle.Render(fmt.Sprintf("  USB %s:%s %s %s",
				p.VID, p.PID, p.Product, p.SerialNumber)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderDevices(devices []source.Device) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Audio input devices"))
	b.WriteString("\n\n")
	if len(devices) == 0 {
		b.WriteString(infoStyle.Render("  none found"))
		b.WriteString("\n")
		return b.String()
	}
	for _, d := range devices {
		fmt.Fprintf(&b, "  %s %s\n",
			highlightStyle.Render(fmt.Sprintf("[%d]", d.ID)),
			d.Name)
		b.WriteString(infoStyle.Render(fmt.Sprintf("      %s, %d ch, %.0f Hz, latency %v-%v",
			d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate,
			d.LowInputLatency.Round(time.Millisecond), d.HighInputLatency.Round(time.Millisecond))))
		b.WriteString("\n")
	}
	return b.String()
}

// segmentVerdict is one row of the analyze report.
type segmentVerdict struct {
	Index     int
	Start     time.Duration
	Verdict   analysis.Verdict
	BinHz     int
	Reference analysis.Summary
}

func renderVerdicts(path string, rate, segLen int, rows []segmentVerdict) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(path))
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(fmt.Sprintf("%d Hz, %d samples per segment", rate, segLen)))
	b.WriteString("\n\n")

	passed := 0
	for _, r := range rows {
		v := r.Verdict
		status := failStyle.Render("fail")
		if v.Passed {
			status = highlightStyle.Render("PASS")
			passed++
		}
		fmt.Fprintf(&b, "  #%-3d %8s  %s  window %-3d %5d Hz  magnitude %-5d %s\n",
			r.Index, r.Start.Round(time.Millisecond), status, v.Window, r.BinHz, v.Magnitude,
			infoStyle.Render(fmt.Sprintf("peak %.0f Hz %.1f dBFS, %.0f%% in band",
				r.Reference.PeakHz, analysis.Decibels(r.Reference.PeakMagnitude), 100*r.Reference.BandFraction)))
	}
	b.WriteString("\n")
	b.WriteString(highlightStyle.Render(fmt.Sprintf("%d of %d segments would be forwarded", passed, len(rows))))
	b.WriteString("\n")
	return b.String()
}
