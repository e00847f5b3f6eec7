// SPDX-License-Identifier: MIT
package cmd

import (
	"net"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"bivo/internal/config"
	"bivo/internal/transport"
	"bivo/internal/transport/udp"
)

func TestEventTransportsClosedOnError(t *testing.T) {
	var built *transport.Monitor
	orig := newMonitor
	defer func() { newMonitor = orig }()
	newMonitor = func() *transport.Monitor {
		built = transport.NewMonitor()
		return built
	}

	cfg := config.Default()
	cfg.Transport.MonitorEnabled = true
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = "no-port-here"

	events, start, err := newEventTransports(&cfg)
	if err == nil {
		t.Fatal("expected an error for an unusable UDP target")
	}
	if events != nil || start != nil {
		t.Error("failed build returned transports")
	}
	if built == nil {
		t.Fatal("monitor was never built")
	}
	if err := built.Send(transport.FaultEvent{Error: "x"}); err == nil {
		t.Error("monitor built before the failure was left open")
	}
}

func TestEventTransportsStartOnDemand(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("no loopback UDP: %v", err)
	}
	defer listener.Close()

	cfg := config.Default()
	cfg.Transport.LogEvents = true
	cfg.Transport.UDPEnabled = true
	cfg.Transport.UDPTargetAddress = listener.LocalAddr().String()
	cfg.Transport.UDPPacketGap = 0

	events, start, err := newEventTransports(&cfg)
	if err != nil {
		t.Fatalf("newEventTransports: %v", err)
	}
	defer events.Close()
	if len(events) != 2 {
		t.Fatalf("transports = %d, want 2", len(events))
	}

	seg := transport.SegmentEvent{Sequence: 4, SampleRate: 19900, Length: 8, Samples: make([]int16, 8), Time: time.Now()}
	if err := events.Send(seg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 2048)
	listener.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := listener.ReadFromUDP(buf); err == nil {
		t.Fatal("segment published before start")
	}

	var g errgroup.Group
	start(&g)

	listener.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP after start: %v", err)
	}
	h, samples, err := udp.DecodePacket(buf[:n])
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if h.Sequence != 4 || len(samples) != 8 {
		t.Errorf("packet = %+v with %d samples", h, len(samples))
	}

	if err := events.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Errorf("group: %v", err)
	}
}
