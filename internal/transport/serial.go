// SPDX-License-Identifier: MIT
package transport

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the sensor's UART speed.
const DefaultBaudRate = 115200

// PortInfo describes a serial port found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Swapped out in tests.
var (
	serialOpenFunc  = serial.Open
	serialPortsFunc = enumerator.GetDetailedPortsList
)

// OpenSerial opens name at baud, 8 data bits, no parity, one stop bit, and
// returns a Link over it.
func OpenSerial(name string, baud int) (*StreamLink, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serialOpenFunc(name, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open serial port %s: %w", name, err)
	}
	return NewStreamLink(port), nil
}

// SerialPorts lists the serial ports present on the host.
func SerialPorts() ([]PortInfo, error) {
	details, err := serialPortsFunc()
	if err != nil {
		return nil, fmt.Errorf("transport: list serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	return ports, nil
}
