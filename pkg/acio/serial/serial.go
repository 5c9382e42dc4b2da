// Package serial opens the UART an ACIO node chain is attached to.
package serial

import (
	"fmt"
	"io"
	"runtime"

	"github.com/golang/glog"
	"github.com/tarm/serial"
)

// DefaultBaud is the ACIO link speed, 8N1.
const DefaultBaud = 57600

// Devices returns the device names tried when none is specified.
func Devices() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"COM3", "COM4", "COM1"}
	case "darwin":
		return []string{"/dev/tty.usbserial", "/dev/tty.usbmodem1"}
	default:
		return []string{"/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0", "/dev/ttyAMA0"}
	}
}

// Open opens a serial device. An empty name tries Devices in order.
func Open(name string, baud int) (io.ReadWriteCloser, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	if name != "" {
		return open(name, baud)
	}
	var lastErr error
	for _, dev := range Devices() {
		port, err := open(dev, baud)
		if err == nil {
			return port, nil
		}
		glog.V(1).Infof("open %s: %v", dev, err)
		lastErr = err
	}
	return nil, fmt.Errorf("no serial device found: %w", lastErr)
}

func open(name string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:     name,
		Baud:     baud,
		Size:     8,
		Parity:   serial.ParityNone,
		StopBits: serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	glog.Infof("opened %s at %d baud", name, baud)
	return port, nil
}
