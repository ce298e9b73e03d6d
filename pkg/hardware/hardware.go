// Package hardware gives the rest of trackerd a narrow view of the real
// device: UART ports and GPIO power pins. Components depend on the Port
// and Pin interfaces so tests can substitute scripted fakes.
package hardware

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.bug.st/serial"
)

// Port is a byte stream with a bounded read, typically a UART.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// OpenPort opens a serial device at the given baud rate, 8N1.
func OpenPort(device string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s @%d: %w", device, baud, err)
	}
	return port, nil
}

// Pin controls a single output GPIO, used to power-cycle modules.
type Pin interface {
	Set(high bool) error
	Cycle(offFor time.Duration) error
}

// gpioPin drives a pin through the sysfs GPIO interface. The surface is
// two file writes, which is why no GPIO library is pulled in.
type gpioPin struct {
	num  int
	path string
}

// NewGPIOPin exports the pin as an output and returns a handle to it.
func NewGPIOPin(num int) (Pin, error) {
	p := &gpioPin{num: num, path: fmt.Sprintf("/sys/class/gpio/gpio%d", num)}

	if _, err := os.Stat(p.path); os.IsNotExist(err) {
		if err := os.WriteFile("/sys/class/gpio/export", []byte(fmt.Sprintf("%d", num)), 0o200); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", num, err)
		}
	}
	if err := os.WriteFile(p.path+"/direction", []byte("out"), 0o200); err != nil {
		return nil, fmt.Errorf("set gpio %d direction: %w", num, err)
	}
	return p, nil
}

func (p *gpioPin) Set(high bool) error {
	value := "0"
	if high {
		value = "1"
	}
	if err := os.WriteFile(p.path+"/value", []byte(value), 0o200); err != nil {
		return fmt.Errorf("set gpio %d: %w", p.num, err)
	}
	return nil
}

// Cycle drops the pin low for the given duration and raises it again.
func (p *gpioPin) Cycle(offFor time.Duration) error {
	if err := p.Set(false); err != nil {
		return err
	}
	time.Sleep(offFor)
	return p.Set(true)
}
