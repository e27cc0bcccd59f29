package rainsensor

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// DefaultBaudRate is the line speed of the common RS-232 rain sensors.
const DefaultBaudRate = 9600

// Port wraps the serial connection to the sensor.
type Port struct {
	port serial.Port
	mu   sync.Mutex
}

// OpenPort opens the serial port 8N1 at the given baud rate.
func OpenPort(path string, baud int) (*Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}

	// The sensor is powered from DTR on most interface boxes.
	if err := port.SetDTR(true); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set DTR: %w", err)
	}

	log.Info().Str("port", path).Int("baud", baud).Msg("Serial port opened")

	return &Port{port: port}, nil
}

// Read reads raw bytes from the serial port.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Close closes the serial port.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Close()
}
