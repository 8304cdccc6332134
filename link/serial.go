package link

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// ReadTimeout bounds a single read call on the port; the exchange timeout
	// is enforced by the transport on top of it.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Device:      "/dev/serial0",
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// OpenSerial opens the port raw, 8N1, without flow control, and discards
// anything already buffered in either direction.
func OpenSerial(cfg SerialConfig) (*serial.Port, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        serial.DefaultSize,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", cfg.Device, err)
	}
	err = port.Flush()
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("could not flush serial port %s: %w", cfg.Device, err)
	}
	return port, nil
}
