// Package config holds the bridge configuration file and build metadata.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mklimuk/uartbridge/board"
	"github.com/mklimuk/uartbridge/link"
	"github.com/mklimuk/uartbridge/mailbox"
)

// Build metadata, injected at link time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const DefaultPath = "/etc/uartbridge/config.yaml"

type Config struct {
	Serial  link.SerialConfig `yaml:"serial"`
	Link    link.Config       `yaml:"link"`
	Mailbox mailbox.Config    `yaml:"mailbox"`
	Boards  Boards            `yaml:"boards"`
	// Lock takes an advisory lock on the serial device around each exchange.
	Lock bool `yaml:"lock"`
	// ProxyDevice, when set, makes attach serve a kernel proxy character
	// device instead of the in-process mailbox.
	ProxyDevice string `yaml:"proxy_device,omitempty"`
}

type Boards struct {
	Mobo  uint16 `yaml:"mobo"`
	Power uint16 `yaml:"power"`
}

func Default() Config {
	return Config{
		Serial:  link.DefaultSerialConfig(),
		Link:    link.DefaultConfig(),
		Mailbox: mailbox.DefaultConfig(),
		Boards: Boards{
			Mobo:  board.DefaultMoboAddr,
			Power: board.PowerAddr,
		},
		Lock: true,
	}
}

// Load reads path on top of the defaults. A missing file is not an error when
// path is the default location.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultPath {
			return cfg, nil
		}
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Serial.Device == "" {
		return fmt.Errorf("serial device not set")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.Baud)
	}
	if err := c.Link.Validate(); err != nil {
		return err
	}
	if err := c.Mailbox.Validate(); err != nil {
		return err
	}
	if c.Mailbox.Capacity > c.Link.Capacity {
		return fmt.Errorf("mailbox capacity %d exceeds link capacity %d", c.Mailbox.Capacity, c.Link.Capacity)
	}
	if c.Mailbox.Timeout <= c.Link.Timeout {
		return fmt.Errorf("mailbox timeout %s must exceed link timeout %s", c.Mailbox.Timeout, c.Link.Timeout)
	}
	if c.Boards.Mobo == c.Boards.Power {
		return fmt.Errorf("boards share address 0x%02x", c.Boards.Mobo)
	}
	return nil
}

func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
