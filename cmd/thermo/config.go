package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/onewire"
	"github.com/mklimuk/onewire/adapter"
	"github.com/mklimuk/onewire/thermo"
)

// Config groups the CLI defaults that can be kept in a yaml file instead of
// repeated on every invocation.
type Config struct {
	Device        string `yaml:"device"`
	Retries       int    `yaml:"retries"`
	FamilyFilter  byte   `yaml:"family_filter"`
	MaxDevices    int    `yaml:"max_devices"`
	ConvertWaitMs int    `yaml:"convert_wait_ms"`
}

func defaultConfig() Config {
	return Config{
		Device:        "/dev/ttyUSB0",
		Retries:       2,
		FamilyFilter:  thermo.FamilyCode,
		MaxDevices:    16,
		ConvertWaitMs: int(thermo.ConvertDelay / time.Millisecond),
	}
}

// ConvertWait is the post-conversion strong pull-up hold time, never below
// the sensor's hard minimum.
func (c Config) ConvertWait() time.Duration {
	wait := time.Duration(c.ConvertWaitMs) * time.Millisecond
	if wait < thermo.ConvertDelay {
		return thermo.ConvertDelay
	}
	return wait
}

// loadConfig merges the defaults, the optional --config file and the
// --device override, in that order.
func loadConfig(c *cli.Context) (Config, error) {
	cfg := defaultConfig()
	if path := c.String("config"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("could not read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	}
	if dev := c.String("device"); dev != "" {
		cfg.Device = dev
	}
	return cfg, nil
}

// openThermometer wires a driver on top of the UART adapter.
func openThermometer(c *cli.Context, cfg Config) (*thermo.DS1820, *adapter.UARTAdapter, error) {
	bus := adapter.NewUARTAdapter(cfg.Device)
	d := thermo.NewDS1820(bus, thermo.WithFamilyFilter(cfg.FamilyFilter))
	// an empty bus still initializes; commands report absence themselves
	if err := d.Init(c.Context); err != nil && !errors.Is(err, onewire.ErrNoDevice) {
		return nil, nil, fmt.Errorf("bus initialization error: %w", err)
	}
	return d, bus, nil
}

// resolveAddresses returns the explicitly requested address or discovers
// every device on the bus.
func resolveAddresses(c *cli.Context, cfg Config, d *thermo.DS1820) ([]onewire.Address, error) {
	if s := c.String("address"); s != "" {
		addr, err := onewire.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		return []onewire.Address{addr}, nil
	}
	found, err := d.Search(c.Context, cfg.MaxDevices)
	if err != nil {
		return nil, fmt.Errorf("search error: %w", err)
	}
	return found, nil
}
