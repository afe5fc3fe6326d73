package main

import (
	"context"
	"errors"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/onewire"
	"github.com/mklimuk/onewire/cmd/thermo/console"
	"github.com/mklimuk/onewire/thermo"
)

var readCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"temp"},
	Usage:   "convert and read temperatures",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "device address; all discovered devices when omitted",
		},
		&cli.IntFlag{
			Name:    "retries",
			Aliases: []string{"r"},
			Usage:   "read retries on a corrupted scratchpad",
		},
		&cli.BoolFlag{
			Name:    "poll",
			Aliases: []string{"p"},
			Usage:   "keep measuring until interrupted",
		},
		&cli.DurationFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Value:   5 * time.Second,
			Usage:   "polling interval",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if c.IsSet("retries") {
			cfg.Retries = c.Int("retries")
		}
		d, bus, err := openThermometer(c, cfg)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		addresses, err := resolveAddresses(c, cfg, d)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if len(addresses) == 0 {
			return console.Exit(1, "no devices on the bus")
		}
		for {
			if err := measure(c.Context, d, cfg, addresses); err != nil {
				return console.Exit(1, "measurement error: %s", console.Red(err))
			}
			if !c.Bool("poll") {
				return nil
			}
			select {
			case <-c.Context.Done():
				return nil
			case <-time.After(c.Duration("interval")):
			}
		}
	},
}

// measure runs one conversion cycle: a broadcast conversion, the mandatory
// strong pull-up hold, then a read of every device.
func measure(ctx context.Context, d *thermo.DS1820, cfg Config, addresses []onewire.Address) error {
	if err := d.Convert(ctx, onewire.AddressBroadcast); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cfg.ConvertWait()):
	}
	for _, addr := range addresses {
		temp, err := readWithRetry(ctx, d, addr, cfg.Retries)
		if err != nil {
			console.Errorf("%s: %s", addr, err)
			continue
		}
		console.PInfof(console.PictoThermometer, "%s %s", addr, console.White(temp))
	}
	return nil
}

// readWithRetry retries corrupted scratchpad transfers a bounded number of
// times. Anything other than a CRC failure aborts immediately.
func readWithRetry(ctx context.Context, d *thermo.DS1820, addr onewire.Address, retries int) (thermo.Temperature, error) {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		var temp thermo.Temperature
		temp, err = d.ReadTemperature(ctx, addr)
		if err == nil {
			return temp, nil
		}
		if !errors.Is(err, thermo.ErrCRCMismatch) {
			return thermo.TemperatureInvalid, err
		}
		console.Debugf("retrying %s after a corrupted read (%d/%d)", addr, attempt+1, retries)
	}
	return thermo.TemperatureInvalid, err
}
