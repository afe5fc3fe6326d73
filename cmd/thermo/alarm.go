package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/onewire"
	"github.com/mklimuk/onewire/cmd/thermo/console"
)

var addressFlag = cli.StringFlag{
	Name:    "address",
	Aliases: []string{"a"},
	Usage:   "device address; broadcast when omitted",
}

var alarmCmd = cli.Command{
	Name:  "alarm",
	Usage: "read or program the alarm threshold registers",
	Subcommands: []*cli.Command{
		{
			Name:  "get",
			Usage: "read the high/low thresholds",
			Flags: []cli.Flag{&addressFlag},
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c)
				if err != nil {
					return console.Exit(1, "configuration error: %s", console.Red(err))
				}
				d, bus, err := openThermometer(c, cfg)
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				defer func() { _ = bus.Close() }()
				addr, err := targetAddress(c)
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				high, low, err := d.GetAlarmThresholds(c.Context, addr)
				if err != nil {
					return console.Exit(1, "could not read thresholds: %s", console.Red(err))
				}
				console.PInfof(console.PictoBell, "high %s°C low %s°C", console.White(high), console.White(low))
				return nil
			},
		},
		{
			Name:  "set",
			Usage: "program the high/low thresholds in whole degrees (-127..127)",
			Flags: []cli.Flag{
				&addressFlag,
				&cli.IntFlag{Name: "high", Usage: "high threshold in degrees Celsius", Required: true},
				&cli.IntFlag{Name: "low", Usage: "low threshold in degrees Celsius", Required: true},
			},
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c)
				if err != nil {
					return console.Exit(1, "configuration error: %s", console.Red(err))
				}
				high, low := c.Int("high"), c.Int("low")
				if high < -127 || high > 127 || low < -127 || low > 127 {
					return console.Exit(1, "thresholds must fit in -127..127 degrees")
				}
				d, bus, err := openThermometer(c, cfg)
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				defer func() { _ = bus.Close() }()
				addr, err := targetAddress(c)
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				if err := d.SetAlarmThresholds(c.Context, addr, high, low); err != nil {
					return console.Exit(1, "could not set thresholds: %s", console.Red(err))
				}
				console.PInfof(console.PictoBell, "thresholds set to high %s°C low %s°C", console.White(high), console.White(low))
				console.Info("use 'thermo eeprom store' to persist them across power cycles")
				return nil
			},
		},
	},
}

func targetAddress(c *cli.Context) (onewire.Address, error) {
	s := c.String("address")
	if s == "" {
		return onewire.AddressBroadcast, nil
	}
	return onewire.ParseAddress(s)
}
