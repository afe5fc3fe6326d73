package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/onewire/cmd/thermo/console"
)

var searchCmd = cli.Command{
	Name:    "search",
	Aliases: []string{"ls"},
	Usage:   "enumerate thermometers present on the bus",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "max",
			Aliases: []string{"m"},
			Usage:   "maximum number of devices to collect",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		if c.IsSet("max") {
			cfg.MaxDevices = c.Int("max")
		}
		d, bus, err := openThermometer(c, cfg)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() { _ = bus.Close() }()
		found, err := d.Search(c.Context, cfg.MaxDevices)
		if err != nil {
			return console.Exit(1, "search error: %s", console.Red(err))
		}
		if len(found) == 0 {
			console.PInfof(console.PictoStop, "no devices found")
			return nil
		}
		for _, addr := range found {
			console.PInfof(console.PictoPin, "%s", console.White(addr))
		}
		console.PInfof(console.PictoFinish, "%s device(s) found", console.White(len(found)))
		return nil
	},
}
