package main

import (
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/onewire/cmd/thermo/console"
	"github.com/mklimuk/onewire/thermo"
)

var powerCmd = cli.Command{
	Name:  "power",
	Usage: "query how the addressed device is supplied",
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
		mode, err := d.GetPowerMode(c.Context, addr)
		if err != nil {
			return console.Exit(1, "could not read power mode: %s", console.Red(err))
		}
		picto := console.PictoPlug
		if mode == thermo.PowerParasite {
			picto = console.PictoBattery
		}
		console.PInfof(picto, "%s power", console.White(mode))
		return nil
	},
}
