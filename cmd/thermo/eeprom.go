package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/onewire/cmd/thermo/console"
	"github.com/mklimuk/onewire/thermo"
)

var eepromCmd = cli.Command{
	Name:  "eeprom",
	Usage: "move the threshold registers to and from device EEPROM",
	Subcommands: []*cli.Command{
		{
			Name:  "store",
			Usage: "persist the current scratchpad thresholds",
			Flags: []cli.Flag{
				&addressFlag,
				&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip confirmation"},
			},
			Action: func(c *cli.Context) error {
				cfg, err := loadConfig(c)
				if err != nil {
					return console.Exit(1, "configuration error: %s", console.Red(err))
				}
				if !c.Bool("yes") {
					answer, err := console.YesOrNo("write thresholds to EEPROM?")
					if err != nil || answer != console.Yes {
						console.Info("aborted")
						return nil
					}
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
				if err := d.StoreConfig(c.Context, addr); err != nil {
					return console.Exit(1, "could not store configuration: %s", console.Red(err))
				}
				// the device writes its EEPROM while we hold the strong pull-up
				time.Sleep(thermo.StorePowerDelay)
				console.PInfof(console.PictoFloppy, "thresholds stored")
				return nil
			},
		},
		{
			Name:  "recall",
			Usage: "load the EEPROM thresholds back into the scratchpad",
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
				if err := d.RecallConfig(c.Context, addr); err != nil {
					return console.Exit(1, "could not recall configuration: %s", console.Red(err))
				}
				console.PInfof(console.PictoFloppy, "thresholds recalled")
				return nil
			},
		},
	},
}
