package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst/cmd/burst/console"
	"github.com/mklimuk/i2cburst/environment"
)

var lightCmd = cli.Command{
	Name:  "light",
	Usage: "read a BH1750 light sensor",
	Subcommands: []*cli.Command{
		&lightReadCmd,
	},
}

var lightReadCmd = cli.Command{
	Name:    "read",
	Aliases: []string{"rd"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Value: "l",
			Usage: "address pin level (l or h)",
		},
		&cli.StringFlag{
			Name:  "mode",
			Value: "h",
			Usage: "resolution (h, h2 or l)",
		},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		var addr byte
		switch c.String("addr") {
		case "h":
			addr = environment.BH1750AddrHigh
		default:
			addr = environment.BH1750AddrLow
		}
		sensor := environment.NewBH1750(s.bus, addr, s.opts...)
		switch c.String("mode") {
		case "h2":
			sensor.SetMode(environment.ModeSingleHighResolution2)
		case "l":
			sensor.SetMode(environment.ModeSingleLowResolution)
		}
		lux, err := sensor.GetLux(c.Context)
		if err != nil {
			return fmt.Errorf("error getting light sensor read: %w", err)
		}
		console.PInfof(console.PictoBulb, "%s lux", console.White(lux))
		return nil
	}),
}
