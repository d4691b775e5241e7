package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst/air"
	"github.com/mklimuk/i2cburst/cmd/burst/console"
)

var airCmd = cli.Command{
	Name:  "air",
	Usage: "read an AGS02MA TVOC sensor",
	Subcommands: []*cli.Command{
		&airReadCmd,
		&airCalibrateCmd,
		&airVersionCmd,
	},
}

func tvocSensor(s *session) *air.AGS02MA {
	return air.NewAGS02MA(s.bus, air.WithBurstOptions(s.opts...))
}

var airReadCmd = cli.Command{
	Name: "read",
	Action: withSession(func(c *cli.Context, s *session) error {
		sensor := tvocSensor(s)
		defer sensor.Close(c.Context)
		ppb, err := sensor.GetTVOC(c.Context)
		if err != nil {
			return fmt.Errorf("error reading TVOC: %w", err)
		}
		console.Printf("TVOC: %s ppb\n", console.White(ppb))
		return nil
	}),
}

var airCalibrateCmd = cli.Command{
	Name: "calibrate",
	Action: withSession(func(c *cli.Context, s *session) error {
		sensor := tvocSensor(s)
		defer sensor.Close(c.Context)
		if err := sensor.Calibrate(c.Context); err != nil {
			return fmt.Errorf("error calibrating: %w", err)
		}
		console.Printf("calibrated\n")
		return nil
	}),
}

var airVersionCmd = cli.Command{
	Name: "version",
	Action: withSession(func(c *cli.Context, s *session) error {
		v, err := tvocSensor(s).ReadVersion(c.Context)
		if err != nil {
			return fmt.Errorf("error reading version: %w", err)
		}
		console.Printf("firmware version: %s\n", console.White(v))
		return nil
	}),
}
