package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst/accel"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/cmd/burst/console"
)

var motionCmd = cli.Command{
	Name:  "motion",
	Usage: "drive the BMA220 motion interrupt",
	Subcommands: cli.Commands{
		&motionInitCmd,
		&motionCheckCmd,
		&motionResetCmd,
	},
}

func accelerometer(s *session) *accel.BMA220 {
	return accel.NewBMA220(s.bus, burst.WithBurstOptions(s.opts...))
}

var motionInitCmd = cli.Command{
	Name: "init",
	Action: withSession(func(c *cli.Context, s *session) error {
		if err := accelerometer(s).InitMotionDetection(c.Context); err != nil {
			return fmt.Errorf("could not initialize motion detection: %w", err)
		}
		console.Info("motion detection enabled")
		return nil
	}),
}

var motionCheckCmd = cli.Command{
	Name: "check",
	Action: withSession(func(c *cli.Context, s *session) error {
		moved, err := accelerometer(s).CheckMotionInterrupt(c.Context)
		if err != nil {
			return fmt.Errorf("could not check motion interrupt: %w", err)
		}
		if moved {
			console.Printf("%s\n", console.Yellow("motion detected"))
			return nil
		}
		console.Printf("%s\n", console.Green("no motion"))
		return nil
	}),
}

var motionResetCmd = cli.Command{
	Name: "reset",
	Action: withSession(func(c *cli.Context, s *session) error {
		if err := accelerometer(s).ResetMotionInterrupt(c.Context); err != nil {
			return fmt.Errorf("could not reset motion interrupt: %w", err)
		}
		console.Info("motion interrupt reset")
		return nil
	}),
}
