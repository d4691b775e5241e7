package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst/cmd/burst/console"
	"github.com/mklimuk/i2cburst/mux"
)

var muxAddressFlag = &cli.StringFlag{
	Name:    "address",
	Aliases: []string{"addr"},
	Value:   fmt.Sprintf("%#x", mux.DefaultTCA9548AAddress),
}

var muxCmd = cli.Command{
	Name:  "mux",
	Usage: "drive a TCA9548A bus switch",
	Subcommands: cli.Commands{
		{
			Name:      "select",
			Usage:     "enable the given downstream channels (none disables all)",
			ArgsUsage: "[CHANNEL...]",
			Flags:     []cli.Flag{muxAddressFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				addr, err := address(c)
				if err != nil {
					return err
				}
				channels := make([]int, 0, c.NArg())
				for i := range c.NArg() {
					ch, err := argNumber(c, i, "channel", 8)
					if err != nil {
						return err
					}
					channels = append(channels, int(ch))
				}
				m := mux.NewTCA9548A(s.bus, byte(addr), s.opts...)
				if len(channels) == 0 {
					err = m.Disable(c.Context)
				} else {
					err = m.Select(c.Context, channels...)
				}
				if err != nil {
					return err
				}
				console.Infof("channels %v enabled", channels)
				return nil
			}),
		},
		{
			Name:  "get",
			Usage: "show the enabled channels",
			Flags: []cli.Flag{muxAddressFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				addr, err := address(c)
				if err != nil {
					return err
				}
				channels, err := mux.NewTCA9548A(s.bus, byte(addr), s.opts...).Channels(c.Context)
				if err != nil {
					return err
				}
				console.Printf("%s\n", console.White(fmt.Sprint(channels)))
				return nil
			}),
		},
	},
}
