package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst/cmd/burst/console"
	"github.com/mklimuk/i2cburst/gpio"
)

var gpioAddressFlag = &cli.StringFlag{
	Name:    "address",
	Aliases: []string{"addr"},
	Value:   fmt.Sprintf("%#x", gpio.DefaultMCP23017Address),
}

var gpioCmd = cli.Command{
	Name:  "gpio",
	Usage: "drive an MCP23017 expander",
	Subcommands: cli.Commands{
		&gpioStatusCmd,
		&gpioReadCmd,
		&gpioConfigureCmd,
		&gpioPullCmd,
	},
}

func expander(c *cli.Context, s *session) (*gpio.MCP23017, error) {
	addr, err := address(c)
	if err != nil {
		return nil, err
	}
	return gpio.NewMCP23017(s.bus, byte(addr), s.opts...), nil
}

var gpioReadCmd = cli.Command{
	Name:  "read",
	Usage: "configure both ports as inputs and read them",
	Flags: []cli.Flag{gpioAddressFlag},
	Action: withSession(func(c *cli.Context, s *session) error {
		exp, err := expander(c, s)
		if err != nil {
			return err
		}
		if err := exp.Init(c.Context, 0xFF, 0xFF); err != nil {
			return fmt.Errorf("could not initialize gpio: %w", err)
		}
		ports, err := exp.Read(c.Context)
		if err != nil {
			return fmt.Errorf("could not read gpio: %w", err)
		}
		console.PInfof(console.PictoPin, "I/O A: %s", console.White(fmt.Sprintf("%#08b", ports[0])))
		console.PInfof(console.PictoPin, "I/O B: %s", console.White(fmt.Sprintf("%#08b", ports[1])))
		return nil
	}),
}

var gpioStatusCmd = cli.Command{
	Name:  "status",
	Usage: "show the IOCON register",
	Flags: []cli.Flag{gpioAddressFlag},
	Action: withSession(func(c *cli.Context, s *session) error {
		exp, err := expander(c, s)
		if err != nil {
			return err
		}
		data, err := exp.ReadSettingsA(c.Context)
		if err != nil {
			return fmt.Errorf("could not read settings: %w", err)
		}
		console.Printf("IOCON content: %#X\n", data)
		return nil
	}),
}

var gpioConfigureCmd = cli.Command{
	Name:      "configure",
	Usage:     "write the IOCON register",
	ArgsUsage: "SETTINGS",
	Flags:     []cli.Flag{gpioAddressFlag},
	Action: withSession(func(c *cli.Context, s *session) error {
		exp, err := expander(c, s)
		if err != nil {
			return err
		}
		data, err := argNumber(c, 0, "settings", 8)
		if err != nil {
			return err
		}
		if err := exp.WriteSettingsA(c.Context, byte(data)); err != nil {
			return fmt.Errorf("could not write settings: %w", err)
		}
		console.Printf("Wrote IOCON content: %#X\n", data)
		return nil
	}),
}

var gpioPullCmd = cli.Command{
	Name:      "pull",
	Usage:     "write the pull-up settings of ports A and B",
	ArgsUsage: "A [B]",
	Flags:     []cli.Flag{gpioAddressFlag},
	Action: withSession(func(c *cli.Context, s *session) error {
		exp, err := expander(c, s)
		if err != nil {
			return err
		}
		a, err := argNumber(c, 0, "port A settings", 8)
		if err != nil {
			return err
		}
		if err := exp.PullUpA(c.Context, byte(a)); err != nil {
			return fmt.Errorf("could not write pull up settings: %w", err)
		}
		console.Printf("Wrote GPPUA content: %#X\n", a)
		if c.NArg() < 2 {
			return nil
		}
		b, err := argNumber(c, 1, "port B settings", 8)
		if err != nil {
			return err
		}
		if err := exp.PullUpB(c.Context, byte(b)); err != nil {
			return fmt.Errorf("could not write pull up settings: %w", err)
		}
		console.Printf("Wrote GPPUB content: %#X\n", b)
		return nil
	}),
}
