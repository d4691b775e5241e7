package main

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/cmd/burst/console"
)

var byteCountFlag = &cli.IntFlag{
	Name:    "bytes",
	Aliases: []string{"n"},
	Usage:   "number of bytes of the value (1-8)",
	Value:   1,
}

var triesFlag = &cli.IntFlag{
	Name:  "tries",
	Usage: "attempts of the access (0 keeps the configured default)",
}

func accessOptions(c *cli.Context) []burst.AccessOption {
	opts := []burst.AccessOption{burst.ByteCount(c.Int("bytes"))}
	if c.Int("tries") > 0 {
		opts = append(opts, burst.MaxTries(c.Int("tries")))
	}
	return opts
}

var readCmd = cli.Command{
	Name:      "read",
	Usage:     "read a register",
	ArgsUsage: "REGISTER",
	Flags:     []cli.Flag{addressFlag(true), byteCountFlag, triesFlag},
	Action: withSession(func(c *cli.Context, s *session) error {
		addr, err := address(c)
		if err != nil {
			return err
		}
		reg, err := argNumber(c, 0, "register", 8)
		if err != nil {
			return err
		}
		var value uint64
		err = burst.Do(c.Context, s.bus, addr, func(h *burst.Handle) error {
			value, err = h.ReadRegister(c.Context, int(reg), accessOptions(c)...)
			return err
		}, s.opts...)
		if err != nil {
			return err
		}
		console.Printf("%#x[%#x] = %s (%d)\n", addr, reg, console.White(fmt.Sprintf("%#x", value)), value)
		return nil
	}),
}

var writeCmd = cli.Command{
	Name:      "write",
	Usage:     "write a register",
	ArgsUsage: "REGISTER VALUE",
	Flags: []cli.Flag{
		addressFlag(true), byteCountFlag, triesFlag,
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		addr, err := address(c)
		if err != nil {
			return err
		}
		reg, err := argNumber(c, 0, "register", 8)
		if err != nil {
			return err
		}
		value, err := argNumber(c, 1, "value", 64)
		if err != nil {
			return err
		}
		if !c.Bool("yes") {
			answer, err := console.YesOrNo(fmt.Sprintf("write %#x to register %#x of device %#x?", value, reg, addr))
			if err != nil {
				return err
			}
			if answer != console.Yes {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		err = burst.Do(c.Context, s.bus, addr, func(h *burst.Handle) error {
			return h.WriteRegister(c.Context, int(reg), value, accessOptions(c)...)
		}, s.opts...)
		if err != nil {
			return err
		}
		console.Infof("%#x[%#x] <- %#x", addr, reg, value)
		return nil
	}),
}

var stateCmd = cli.Command{
	Name:  "state",
	Usage: "access devices without register pointers",
	Subcommands: cli.Commands{
		{
			Name:  "get",
			Usage: "read the device state",
			Flags: []cli.Flag{addressFlag(true), byteCountFlag, triesFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				addr, err := address(c)
				if err != nil {
					return err
				}
				var value uint64
				err = burst.Do(c.Context, s.bus, addr, func(h *burst.Handle) error {
					value, err = h.GetState(c.Context, accessOptions(c)...)
					return err
				}, s.opts...)
				if err != nil {
					return err
				}
				console.Printf("%#x = %s (%d)\n", addr, console.White(fmt.Sprintf("%#x", value)), value)
				return nil
			}),
		},
		{
			Name:      "set",
			Usage:     "write the device state",
			ArgsUsage: "VALUE",
			Flags:     []cli.Flag{addressFlag(true), byteCountFlag, triesFlag},
			Action: withSession(func(c *cli.Context, s *session) error {
				addr, err := address(c)
				if err != nil {
					return err
				}
				value, err := argNumber(c, 0, "value", 64)
				if err != nil {
					return err
				}
				err = burst.Do(c.Context, s.bus, addr, func(h *burst.Handle) error {
					return h.SetState(c.Context, value, accessOptions(c)...)
				}, s.opts...)
				if err != nil {
					return err
				}
				console.Infof("%#x <- %#x", addr, value)
				return nil
			}),
		},
	},
}

var dumpCmd = cli.Command{
	Name:  "dump",
	Usage: "read a range of registers in one burst",
	Flags: []cli.Flag{
		addressFlag(true),
		&cli.StringFlag{Name: "from", Value: "0x00", Usage: "first register"},
		&cli.StringFlag{Name: "to", Value: "0x0F", Usage: "last register"},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		addr, err := address(c)
		if err != nil {
			return err
		}
		from, err := parseNumber(c.String("from"), 8)
		if err != nil {
			return err
		}
		to, err := parseNumber(c.String("to"), 8)
		if err != nil {
			return err
		}
		if to < from {
			return fmt.Errorf("%w: empty register range %#x-%#x", i2cburst.ErrValidation, from, to)
		}
		reads := make([]burst.RegisterRead, 0, to-from+1)
		for r := from; r <= to; r++ {
			reads = append(reads, burst.RegisterRead{Address: addr, Register: int(r), ByteCount: 1})
		}
		values, err := burst.ReadDeviceRegisters(c.Context, s.bus, reads, burst.WithBurstOptions(s.opts...))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(console.Writer(), 8, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "REGISTER\tHEX\tBINARY\n")
		for i, v := range values {
			_, _ = fmt.Fprintf(w, "%#02x\t%#02x\t%08b\n", reads[i].Register, v, v)
		}
		return w.Flush()
	}),
}

var scanCmd = cli.Command{
	Name:  "scan",
	Usage: "probe every regular 7-bit address",
	Action: withSession(func(c *cli.Context, s *session) error {
		opts := append([]burst.Option{}, s.opts...)
		if !c.Bool("verbose") {
			// absent devices are the common case
			opts = append(opts, burst.WithLogger(slog.New(slog.DiscardHandler)))
		}
		found := 0
		for addr := 0x03; addr <= 0x77; addr++ {
			err := burst.Do(c.Context, s.bus, addr, func(h *burst.Handle) error {
				return h.Probe(c.Context)
			}, opts...)
			switch {
			case err == nil:
				found++
				console.PInfof(console.PictoPin, "device at %s", console.White(fmt.Sprintf("%#02x", addr)))
			case errors.Is(err, i2cburst.ErrAcquisitionTimeout):
				return err
			}
		}
		console.Infof("%d device(s) found", found)
		return nil
	}),
}
