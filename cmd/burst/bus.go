package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/i2cburst"
	"github.com/mklimuk/i2cburst/adapter"
	"github.com/mklimuk/i2cburst/burst"
	"github.com/mklimuk/i2cburst/busctx"
	"github.com/mklimuk/i2cburst/cmd/burst/console"
	"github.com/mklimuk/i2cburst/config"
	"github.com/mklimuk/i2cburst/emulation"
	"github.com/mklimuk/i2cburst/gobotbus"
	"github.com/mklimuk/i2cburst/i2c"
)

// session is an open bus together with the burst options every command uses.
type session struct {
	bus      i2cburst.Bus
	opts     []burst.Option
	teardown func()
}

// close releases the transport before the platform it runs on.
func (s *session) close() {
	if c, ok := s.bus.(i2cburst.Closer); ok {
		if err := c.Close(); err != nil {
			console.Errorf("error closing bus: %s", console.Red(err))
		}
	}
	s.teardown()
}

// loadConfig reads the configuration file and applies the global flags on top.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("lock-file") {
		cfg.LockFile = c.String("lock-file")
	}
	if c.IsSet("bus") {
		cfg.Bus = c.Int("bus")
	}
	if c.IsSet("speed") {
		cfg.SpeedHz = c.Int("speed")
	}
	if c.IsSet("timeout") {
		t := c.String("timeout")
		if t == "none" {
			cfg.Timeout = config.Duration{Disabled: true}
		} else {
			d, err := time.ParseDuration(t)
			if err != nil {
				return cfg, fmt.Errorf("%w: invalid timeout: %w", i2cburst.ErrValidation, err)
			}
			cfg.Timeout = config.Duration{Duration: d}
		}
	}
	return cfg, cfg.Validate()
}

// openSession sets up the configured adapter. The returned session must be closed.
func openSession(c *cli.Context) (*session, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	c.Context = busctx.SetVerbose(c.Context, c.Bool("verbose"))
	bus, teardown, err := openBus(c.Context, cfg)
	if err != nil {
		return nil, err
	}
	slog.Debug("bus ready", "adapter", cfg.Adapter)
	return &session{bus: bus, opts: cfg.BurstOptions(), teardown: teardown}, nil
}

func openBus(ctx context.Context, cfg config.Config) (i2cburst.Bus, func(), error) {
	switch cfg.Adapter {
	case config.AdapterMCP2221:
		ad := adapter.NewMCP2221()
		if err := ad.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		if cfg.SpeedHz > 0 {
			if err := ad.SetSpeed(ctx, cfg.SpeedHz); err != nil {
				return nil, nil, err
			}
		}
		return ad, func() {}, nil
	case config.AdapterNanoPi:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return nil, nil, fmt.Errorf("adaptor connect error: %w", err)
		}
		var opts []gobotbus.Option
		if cfg.Bus >= 0 {
			opts = append(opts, gobotbus.WithBusNumber(cfg.Bus))
		}
		return gobotbus.New(npi, opts...), func() {
			if err := npi.I2cBusAdaptor.Finalize(); err != nil {
				console.Errorf("error finalizing adaptor: %s", console.Red(err))
			}
		}, nil
	case config.AdapterEmulated:
		state, err := cfg.EmulationState()
		if err != nil {
			return nil, nil, err
		}
		bus, err := emulation.New(state, cfg.EmulationOptions()...)
		if err != nil {
			return nil, nil, err
		}
		return bus, func() {}, nil
	default:
		var opts []i2c.Option
		if cfg.LockFile != "" {
			opts = append(opts, i2c.WithLockFile(cfg.LockFile))
		}
		bus, err := i2c.Open(cfg.Device, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		if cfg.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.SpeedHz) * physic.Hertz); err != nil {
				_ = bus.Close()
				return nil, nil, err
			}
		}
		return bus, func() {}, nil
	}
}

// withSession opens the bus for the duration of action.
func withSession(action func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer s.close()
		if err := action(c, s); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return nil
	}
}

func parseNumber(s string, bits int) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid %d-bit number", i2cburst.ErrValidation, s, bits)
	}
	return v, nil
}

// argNumber parses the i-th positional argument.
func argNumber(c *cli.Context, i int, name string, bits int) (uint64, error) {
	if c.NArg() <= i {
		return 0, fmt.Errorf("%w: missing %s", i2cburst.ErrValidation, name)
	}
	return parseNumber(c.Args().Get(i), bits)
}

func addressFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "address",
		Aliases:  []string{"addr"},
		Usage:    "7-bit device address",
		Required: required,
	}
}

func address(c *cli.Context) (int, error) {
	v, err := parseNumber(c.String("address"), 8)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}
