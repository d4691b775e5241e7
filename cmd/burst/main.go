package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst/cmd/burst/console"
)

// Set at build time by the dev tool.
var (
	AppVersion string
	GitCommit  string
	BuildTime  string
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	err := newApp().Run(args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		console.Error(err.Error())
		return 1
	}
	return 0
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "burst"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", AppVersion, BuildTime, GitCommit)
	app.Usage = "exclusive, retrying access to I2C devices"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging and frame dumps",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"BURST_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "adapter",
			Aliases: []string{"a"},
			Usage:   "bus adapter (generic, mcp2221, nanopi, emulated)",
		},
		&cli.StringFlag{
			Name:    "device",
			Aliases: []string{"d"},
			Usage:   "I2C device of the generic adapter",
		},
		&cli.StringFlag{
			Name:  "lock-file",
			Usage: "lock file shared with other processes using the bus",
		},
		&cli.IntFlag{
			Name:  "bus",
			Usage: "bus number of the nanopi adapter",
		},
		&cli.IntFlag{
			Name:  "speed",
			Usage: "bus clock in Hz",
		},
		&cli.StringFlag{
			Name:  "timeout",
			Usage: "bus acquisition timeout (duration or \"none\")",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stderr, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&readCmd,
		&writeCmd,
		&stateCmd,
		&dumpCmd,
		&scanCmd,
		&usbCmd,
		&mcp2221Cmd,
		&muxCmd,
		&gpioCmd,
		&tempReadCmd,
		&lightCmd,
		&motionCmd,
		&airCmd,
	}
	return app
}
