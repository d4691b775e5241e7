package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/i2cburst/cmd/burst/console"
	"github.com/mklimuk/i2cburst/environment"
)

var tempReadCmd = cli.Command{
	Name:    "temperature",
	Aliases: []string{"temp"},
	Usage:   "read a temperature sensor",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "sensor",
			Aliases: []string{"s"},
			Value:   "hih6021",
			Usage:   "sensor model (tc74, hih6021, shtc3)",
		},
	},
	Action: withSession(func(c *cli.Context, s *session) error {
		switch c.String("sensor") {
		case "tc74":
			sensor := environment.NewTC74(s.bus, environment.WithBurstOptions(s.opts...))
			temp, err := sensor.GetTemperature(c.Context)
			if err != nil {
				return fmt.Errorf("error getting temperature read: %w", err)
			}
			console.Printf("%s %s\n", console.PictoThermometer, console.White(temp))
		case "hih6021":
			temp, hum, err := environment.NewHIH6021(s.bus, s.opts...).GetTempAndHum(c.Context)
			if err != nil {
				return fmt.Errorf("error getting temperature read: %w", err)
			}
			console.Printf("%s  %s\n%s %s\n", console.PictoThermometer, console.White(temp), console.PictoHumidity, console.White(hum))
		case "shtc3":
			temp, hum, err := environment.NewSHTC3(s.bus, s.opts...).GetTempAndHum(c.Context)
			if err != nil {
				return fmt.Errorf("error getting temperature read: %w", err)
			}
			console.Printf("%s  %s\n%s %s\n", console.PictoThermometer, console.White(temp), console.PictoHumidity, console.White(hum))
		default:
			return fmt.Errorf("unknown sensor %q", c.String("sensor"))
		}
		return nil
	}),
}
