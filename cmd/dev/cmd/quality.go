package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/gophertribe/devtool/test"
	"github.com/karalabe/hid"
	"github.com/magefile/mage/sh"
	"github.com/spf13/cobra"

	"github.com/mklimuk/i2cburst/adapter"
)

// racePackages share a bus between goroutines and run under the race detector.
var racePackages = []string{
	"./burst/...",
	"./emulation/...",
	"./i2c/...",
	"./adapter/...",
	"./cmd/burst/...",
}

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests against the emulated bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			race, err := cmd.Flags().GetBool("race")
			if err != nil {
				return fmt.Errorf("could not get race flag: %w", err)
			}
			if race {
				slog.Info("running bus tests with the race detector", "packages", racePackages)
				if err := sh.RunV("go", append([]string{"test", "-race", "-count=1"}, racePackages...)...); err != nil {
					return fmt.Errorf("race tests failed: %w", err)
				}
				return nil
			}
			if err := test.Test(); err != nil {
				return fmt.Errorf("failed to run tests: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("race", false, "run the bus packages with the race detector")
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run linters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run integration tests against an attached bus adapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return fmt.Errorf("could not get force flag: %w", err)
			}
			found, err := attachedBuses()
			if err != nil {
				return err
			}
			if len(found) == 0 && !force {
				return fmt.Errorf("no MCP2221 adapter or /dev/i2c-* bus found (use --force to run anyway)")
			}
			slog.Info("running integration tests", "buses", found)
			if err := test.Integ(); err != nil {
				return fmt.Errorf("failed to run integration testing: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "run even when no bus adapter is attached")
	return cmd
}

// attachedBuses lists the USB bridges and Linux I2C device nodes present.
func attachedBuses() ([]string, error) {
	var found []string
	for _, dev := range hid.Enumerate(adapter.VendorID, adapter.ProductID) {
		found = append(found, "mcp2221:"+dev.Path)
	}
	nodes, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("could not list i2c devices: %w", err)
	}
	return append(found, nodes...), nil
}
