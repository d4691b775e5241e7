package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
)

const smokeConfig = `adapter: emulated
timeout: 200ms
emulation:
  lock_chance: 50
  state:
    "0x4C": {"0x00": 25, "0x01": 0x40}
    "0x70": {state: 0x01}
`

// smokeRuns are burst invocations expected to succeed against smokeConfig.
var smokeRuns = [][]string{
	{"scan"},
	{"read", "--address", "0x4C", "0x00"},
	{"dump", "--address", "0x4C", "--from", "0", "--to", "1"},
	{"mux", "get"},
}

func SmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the built CLI against a congested emulated bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			bin, err := cmd.Flags().GetString("binary")
			if err != nil {
				return fmt.Errorf("could not get binary flag: %w", err)
			}
			if _, err := os.Stat(bin); err != nil {
				return fmt.Errorf("burst binary not found (run dev build first): %w", err)
			}
			dir, err := os.MkdirTemp("", "burst-smoke")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			config := filepath.Join(dir, "burst.yaml")
			if err := os.WriteFile(config, []byte(smokeConfig), 0o600); err != nil {
				return fmt.Errorf("could not write config: %w", err)
			}
			for _, run := range smokeRuns {
				args := append([]string{"--config", config}, run...)
				slog.Info("running burst", "args", run)
				c := exec.CommandContext(cmd.Context(), bin, args...)
				c.Stdout = os.Stdout
				c.Stderr = os.Stderr
				if err := c.Run(); err != nil {
					return fmt.Errorf("burst %v failed: %w", run, err)
				}
			}
			slog.Info("smoke test passed", "runs", len(smokeRuns))
			return nil
		},
	}
	cmd.Flags().String("binary", binary, "burst binary to run")
	return cmd
}
