package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func TestCmd() *cobra.Command {
	return runner("test", "Run unit tests", "tests", func() error { return test.Test() })
}

func LintCmd() *cobra.Command {
	return runner("lint", "Run linters", "linting", func() error { return test.Lint() })
}

// emulated are the packages whose tests run the agent against the board
// emulator over an in-memory line.
var emulated = []string{"./sim/...", "./agent/...", "./mailbox/...", "./link/..."}

// IntegrationTestCmd runs the end to end emulator tests with the race
// detector, uncached. A pattern narrows them down to matching test names.
func IntegrationTestCmd() *cobra.Command {
	cmd := runner("integration-test [pattern]", "Run end to end tests against the board emulator", "integration testing", nil)
	cmd.Args = cobra.MaximumNArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		goArgs := []string{"test", "-race", "-count=1"}
		if len(args) > 0 {
			goArgs = append(goArgs, "-run", args[0])
		}
		goArgs = append(goArgs, emulated...)
		slog.Info("running emulator tests", "args", goArgs)
		c := exec.CommandContext(cmd.Context(), "go", goArgs...)
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		err := c.Run()
		if err != nil {
			return fmt.Errorf("failed to run integration testing: %w", err)
		}
		return nil
	}
	return cmd
}

func runner(use, short, what string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run()
			if err != nil {
				return fmt.Errorf("failed to run %s: %w", what, err)
			}
			return nil
		},
	}
}
