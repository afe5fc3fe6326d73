package cmd

import (
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// TestCmd runs the unit test suite.
func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			testArgs := []string{"test", "./..."}
			if race, _ := cmd.Flags().GetBool("race"); race {
				testArgs = append(testArgs, "-race")
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				testArgs = append(testArgs, "-v")
			}
			return run(cmd, "go", testArgs...)
		},
	}
	cmd.Flags().Bool("race", false, "enable the race detector")
	cmd.Flags().BoolP("verbose", "v", false, "verbose test output")
	return cmd
}

// LintCmd runs the linter.
func LintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Run golangci-lint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "golangci-lint", "run", "./...")
		},
	}
}

func run(cmd *cobra.Command, name string, args ...string) error {
	c := exec.CommandContext(cmd.Context(), name, args...)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
