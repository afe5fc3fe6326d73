package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// BuildCmd builds the thermo cli with the version identifiers injected.
func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the thermo cli",
		RunE: func(cmd *cobra.Command, args []string) error {
			version := cmd.Flag("version").Value.String()
			goos := cmd.Flag("os").Value.String()
			goarch := cmd.Flag("arch").Value.String()

			ldflags := fmt.Sprintf("-X main.version=%s -X main.date=%s", version, time.Now().Format("2006-01-02"))
			if commit := gitCommit(); commit != "" {
				ldflags += " -X main.commit=" + commit
			}

			build := exec.CommandContext(cmd.Context(), "go", "build", "-ldflags", ldflags, "-o", "dist/thermo", "./cmd/thermo")
			build.Env = append(os.Environ(), "GOOS="+goos, "GOARCH="+goarch)
			build.Stdout = os.Stdout
			build.Stderr = os.Stderr
			slog.Debug("building", "os", goos, "arch", goarch, "version", version)
			return build.Run()
		},
	}
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("os", runtime.GOOS, "os to build for")
	cmd.Flags().String("arch", runtime.GOARCH, "arch to build for")
	return cmd
}

func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
