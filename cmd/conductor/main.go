package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rahul/conductor/pkg/config"
)

const version = "0.1.0"

var (
	cfgFile    string
	jsonOutput bool
	noBanner   bool
)

// errStepsFailed makes the process exit non-zero when a run finished with
// step errors.
var errStepsFailed = errors.New("one or more steps failed")

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Run plain-language test scenarios against APIs and web pages",
	Long: `conductor splits a task description (a Gherkin feature, a numbered list or
plain text) into steps and dispatches each step to the HTTP executor or the
browser executor, then reports what happened.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.json", "config file path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print reports as JSON")
	rootCmd.PersistentFlags().BoolVar(&noBanner, "no-banner", false, "do not print the startup banner")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadApp reads the config and wires the components. Callers must Close it.
func loadApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, os.Stderr)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errStepsFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
