package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/conductor/internal/source"
)

var (
	suiteSchedule bool
	suiteNotify   bool
)

var suiteCmd = &cobra.Command{
	Use:   "suite FILE",
	Short: "Run every task of a YAML suite, or schedule them with --schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		suite, err := source.LoadSuite(args[0])
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if suiteSchedule {
			for _, t := range suite.Tasks {
				id, err := a.runs.AddSchedule(t.Label, t.Description, t.IntervalSeconds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %q as #%d\n", t.Label, id)
			}
			return nil
		}

		var failed, aborted int
		for _, t := range suite.AsTasks() {
			if cmd.Context().Err() != nil {
				return cmd.Context().Err()
			}
			rep, runErr := a.orch.Run(cmd.Context(), t.Description, t.Label)
			err := a.finish(cmd, rep, runErr, suiteNotify)
			switch {
			case errors.Is(err, errStepsFailed):
				failed++
			case err != nil:
				aborted++
				fmt.Fprintf(cmd.ErrOrStderr(), "Task %s: %v\n", t.Label, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Suite %s: %d tasks, %d with failed steps, %d aborted\n",
			suite.Name, len(suite.Tasks), failed, aborted)
		if failed+aborted > 0 {
			return errStepsFailed
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suiteCmd)
	suiteCmd.Flags().BoolVar(&suiteSchedule, "schedule", false, "store the tasks as schedules instead of running them")
	suiteCmd.Flags().BoolVar(&suiteNotify, "notify", false, "send each report to the configured chat gateways")
}
