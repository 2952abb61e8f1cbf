package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	scheduleText  string
	scheduleLabel string
	scheduleEvery time.Duration
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage recurring runs executed by `conductor serve`",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add [file|-]",
	Short: "Schedule a task; without --every it runs once",
	Example: `  conductor schedule add --every 1h --label health --text "GET https://api.example.com/health"
  conductor schedule add nightly-login.feature --every 24h`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task, err := readTask(args, scheduleText, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if scheduleLabel != "" {
			task.Label = scheduleLabel
		}
		if scheduleEvery < 0 {
			return fmt.Errorf("--every must not be negative")
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.runs.AddSchedule(task.Label, task.Description, int(scheduleEvery/time.Second))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %q as #%d\n", task.Label, id)
		return nil
	},
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		schedules, err := a.runs.ListSchedules()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLABEL\tEVERY\tLAST RUN\tSTATUS")
		for _, s := range schedules {
			every := "once"
			if !s.OneShot() {
				every = (time.Duration(s.IntervalSeconds) * time.Second).String()
			}
			last := "never"
			if s.LastRun != nil {
				last = s.LastRun.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.ID, s.Label, every, last, s.Status)
		}
		return w.Flush()
	},
}

var scheduleRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Delete a scheduled task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid schedule ID %q", args[0])
		}
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.runs.DeleteSchedule(id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed schedule #%d\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleRemoveCmd)

	scheduleAddCmd.Flags().StringVarP(&scheduleText, "text", "t", "", "task description given inline")
	scheduleAddCmd.Flags().StringVarP(&scheduleLabel, "label", "l", "", "label for the schedule and its reports")
	scheduleAddCmd.Flags().DurationVar(&scheduleEvery, "every", 0, "interval between runs, e.g. 30m")
}
