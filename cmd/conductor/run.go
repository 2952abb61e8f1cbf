package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rahul/conductor/internal/observability"
	"github.com/rahul/conductor/internal/report"
	"github.com/rahul/conductor/internal/source"
)

var (
	runText   string
	runLabel  string
	runNotify bool
)

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Run a task description once",
	Example: `  conductor run login.feature
  conductor run --text "GET https://api.example.com/health expect status 200"
  cat steps.txt | conductor run -`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTask,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runText, "text", "t", "", "task description given inline")
	runCmd.Flags().StringVarP(&runLabel, "label", "l", "", "label the report is filed under")
	runCmd.Flags().BoolVar(&runNotify, "notify", false, "send the report to the configured chat gateways")
}

func readTask(args []string, text string, stdin io.Reader) (source.Task, error) {
	switch {
	case text != "" && len(args) > 0:
		return source.Task{}, errors.New("give either a file or --text, not both")
	case text != "":
		return source.LoadReader(strings.NewReader(text), "inline")
	case len(args) == 0:
		return source.Task{}, errors.New("a task file, - for stdin, or --text is required")
	case args[0] == "-":
		return source.LoadReader(stdin, "stdin")
	default:
		return source.LoadFile(args[0])
	}
}

func runTask(cmd *cobra.Command, args []string) error {
	task, err := readTask(args, runText, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if runLabel != "" {
		task.Label = runLabel
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rep, runErr := a.orch.Run(cmd.Context(), task.Description, task.Label)
	return a.finish(cmd, rep, runErr, runNotify)
}

// finish stores, prints and optionally announces a report, and turns its
// outcome into the command's error.
func (a *app) finish(cmd *cobra.Command, rep *report.Report, runErr error, notify bool) error {
	if rep == nil {
		return runErr
	}
	if err := a.runs.SaveReport(rep); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to store report: %v\n", err)
	}
	if err := printReport(cmd.OutOrStdout(), rep); err != nil {
		return err
	}
	if notify {
		a.notify(cmd.Context(), rep.Markdown())
	}

	if runErr != nil {
		return runErr
	}
	if !rep.Succeeded() {
		return errStepsFailed
	}
	return nil
}

func printReport(w io.Writer, rep *report.Report) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	out := rep.Markdown()
	if w == os.Stdout {
		out = strings.Replace(out, string(rep.Status), observability.Colorize(string(rep.Status)), 1)
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}
