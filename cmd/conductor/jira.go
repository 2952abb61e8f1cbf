package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rahul/conductor/internal/source"
)

var jiraNotify bool

var jiraCmd = &cobra.Command{
	Use:   "jira ISSUE-KEY",
	Short: "Fetch a Jira issue, save its feature file and run it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.jiraClient()
		if err != nil {
			return err
		}
		issue, err := client.FetchIssue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		path, err := source.SaveFeature(a.cfg.Jira.FeaturesDir, issue)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s (%s, %s) saved to %s\n", issue.Key, issue.Summary, issue.Status, issue.Assignee, path)

		rep, runErr := a.orch.Run(cmd.Context(), issue.Description, "jira:"+issue.Key)
		return a.finish(cmd, rep, runErr, jiraNotify)
	},
}

func init() {
	rootCmd.AddCommand(jiraCmd)
	jiraCmd.Flags().BoolVar(&jiraNotify, "notify", false, "send the report to the configured chat gateways")
}
