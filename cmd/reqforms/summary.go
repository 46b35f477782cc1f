package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidenceworks/reqforms/internal/payload"
	"github.com/evidenceworks/reqforms/internal/session"
)

var (
	summaryFile string
	summaryJSON bool
)

var summaryCmd = &cobra.Command{
	Use:   "summary <form>",
	Short: "Preview the submission summary without sending",
	Long:  "Load answers into a form session and print the plain-text summary and completion report, or the full nested payload with --json.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	summaryCmd.Flags().StringVarP(&summaryFile, "file", "f", "", "Answers YAML file (required)")
	summaryCmd.Flags().BoolVar(&summaryJSON, "json", false, "Print the nested payload as JSON")
	summaryCmd.MarkFlagRequired("file")
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	ft, err := parseFormType(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg)

	answers, err := loadAnswers(summaryFile)
	if err != nil {
		return err
	}

	// Preview sessions run in-memory so they never disturb a saved draft.
	sess, err := session.New(ctx, ft, session.Options{})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := applyAnswers(sess, answers); err != nil {
		return err
	}

	nested := payload.Nested(sess.Snapshot())

	if summaryJSON {
		return printJSON(cmd.OutOrStdout(), nested)
	}

	fmt.Fprint(cmd.OutOrStdout(), nested["summary"])
	completion := sess.Completion()
	fmt.Fprintf(cmd.OutOrStdout(), "\nCompletion: %d%% (%d of %d required fields)\n",
		completion.Percentage, completion.Completed, completion.Total)
	return nil
}
