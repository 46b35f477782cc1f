package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var draftJSON bool

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage saved form drafts",
	Long:  "List, inspect, and purge the locally saved drafts. Drafts expire seven days after their last save.",
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List unexpired drafts",
	Args:  cobra.NoArgs,
	RunE:  runDraftList,
}

var draftShowCmd = &cobra.Command{
	Use:   "show <form>",
	Short: "Show a stored draft's contents",
	Args:  cobra.ExactArgs(1),
	RunE:  runDraftShow,
}

var draftPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired drafts",
	Args:  cobra.NoArgs,
	RunE:  runDraftPurge,
}

func init() {
	draftCmd.PersistentFlags().BoolVar(&draftJSON, "json", false, "Output in JSON format")

	draftCmd.AddCommand(draftListCmd)
	draftCmd.AddCommand(draftShowCmd)
	draftCmd.AddCommand(draftPurgeCmd)
}

func runDraftList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg)

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	drafts, err := db.ListDrafts(ctx)
	if err != nil {
		return err
	}

	if draftJSON {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"drafts": drafts,
			"total":  len(drafts),
		})
	}

	if len(drafts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No drafts found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "FORM\tSAVED\tEXPIRES")
	for _, d := range drafts {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			d.FormType,
			d.SavedAt.Local().Format(time.RFC822),
			d.Expires.Local().Format(time.RFC822),
		)
	}
	return w.Flush()
}

func runDraftShow(cmd *cobra.Command, args []string) error {
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

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	draft, err := db.LoadDraft(ctx, ft)
	if err != nil {
		return err
	}
	if draft == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "No draft stored for %s.\n", ft)
		return nil
	}

	return printJSON(cmd.OutOrStdout(), draft)
}

func runDraftPurge(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg)

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	n, err := db.PurgeExpired(ctx)
	if err != nil {
		return err
	}

	if draftJSON {
		return printJSON(cmd.OutOrStdout(), map[string]any{"purged": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired draft(s).\n", n)
	return nil
}
