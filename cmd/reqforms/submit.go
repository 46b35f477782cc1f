package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/evidenceworks/reqforms/internal/config"
	"github.com/evidenceworks/reqforms/internal/render"
	"github.com/evidenceworks/reqforms/internal/session"
	"github.com/evidenceworks/reqforms/internal/transport"
)

var (
	submitFile   string
	submitLegacy bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <form>",
	Short: "Validate and submit a filled form",
	Long: "Load answers into a form session, run full validation, render the request " +
		"document, and deliver the submission to the configured backend. On any " +
		"failure the draft is kept, so the filled form is never lost.",
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "Answers YAML file (required)")
	submitCmd.Flags().BoolVar(&submitLegacy, "legacy", false, "Submit to the legacy endpoint instead of the object store")
	submitCmd.MarkFlagRequired("file")
}

func runSubmit(cmd *cobra.Command, args []string) error {
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

	answers, err := loadAnswers(submitFile)
	if err != nil {
		return err
	}

	// A store failure downgrades to an in-memory session; form usage is
	// never blocked by local persistence problems.
	var draftStore session.DraftStore
	db, err := openStore(cfg)
	if err != nil {
		slog.Warn("draft store unavailable, drafts disabled", "error", err)
	} else {
		draftStore = db
		defer db.Close()
	}

	sess, err := session.New(ctx, ft, session.Options{
		Store:    draftStore,
		Debounce: time.Duration(cfg.AutoSave.Debounce),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := applyAnswers(sess, answers); err != nil {
		return err
	}

	completion := sess.Completion()
	fmt.Fprintf(cmd.OutOrStdout(), "Form completion: %d%% (%d of %d required fields)\n",
		completion.Percentage, completion.Completed, completion.Total)

	t, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	err = sess.Submit(ctx, session.SubmitDeps{
		Renderer: render.NewText(),
		Send:     transport.Sender(t),
	})
	if err != nil {
		return reportSubmitError(cmd, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Submission sent. Draft cleared; form reset.")
	return nil
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	var t transport.Transport
	var err error
	if submitLegacy {
		t, err = transport.NewLegacy(cfg.Legacy)
	} else {
		t, err = transport.NewObjectStore(cfg.ObjectStore)
	}
	if err != nil {
		return nil, err
	}
	return transport.WithRetry(t, transport.PolicyFromConfig(cfg.Retry)), nil
}

// reportSubmitError turns pipeline failures into user-facing messages,
// keeping the distinct render-vs-transport wording.
func reportSubmitError(cmd *cobra.Command, err error) error {
	var blocked *session.BlockedError
	if errors.As(err, &blocked) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Submission blocked; fix the following fields:")
		for _, fe := range blocked.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", fe.Field, fe.Message)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "First invalid field: %s\n", blocked.FirstField())
		return err
	}

	var renderErr *render.Error
	if errors.As(err, &renderErr) {
		fmt.Fprintln(cmd.ErrOrStderr(),
			"Document rendering failed; nothing was sent. Your draft has been saved.")
		return err
	}

	var terr *transport.Error
	if errors.As(err, &terr) {
		fmt.Fprintln(cmd.ErrOrStderr(), terr.UserMessage())
		return err
	}

	return err
}
