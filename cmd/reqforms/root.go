package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/evidenceworks/reqforms/internal/config"
	"github.com/evidenceworks/reqforms/internal/forms"
	"github.com/evidenceworks/reqforms/internal/store"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var configPathOverride string

var rootCmd = &cobra.Command{
	Use:     "reqforms",
	Short:   "Forensic video request forms",
	Long:    "Fill, validate, draft, and submit forensic video requests (analysis, upload, recovery).",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathOverride, "config", "",
		"Config file path (overrides REQFORMS_CONFIG_PATH)")

	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(summaryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration, honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if configPathOverride != "" {
		return config.LoadFromFile(configPathOverride)
	}
	return config.Load()
}

// initLogger installs the default slog logger per config.
func initLogger(cfg *config.Config) {
	level := parseLogLevel(cfg.Log.Level)
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openStore opens the local draft/profile store.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.Storage.Path)
}

// parseFormType validates a form-type argument.
func parseFormType(arg string) (forms.FormType, error) {
	ft := forms.FormType(arg)
	if !ft.Valid() {
		return "", fmt.Errorf("unknown form type %q (want analysis, upload, or recovery)", arg)
	}
	return ft, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
