package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidenceworks/reqforms/internal/forms"
	"github.com/evidenceworks/reqforms/internal/validation"
)

var (
	profileName  string
	profileBadge string
	profilePhone string
	profileEmail string
	profileJSON  bool
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the investigator profile",
	Long:  "The investigator profile pre-fills officer fields on every new form until explicitly cleared.",
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set investigator profile fields",
	Args:  cobra.NoArgs,
	RunE:  runProfileSet,
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored investigator profile",
	Args:  cobra.NoArgs,
	RunE:  runProfileShow,
}

var profileClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the stored investigator profile",
	Args:  cobra.NoArgs,
	RunE:  runProfileClear,
}

func init() {
	profileSetCmd.Flags().StringVar(&profileName, "name", "", "Officer name")
	profileSetCmd.Flags().StringVar(&profileBadge, "badge", "", "Badge number")
	profileSetCmd.Flags().StringVar(&profilePhone, "phone", "", "Phone number (10 digits)")
	profileSetCmd.Flags().StringVar(&profileEmail, "email", "", "Organizational email")
	profileCmd.PersistentFlags().BoolVar(&profileJSON, "json", false, "Output in JSON format")

	profileCmd.AddCommand(profileSetCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileClearCmd)
}

func runProfileSet(cmd *cobra.Command, args []string) error {
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

	profile, err := db.LoadProfile(ctx)
	if err != nil {
		return err
	}

	if profileName != "" {
		profile.Name = profileName
	}
	if profileBadge != "" {
		profile.Badge = profileBadge
	}
	if profilePhone != "" {
		if verr := validation.Phone("phone", profilePhone); verr != nil {
			return verr
		}
		profile.Phone = profilePhone
	}
	if profileEmail != "" {
		if verr := validation.Email("email", profileEmail); verr != nil {
			return verr
		}
		profile.Email = profileEmail
	}

	if err := db.SaveProfile(ctx, profile); err != nil {
		return err
	}

	if profileJSON {
		return printJSON(cmd.OutOrStdout(), profile)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Profile saved.")
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
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

	profile, err := db.LoadProfile(ctx)
	if err != nil {
		return err
	}

	if profileJSON {
		return printJSON(cmd.OutOrStdout(), profile)
	}
	if profile.IsZero() {
		fmt.Fprintln(cmd.OutOrStdout(), "No profile stored.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintf(w, "Name:\t%s\n", profile.Name)
	fmt.Fprintf(w, "Badge:\t%s\n", profile.Badge)
	fmt.Fprintf(w, "Phone:\t%s\n", profile.Phone)
	fmt.Fprintf(w, "Email:\t%s\n", profile.Email)
	return w.Flush()
}

func runProfileClear(cmd *cobra.Command, args []string) error {
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

	if err := db.ClearProfile(ctx); err != nil {
		return err
	}

	if profileJSON {
		return printJSON(cmd.OutOrStdout(), forms.Profile{})
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Profile cleared.")
	return nil
}
