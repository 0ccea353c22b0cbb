package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vitrinehq/vitrine/internal/model"
	"github.com/vitrinehq/vitrine/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage back office accounts",
		Long:  "Bootstrap the first SUPERADMIN and list back office accounts directly against the store.",
	}

	cmd.AddCommand(newAdminBootstrapCmd())
	cmd.AddCommand(newAdminListCmd())

	return cmd
}

// ---------- admin bootstrap ----------

func newAdminBootstrapCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first SUPERADMIN account",
		Long: `Create the first SUPERADMIN account. This only succeeds while the store holds
no account at all, exactly like POST /api/v1/auth/register.`,
		Example: `  vitrine admin bootstrap --email root@example.com --name Root --password secret
  vitrine admin bootstrap --email root@example.com --name Root  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminBootstrap(cmd.OutOrStdout(), email, password, name)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Admin email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Admin password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Admin display name (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runAdminBootstrap(out io.Writer, email, password, name string) error {
	// Prompt for password if not provided
	if password == "" {
		var err error
		if password, err = promptPassword(); err != nil {
			return err
		}
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := openStore(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	audit := service.NewEmitter(logger, settings.Audit.Buffer, service.StoreSink{Store: store})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		audit.Close(ctx)
	}()

	accounts := service.NewAccountService(store, settings, audit, logger, time.Now)
	admin, err := accounts.Bootstrap(context.Background(), service.BootstrapInput{
		Name:     name,
		Email:    email,
		Password: password,
	}, service.Origin{UserAgent: "vitrine-cli"})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Created SUPERADMIN %q (id %s)\n", admin.Email, admin.ID)
	return nil
}

func promptPassword() (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm password: ")
	confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(pwBytes) != string(confirmBytes) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(pwBytes), nil
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all back office accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			store, err := openStore(settings)
			if err != nil {
				return err
			}
			defer store.Close()

			admins, err := store.ListAdmins(context.Background())
			if err != nil {
				return err
			}
			return printAdmins(cmd.OutOrStdout(), admins, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printAdmins(out io.Writer, admins []model.Admin, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(admins)
	}

	if len(admins) == 0 {
		fmt.Fprintln(out, "No admin accounts. Use 'vitrine admin bootstrap' to create the first one.")
		return nil
	}

	fmt.Fprintf(out, "%-30s %-24s %-11s %-8s\n", "EMAIL", "NAME", "ROLE", "ACTIVE")
	fmt.Fprintf(out, "%-30s %-24s %-11s %-8s\n", "-----", "----", "----", "------")
	for _, a := range admins {
		active := "yes"
		if !a.IsActive {
			active = "no"
		}
		fmt.Fprintf(out, "%-30s %-24s %-11s %-8s\n", a.Email, a.Name, a.Role, active)
	}

	return nil
}
