package cli

import (
	"context"
	"fmt"

	"ledger-backend/internal/app"
	"ledger-backend/internal/config"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	DataDir    string
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of ledgerctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Maintenance commands for the sales and delivery ledger",
		Long:  "Run migrations, move data in and out of the ledger, repair derived totals and take backups without starting the server.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", config.DefaultConfigFile, "path to config file")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "override storage.data_dir")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// openLedger loads configuration and opens storage synchronously, running
// any pending migrations.
func openLedger(ctx context.Context, opts *RootOptions) (*app.App, error) {
	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.DataDir != "" {
		cfg.Storage.DataDir = opts.DataDir
	}

	ledger, err := app.New(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "initialize", err)
	}
	if err := ledger.Open(ctx); err != nil {
		ledger.Close()
		return nil, WrapExitError(ExitCommandError, "open storage", err)
	}
	return ledger, nil
}
