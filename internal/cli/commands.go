package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ledger-backend/internal/config"
	"ledger-backend/internal/database"
	"ledger-backend/internal/db"

	"github.com/spf13/cobra"
)

// NewMigrateCommand opens storage, which applies pending migrations, and
// reports the resulting schema.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or upgrade the ledger schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ledger.Close()

			handle := ledger.Provider.HandleIfReady()
			result := struct {
				SchemaVersion int      `json:"schema_version"`
				Stores        []string `json:"stores"`
			}{SchemaVersion: handle.SchemaVersion()}
			for _, s := range handle.Stores() {
				result.Stores = append(result.Stores, string(s))
			}

			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Result(result, func(w io.Writer) {
				fmt.Fprintf(w, "schema version %d (%d stores)\n", result.SchemaVersion, len(result.Stores))
			})
		},
	}
}

// NewExportCommand writes one store, or a full snapshot, as JSON.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:          "export [store]",
		Short:        "Export a store as a JSON array, or every store as a snapshot",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var store db.Store
			if len(args) == 1 {
				s, ok := db.ParseStore(args[0])
				if !ok {
					return NewExitError(ExitCommandError, fmt.Sprintf("unknown store %q", args[0]))
				}
				store = s
			}

			ledger, err := openLedger(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ledger.Close()

			w := cmd.OutOrStdout()
			if output != "" {
				file, err := os.Create(filepath.Clean(output))
				if err != nil {
					return WrapExitError(ExitCommandError, "create output", err)
				}
				defer file.Close()
				buf := bufio.NewWriter(file)
				defer buf.Flush()
				w = buf
			}

			if store == "" {
				snap, err := ledger.Transfer.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			_, err = ledger.Transfer.Export(cmd.Context(), store, w)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

// NewImportCommand loads a JSON array previously produced by export.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "import <store> <file>",
		Short:        "Import records into a store; ids are reassigned",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, ok := db.ParseStore(args[0])
			if !ok {
				return NewExitError(ExitCommandError, fmt.Sprintf("unknown store %q", args[0]))
			}
			file, err := os.Open(filepath.Clean(args[1]))
			if err != nil {
				return WrapExitError(ExitCommandError, "open input", err)
			}
			defer file.Close()

			ledger, err := openLedger(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ledger.Close()

			result, err := ledger.Transfer.Import(cmd.Context(), store, bufio.NewReader(file))
			if err != nil {
				return err
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Result(result, func(w io.Writer) {
				fmt.Fprintf(w, "imported %d %s\n", result.Imported, result.Store)
			})
		},
	}
}

// NewReconcileCommand recomputes every order's received total and every
// trip's status.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "reconcile",
		Short:        "Repair received totals from the payment ledger and recompute trip status",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ledger.Close()

			report, err := ledger.Reconciler.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Result(report, func(w io.Writer) {
				fmt.Fprintf(w, "orders: %d checked, %d repaired\n", report.OrdersChecked, report.OrdersRepaired)
				fmt.Fprintf(w, "trips:  %d checked, %d updated\n", report.TripsChecked, report.TripsUpdated)
			})
		},
	}
}

// NewBackupCommand uploads a snapshot to object storage, or lists uploads.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:          "backup",
		Short:        "Upload a snapshot to the configured bucket",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ledger.Close()

			if !ledger.Backups.Enabled() {
				return NewExitError(ExitCommandError, "backups are not configured (backup.enabled, bucket and credentials)")
			}
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

			if list {
				objects, err := ledger.Backups.List(cmd.Context())
				if err != nil {
					return err
				}
				return f.Result(objects, func(w io.Writer) {
					for _, o := range objects {
						fmt.Fprintf(w, "%s\t%s\t%s\n", o.LastModified.Format("2006-01-02 15:04"), o.SizeHuman, o.Key)
					}
				})
			}

			obj, err := ledger.Backups.Run(cmd.Context())
			if err != nil {
				return err
			}
			return f.Result(obj, func(w io.Writer) {
				fmt.Fprintf(w, "uploaded %s (%s)\n", obj.Key, obj.SizeHuman)
			})
		},
	}

	cmd.Flags().BoolVarP(&list, "list", "l", false, "list existing backups instead of uploading")
	return cmd
}

// NewResetCommand drops every table and recreates an empty schema. It is the
// recovery path after a failed migration.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:          "reset",
		Short:        "Delete all ledger data and recreate the schema",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(rootOpts.ConfigFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if rootOpts.DataDir != "" {
				cfg.Storage.DataDir = rootOpts.DataDir
			}

			if !yes {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "WARNING: this deletes every customer, order, trip and payment in %s\n", cfg.StorageDSN())
				fmt.Fprint(out, "Type 'yes' to confirm: ")
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if strings.TrimSpace(answer) != "yes" {
					return NewExitError(ExitCommandError, "reset cancelled")
				}
			}

			if d, _ := db.DialectFor(cfg.Storage.Driver); cfg.Storage.DSN == "" && !d.IsPostgres() {
				if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
					return WrapExitError(ExitCommandError, "create data dir", err)
				}
			}
			if err := database.Reset(cmd.Context(), cfg.Storage.Driver, cfg.StorageDSN()); err != nil {
				return err
			}

			ledger, err := openLedger(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer ledger.Close()

			version := ledger.Provider.HandleIfReady().SchemaVersion()
			f := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return f.Result(map[string]int{"schema_version": version}, func(w io.Writer) {
				fmt.Fprintf(w, "storage reset, schema version %d\n", version)
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
