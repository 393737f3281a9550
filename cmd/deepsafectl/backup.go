package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"deepsafe/internal/config"
	"deepsafe/internal/pkg/db"
)

// NewBackupCommand creates the backup command group. Both subcommands need
// an admin session.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or restore a full backup",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Download a backup document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := restore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			doc, err := sess.client.ExportBackup(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(doc, '\n'))
				return err
			}
			if err := os.WriteFile(out, doc, 0o600); err != nil {
				return fmt.Errorf("failed to write backup: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Backup written to %s\n", out)
			return nil
		},
	}
	export.Flags().StringVarP(&out, "output", "o", "", "output file (default stdout)")
	cmd.AddCommand(export)

	cmd.AddCommand(&cobra.Command{
		Use:   "restore <file>",
		Short: "Upload a backup document, replacing the backed-up tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read backup: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("%s is not a JSON document", args[0])
			}

			sess, err := restore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.client.RestoreBackup(cmd.Context(), data); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Backup restored")
			return nil
		},
	})

	return cmd
}

// NewMigrateCommand creates the migrate command. It connects to the database
// directly with the server configuration instead of going through the API.
func NewMigrateCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations using the server configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			pool, err := db.NewPool(cmd.Context(), &cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config", "config", "server configuration directory")
	return cmd
}
