package main

import (
	"github.com/spf13/cobra"

	"github.com/goliatone/go-ethauth"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending migrations, or roll back the last group with --down.`,
		RunE:  runMigrate,
	}
	cmd.Flags().Bool("down", false, "roll back the last migration group")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := ethauth.OpenDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	down, _ := cmd.Flags().GetBool("down")
	if down {
		group, err := ethauth.Rollback(cmd.Context(), db)
		if err != nil {
			return err
		}
		if group.IsZero() {
			cmd.Println("there are no groups to roll back")
			return nil
		}
		cmd.Printf("rolled back %s\n", group)
		return nil
	}

	group, err := ethauth.Migrate(cmd.Context(), db)
	if err != nil {
		return err
	}

	if group.IsZero() {
		cmd.Println("there are no new migrations to run (database is up to date)")
		return nil
	}

	cmd.Printf("migrated to %s\n", group)
	return nil
}
