package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/database"
)

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var version uint
	var force int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the decision log migrations to Postgres",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := newBase(ctx, root)
			if err != nil {
				return err
			}
			defer b.close(ctx)

			if !cmd.Flags().Changed("version") {
				version = uint(max(b.cfg.DatabaseMigrationVersion, 0))
			}
			if !cmd.Flags().Changed("force") {
				force = b.cfg.DatabaseMigrationForce
			}

			db, err := database.Connect(ctx, b.databaseConfig(), b.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			migrations := database.NewMigrationService(b.logger, &database.MigrationConfig{
				MigrationFolderPath: b.cfg.DatabaseMigrationFolderPath,
				Version:             version,
				Force:               force,
				AutoRollback:        b.cfg.DatabaseMigrationAutoRollback,
			})
			return migrations.MigratePostgres(db, b.cfg.DatabaseName)
		},
	}

	cmd.Flags().UintVar(&version, "version", 0, "migrate to this version instead of the latest (env DB_MIGRATION_VERSION)")
	cmd.Flags().IntVar(&force, "force", 0, "force the schema version before migrating (env DB_MIGRATION_FORCE)")
	return cmd
}
