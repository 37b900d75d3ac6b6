package main

import (
	"fmt"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	mysqlp "github.com/stagepass/audioscan/internal/infra/db/mysql"
	"github.com/stagepass/audioscan/internal/infra/db/postgres"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the scan tables in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.config()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			switch cfg.Database.Driver {
			case "mysql":
				db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
				if err != nil {
					return err
				}
				defer db.Close()
				if err := mysqlp.Migrate(ctx, db); err != nil {
					return err
				}
			case "postgres":
				db, err := postgres.Connect(ctx, cfg.PostgresDSN())
				if err != nil {
					return err
				}
				defer db.Close()
				if err := postgres.Migrate(ctx, db); err != nil {
					return err
				}
			default:
				return fmt.Errorf("nothing to migrate for driver %q", cfg.Database.Driver)
			}
			log.WithField("driver", cfg.Database.Driver).Info("schema up to date")
			return nil
		},
	}
}
