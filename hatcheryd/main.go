package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/hatchery-io/hatchery/hatcheryd/core"
	"github.com/hatchery-io/hatchery/hatcheryd/server"
	"github.com/hatchery-io/hatchery/internals/conf"
	"github.com/hatchery-io/hatchery/internals/env"
	"github.com/hatchery-io/hatchery/internals/taskstore"
)

func main() {
	root := &cobra.Command{
		Use:   "hatcheryd",
		Short: "Durable task execution daemon",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := taskstore.Migrate(ctx, databaseURL()); err != nil {
				return err
			}

			base := core.New(ctx)
			defer base.Close()

			srv := server.New(base)
			base.Logger.Info("starting server")
			return srv.Start()
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return taskstore.Migrate(cmd.Context(), databaseURL())
		},
	}

	root.AddCommand(serveCmd, migrateCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal("[hatchery] ", err)
	}
}

func databaseURL() string {
	if override := env.Get().DATABASE_URL; override != "" {
		return override
	}
	return conf.GetConfig().Store.DatabaseURL
}
