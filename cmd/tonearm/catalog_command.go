package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mantonx/tonearm/internal/database"
	"github.com/mantonx/tonearm/internal/modules/databasemodule"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage catalog entries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <manifest.yaml>",
		Short: "Upsert users, artists, albums and tracks from a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.load()
			if err != nil {
				return err
			}
			manifest, err := databasemodule.LoadManifest(args[0])
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg.Database)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := db.AutoMigrate(database.AllModels()...); err != nil {
				return fmt.Errorf("migrate catalog: %w", err)
			}

			stats, err := databasemodule.NewTransactionManager(db).ImportCatalog(cmd.Context(), manifest)
			if err != nil {
				return err
			}
			colorSuccess.Fprintf(cmd.OutOrStdout(), "Imported %d users, %d artists, %d albums, %d tracks\n",
				stats.Users, stats.Artists, stats.Albums, stats.Tracks)
			return nil
		},
	})

	return cmd
}
