package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the schema in the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := database.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			opts.logger.Info("schema migrated", zap.String("driver", opts.cfg.Database.Driver))
			return nil
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var (
		input   string
		migrate bool
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a dataset file in the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dataset, err := repository.LoadDatasetFile(input)
			if err != nil {
				return err
			}
			grid := service.EngineConfigFrom(opts.cfg).Grid
			if dataset.Grid != nil {
				grid = *dataset.Grid
			}
			if report := service.ValidateDataset(grid, dataset); !report.Valid && !force {
				return fmt.Errorf("dataset has %d errors, run validate for details or pass --force", len(report.Errors))
			}

			db, err := openDB(ctx, opts)
			if err != nil {
				return err
			}
			defer db.Close()
			if migrate {
				if err := database.Migrate(ctx, db); err != nil {
					return err
				}
			}
			if err := repository.NewDatasetRepository(db).Import(ctx, dataset); err != nil {
				return err
			}
			opts.logger.Info("dataset imported",
				zap.Int("plans", len(dataset.Plans)),
				zap.Int("staff", len(dataset.Staff)),
				zap.Int("facilities", len(dataset.Facilities)),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Dataset file (.json, .yaml or .yml)")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Create the schema before importing")
	cmd.Flags().BoolVar(&force, "force", false, "Import even when validation reports errors")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
