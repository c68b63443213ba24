package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/timetable-engine/internal/service"
)

func newValidateCmd(opts *rootOptions) *cobra.Command {
	var in inputFlags

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a dataset for errors and likely conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, err := in.load(cmd.Context(), opts)
			if err != nil {
				return err
			}
			grid := service.EngineConfigFrom(opts.cfg).Grid
			if dataset.Grid != nil {
				grid = *dataset.Grid
			}
			report := service.ValidateDataset(grid, dataset)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("dataset has %d errors", len(report.Errors))
			}
			return nil
		},
	}
	in.register(cmd.Flags())
	return cmd
}
