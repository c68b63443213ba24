package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-engine/internal/dto"
	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/scheduler"
	"github.com/noah-isme/timetable-engine/internal/service"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		in           inputFlags
		format       string
		out          string
		planFilter   string
		seed         int64
		maxAttempts  int
		roundBudget  int
		allowPartial bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build a timetable and write it in the chosen format",
		Long: `generate loads a dataset from a file or the database, runs the engine
and writes the schedule as json, csv, pdf or xlsx. It exits non-zero when
the run fails or nothing could be placed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dataset, err := in.load(ctx, opts)
			if err != nil {
				return err
			}

			var overrides dto.RunOverrides
			if cmd.Flags().Changed("seed") {
				overrides.Seed = &seed
			}
			if cmd.Flags().Changed("max-attempts") {
				overrides.MaxAttempts = &maxAttempts
			}
			if cmd.Flags().Changed("round-budget") {
				overrides.RoundBudget = &roundBudget
			}
			if cmd.Flags().Changed("allow-partial") {
				overrides.AllowPartial = &allowPartial
			}

			generator := service.NewScheduleGeneratorService(nil, nil, nil, nil, opts.logger, service.ScheduleGeneratorConfig{
				Engine: service.EngineConfigFrom(opts.cfg),
			})
			reporter := scheduler.NewReporter(scheduler.SinkFunc(func(event models.ProgressEvent) {
				opts.logger.Debug("progress",
					zap.String("phase", string(event.Phase)),
					zap.Float64("percentage", event.Percentage),
					zap.String("message", event.Message),
				)
			}))
			schedule, err := generator.Generate(ctx, dataset, overrides, reporter)
			if err != nil {
				return err
			}

			exporter := service.NewExportService(nil, nil, nil, service.ExportConfig{
				DayStart:     opts.cfg.Grid.DayStart,
				PeriodLength: opts.cfg.Grid.PeriodLength,
			}, nil, opts.logger)
			payload, _, err := exporter.Render(&service.RunResult{RunID: "local", Schedule: schedule, Dataset: dataset}, format, planFilter)
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				if _, err := cmd.OutOrStdout().Write(payload); err != nil {
					return err
				}
			} else if err := os.WriteFile(out, payload, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}

			opts.logger.Info("schedule generated",
				zap.String("status", string(schedule.Status)),
				zap.Int("placed", schedule.Placed()),
				zap.Int("blocks", len(schedule.Blocks)),
				zap.Int("conflicts", len(schedule.Conflicts)),
				zap.Float64("cost", schedule.Cost.Total),
			)
			switch schedule.Status {
			case models.ScheduleFailed, models.ScheduleCancelled:
				return fmt.Errorf("schedule %s: placed %d of %d blocks", schedule.Status, schedule.Placed(), len(schedule.Blocks))
			}
			return nil
		},
	}

	in.register(cmd.Flags())
	cmd.Flags().StringVarP(&format, "format", "f", service.FormatJSON, "Output format (json, csv, pdf, xlsx)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&planFilter, "plan", "", "Only write the sessions of this study plan")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed override")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Scheduling attempts override")
	cmd.Flags().IntVar(&roundBudget, "round-budget", 0, "Optimizer round budget override")
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", true, "Accept schedules with unplaced blocks")
	return cmd
}
