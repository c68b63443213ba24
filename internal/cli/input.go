package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/pflag"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/repository"
	"github.com/noah-isme/timetable-engine/pkg/database"
)

const (
	sourceFile = "file"
	sourceDB   = "db"
)

// inputFlags select where scheduling data comes from.
type inputFlags struct {
	input  string
	source string
	plans  []string
}

func (f *inputFlags) register(flags *pflag.FlagSet) {
	flags.StringVarP(&f.input, "input", "i", "", "Dataset file (.json, .yaml or .yml)")
	flags.StringVar(&f.source, "source", sourceFile, "Data source (file, db)")
	flags.StringSliceVar(&f.plans, "plans", nil, "Study plan ids to load from the database (default all)")
}

func (f *inputFlags) load(ctx context.Context, opts *rootOptions) (*models.Dataset, error) {
	switch f.source {
	case sourceFile:
		if f.input == "" {
			return nil, fmt.Errorf("--input is required when --source=file")
		}
		return repository.LoadDatasetFile(f.input)
	case sourceDB:
		db, err := openDB(ctx, opts)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		return repository.NewDatasetRepository(db).Load(ctx, f.plans)
	default:
		return nil, fmt.Errorf("unknown source %q", f.source)
	}
}

func openDB(ctx context.Context, opts *rootOptions) (*sqlx.DB, error) {
	db, err := database.Open(opts.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
