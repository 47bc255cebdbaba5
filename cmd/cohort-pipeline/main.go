package main

import (
	"context"
	"os"

	"github.com/icustudies/ecmo-cohort/pkg/assemble"
	"github.com/icustudies/ecmo-cohort/pkg/codeset"
	"github.com/icustudies/ecmo-cohort/pkg/common/config"
	"github.com/icustudies/ecmo-cohort/pkg/common/database"
	"github.com/icustudies/ecmo-cohort/pkg/common/kafka"
	"github.com/icustudies/ecmo-cohort/pkg/common/logger"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"github.com/icustudies/ecmo-cohort/pkg/output"
	"github.com/icustudies/ecmo-cohort/pkg/pipeline"
	"github.com/icustudies/ecmo-cohort/pkg/source"
)

func main() {
	logger.Init()
	cfg := config.Load()

	sets, err := codeset.Load(cfg.CodeSetPath)
	if err != nil {
		// Running with a broken code-set file would select an empty cohort
		// and wipe the output table; refuse to start instead.
		logger.Log.WithError(err).Fatal("Failed to load code set file")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}
	defer database.ClosePostgres()

	runs := pipeline.NewRunRepository(db)
	records := output.NewRepository(db)
	if err := runs.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate cohort_runs")
	}
	if err := records.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate cohort_visit_records")
	}

	producer := kafka.NewProducer(cfg.KafkaTopic)
	defer producer.Close()

	cache := pipeline.NewRedisRecordCache(database.GetRedis())
	defer database.CloseRedis()

	runner := pipeline.NewRunner(
		source.NewRepository(db), sets, runs, records, cfg.MaxConcurrentRuns,
		pipeline.WithPublisher(producer),
		pipeline.WithRecordCache(cache, cfg.RecordCacheTTL),
	)

	ctx := context.Background()
	run, err := runner.RunOnce(ctx, models.RunRequest{RequestedBy: "cohort-pipeline"})
	if err != nil {
		logger.Log.WithError(err).Fatal("Cohort run failed to start")
	}
	if run.Status != models.RunStatusCompleted {
		logger.Log.WithField("status", run.Status).Fatal(run.ErrorMessage)
	}

	logger.Log.WithFields(map[string]interface{}{
		"run_id":  run.ID.String(),
		"persons": run.PersonCount,
		"visits":  run.VisitCount,
	}).Info("Cohort table materialized")

	if cfg.ExportPath != "" {
		exportCSV(ctx, records, cfg.ExportPath)
	}
}

func exportCSV(ctx context.Context, records *output.Repository, path string) {
	rows, err := records.List(ctx)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to read cohort table for export")
	}
	file, err := os.Create(path)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to create export file")
	}
	defer file.Close()
	if err := assemble.WriteCSV(file, rows); err != nil {
		logger.Log.WithError(err).Fatal("Failed to write export file")
	}
	logger.Log.WithFields(map[string]interface{}{
		"path": path,
		"rows": len(rows),
	}).Info("Cohort table exported")
}
