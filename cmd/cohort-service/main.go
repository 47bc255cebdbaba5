package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
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

type CohortService struct {
	runner  *pipeline.Runner
	runs    *pipeline.RunRepository
	records *output.Repository
	cache   *pipeline.RedisRecordCache
}

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

	runs := pipeline.NewRunRepository(db)
	records := output.NewRepository(db)
	if err := runs.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate cohort_runs")
	}
	if err := records.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate cohort_visit_records")
	}

	producer := kafka.NewProducer(cfg.KafkaTopic)
	cache := pipeline.NewRedisRecordCache(database.GetRedis())

	service := &CohortService{
		runner: pipeline.NewRunner(
			source.NewRepository(db), sets, runs, records, cfg.MaxConcurrentRuns,
			pipeline.WithPublisher(producer),
			pipeline.WithRecordCache(cache, cfg.RecordCacheTTL),
		),
		runs:    runs,
		records: records,
		cache:   cache,
	}

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/api/v1/cohort/runs", service.handleTriggerRun).Methods("POST")
	router.HandleFunc("/api/v1/cohort/runs", service.handleListRuns).Methods("GET")
	router.HandleFunc("/api/v1/cohort/runs/{id}", service.handleGetRun).Methods("GET")
	router.HandleFunc("/api/v1/cohort/records", service.handleRecords).Methods("GET")
	router.HandleFunc("/api/v1/cohort/records/export", service.handleExport).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Cohort Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Cohort Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	producer.Close()
	database.CloseRedis()
	database.ClosePostgres()

	logger.Log.Info("Cohort Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *CohortService) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req models.RunRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	run, err := s.runner.Enqueue(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(run)
}

func (s *CohortService) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.runs.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

func (s *CohortService) handleGetRun(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}

	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

func (s *CohortService) handleRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if cached, err := s.cache.Get(ctx, pipeline.RecordCacheKey); err == nil && cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	records, err := s.records.List(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

func (s *CohortService) handleExport(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="cohort_visit_records.csv"`)
	if err := assemble.WriteCSV(w, records); err != nil {
		logger.Log.WithError(err).Error("Failed to stream CSV export")
	}
}
