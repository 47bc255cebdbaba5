package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/icustudies/ecmo-cohort/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type runModel struct {
	ID              uuid.UUID      `gorm:"primaryKey;column:id"`
	Status          string         `gorm:"column:status"`
	RequestedBy     string         `gorm:"column:requested_by"`
	PersonCount     int            `gorm:"column:person_count"`
	VisitCount      int            `gorm:"column:visit_count"`
	ErrorMessage    string         `gorm:"column:error_message"`
	CodeSetSnapshot datatypes.JSON `gorm:"column:code_set_snapshot"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
	StartedAt       *time.Time     `gorm:"column:started_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at"`
}

func (runModel) TableName() string {
	return "cohort_runs"
}

// RunRepository is the audit trail: one row per batch execution, carrying
// the code-set snapshot the run used so any output table can be traced back
// to its exact configuration.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&runModel{})
}

func (r *RunRepository) Create(ctx context.Context, model *runModel) error {
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *RunRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates).Error
}

func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (models.CohortRun, error) {
	var model runModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.CohortRun{}, result.Error
	}
	return runToDomain(&model), result.Error
}

func (r *RunRepository) List(ctx context.Context, limit int) ([]models.CohortRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []runModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	runs := make([]models.CohortRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, runToDomain(&row))
	}
	return runs, nil
}

func runToDomain(model *runModel) models.CohortRun {
	snapshot := map[string]interface{}{}
	if len(model.CodeSetSnapshot) > 0 {
		_ = json.Unmarshal(model.CodeSetSnapshot, &snapshot)
	}
	return models.CohortRun{
		ID:              model.ID,
		Status:          model.Status,
		RequestedBy:     model.RequestedBy,
		PersonCount:     model.PersonCount,
		VisitCount:      model.VisitCount,
		ErrorMessage:    model.ErrorMessage,
		CodeSetSnapshot: snapshot,
		CreatedAt:       model.CreatedAt,
		StartedAt:       model.StartedAt,
		CompletedAt:     model.CompletedAt,
	}
}
