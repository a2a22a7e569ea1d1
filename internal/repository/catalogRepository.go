package repository

import (
	"context"
	"errors"

	"github.com/aman-churiwal/leetquery/internal/models"
	"github.com/aman-churiwal/leetquery/internal/storage"
	"gorm.io/gorm"
)

// ErrStageNotFound is returned when a problem names a stage that does not exist
var ErrStageNotFound = errors.New("stage not found")

// CatalogRepository reads the teaching catalog: stages, problems, tutorial
// challenges and per-level schema notes.
type CatalogRepository struct {
	db *storage.Postgres
}

func NewCatalogRepository(db *storage.Postgres) *CatalogRepository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) ListStages(ctx context.Context) ([]models.Stage, error) {
	var stages []models.Stage
	err := r.db.DB.WithContext(ctx).
		Order("order_no").
		Find(&stages).Error

	return stages, err
}

func (r *CatalogRepository) ListProblems(ctx context.Context) ([]models.Problem, error) {
	var problems []models.Problem
	err := r.db.DB.WithContext(ctx).
		Order("stage_id, id").
		Find(&problems).Error

	return problems, err
}

func (r *CatalogRepository) ListProblemsByStage(ctx context.Context, stageID int) ([]models.Problem, error) {
	var problems []models.Problem
	err := r.db.DB.WithContext(ctx).
		Where("stage_id = ?", stageID).
		Order("id").
		Find(&problems).Error

	return problems, err
}

func (r *CatalogRepository) ListChallenges(ctx context.Context, levelID int) ([]models.Challenge, error) {
	var challenges []models.Challenge
	err := r.db.DB.WithContext(ctx).
		Where("level_id = ?", levelID).
		Order("stage_number").
		Order("CASE difficulty WHEN 'EASY' THEN 1 WHEN 'MEDIUM' THEN 2 WHEN 'HARD' THEN 3 END").
		Find(&challenges).Error

	return challenges, err
}

// FindSchema returns nil when the level has no schema notes
func (r *CatalogRepository) FindSchema(ctx context.Context, levelID int) (*models.TutorialSchema, error) {
	var schema models.TutorialSchema
	err := r.db.DB.WithContext(ctx).
		Where("level_id = ?", levelID).
		Take(&schema).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &schema, nil
}

// CreateProblem inserts problem under the stage with the given order
// number. Every value is bound as a parameter.
func (r *CatalogRepository) CreateProblem(ctx context.Context, stageOrder int, problem *models.Problem) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stage models.Stage
		err := tx.Where("order_no = ?", stageOrder).Take(&stage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStageNotFound
		}
		if err != nil {
			return err
		}

		problem.StageID = stage.ID
		return tx.Create(problem).Error
	})
}

// DeleteProblem reports whether a row was removed
func (r *CatalogRepository) DeleteProblem(ctx context.Context, id int) (bool, error) {
	result := r.db.DB.WithContext(ctx).Delete(&models.Problem{}, id)
	return result.RowsAffected > 0, result.Error
}
