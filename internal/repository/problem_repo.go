package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-judge/internal/models"
)

// ProblemQuery defines filters and pagination for problems.
type ProblemQuery struct {
	Difficulty     string
	Search         string
	IncludePreview bool
	Offset         int
	Limit          int
}

// ProblemRepository exposes persistence operations for judged problems.
type ProblemRepository interface {
	List(ctx context.Context, query ProblemQuery) ([]models.Problem, int64, error)
	GetByID(ctx context.Context, id uint) (models.Problem, error)
	UpsertBatch(ctx context.Context, items []models.Problem) (int64, error)
}

// NewProblemRepository constructs a problem repository.
func NewProblemRepository(db *gorm.DB) ProblemRepository {
	return &problemRepository{db: db}
}

type problemRepository struct {
	db *gorm.DB
}

func (r *problemRepository) List(ctx context.Context, query ProblemQuery) ([]models.Problem, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Problem{})

	if query.Difficulty != "" {
		db = db.Where("LOWER(difficulty) = ?", strings.ToLower(query.Difficulty))
	}

	if query.Search != "" {
		pattern := fmt.Sprintf("%%%s%%", strings.ToLower(query.Search))
		db = db.Where("LOWER(title) LIKE ? OR LOWER(slug) LIKE ?", pattern, pattern)
	}

	if !query.IncludePreview {
		db = db.Where("is_preview = ?", false)
	}

	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}
	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}

	var problems []models.Problem
	if err := db.Order("id ASC").Find(&problems).Error; err != nil {
		return nil, 0, err
	}

	return problems, total, nil
}

func (r *problemRepository) GetByID(ctx context.Context, id uint) (models.Problem, error) {
	var problem models.Problem
	if err := r.db.WithContext(ctx).First(&problem, id).Error; err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

func (r *problemRepository) UpsertBatch(ctx context.Context, items []models.Problem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "description", "difficulty", "signature", "test_cases", "is_preview", "updated_at"}),
	})

	result := tx.Create(&items)
	return result.RowsAffected, result.Error
}
