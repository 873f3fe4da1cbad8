package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// ErrSubmissionFinalized indicates an update to a submission that was already submitted.
var ErrSubmissionFinalized = errors.New("submission already finalized")

// ExamSubmissionRepository exposes persistence helpers for exam submissions.
type ExamSubmissionRepository interface {
	Create(ctx context.Context, submission *models.ExamSubmission) error
	Update(ctx context.Context, submission *models.ExamSubmission) error
	GetByID(ctx context.Context, id uint) (models.ExamSubmission, error)
	LatestByQuestion(ctx context.Context, studentID, questionID uint) (models.ExamSubmission, error)
}

// NewExamSubmissionRepository constructs an exam submission repository.
func NewExamSubmissionRepository(db *gorm.DB) ExamSubmissionRepository {
	return &examSubmissionRepository{db: db}
}

type examSubmissionRepository struct {
	db *gorm.DB
}

func (r *examSubmissionRepository) Create(ctx context.Context, submission *models.ExamSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

// Update overwrites a draft. Rows that are already submitted are left untouched.
func (r *examSubmissionRepository) Update(ctx context.Context, submission *models.ExamSubmission) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.ExamSubmission
		if err := tx.First(&current, submission.ID).Error; err != nil {
			return err
		}
		if current.IsSubmitted {
			return ErrSubmissionFinalized
		}

		submission.CreatedAt = current.CreatedAt
		return tx.Save(submission).Error
	})
}

func (r *examSubmissionRepository) GetByID(ctx context.Context, id uint) (models.ExamSubmission, error) {
	var submission models.ExamSubmission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.ExamSubmission{}, err
	}
	return submission, nil
}

func (r *examSubmissionRepository) LatestByQuestion(ctx context.Context, studentID, questionID uint) (models.ExamSubmission, error) {
	db := r.db.WithContext(ctx).Where("question_id = ?", questionID)
	if studentID != 0 {
		db = db.Where("student_id = ?", studentID)
	}

	var submission models.ExamSubmission
	if err := db.Order("updated_at DESC").Order("id DESC").First(&submission).Error; err != nil {
		return models.ExamSubmission{}, err
	}
	return submission, nil
}
