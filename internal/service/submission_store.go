package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

// ErrSubmissionNotFound indicates the submission id does not exist.
var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionStore keeps exam submissions in the database. It satisfies pipeline.Store.
type SubmissionStore struct {
	repo   repository.ExamSubmissionRepository
	logger zerolog.Logger
}

var _ pipeline.Store = (*SubmissionStore)(nil)

// NewSubmissionStore constructs the database-backed store.
func NewSubmissionStore(repo repository.ExamSubmissionRepository, logger zerolog.Logger) *SubmissionStore {
	return &SubmissionStore{
		repo:   repo,
		logger: logger.With().Str("component", "submission_store").Logger(),
	}
}

// Create inserts a new submission.
func (s *SubmissionStore) Create(ctx context.Context, record pipeline.Record) (uint, error) {
	submission := models.ExamSubmission{
		StudentID:  record.StudentID,
		QuestionID: record.QuestionID,
		LanguageID: int(record.LanguageID),
		Code:       record.Code,
	}
	if record.IsSubmitted {
		submission.Finalize(time.Now().UTC())
	}

	if err := s.repo.Create(ctx, &submission); err != nil {
		return 0, err
	}
	s.logger.Debug().Uint("submission_id", submission.ID).Bool("submitted", submission.IsSubmitted).Msg("submission created")
	return submission.ID, nil
}

// Update overwrites a draft. It returns repository.ErrSubmissionFinalized for a submitted row.
func (s *SubmissionStore) Update(ctx context.Context, id uint, record pipeline.Record) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	current.Code = record.Code
	if record.LanguageID != 0 {
		current.LanguageID = int(record.LanguageID)
	}
	if record.StudentID != 0 {
		current.StudentID = record.StudentID
	}
	if record.QuestionID != 0 {
		current.QuestionID = record.QuestionID
	}
	if record.IsSubmitted {
		current.Finalize(time.Now().UTC())
	}

	if err := s.repo.Update(ctx, &current); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}
	return nil
}

// GetByQuestion returns the latest submission of a student for a question.
func (s *SubmissionStore) GetByQuestion(ctx context.Context, studentID, questionID uint) (pipeline.Record, error) {
	submission, err := s.repo.LatestByQuestion(ctx, studentID, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pipeline.Record{}, pipeline.ErrNoSubmission
		}
		return pipeline.Record{}, err
	}
	return toRecord(submission), nil
}

func toRecord(submission models.ExamSubmission) pipeline.Record {
	return pipeline.Record{
		SubmissionID: submission.ID,
		Code:         submission.Code,
		LanguageID:   codegen.Language(submission.LanguageID),
		StudentID:    submission.StudentID,
		QuestionID:   submission.QuestionID,
		IsSubmitted:  submission.IsSubmitted,
	}
}
