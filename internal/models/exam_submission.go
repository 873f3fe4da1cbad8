package models

import "time"

// ExamSubmission is a student's saved code for one exam question.
// Autosaves keep IsSubmitted false; the final submission flips it and freezes the row.
type ExamSubmission struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	StudentID   uint       `gorm:"not null;index:idx_exam_submission_owner" json:"student_id"`
	QuestionID  uint       `gorm:"not null;index:idx_exam_submission_owner" json:"question_id"`
	LanguageID  int        `gorm:"not null" json:"language_id"`
	Code        string     `gorm:"type:text" json:"code"`
	IsSubmitted bool       `gorm:"default:false" json:"is_submitted"`
	SubmittedAt *time.Time `json:"submitted_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Finalize marks the submission as the student's final answer.
func (s *ExamSubmission) Finalize(at time.Time) {
	s.IsSubmitted = true
	s.SubmittedAt = &at
}
