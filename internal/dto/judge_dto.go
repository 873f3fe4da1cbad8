package dto

import (
	"time"

	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

// Pagination describes pagination metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalItems int `json:"total_items"`
}

// ProblemFilter defines query parameters for listing problems.
type ProblemFilter struct {
	Difficulty     string `query:"difficulty"`
	Search         string `query:"search"`
	IncludePreview bool   `query:"include_preview"`
	Page           int    `query:"page"`
	PageSize       int    `query:"page_size"`
}

// LanguageResponse is one entry of the language picker.
type LanguageResponse struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TestCaseResponse is a visible example shown with a problem.
type TestCaseResponse struct {
	Input          []interface{} `json:"input"`
	ExpectedOutput interface{}   `json:"expected_output"`
}

// ProblemSummary is the list view of a problem.
type ProblemSummary struct {
	ID         uint   `json:"id"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty"`
	IsPreview  bool   `json:"is_preview"`
}

// ProblemListResponse wraps problems and pagination metadata.
type ProblemListResponse struct {
	Items      []ProblemSummary `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// ProblemDetailResponse is a problem with its sanitized description and visible examples.
type ProblemDetailResponse struct {
	ProblemSummary
	Description     string             `json:"description"`
	Signature       codegen.Signature  `json:"signature"`
	Examples        []TestCaseResponse `json:"examples"`
	HiddenTestCount int                `json:"hidden_test_count"`
}

// BoilerplateResponse carries generated starter code.
type BoilerplateResponse struct {
	ProblemID  uint   `json:"problem_id"`
	LanguageID int    `json:"language_id"`
	Language   string `json:"language"`
	Code       string `json:"code"`
	CacheHit   bool   `json:"cache_hit"`
}

// RunRequest is an ad-hoc execution with custom stdin.
type RunRequest struct {
	SourceCode string `json:"source_code" validate:"required"`
	LanguageID int    `json:"language_id" validate:"required,gt=0"`
	Stdin      string `json:"stdin"`
}

// RunResponse is the output of an ad-hoc run.
type RunResponse struct {
	Token    string `json:"token"`
	StatusID int    `json:"status_id"`
	Kind     string `json:"kind"`
	Output   string `json:"output"`
}

// SubmitRequest grades source code against every test case of a problem.
type SubmitRequest struct {
	ProblemID  uint   `json:"problem_id" validate:"required"`
	SourceCode string `json:"source_code" validate:"required"`
	LanguageID int    `json:"language_id" validate:"required,gt=0"`
	// Review asks for tutor feedback when the submission is not a perfect solution.
	Review bool `json:"review"`
}

// ReviewResponse is tutor feedback on a failed submission.
type ReviewResponse struct {
	Summary string   `json:"summary"`
	Hints   []string `json:"hints"`
	Model   string   `json:"model,omitempty"`
}

// OutcomeResponse is one graded test case. Hidden cases omit their values.
type OutcomeResponse struct {
	Index           int         `json:"index"`
	Passed          bool        `json:"passed"`
	IsHidden        bool        `json:"is_hidden"`
	HasCompileError bool        `json:"has_compile_error"`
	CompileError    string      `json:"compile_error,omitempty"`
	Expected        interface{} `json:"expected,omitempty"`
	Actual          *string     `json:"actual,omitempty"`
	StatusID        int         `json:"status_id"`
}

// GradeResponse summarises a graded batch.
type GradeResponse struct {
	Outcomes          []OutcomeResponse `json:"outcomes"`
	Passed            int               `json:"passed"`
	Total             int               `json:"total"`
	IsPerfectSolution bool              `json:"is_perfect_solution"`
	Review            *ReviewResponse   `json:"review,omitempty"`
}

// NewGradeResponse converts a graded batch, masking hidden test values.
func NewGradeResponse(batch pipeline.BatchResult) GradeResponse {
	outcomes := make([]OutcomeResponse, 0, len(batch.Outcomes))
	for i, outcome := range batch.Outcomes {
		item := OutcomeResponse{
			Index:           i,
			Passed:          outcome.Passed,
			IsHidden:        outcome.IsHidden,
			HasCompileError: outcome.HasCompileError,
			CompileError:    outcome.CompileError,
			StatusID:        outcome.StatusID,
		}
		if !outcome.IsHidden {
			item.Expected = outcome.Expected
			item.Actual = outcome.Actual
		}
		outcomes = append(outcomes, item)
	}

	return GradeResponse{
		Outcomes:          outcomes,
		Passed:            batch.Passed,
		Total:             batch.Total,
		IsPerfectSolution: batch.Perfect(),
	}
}

// StartExamRequest opens or resumes an exam session.
type StartExamRequest struct {
	StudentID  uint   `json:"student_id" validate:"required"`
	QuestionID uint   `json:"question_id" validate:"required"`
	LanguageID int    `json:"language_id"`
	Code       string `json:"code"`
}

// UpdateCodeRequest replaces the working code of a session.
type UpdateCodeRequest struct {
	Code       string `json:"code"`
	LanguageID int    `json:"language_id"`
}

// ExamSubmitRequest submits the working code. Timeout marks a clock-forced submission.
type ExamSubmitRequest struct {
	Timeout bool `json:"timeout"`
}

// ConfirmRequest answers a pending confirmation.
type ConfirmRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// ExamSessionResponse describes an exam session.
type ExamSessionResponse struct {
	SessionID        string    `json:"session_id"`
	StudentID        uint      `json:"student_id"`
	QuestionID       uint      `json:"question_id"`
	LanguageID       int       `json:"language_id"`
	Code             string    `json:"code"`
	SubmissionID     uint      `json:"submission_id"`
	State            string    `json:"state"`
	Finalized        bool      `json:"finalized"`
	Resumed          bool      `json:"resumed"`
	AwaitingConfirm  bool      `json:"awaiting_confirmation"`
	Deadline         time.Time `json:"deadline"`
	RemainingSeconds int64     `json:"remaining_seconds"`
}

// ExamResultResponse reports an exam submission step.
type ExamResultResponse struct {
	Status       string         `json:"status"`
	SubmissionID uint           `json:"submission_id"`
	TimedOut     bool           `json:"timed_out"`
	Result       *GradeResponse `json:"result,omitempty"`
}

// NewExamResultResponse converts a pipeline exam result.
func NewExamResultResponse(result pipeline.ExamResult) ExamResultResponse {
	response := ExamResultResponse{
		Status:       string(result.Status),
		SubmissionID: result.SubmissionID,
		TimedOut:     result.TimedOut,
	}
	if len(result.Result.Outcomes) > 0 {
		grade := NewGradeResponse(result.Result)
		response.Result = &grade
	}
	return response
}

// GradingEvent is published when a batch is graded or an exam is finalized.
type GradingEvent struct {
	Type         string    `json:"type"`
	ProblemID    uint      `json:"problem_id"`
	StudentID    uint      `json:"student_id,omitempty"`
	SubmissionID uint      `json:"submission_id,omitempty"`
	LanguageID   int       `json:"language_id"`
	Passed       int       `json:"passed"`
	Total        int       `json:"total"`
	Perfect      bool      `json:"perfect"`
	TimedOut     bool      `json:"timed_out,omitempty"`
	Operation    string    `json:"operation,omitempty"`
	Stage        string    `json:"stage,omitempty"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// SeedProblem is a problem definition accepted by the seeding endpoint.
type SeedProblem struct {
	Slug        string             `json:"slug"`
	Title       string             `json:"title" validate:"required"`
	Description string             `json:"description"`
	Difficulty  string             `json:"difficulty"`
	IsPreview   bool               `json:"is_preview"`
	Signature   codegen.Signature  `json:"signature"`
	TestCases   []codegen.TestCase `json:"test_cases" validate:"required,min=1"`
}
