package ai

import "context"

// ReviewInput carries what a reviewer may see of a graded submission.
// Only visible test cases belong in Failures.
type ReviewInput struct {
	ProblemTitle string
	Language     string
	SourceCode   string
	Passed       int
	Total        int
	Failures     []FailedCase
}

// FailedCase is one visible test case the submission did not pass.
type FailedCase struct {
	Input        string
	Expected     string
	Actual       string
	CompileError string
}

// Review is feedback for the student. It never states a full solution.
type Review struct {
	Summary string   `json:"summary"`
	Hints   []string `json:"hints"`
	Model   string   `json:"model"`
}

// Reviewer produces feedback on graded code.
type Reviewer interface {
	Review(ctx context.Context, input ReviewInput) (Review, error)
}
