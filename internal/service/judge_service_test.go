package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/pkg/ai"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

type stubGrader struct {
	run      pipeline.RunResult
	batch    pipeline.BatchResult
	err      error
	lastRun  pipeline.RunRequest
	lastSent pipeline.BatchRequest
}

func (g *stubGrader) Run(ctx context.Context, req pipeline.RunRequest) (pipeline.RunResult, error) {
	g.lastRun = req
	return g.run, g.err
}

func (g *stubGrader) Submit(ctx context.Context, req pipeline.BatchRequest) (pipeline.BatchResult, error) {
	g.lastSent = req
	return g.batch, g.err
}

type stubReviewer struct {
	review ai.Review
	err    error
	inputs []ai.ReviewInput
}

func (r *stubReviewer) Review(ctx context.Context, input ai.ReviewInput) (ai.Review, error) {
	r.inputs = append(r.inputs, input)
	return r.review, r.err
}

func newJudgeServiceForTest(t *testing.T, grader Grader, events EventPublisher, reviewer ai.Reviewer) (JudgeService, map[string]uint) {
	t.Helper()
	db := newTestDB(t)
	ids := seededProblems(t, db)
	problems := NewProblemService(repository.NewProblemRepository(db), nil, nil, time.Minute, testLogger())
	return NewJudgeService(grader, problems, nil, events, reviewer, validator.New(), testLogger()), ids
}

func TestJudgeServiceSubmitMasksHiddenOutcomes(t *testing.T) {
	actual := "[0,1]"
	grader := &stubGrader{batch: pipeline.BatchResult{
		Outcomes: []pipeline.Outcome{
			{Passed: true, Expected: []interface{}{0.0, 1.0}, Actual: &actual, StatusID: 3},
			{Passed: true, Expected: []interface{}{1.0, 2.0}, Actual: &actual, StatusID: 3},
			{Passed: false, Expected: []interface{}{0.0, 1.0}, Actual: &actual, IsHidden: true, StatusID: 3},
		},
		Passed: 2,
		Total:  3,
	}}
	events := &recordingPublisher{}
	svc, ids := newJudgeServiceForTest(t, grader, events, nil)

	response, err := svc.Submit(context.Background(), dto.SubmitRequest{
		ProblemID:  ids["two-sum"],
		SourceCode: "def twoSum(numbers, target): return [0, 1]",
		LanguageID: int(codegen.LanguagePython),
	})
	require.NoError(t, err)
	require.Equal(t, 2, response.Passed)
	require.Equal(t, 3, response.Total)
	require.False(t, response.IsPerfectSolution)
	require.NotNil(t, response.Outcomes[0].Actual)
	require.Nil(t, response.Outcomes[2].Actual)
	require.Nil(t, response.Outcomes[2].Expected)
	require.True(t, response.Outcomes[2].IsHidden)

	require.Len(t, grader.lastSent.TestCases, 3)
	require.Equal(t, "twoSum", grader.lastSent.Signature.FunctionName)

	published := events.all()
	require.Len(t, published, 1)
	require.Equal(t, EventBatchGraded, published[0].Type)
	require.Equal(t, 2, published[0].Passed)
}

func TestJudgeServiceRejectsBadRequests(t *testing.T) {
	svc, ids := newJudgeServiceForTest(t, &stubGrader{}, nil, nil)

	_, err := svc.Submit(context.Background(), dto.SubmitRequest{ProblemID: ids["two-sum"], LanguageID: 71})
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))

	_, err = svc.Submit(context.Background(), dto.SubmitRequest{ProblemID: ids["two-sum"], SourceCode: "x", LanguageID: 42})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)

	_, err = svc.Submit(context.Background(), dto.SubmitRequest{ProblemID: 999, SourceCode: "x", LanguageID: 71})
	require.ErrorIs(t, err, ErrProblemNotFound)

	_, err = svc.Run(context.Background(), dto.RunRequest{SourceCode: "x", LanguageID: 1})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestJudgeServiceRunForwardsStdin(t *testing.T) {
	grader := &stubGrader{run: pipeline.RunResult{Token: "abc", StatusID: 3, Kind: pipeline.OutputStdout, Output: "42\n"}}
	svc, _ := newJudgeServiceForTest(t, grader, nil, nil)

	response, err := svc.Run(context.Background(), dto.RunRequest{SourceCode: "print(input())", LanguageID: 71, Stdin: "42"})
	require.NoError(t, err)
	require.Equal(t, dto.RunResponse{Token: "abc", StatusID: 3, Kind: "stdout", Output: "42\n"}, response)
	require.Equal(t, "42", grader.lastRun.Stdin)
	require.Equal(t, codegen.LanguagePython, grader.lastRun.LanguageID)
}

func TestJudgeServiceSurfacesPipelineErrors(t *testing.T) {
	grader := &stubGrader{err: &pipeline.PollError{Op: "wait", Attempts: 4, Err: pipeline.ErrPollTimeout}}
	svc, ids := newJudgeServiceForTest(t, grader, nil, nil)

	_, err := svc.Submit(context.Background(), dto.SubmitRequest{ProblemID: ids["simple-calculation"], SourceCode: "x", LanguageID: 62})
	require.ErrorIs(t, err, pipeline.ErrPollTimeout)
}

func TestJudgeServiceReviewUsesVisibleFailuresOnly(t *testing.T) {
	wrong := "[1,1]"
	grader := &stubGrader{batch: pipeline.BatchResult{
		Outcomes: []pipeline.Outcome{
			{Passed: false, Expected: []interface{}{0.0, 1.0}, Actual: &wrong, StatusID: 4},
			{Passed: true, Expected: []interface{}{1.0, 2.0}, Actual: &wrong, StatusID: 3},
			{Passed: false, Expected: []interface{}{7.0, 8.0}, Actual: &wrong, IsHidden: true, StatusID: 4},
		},
		Passed: 1,
		Total:  3,
	}}
	reviewer := &stubReviewer{review: ai.Review{Summary: "Indices are reused.", Hints: []string{"Skip the current index"}, Model: "gpt-4o-mini"}}
	svc, ids := newJudgeServiceForTest(t, grader, nil, reviewer)

	req := dto.SubmitRequest{
		ProblemID:  ids["two-sum"],
		SourceCode: "def twoSum(numbers, target): return [1, 1]",
		LanguageID: int(codegen.LanguagePython),
	}
	response, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, response.Review)
	require.Empty(t, reviewer.inputs)

	req.Review = true
	response, err = svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, response.Review)
	require.Equal(t, "Indices are reused.", response.Review.Summary)

	require.Len(t, reviewer.inputs, 1)
	input := reviewer.inputs[0]
	require.Equal(t, "Two Sum", input.ProblemTitle)
	require.Equal(t, codegen.LanguagePython.String(), input.Language)
	require.Len(t, input.Failures, 1)
	require.Equal(t, "[0,1]", input.Failures[0].Expected)
	require.Equal(t, "[1,1]", input.Failures[0].Actual)
	require.NotContains(t, input.Failures[0].Expected, "7")
}

func TestJudgeServiceReviewFailureKeepsGrade(t *testing.T) {
	grader := &stubGrader{batch: pipeline.BatchResult{
		Outcomes: []pipeline.Outcome{{HasCompileError: true, CompileError: "SyntaxError", StatusID: 6}},
		Total:    1,
	}}
	reviewer := &stubReviewer{err: errors.New("rate limited")}
	svc, ids := newJudgeServiceForTest(t, grader, nil, reviewer)

	response, err := svc.Submit(context.Background(), dto.SubmitRequest{
		ProblemID:  ids["two-sum"],
		SourceCode: "def twoSum(",
		LanguageID: int(codegen.LanguagePython),
		Review:     true,
	})
	require.NoError(t, err)
	require.Nil(t, response.Review)
	require.Equal(t, 1, response.Total)
	require.Equal(t, []ai.FailedCase{{CompileError: "SyntaxError"}}, reviewer.inputs[0].Failures)
}
