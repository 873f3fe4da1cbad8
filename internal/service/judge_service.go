package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/pkg/ai"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

// JudgeService runs code and grades submissions outside of exams.
type JudgeService interface {
	Run(ctx context.Context, req dto.RunRequest) (dto.RunResponse, error)
	Submit(ctx context.Context, req dto.SubmitRequest) (dto.GradeResponse, error)
}

// Grader is the slice of the pipeline the judge service uses.
type Grader interface {
	Run(ctx context.Context, req pipeline.RunRequest) (pipeline.RunResult, error)
	Submit(ctx context.Context, req pipeline.BatchRequest) (pipeline.BatchResult, error)
}

// EventPublisher receives grading events.
type EventPublisher interface {
	Publish(ctx context.Context, event dto.GradingEvent)
}

const reviewTimeout = 20 * time.Second

type judgeService struct {
	grader    Grader
	problems  ProblemService
	generator *codegen.Generator
	events    EventPublisher
	reviewer  ai.Reviewer
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewJudgeService constructs the judge service. events and reviewer may be nil.
func NewJudgeService(grader Grader, problems ProblemService, generator *codegen.Generator, events EventPublisher, reviewer ai.Reviewer, validate *validator.Validate, logger zerolog.Logger) JudgeService {
	if generator == nil {
		generator = codegen.NewGenerator()
	}
	if validate == nil {
		validate = NewValidator()
	}
	return &judgeService{
		grader:    grader,
		problems:  problems,
		generator: generator,
		events:    events,
		reviewer:  reviewer,
		validator: validate,
		logger:    logger.With().Str("component", "judge_service").Logger(),
	}
}

func (s *judgeService) Run(ctx context.Context, req dto.RunRequest) (dto.RunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RunResponse{}, err
	}
	if err := s.supported(req.LanguageID); err != nil {
		return dto.RunResponse{}, err
	}

	result, err := s.grader.Run(ctx, pipeline.RunRequest{
		SourceCode: req.SourceCode,
		LanguageID: codegen.Language(req.LanguageID),
		Stdin:      req.Stdin,
	})
	if err != nil {
		return dto.RunResponse{}, err
	}

	return dto.RunResponse{
		Token:    result.Token,
		StatusID: result.StatusID,
		Kind:     string(result.Kind),
		Output:   result.Output,
	}, nil
}

func (s *judgeService) Submit(ctx context.Context, req dto.SubmitRequest) (dto.GradeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GradeResponse{}, err
	}
	if err := s.supported(req.LanguageID); err != nil {
		return dto.GradeResponse{}, err
	}

	definition, err := s.problems.Definition(ctx, req.ProblemID)
	if err != nil {
		return dto.GradeResponse{}, err
	}

	batch, err := s.grader.Submit(ctx, pipeline.BatchRequest{
		SourceCode: req.SourceCode,
		LanguageID: codegen.Language(req.LanguageID),
		Signature:  definition.Signature,
		TestCases:  definition.TestCases,
	})
	if err != nil {
		return dto.GradeResponse{}, err
	}

	response := dto.NewGradeResponse(batch)
	if req.Review && s.reviewer != nil && !response.IsPerfectSolution {
		response.Review = s.review(ctx, definition, req, batch)
	}
	s.logger.Info().
		Uint("problem_id", req.ProblemID).
		Int("language_id", req.LanguageID).
		Int("passed", batch.Passed).
		Int("total", batch.Total).
		Msg("submission graded")

	if s.events != nil {
		s.events.Publish(ctx, dto.GradingEvent{
			Type:       EventBatchGraded,
			ProblemID:  req.ProblemID,
			LanguageID: req.LanguageID,
			Passed:     batch.Passed,
			Total:      batch.Total,
			Perfect:    response.IsPerfectSolution,
		})
	}
	return response, nil
}

// review asks the reviewer about visible failures only. A failed review leaves the grade untouched.
func (s *judgeService) review(ctx context.Context, definition ProblemDefinition, req dto.SubmitRequest, batch pipeline.BatchResult) *dto.ReviewResponse {
	input := ai.ReviewInput{
		ProblemTitle: definition.Title,
		Language:     codegen.Language(req.LanguageID).String(),
		SourceCode:   req.SourceCode,
		Passed:       batch.Passed,
		Total:        batch.Total,
	}
	for i, outcome := range batch.Outcomes {
		if outcome.Passed || outcome.IsHidden {
			continue
		}
		if outcome.HasCompileError {
			input.Failures = []ai.FailedCase{{CompileError: outcome.CompileError}}
			break
		}
		failure := ai.FailedCase{Expected: describeValue(outcome.Expected)}
		if i < len(definition.TestCases) {
			failure.Input = describeValue(definition.TestCases[i].Input)
		}
		if outcome.Actual != nil {
			failure.Actual = *outcome.Actual
		}
		input.Failures = append(input.Failures, failure)
	}

	ctx, cancel := context.WithTimeout(ctx, reviewTimeout)
	defer cancel()

	review, err := s.reviewer.Review(ctx, input)
	if err != nil {
		s.logger.Warn().Err(err).Uint("problem_id", req.ProblemID).Msg("submission review failed")
		return nil
	}
	return &dto.ReviewResponse{Summary: review.Summary, Hints: review.Hints, Model: review.Model}
}

func describeValue(value interface{}) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(raw)
}

func (s *judgeService) supported(languageID int) error {
	if _, err := s.generator.Lookup(codegen.Language(languageID)); err != nil {
		return fmt.Errorf("%w: %d", ErrUnsupportedLanguage, languageID)
	}
	return nil
}
