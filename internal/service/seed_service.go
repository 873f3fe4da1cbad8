package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/pkg/codegen"
)

var (
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
	// ErrSeedInvalid indicates a seed problem is missing its title or test cases.
	ErrSeedInvalid = errors.New("seed problem requires a title and test cases")
)

// SeedService loads problems into the catalogue.
type SeedService interface {
	SeedProblems(ctx context.Context, token string, items []dto.SeedProblem) (int64, error)
	SeedDefaults(ctx context.Context) (int64, error)
}

type seedService struct {
	problemRepo repository.ProblemRepository
	enabled     bool
	token       string
	logger      zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(problemRepo repository.ProblemRepository, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		problemRepo: problemRepo,
		enabled:     enabled,
		token:       token,
		logger:      logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedProblems(ctx context.Context, token string, items []dto.SeedProblem) (int64, error) {
	if !s.enabled {
		return 0, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return 0, ErrSeedUnauthorized
	}
	return s.upsert(ctx, items)
}

// SeedDefaults loads the built-in catalogue. It ignores the enabled flag and token;
// callers gate it on configuration at startup.
func (s *seedService) SeedDefaults(ctx context.Context) (int64, error) {
	return s.upsert(ctx, DefaultProblems())
}

func (s *seedService) upsert(ctx context.Context, items []dto.SeedProblem) (int64, error) {
	problems := make([]models.Problem, 0, len(items))
	for i, item := range items {
		problem, err := toProblemModel(item)
		if err != nil {
			return 0, fmt.Errorf("problem %d: %w", i, err)
		}
		problems = append(problems, problem)
	}

	affected, err := s.problemRepo.UpsertBatch(ctx, problems)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("affected", affected).Msg("problems seeded")
	return affected, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}

func toProblemModel(item dto.SeedProblem) (models.Problem, error) {
	if strings.TrimSpace(item.Title) == "" || len(item.TestCases) == 0 {
		return models.Problem{}, ErrSeedInvalid
	}
	if err := item.Signature.Validate(); err != nil {
		return models.Problem{}, err
	}
	for i, testCase := range item.TestCases {
		if _, err := codegen.GenerateStdin(item.Signature, testCase.Input); err != nil {
			return models.Problem{}, fmt.Errorf("test case %d: %w", i, err)
		}
	}

	slug := strings.TrimSpace(item.Slug)
	if slug == "" {
		slug = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(item.Title)), " ", "-")
	}
	difficulty := strings.ToLower(strings.TrimSpace(item.Difficulty))
	if difficulty == "" {
		difficulty = "easy"
	}

	problem := models.Problem{
		Slug:        slug,
		Title:       strings.TrimSpace(item.Title),
		Description: strings.TrimSpace(item.Description),
		Difficulty:  difficulty,
		IsPreview:   item.IsPreview,
	}
	if err := problem.SetSignature(item.Signature); err != nil {
		return models.Problem{}, err
	}
	if err := problem.SetTestCases(item.TestCases); err != nil {
		return models.Problem{}, err
	}
	return problem, nil
}

// DefaultProblems is the built-in problem catalogue.
func DefaultProblems() []dto.SeedProblem {
	return []dto.SeedProblem{
		{
			Slug:       "two-sum",
			Title:      "Two Sum",
			Difficulty: "easy",
			Description: `Given a list of integers and a target number, return the <strong>indices</strong>
of the two numbers that add up to the target.<br/><br/>
You may assume that each input would have <strong>exactly one solution</strong>,
and you <strong>may not use the same element twice</strong>.`,
			Signature: codegen.Signature{
				FunctionName: "twoSum",
				Inputs: []codegen.Param{
					{Name: "numbers", Type: "number[]"},
					{Name: "target", Type: "number"},
				},
				Output: &codegen.Param{Name: "indices", Type: "number[]"},
			},
			TestCases: []codegen.TestCase{
				{Input: []interface{}{[]interface{}{2, 7, 11, 15}, 9}, ExpectedOutput: []interface{}{0, 1}},
				{Input: []interface{}{[]interface{}{3, 2, 4}, 6}, ExpectedOutput: []interface{}{1, 2}},
				{Input: []interface{}{[]interface{}{3, 3}, 6}, ExpectedOutput: []interface{}{0, 1}, IsHidden: true},
			},
		},
		{
			Slug:        "simple-calculation",
			Title:       "Simple Calculation",
			Difficulty:  "easy",
			Description: "Implement a function that either sums two numbers or multiplies them based on a boolean flag.",
			Signature: codegen.Signature{
				FunctionName: "sumAndMultiply",
				Inputs: []codegen.Param{
					{Name: "a", Type: "number"},
					{Name: "b", Type: "number"},
					{Name: "shouldMultiply", Type: "boolean"},
				},
				Output: &codegen.Param{Name: "calculatedValue", Type: "number"},
			},
			TestCases: []codegen.TestCase{
				{Input: []interface{}{5, 3, true}, ExpectedOutput: 15},
				{Input: []interface{}{5, 3, false}, ExpectedOutput: 8},
				{Input: []interface{}{0, 10, true}, ExpectedOutput: 0, IsHidden: true},
			},
		},
		{
			Slug:        "shout-words",
			Title:       "Shout Words",
			Difficulty:  "easy",
			IsPreview:   true,
			Description: "Return every word in upper case, keeping the original order.",
			Signature: codegen.Signature{
				FunctionName: "shoutWords",
				Inputs:       []codegen.Param{{Name: "words", Type: "string[]"}},
				Output:       &codegen.Param{Name: "shouted", Type: "string[]"},
			},
			TestCases: []codegen.TestCase{
				{Input: []interface{}{[]interface{}{"hello", "world"}}, ExpectedOutput: []interface{}{"HELLO", "WORLD"}},
				{Input: []interface{}{[]interface{}{}}, ExpectedOutput: []interface{}{}},
			},
		},
	}
}
