package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/pkg/codegen"
)

var (
	// ErrProblemNotFound indicates the requested problem does not exist.
	ErrProblemNotFound = errors.New("problem not found")
	// ErrUnsupportedLanguage indicates a language id outside the supported set.
	ErrUnsupportedLanguage = errors.New("language not supported")
	// ErrProblemMisconfigured indicates a stored problem has an unusable signature or test set.
	ErrProblemMisconfigured = errors.New("problem is misconfigured")
)

// ProblemService exposes the problem catalogue and boilerplate generation.
type ProblemService interface {
	Languages() []dto.LanguageResponse
	List(ctx context.Context, filter dto.ProblemFilter) (dto.ProblemListResponse, error)
	Get(ctx context.Context, id uint) (dto.ProblemDetailResponse, error)
	Boilerplate(ctx context.Context, id uint, languageID int) (dto.BoilerplateResponse, error)
	Definition(ctx context.Context, id uint) (ProblemDefinition, error)
}

// ProblemDefinition is what the grader needs from a problem, hidden cases included.
type ProblemDefinition struct {
	ID        uint
	Title     string
	IsPreview bool
	Signature codegen.Signature
	TestCases []codegen.TestCase
}

type problemService struct {
	repo      repository.ProblemRepository
	generator *codegen.Generator
	cache     *redis.Client
	ttl       time.Duration
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewProblemService constructs the problem service. cache may be nil.
func NewProblemService(repo repository.ProblemRepository, generator *codegen.Generator, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProblemService {
	if generator == nil {
		generator = codegen.NewGenerator()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &problemService{
		repo:      repo,
		generator: generator,
		cache:     cache,
		ttl:       ttl,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "problem_service").Logger(),
	}
}

func (s *problemService) Languages() []dto.LanguageResponse {
	languages := s.generator.Languages()
	items := make([]dto.LanguageResponse, 0, len(languages))
	for _, language := range languages {
		items = append(items, dto.LanguageResponse{ID: int(language.ID), Name: language.Name})
	}
	return items
}

func (s *problemService) List(ctx context.Context, filter dto.ProblemFilter) (dto.ProblemListResponse, error) {
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	problems, total, err := s.repo.List(ctx, repository.ProblemQuery{
		Difficulty:     strings.ToLower(strings.TrimSpace(filter.Difficulty)),
		Search:         strings.TrimSpace(filter.Search),
		IncludePreview: filter.IncludePreview,
		Offset:         (page - 1) * pageSize,
		Limit:          pageSize,
	})
	if err != nil {
		return dto.ProblemListResponse{}, err
	}

	items := make([]dto.ProblemSummary, 0, len(problems))
	for _, problem := range problems {
		items = append(items, toProblemSummary(problem))
	}

	return dto.ProblemListResponse{
		Items: items,
		Pagination: dto.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: int(total),
		},
	}, nil
}

func (s *problemService) Get(ctx context.Context, id uint) (dto.ProblemDetailResponse, error) {
	definition, problem, err := s.load(ctx, id)
	if err != nil {
		return dto.ProblemDetailResponse{}, err
	}

	examples := make([]dto.TestCaseResponse, 0, len(definition.TestCases))
	hidden := 0
	for _, testCase := range definition.TestCases {
		if testCase.IsHidden {
			hidden++
			continue
		}
		examples = append(examples, dto.TestCaseResponse{Input: testCase.Input, ExpectedOutput: testCase.ExpectedOutput})
	}

	return dto.ProblemDetailResponse{
		ProblemSummary:  toProblemSummary(problem),
		Description:     s.sanitizer.Sanitize(problem.Description),
		Signature:       definition.Signature,
		Examples:        examples,
		HiddenTestCount: hidden,
	}, nil
}

func (s *problemService) Definition(ctx context.Context, id uint) (ProblemDefinition, error) {
	definition, _, err := s.load(ctx, id)
	return definition, err
}

// Boilerplate generates starter code for a problem. Results are cached per problem revision.
func (s *problemService) Boilerplate(ctx context.Context, id uint, languageID int) (dto.BoilerplateResponse, error) {
	language := codegen.Language(languageID)
	if _, err := s.generator.Lookup(language); err != nil {
		return dto.BoilerplateResponse{}, fmt.Errorf("%w: %d", ErrUnsupportedLanguage, languageID)
	}

	problem, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BoilerplateResponse{}, ErrProblemNotFound
		}
		return dto.BoilerplateResponse{}, err
	}

	response := dto.BoilerplateResponse{ProblemID: problem.ID, LanguageID: languageID, Language: language.String()}
	key := boilerplateCacheKey(problem, language)
	if code, ok := s.fetchBoilerplate(ctx, key); ok {
		observability.BoilerplateCache().WithLabelValues("hit").Inc()
		response.Code = code
		response.CacheHit = true
		return response, nil
	}
	observability.BoilerplateCache().WithLabelValues("miss").Inc()

	// A broken signature still yields the generator's explanatory comment.
	sig, err := problem.SignatureValue()
	if err != nil {
		s.logger.Warn().Err(err).Uint("problem_id", id).Msg("stored signature is not valid json")
	}
	response.Code = s.generator.Generate(language, sig)
	s.storeBoilerplate(ctx, key, response.Code)
	return response, nil
}

func (s *problemService) load(ctx context.Context, id uint) (ProblemDefinition, models.Problem, error) {
	problem, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ProblemDefinition{}, models.Problem{}, ErrProblemNotFound
		}
		return ProblemDefinition{}, models.Problem{}, err
	}

	sig, err := problem.SignatureValue()
	if err != nil {
		return ProblemDefinition{}, models.Problem{}, fmt.Errorf("%w: signature: %v", ErrProblemMisconfigured, err)
	}
	cases, err := problem.TestCaseList()
	if err != nil {
		return ProblemDefinition{}, models.Problem{}, fmt.Errorf("%w: test cases: %v", ErrProblemMisconfigured, err)
	}

	return ProblemDefinition{
		ID:        problem.ID,
		Title:     problem.Title,
		IsPreview: problem.IsPreview,
		Signature: sig,
		TestCases: cases,
	}, problem, nil
}

func (s *problemService) fetchBoilerplate(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	code, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read boilerplate cache")
		}
		return "", false
	}
	return code, true
}

func (s *problemService) storeBoilerplate(ctx context.Context, key, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, code, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store boilerplate cache")
	}
}

func boilerplateCacheKey(problem models.Problem, language codegen.Language) string {
	return fmt.Sprintf("judge:boilerplate:v1:%d:%d:%d", problem.ID, problem.UpdatedAt.UnixNano(), int(language))
}

func toProblemSummary(problem models.Problem) dto.ProblemSummary {
	return dto.ProblemSummary{
		ID:         problem.ID,
		Slug:       problem.Slug,
		Title:      strings.TrimSpace(problem.Title),
		Difficulty: problem.Difficulty,
		IsPreview:  problem.IsPreview,
	}
}
