package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/pkg/codegen"
)

func TestProblemServiceDetailHidesHiddenCasesAndSanitizes(t *testing.T) {
	db := newTestDB(t)
	ids := seededProblems(t, db)
	require.NoError(t, db.Model(&models.Problem{}).Where("id = ?", ids["two-sum"]).
		Update("description", "<script>alert('x')</script><p>Find <strong>two</strong> numbers</p>").Error)

	svc := NewProblemService(repository.NewProblemRepository(db), nil, nil, time.Minute, testLogger())

	detail, err := svc.Get(context.Background(), ids["two-sum"])
	require.NoError(t, err)
	require.Equal(t, "Two Sum", detail.Title)
	require.Equal(t, "<p>Find <strong>two</strong> numbers</p>", detail.Description)
	require.Len(t, detail.Examples, 2)
	require.Equal(t, 1, detail.HiddenTestCount)
	require.Equal(t, "twoSum", detail.Signature.FunctionName)

	_, err = svc.Get(context.Background(), 999)
	require.ErrorIs(t, err, ErrProblemNotFound)
}

func TestProblemServiceListSkipsPreview(t *testing.T) {
	db := newTestDB(t)
	seededProblems(t, db)
	svc := NewProblemService(repository.NewProblemRepository(db), nil, nil, time.Minute, testLogger())

	list, err := svc.List(context.Background(), dto.ProblemFilter{})
	require.NoError(t, err)
	require.Len(t, list.Items, 2)
	require.Equal(t, 2, list.Pagination.TotalItems)
	require.Equal(t, 1, list.Pagination.Page)

	withPreview, err := svc.List(context.Background(), dto.ProblemFilter{IncludePreview: true, PageSize: 500})
	require.NoError(t, err)
	require.Len(t, withPreview.Items, 3)
	require.Equal(t, 100, withPreview.Pagination.PageSize)
}

func TestProblemServiceBoilerplateCaching(t *testing.T) {
	db := newTestDB(t)
	ids := seededProblems(t, db)
	_, redisClient := newTestRedis(t)
	svc := NewProblemService(repository.NewProblemRepository(db), nil, redisClient, time.Minute, testLogger())

	first, err := svc.Boilerplate(context.Background(), ids["two-sum"], int(codegen.LanguagePython))
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.Contains(t, first.Code, "def twoSum(")
	require.Equal(t, "Python (3.8.1)", first.Language)

	second, err := svc.Boilerplate(context.Background(), ids["two-sum"], int(codegen.LanguagePython))
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.Code, second.Code)

	java, err := svc.Boilerplate(context.Background(), ids["two-sum"], int(codegen.LanguageJava))
	require.NoError(t, err)
	require.False(t, java.CacheHit)
	require.Contains(t, java.Code, "class Solution")
}

func TestProblemServiceBoilerplateErrors(t *testing.T) {
	db := newTestDB(t)
	ids := seededProblems(t, db)
	svc := NewProblemService(repository.NewProblemRepository(db), nil, nil, time.Minute, testLogger())

	_, err := svc.Boilerplate(context.Background(), ids["two-sum"], 999)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)

	_, err = svc.Boilerplate(context.Background(), 12345, int(codegen.LanguageC))
	require.ErrorIs(t, err, ErrProblemNotFound)

	broken := models.Problem{Slug: "broken", Title: "Broken", Difficulty: "easy"}
	require.NoError(t, db.Create(&broken).Error)
	response, err := svc.Boilerplate(context.Background(), broken.ID, int(codegen.LanguageC))
	require.NoError(t, err)
	require.Contains(t, response.Code, "Error: Invalid problem metadata")

	_, err = svc.Definition(context.Background(), broken.ID)
	require.NoError(t, err)
}

func TestProblemServiceLanguages(t *testing.T) {
	svc := NewProblemService(nil, nil, nil, 0, testLogger())
	languages := svc.Languages()
	require.Len(t, languages, 6)
	require.Equal(t, dto.LanguageResponse{ID: 50, Name: "C (GCC 9.2.0)"}, languages[0])
}
