package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/models"
	"github.com/noah-isme/gema-judge/internal/repository"
	"github.com/noah-isme/gema-judge/pkg/judge0"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Problem{}, &models.ExamSubmission{}))
	return db
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

// seededProblems loads the default catalogue and returns the problem ids by slug.
func seededProblems(t *testing.T, db *gorm.DB) map[string]uint {
	t.Helper()
	repo := repository.NewProblemRepository(db)
	_, err := NewSeedService(repo, false, "", testLogger()).SeedDefaults(context.Background())
	require.NoError(t, err)

	var problems []models.Problem
	require.NoError(t, db.Find(&problems).Error)
	ids := make(map[string]uint, len(problems))
	for _, problem := range problems {
		ids[problem.Slug] = problem.ID
	}
	return ids
}

// stubJudge answers every submission with the configured stdout lines, by test case position.
type stubJudge struct {
	mu     sync.Mutex
	stdout []string
}

func (j *stubJudge) setStdout(lines ...string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stdout = lines
}

func (j *stubJudge) Submit(ctx context.Context, submission judge0.Submission) (string, error) {
	return "tok-0", nil
}

func (j *stubJudge) SubmitBatch(ctx context.Context, submissions []judge0.Submission) ([]string, error) {
	tokens := make([]string, len(submissions))
	for i := range submissions {
		tokens[i] = "tok-" + strconv.Itoa(i)
	}
	return tokens, nil
}

func (j *stubJudge) Get(ctx context.Context, token string) (judge0.Result, error) {
	results, err := j.GetBatch(ctx, []string{token})
	if err != nil {
		return judge0.Result{}, err
	}
	return results[0], nil
}

func (j *stubJudge) GetBatch(ctx context.Context, tokens []string) ([]judge0.Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	results := make([]judge0.Result, 0, len(tokens))
	for _, token := range tokens {
		index, _ := strconv.Atoi(strings.TrimPrefix(token, "tok-"))
		result := judge0.Result{Token: token, StatusID: judge0.StatusAccepted}
		if index < len(j.stdout) {
			stdout := judge0.Encode(j.stdout[index])
			result.Stdout = &stdout
		}
		results = append(results, result)
	}
	return results, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dto.GradingEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event dto.GradingEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) all() []dto.GradingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dto.GradingEvent(nil), p.events...)
}

func pollUntil(t *testing.T, condition func() bool) {
	t.Helper()
	require.Eventually(t, condition, 2*time.Second, 5*time.Millisecond)
}
