package docker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/judge0"
)

var (
	// ErrUnknownToken is returned for tokens the judge never issued or has already evicted.
	ErrUnknownToken = errors.New("docker judge: unknown token")
	// ErrUnsupportedLanguage is returned when no toolchain is configured for a language id.
	ErrUnsupportedLanguage = errors.New("docker judge: unsupported language")
)

// JudgeConfig tunes the local judge.
type JudgeConfig struct {
	Toolchains map[codegen.Language]Toolchain
	// Concurrency bounds the number of containers running at once.
	Concurrency int
	// Retention is how long finished results stay available to Get.
	Retention time.Duration
	Logger    zerolog.Logger
}

// Judge is a local stand-in for the Judge0 API. Submissions run asynchronously in sandbox
// containers and are polled with Get and GetBatch, with results shaped and encoded like Judge0's.
type Judge struct {
	executor   Executor
	toolchains map[codegen.Language]Toolchain
	slots      chan struct{}
	retention  time.Duration
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*run
	now  func() time.Time
}

type run struct {
	result     judge0.Result
	finishedAt time.Time
}

type job struct {
	token     string
	language  codegen.Language
	toolchain Toolchain
	source    string
	stdin     string
}

// NewJudge builds a judge on top of executor.
func NewJudge(executor Executor, cfg JudgeConfig) *Judge {
	if cfg.Toolchains == nil {
		cfg.Toolchains = DefaultToolchains()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 10 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Judge{
		executor:   executor,
		toolchains: cfg.Toolchains,
		slots:      make(chan struct{}, cfg.Concurrency),
		retention:  cfg.Retention,
		logger:     cfg.Logger.With().Str("component", "docker_judge").Logger(),
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[string]*run),
		now:        time.Now,
	}
}

// Submit queues one submission and returns its token.
func (j *Judge) Submit(ctx context.Context, submission judge0.Submission) (string, error) {
	tokens, err := j.SubmitBatch(ctx, []judge0.Submission{submission})
	if err != nil {
		return "", err
	}
	return tokens[0], nil
}

// SubmitBatch queues submissions and returns their tokens in request order.
// Nothing is queued when any submission is invalid.
func (j *Judge) SubmitBatch(ctx context.Context, submissions []judge0.Submission) ([]string, error) {
	if len(submissions) == 0 {
		return nil, judge0.ErrEmptyBatch
	}
	if err := j.ctx.Err(); err != nil {
		return nil, errors.New("docker judge is closed")
	}

	jobs := make([]job, 0, len(submissions))
	for i, submission := range submissions {
		language := codegen.Language(submission.LanguageID)
		toolchain, ok := j.toolchains[language]
		if !ok {
			return nil, fmt.Errorf("submission %d: %w: %d", i, ErrUnsupportedLanguage, submission.LanguageID)
		}
		source, err := judge0.Decode(submission.SourceCode)
		if err != nil {
			return nil, fmt.Errorf("submission %d: decode source: %w", i, err)
		}
		stdin, err := judge0.Decode(submission.Stdin)
		if err != nil {
			return nil, fmt.Errorf("submission %d: decode stdin: %w", i, err)
		}
		jobs = append(jobs, job{token: uuid.NewString(), language: language, toolchain: toolchain, source: source, stdin: stdin})
	}

	j.mu.Lock()
	j.sweepLocked()
	tokens := make([]string, len(jobs))
	for i, item := range jobs {
		tokens[i] = item.token
		j.runs[item.token] = &run{result: judge0.Result{
			Token:      item.token,
			StatusID:   judge0.StatusInQueue,
			LanguageID: int(item.language),
		}}
	}
	j.mu.Unlock()

	for _, item := range jobs {
		j.wg.Add(1)
		go j.execute(item)
	}
	return tokens, nil
}

// Get returns the current state of one submission.
func (j *Judge) Get(ctx context.Context, token string) (judge0.Result, error) {
	results, err := j.GetBatch(ctx, []string{token})
	if err != nil {
		return judge0.Result{}, err
	}
	return results[0], nil
}

// GetBatch returns the current state of each token, in token order.
func (j *Judge) GetBatch(ctx context.Context, tokens []string) ([]judge0.Result, error) {
	if len(tokens) == 0 {
		return nil, judge0.ErrEmptyBatch
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	results := make([]judge0.Result, 0, len(tokens))
	for _, token := range tokens {
		entry, ok := j.runs[token]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
		}
		results = append(results, entry.result)
	}
	return results, nil
}

// Close stops accepting work, cancels running containers and waits for them to exit.
func (j *Judge) Close() {
	j.cancel()
	j.wg.Wait()
}

func (j *Judge) execute(item job) {
	defer j.wg.Done()

	select {
	case j.slots <- struct{}{}:
	case <-j.ctx.Done():
		j.finish(item.token, internalError(item, "judge closed before the submission ran"))
		return
	}
	defer func() { <-j.slots }()

	j.mu.Lock()
	if entry, ok := j.runs[item.token]; ok {
		entry.result.StatusID = judge0.StatusProcessing
	}
	j.mu.Unlock()

	result, err := j.executor.Run(j.ctx, ExecutionRequest{
		Image:  item.toolchain.Image,
		Script: item.toolchain.Script(),
		Files: map[string]string{
			item.toolchain.SourceFile: item.source,
			stdinFile:                 item.stdin,
		},
		Collect: []string{compileFile},
	})
	if err != nil && !errors.Is(err, ErrTimedOut) {
		j.logger.Error().Err(err).Str("token", item.token).Int("language_id", int(item.language)).Msg("sandbox execution failed")
	}
	j.finish(item.token, toResult(item, result, err))
}

func (j *Judge) finish(token string, result judge0.Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if entry, ok := j.runs[token]; ok {
		entry.result = result
		entry.finishedAt = j.now()
	}
}

func (j *Judge) sweepLocked() {
	cutoff := j.now().Add(-j.retention)
	for token, entry := range j.runs {
		if !entry.finishedAt.IsZero() && entry.finishedAt.Before(cutoff) {
			delete(j.runs, token)
		}
	}
}

func toResult(item job, exec ExecutionResult, err error) judge0.Result {
	result := judge0.Result{Token: item.token, LanguageID: int(item.language)}

	switch {
	case exec.TimedOut || errors.Is(err, ErrTimedOut):
		result.StatusID = judge0.StatusTimeLimitExceeded
		result.Stdout = encoded(exec.Stdout)
		result.Stderr = encoded(exec.Stderr)
	case err != nil:
		return internalError(item, err.Error())
	case exec.ExitCode == compileFailedExit && exec.Files[compileFile] != "":
		result.StatusID = judge0.StatusCompilationError
		result.CompileOutput = encoded(exec.Files[compileFile])
	case exec.ExitCode != 0:
		result.StatusID = judge0.StatusRuntimeError
		result.Stdout = encoded(exec.Stdout)
		result.Stderr = encoded(exec.Stderr)
	default:
		result.StatusID = judge0.StatusAccepted
		result.Stdout = encoded(exec.Stdout)
		result.Stderr = encoded(exec.Stderr)
	}
	return result
}

func internalError(item job, message string) judge0.Result {
	return judge0.Result{
		Token:      item.token,
		LanguageID: int(item.language),
		StatusID:   judge0.StatusInternalError,
		Stderr:     encoded(message),
	}
}

// encoded mirrors Judge0, which reports empty streams as null.
func encoded(text string) *string {
	if text == "" {
		return nil
	}
	value := judge0.Encode(text)
	return &value
}
