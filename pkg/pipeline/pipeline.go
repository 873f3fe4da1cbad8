package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/judge0"
)

const (
	// DefaultPollInterval is the delay between two result fetches.
	DefaultPollInterval = 1500 * time.Millisecond
	// DefaultPollTimeout bounds how long a batch may stay unfinished.
	DefaultPollTimeout = 60 * time.Second
)

// Judge is the judging API collaborator. *judge0.Client and the local docker judge satisfy it.
type Judge interface {
	Submit(ctx context.Context, submission judge0.Submission) (string, error)
	SubmitBatch(ctx context.Context, submissions []judge0.Submission) ([]string, error)
	Get(ctx context.Context, token string) (judge0.Result, error)
	GetBatch(ctx context.Context, tokens []string) ([]judge0.Result, error)
}

// Record is a persisted submission. Code is plain text; stores encode it as they need.
type Record struct {
	SubmissionID uint             `json:"submissionId"`
	Code         string           `json:"code"`
	LanguageID   codegen.Language `json:"languageId"`
	StudentID    uint             `json:"studentId"`
	QuestionID   uint             `json:"questionId"`
	IsSubmitted  bool             `json:"isSubmitted"`
}

// Store is the persistence collaborator for submission records.
// GetByQuestion returns ErrNoSubmission when the student has not saved anything for the question.
type Store interface {
	Create(ctx context.Context, record Record) (uint, error)
	Update(ctx context.Context, id uint, record Record) error
	GetByQuestion(ctx context.Context, studentID, questionID uint) (Record, error)
}

// Config tunes polling and reporting.
type Config struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
	Observer     Observer
	Logger       zerolog.Logger
}

// Pipeline submits code to the judge, waits for the results and grades them.
// It holds no per-batch state, so one Pipeline serves any number of callers.
type Pipeline struct {
	judge  Judge
	store  Store
	cfg    Config
	logger zerolog.Logger
	tracer trace.Tracer
}

// New constructs a Pipeline. store may be nil when exam submissions are not used.
func New(judge Judge, store Store, cfg Config) *Pipeline {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}

	return &Pipeline{
		judge:  judge,
		store:  store,
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "submission_pipeline").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-judge/pkg/pipeline"),
	}
}

// OutputKind names the stream surfaced by an ad-hoc run.
type OutputKind string

// Output kinds of a run.
const (
	OutputCompileError OutputKind = "compile_error"
	OutputStdout       OutputKind = "stdout"
	OutputStderr       OutputKind = "stderr"
	OutputEmpty        OutputKind = "empty"
)

// RunRequest is an ad-hoc execution with caller supplied stdin.
type RunRequest struct {
	SourceCode string
	LanguageID codegen.Language
	Stdin      string
}

// RunResult is the decoded output of an ad-hoc run.
type RunResult struct {
	Token    string     `json:"token"`
	StatusID int        `json:"statusId"`
	Kind     OutputKind `json:"kind"`
	Output   string     `json:"output"`
}

// BatchRequest grades source code against every test case of a problem.
type BatchRequest struct {
	SourceCode string
	LanguageID codegen.Language
	Signature  codegen.Signature
	TestCases  []codegen.TestCase
}

// Run executes one request and returns its output without grading it.
func (p *Pipeline) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.Int("language_id", int(req.LanguageID))))
	defer span.End()

	inv := p.begin(ctx, "run")
	defer inv.end()

	inv.to(StateSubmitting)
	token, err := p.judge.Submit(ctx, judge0.NewSubmission(req.SourceCode, int(req.LanguageID), req.Stdin))
	if err != nil {
		span.RecordError(err)
		return RunResult{}, inv.fail(&SubmissionError{Op: "submit", Err: err})
	}

	inv.to(StatePolling)
	results, err := p.poll(ctx, []string{token})
	if err != nil {
		span.RecordError(err)
		return RunResult{}, inv.fail(err)
	}

	kind, output := RunOutput(results[0])
	return RunResult{Token: token, StatusID: results[0].State(), Kind: kind, Output: output}, nil
}

// Submit grades a full batch. The batch is graded only once every execution has finished.
func (p *Pipeline) Submit(ctx context.Context, req BatchRequest) (BatchResult, error) {
	inv := p.begin(ctx, "submit")
	defer inv.end()
	return p.gradeBatch(ctx, inv, req)
}

func (p *Pipeline) begin(ctx context.Context, operation string, extra ...Observer) *invocation {
	return p.beginAt(ctx, operation, StateIdle, extra...)
}

func (p *Pipeline) beginAt(ctx context.Context, operation string, start State, extra ...Observer) *invocation {
	observers := append([]Observer{p.cfg.Observer}, extra...)
	return &invocation{ctx: ctx, operation: operation, state: start, observers: observers}
}

func (p *Pipeline) gradeBatch(ctx context.Context, inv *invocation, req BatchRequest) (BatchResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.grade_batch", trace.WithAttributes(
		attribute.Int("language_id", int(req.LanguageID)),
		attribute.Int("test_cases", len(req.TestCases)),
	))
	defer span.End()

	if len(req.TestCases) == 0 {
		return BatchResult{}, inv.fail(&SubmissionError{Op: "build", Err: ErrNoTestCases})
	}

	requests, err := codegen.BuildExecutionRequests(req.SourceCode, req.LanguageID, req.TestCases, req.Signature)
	if err != nil {
		return BatchResult{}, inv.fail(&SubmissionError{Op: "build", Err: err})
	}

	inv.to(StateSubmitting)
	tokens, err := p.submitAll(ctx, requests)
	if err != nil {
		span.RecordError(err)
		return BatchResult{}, inv.fail(err)
	}

	inv.to(StatePolling)
	results, err := p.poll(ctx, tokens)
	if err != nil {
		span.RecordError(err)
		return BatchResult{}, inv.fail(err)
	}

	inv.to(StateGrading)
	batch := Grade(results, req.TestCases)
	span.SetAttributes(attribute.Int("passed", batch.Passed))
	p.logger.Debug().Int("passed", batch.Passed).Int("total", batch.Total).Msg("batch graded")
	return batch, nil
}

func (p *Pipeline) submitAll(ctx context.Context, requests []judge0.Submission) ([]string, error) {
	if len(requests) == 1 {
		token, err := p.judge.Submit(ctx, requests[0])
		if err != nil {
			return nil, &SubmissionError{Op: "submit", Err: err}
		}
		return []string{token}, nil
	}

	tokens, err := p.judge.SubmitBatch(ctx, requests)
	if err != nil {
		return nil, &SubmissionError{Op: "submit_batch", Err: err}
	}
	if len(tokens) != len(requests) {
		return nil, &SubmissionError{Op: "submit_batch", Err: fmt.Errorf("got %d tokens for %d requests", len(tokens), len(requests))}
	}
	return tokens, nil
}

// poll fetches results until every one is terminal. It waits PollInterval between fetches
// and gives up after PollTimeout or when ctx is done.
func (p *Pipeline) poll(ctx context.Context, tokens []string) ([]judge0.Result, error) {
	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.PollTimeout)
	defer cancel()

	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		results, err := p.fetch(pollCtx, tokens)
		if err != nil {
			return nil, &PollError{Op: "fetch", Attempts: attempt, Err: p.pollCause(ctx, pollCtx, err)}
		}
		if allDone(results) {
			pollAttempts.Observe(float64(attempt))
			return results, nil
		}

		p.logger.Debug().Int("attempt", attempt).Int("tokens", len(tokens)).Msg("results pending, polling again")
		if attempt > 1 {
			timer.Reset(p.cfg.PollInterval)
		}
		select {
		case <-pollCtx.Done():
			return nil, &PollError{Op: "wait", Attempts: attempt, Err: p.pollCause(ctx, pollCtx, pollCtx.Err())}
		case <-timer.C:
		}
	}
}

// pollCause reports ErrPollTimeout when our own deadline fired rather than the caller's context.
func (p *Pipeline) pollCause(parent, pollCtx context.Context, err error) error {
	if parent.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return ErrPollTimeout
	}
	return err
}

func (p *Pipeline) fetch(ctx context.Context, tokens []string) ([]judge0.Result, error) {
	if len(tokens) == 1 {
		result, err := p.judge.Get(ctx, tokens[0])
		if err != nil {
			return nil, err
		}
		if result.Token == "" {
			result.Token = tokens[0]
		}
		return []judge0.Result{result}, nil
	}

	results, err := p.judge.GetBatch(ctx, tokens)
	if err != nil {
		return nil, err
	}
	return orderByToken(tokens, results)
}

// orderByToken lines results up with tokens. Positional order is used when the judge omits tokens.
func orderByToken(tokens []string, results []judge0.Result) ([]judge0.Result, error) {
	if len(results) != len(tokens) {
		return nil, fmt.Errorf("judge returned %d results for %d tokens", len(results), len(tokens))
	}

	byToken := make(map[string]judge0.Result, len(results))
	for _, result := range results {
		if result.Token == "" {
			return results, nil
		}
		byToken[result.Token] = result
	}

	ordered := make([]judge0.Result, len(tokens))
	for i, token := range tokens {
		result, ok := byToken[token]
		if !ok {
			return nil, fmt.Errorf("judge omitted token %s", token)
		}
		ordered[i] = result
	}
	return ordered, nil
}

func allDone(results []judge0.Result) bool {
	for _, result := range results {
		if !result.Done() {
			return false
		}
	}
	return true
}
