package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/judge0"
)

type fakeJudge struct {
	mu sync.Mutex

	submitErr error
	fetchErr  error
	// pendingRounds is the number of fetches that still report the first token as processing.
	pendingRounds int
	stdout        []string
	stderr        []string
	compile       []string
	reverse       bool
	omitTokens    bool

	submits      int
	batchSubmits int
	gets         int
	batchGets    int
	sent         []judge0.Submission
}

func (f *fakeJudge) Submit(ctx context.Context, submission judge0.Submission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.sent = []judge0.Submission{submission}
	return "tok-0", nil
}

func (f *fakeJudge) SubmitBatch(ctx context.Context, submissions []judge0.Submission) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batchSubmits++
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.sent = submissions
	tokens := make([]string, len(submissions))
	for i := range submissions {
		tokens[i] = fmt.Sprintf("tok-%d", i)
	}
	return tokens, nil
}

func (f *fakeJudge) Get(ctx context.Context, token string) (judge0.Result, error) {
	f.mu.Lock()
	f.gets++
	f.mu.Unlock()
	results, err := f.fetch([]string{token})
	if err != nil {
		return judge0.Result{}, err
	}
	return results[0], nil
}

func (f *fakeJudge) GetBatch(ctx context.Context, tokens []string) ([]judge0.Result, error) {
	f.mu.Lock()
	f.batchGets++
	f.mu.Unlock()
	return f.fetch(tokens)
}

func (f *fakeJudge) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets + f.batchGets
}

func (f *fakeJudge) fetch(tokens []string) ([]judge0.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	round := f.gets + f.batchGets
	results := make([]judge0.Result, 0, len(tokens))
	for _, token := range tokens {
		index, _ := strconv.Atoi(strings.TrimPrefix(token, "tok-"))
		result := judge0.Result{Token: token, StatusID: judge0.StatusAccepted}
		if index == 0 && round <= f.pendingRounds {
			result.StatusID = judge0.StatusProcessing
		}
		if f.omitTokens {
			result.Token = ""
		}
		if index < len(f.stdout) && f.stdout[index] != "" {
			result.Stdout = encoded(f.stdout[index])
		}
		if index < len(f.stderr) && f.stderr[index] != "" {
			result.Stderr = encoded(f.stderr[index])
		}
		if index < len(f.compile) && f.compile[index] != "" {
			result.CompileOutput = encoded(f.compile[index])
			result.StatusID = judge0.StatusCompilationError
		}
		results = append(results, result)
	}

	if f.reverse {
		for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
			results[i], results[j] = results[j], results[i]
		}
	}
	return results, nil
}

func encoded(text string) *string {
	value := judge0.Encode(text)
	return &value
}

type memoryStore struct {
	mu      sync.Mutex
	nextID  uint
	records map[uint]Record
	creates int
	updates int
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{nextID: 1, records: make(map[uint]Record)}
}

func (m *memoryStore) Create(ctx context.Context, record Record) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.err != nil {
		return 0, m.err
	}
	id := m.nextID
	m.nextID++
	record.SubmissionID = id
	m.records[id] = record
	return id, nil
}

func (m *memoryStore) Update(ctx context.Context, id uint, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.err != nil {
		return m.err
	}
	if _, ok := m.records[id]; !ok {
		return errors.New("record not found")
	}
	record.SubmissionID = id
	m.records[id] = record
	return nil
}

func (m *memoryStore) GetByQuestion(ctx context.Context, studentID, questionID uint) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.StudentID == studentID && record.QuestionID == questionID {
			return record, nil
		}
	}
	return Record{}, ErrNoSubmission
}

func (m *memoryStore) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates, m.updates
}

func (m *memoryStore) get(id uint) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *memoryStore) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

type recorder struct {
	mu          sync.Mutex
	transitions []Transition
}

func (r *recorder) Transition(ctx context.Context, t Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recorder) states() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]State, 0, len(r.transitions))
	for _, t := range r.transitions {
		states = append(states, t.To)
	}
	return states
}

func twoSum() codegen.Signature {
	return codegen.Signature{
		FunctionName: "twoSum",
		Inputs:       []codegen.Param{{Name: "nums", Type: "number[]"}, {Name: "target", Type: "number"}},
		Output:       &codegen.Param{Name: "indices", Type: "number[]"},
	}
}

func twoSumCases() []codegen.TestCase {
	return []codegen.TestCase{
		{Input: []interface{}{[]int{2, 7, 11, 15}, 9}, ExpectedOutput: []interface{}{float64(0), float64(1)}},
		{Input: []interface{}{[]int{3, 2, 4}, 6}, ExpectedOutput: []interface{}{float64(1), float64(2)}, IsHidden: true},
	}
}

func batchRequest() BatchRequest {
	return BatchRequest{
		SourceCode: "class Solution {}",
		LanguageID: codegen.LanguageJava,
		Signature:  twoSum(),
		TestCases:  twoSumCases(),
	}
}

func newTestPipeline(judge Judge, store Store, observer Observer) *Pipeline {
	return New(judge, store, Config{
		PollInterval: time.Millisecond,
		PollTimeout:  time.Second,
		Observer:     observer,
		Logger:       zerolog.Nop(),
	})
}

func TestGradeIgnoresWhitespace(t *testing.T) {
	stdout := judge0.Encode("[0, 1]")
	results := []judge0.Result{{Token: "a", StatusID: 3, Stdout: &stdout}}
	cases := []codegen.TestCase{{ExpectedOutput: []int{0, 1}}}

	batch := Grade(results, cases)
	require.Len(t, batch.Outcomes, 1)
	require.True(t, batch.Outcomes[0].Passed)
	require.Equal(t, "[0, 1]", *batch.Outcomes[0].Actual)
	require.Equal(t, []int{0, 1}, batch.Outcomes[0].Expected)
	require.True(t, batch.Perfect())
}

func TestGradeCompileError(t *testing.T) {
	compile := judge0.Encode("error: expected ';'")
	results := []judge0.Result{{Token: "a", StatusID: 6, CompileOutput: &compile}}

	batch := Grade(results, []codegen.TestCase{{ExpectedOutput: 3}})
	outcome := batch.Outcomes[0]
	require.True(t, outcome.HasCompileError)
	require.False(t, outcome.Passed)
	require.Nil(t, outcome.Expected)
	require.Nil(t, outcome.Actual)
	require.Equal(t, "error: expected ';'", outcome.CompileError)
	require.False(t, batch.Perfect())
}

func TestGradeRuntimeError(t *testing.T) {
	stderr := judge0.Encode("Traceback: ZeroDivisionError")
	results := []judge0.Result{{Token: "a", StatusID: 11, Stderr: &stderr}}

	outcome := Grade(results, []codegen.TestCase{{ExpectedOutput: 1, IsHidden: true}}).Outcomes[0]
	require.False(t, outcome.Passed)
	require.False(t, outcome.HasCompileError)
	require.Equal(t, "Traceback: ZeroDivisionError", *outcome.Actual)
	require.True(t, outcome.IsHidden)
}

func TestGradeEmptyStdoutFallsThroughToStderr(t *testing.T) {
	empty := ""
	stderr := judge0.Encode("panic: index out of range")
	result := judge0.Result{Token: "a", StatusID: 11, Stdout: &empty, Stderr: &stderr}

	outcome := Grade([]judge0.Result{result}, []codegen.TestCase{{ExpectedOutput: 2}}).Outcomes[0]
	require.False(t, outcome.Passed)
	require.Equal(t, "panic: index out of range", *outcome.Actual)

	kind, output := RunOutput(result)
	require.Equal(t, OutputStderr, kind)
	require.Equal(t, *outcome.Actual, output)
}

func TestGradeComparesStringsAsJSON(t *testing.T) {
	stdout := judge0.Encode("\"a<b\"\r\n")
	results := []judge0.Result{{StatusID: 3, Stdout: &stdout}}

	outcome := Grade(results, []codegen.TestCase{{ExpectedOutput: "a<b"}}).Outcomes[0]
	require.True(t, outcome.Passed)
	require.Equal(t, `"a<b"`, *outcome.Actual)
}

func TestGradeFallsBackToRawText(t *testing.T) {
	raw := "not base64!"
	results := []judge0.Result{{StatusID: 3, Stdout: &raw}}

	outcome := Grade(results, []codegen.TestCase{{ExpectedOutput: "x"}}).Outcomes[0]
	require.False(t, outcome.Passed)
	require.Equal(t, raw, *outcome.Actual)
}

func TestNormalize(t *testing.T) {
	samples := []string{"[0, 1]", "a\r\nb\n", " \t spaced  out  ", "", "[\n  \"x\",\n  \"y\"\n]\r\n"}
	for _, sample := range samples {
		once := Normalize(sample)
		require.Equal(t, once, Normalize(once), sample)
		require.NotContains(t, once, " ")
		require.NotContains(t, once, "\r")
	}
	require.Equal(t, "ab", Normalize("a\r\nb"))
}

func TestExpectedJSON(t *testing.T) {
	out, err := ExpectedJSON([]interface{}{"<a>", float64(1), true})
	require.NoError(t, err)
	require.Equal(t, `["<a>",1,true]`, out)
}

func TestSubmitPollsUntilEveryResultIsTerminal(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"[0, 1]", "[1,2]"}, pendingRounds: 2}
	rec := &recorder{}
	p := newTestPipeline(judge, nil, rec)

	batch, err := p.Submit(context.Background(), batchRequest())
	require.NoError(t, err)
	require.Equal(t, 3, judge.fetches())
	require.Equal(t, 3, judge.batchGets)
	require.Equal(t, 2, batch.Passed)
	require.Equal(t, 2, batch.Total)
	require.True(t, batch.Outcomes[1].IsHidden)
	require.Equal(t, []State{StateSubmitting, StatePolling, StateGrading, StateIdle}, rec.states())
}

func TestSubmitGradesInTestCaseOrder(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"[0,1]", "[9,9]"}, reverse: true}
	p := newTestPipeline(judge, nil, nil)

	batch, err := p.Submit(context.Background(), batchRequest())
	require.NoError(t, err)
	require.True(t, batch.Outcomes[0].Passed)
	require.False(t, batch.Outcomes[1].Passed)
	require.Equal(t, "[9,9]", *batch.Outcomes[1].Actual)

	require.Len(t, judge.sent, 2)
	stdin, err := judge0.Decode(judge.sent[1].Stdin)
	require.NoError(t, err)
	require.Equal(t, "[3,2,4]\n6\n", stdin)
}

func TestSubmitUsesPositionalOrderWithoutTokens(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"[0,1]", "[1,2]"}, omitTokens: true}
	p := newTestPipeline(judge, nil, nil)

	batch, err := p.Submit(context.Background(), batchRequest())
	require.NoError(t, err)
	require.Equal(t, 2, batch.Passed)
}

func TestSubmitSingleCaseUsesSingleEndpoints(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"[0,1]"}}
	p := newTestPipeline(judge, nil, nil)

	req := batchRequest()
	req.TestCases = req.TestCases[:1]
	batch, err := p.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, batch.Passed)
	require.Equal(t, 1, judge.submits)
	require.Equal(t, 0, judge.batchSubmits)
	require.Equal(t, 1, judge.gets)
}

func TestSubmitReportsSubmissionError(t *testing.T) {
	judge := &fakeJudge{submitErr: errors.New("connection refused")}
	rec := &recorder{}
	p := newTestPipeline(judge, nil, rec)

	_, err := p.Submit(context.Background(), batchRequest())
	var submissionErr *SubmissionError
	require.True(t, errors.As(err, &submissionErr))
	require.Equal(t, "submit_batch", submissionErr.Op)
	require.Contains(t, err.Error(), "connection refused")
	require.Equal(t, []State{StateSubmitting, StateIdle}, rec.states())
	require.Zero(t, judge.fetches())

	judge.submitErr = nil
	judge.stdout = []string{"[0,1]", "[1,2]"}
	batch, err := p.Submit(context.Background(), batchRequest())
	require.NoError(t, err)
	require.Equal(t, 2, batch.Passed)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	p := newTestPipeline(&fakeJudge{}, nil, nil)

	req := batchRequest()
	req.TestCases = nil
	_, err := p.Submit(context.Background(), req)
	require.ErrorIs(t, err, ErrNoTestCases)

	req = batchRequest()
	req.TestCases = []codegen.TestCase{{Input: []interface{}{"oops"}}}
	_, err = p.Submit(context.Background(), req)
	require.ErrorIs(t, err, codegen.ErrInputMismatch)
}

func TestPollErrorHaltsCycle(t *testing.T) {
	judge := &fakeJudge{fetchErr: errors.New("502 bad gateway")}
	p := newTestPipeline(judge, nil, nil)

	_, err := p.Submit(context.Background(), batchRequest())
	var pollErr *PollError
	require.True(t, errors.As(err, &pollErr))
	require.Equal(t, 1, pollErr.Attempts)
	require.Equal(t, 1, judge.fetches())
}

func TestPollTimeout(t *testing.T) {
	judge := &fakeJudge{pendingRounds: 1 << 30}
	p := New(judge, nil, Config{PollInterval: 2 * time.Millisecond, PollTimeout: 20 * time.Millisecond, Logger: zerolog.Nop()})

	_, err := p.Submit(context.Background(), batchRequest())
	require.ErrorIs(t, err, ErrPollTimeout)
	var pollErr *PollError
	require.True(t, errors.As(err, &pollErr))
	require.Greater(t, pollErr.Attempts, 1)
}

func TestPollStopsWhenContextCancelled(t *testing.T) {
	judge := &fakeJudge{pendingRounds: 1 << 30}
	p := newTestPipeline(judge, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Submit(ctx, batchRequest())
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrPollTimeout)
}

func TestRunSurfacesOutput(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"hello\n"}}
	p := newTestPipeline(judge, nil, nil)

	result, err := p.Run(context.Background(), RunRequest{SourceCode: "print('hello')", LanguageID: codegen.LanguagePython, Stdin: "x"})
	require.NoError(t, err)
	require.Equal(t, OutputStdout, result.Kind)
	require.Equal(t, "hello\n", result.Output)
	require.Equal(t, "tok-0", result.Token)

	judge.compile = []string{"SyntaxError"}
	result, err = p.Run(context.Background(), RunRequest{SourceCode: "print(", LanguageID: codegen.LanguagePython})
	require.NoError(t, err)
	require.Equal(t, OutputCompileError, result.Kind)
	require.Equal(t, "SyntaxError", result.Output)

	judge.compile = nil
	judge.stdout = nil
	judge.stderr = []string{"boom"}
	result, err = p.Run(context.Background(), RunRequest{SourceCode: "raise", LanguageID: codegen.LanguagePython})
	require.NoError(t, err)
	require.Equal(t, OutputStderr, result.Kind)
	require.Equal(t, "boom", result.Output)
}

func examRequest() ExamRequest {
	return ExamRequest{BatchRequest: batchRequest(), StudentID: 4, QuestionID: 1}
}

func TestSubmitExamImperfectAwaitsConfirmation(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"[0,1]", "[2,1]"}}
	store := newMemoryStore()
	rec := &recorder{}
	p := newTestPipeline(judge, store, rec)

	result, err := p.SubmitExam(context.Background(), examRequest())
	require.NoError(t, err)
	require.Equal(t, ExamAwaitingConfirmation, result.Status)
	require.False(t, result.IsPerfectSolution)
	require.NotNil(t, result.Pending)
	require.Equal(t, StateAwaitingConfirmation, rec.states()[len(rec.states())-1])
	creates, updates := store.calls()
	require.Zero(t, creates+updates)

	declined, err := p.Confirm(context.Background(), *result.Pending, false)
	require.NoError(t, err)
	require.Equal(t, ExamDeclined, declined.Status)
	require.Equal(t, StateIdle, rec.states()[len(rec.states())-1])
	creates, updates = store.calls()
	require.Zero(t, creates+updates)

	accepted, err := p.Confirm(context.Background(), *result.Pending, true)
	require.NoError(t, err)
	require.Equal(t, ExamFinalized, accepted.Status)
	require.NotZero(t, accepted.SubmissionID)
	saved := store.get(accepted.SubmissionID)
	require.True(t, saved.IsSubmitted)
	require.Equal(t, "class Solution {}", saved.Code)
	require.Equal(t, codegen.LanguageJava, saved.LanguageID)
}

func TestSubmitExamTimeoutFinalizesRegardless(t *testing.T) {
	judge := &fakeJudge{compile: []string{"error", "error"}}
	store := newMemoryStore()
	p := newTestPipeline(judge, store, nil)

	req := examRequest()
	req.Timeout = true
	result, err := p.SubmitExam(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ExamFinalized, result.Status)
	require.True(t, result.TimedOut)
	require.False(t, result.IsPerfectSolution)
	require.Nil(t, result.Pending)
	require.True(t, store.get(result.SubmissionID).IsSubmitted)
}

func TestSubmitExamPerfectUpdatesKnownRecord(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"[0,1]", "[1,2]"}}
	store := newMemoryStore()
	id, err := store.Create(context.Background(), Record{Code: "draft", StudentID: 4, QuestionID: 1})
	require.NoError(t, err)
	p := newTestPipeline(judge, store, nil)

	req := examRequest()
	req.SubmissionID = id
	result, err := p.SubmitExam(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ExamFinalized, result.Status)
	require.True(t, result.IsPerfectSolution)
	require.Equal(t, id, result.SubmissionID)

	creates, updates := store.calls()
	require.Equal(t, 1, creates)
	require.Equal(t, 1, updates)
	require.Equal(t, "class Solution {}", store.get(id).Code)
}

func TestSubmitExamReportsPersistenceError(t *testing.T) {
	judge := &fakeJudge{stdout: []string{"[0,1]", "[1,2]"}}
	store := newMemoryStore()
	store.setErr(errors.New("database is locked"))
	rec := &recorder{}
	p := newTestPipeline(judge, store, rec)

	_, err := p.SubmitExam(context.Background(), examRequest())
	var persistenceErr *PersistenceError
	require.True(t, errors.As(err, &persistenceErr))
	require.Equal(t, "create", persistenceErr.Op)
	require.Equal(t, StateIdle, rec.states()[len(rec.states())-1])
	require.Error(t, rec.transitions[len(rec.transitions)-1].Err)
}

func TestResumeWrapsMissingRecord(t *testing.T) {
	p := newTestPipeline(&fakeJudge{}, newMemoryStore(), nil)

	_, err := p.Resume(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrNoSubmission)
	var persistenceErr *PersistenceError
	require.True(t, errors.As(err, &persistenceErr))
	require.Equal(t, "fetch", persistenceErr.Op)
}
