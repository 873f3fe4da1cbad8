package pipeline

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-judge/pkg/codegen"
)

var errNoStore = errors.New("no submission store configured")

// ExamStatus is the outcome of an exam submission step.
type ExamStatus string

// Exam statuses.
const (
	ExamFinalized            ExamStatus = "finalized"
	ExamAwaitingConfirmation ExamStatus = "awaiting_confirmation"
	ExamDeclined             ExamStatus = "declined"
)

// ExamRequest is a finalize-intent submission for one student and question.
type ExamRequest struct {
	BatchRequest
	StudentID  uint
	QuestionID uint
	// SubmissionID is the record to update; zero creates a new one.
	SubmissionID uint
	// Timeout marks a submission forced by the exam clock. It is finalized without confirmation.
	Timeout bool
}

// PendingFinalization carries everything Confirm needs to finish an imperfect exam submission.
// It is plain data so callers can keep it anywhere between the two calls.
type PendingFinalization struct {
	SubmissionID      uint             `json:"submissionId"`
	StudentID         uint             `json:"studentId"`
	QuestionID        uint             `json:"questionId"`
	SourceCode        string           `json:"sourceCode"`
	LanguageID        codegen.Language `json:"languageId"`
	IsPerfectSolution bool             `json:"isPerfectSolution"`
	TimedOut          bool             `json:"timedOut"`
	Result            BatchResult      `json:"result"`
}

func (f PendingFinalization) record() Record {
	return Record{
		SubmissionID: f.SubmissionID,
		Code:         f.SourceCode,
		LanguageID:   f.LanguageID,
		StudentID:    f.StudentID,
		QuestionID:   f.QuestionID,
		IsSubmitted:  true,
	}
}

// ExamResult reports what happened to an exam submission.
type ExamResult struct {
	Status            ExamStatus           `json:"status"`
	Result            BatchResult          `json:"result"`
	IsPerfectSolution bool                 `json:"isPerfectSolution"`
	TimedOut          bool                 `json:"timedOut"`
	SubmissionID      uint                 `json:"submissionId"`
	Pending           *PendingFinalization `json:"pending,omitempty"`
}

type saveFunc func(ctx context.Context, record Record) (uint, error)

// SubmitExam grades the batch and then either finalizes it or asks for confirmation.
// Timeouts and perfect solutions are finalized right away; anything else returns
// ExamAwaitingConfirmation with a PendingFinalization for Confirm.
func (p *Pipeline) SubmitExam(ctx context.Context, req ExamRequest) (ExamResult, error) {
	return p.submitExam(ctx, req, p.persist)
}

// Confirm answers a pending confirmation. Declining returns to idle without saving anything.
func (p *Pipeline) Confirm(ctx context.Context, pending PendingFinalization, accept bool) (ExamResult, error) {
	return p.confirm(ctx, pending, accept, p.persist)
}

func (p *Pipeline) submitExam(ctx context.Context, req ExamRequest, save saveFunc, extra ...Observer) (ExamResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.submit_exam", trace.WithAttributes(
		attribute.Int("question_id", int(req.QuestionID)),
		attribute.Bool("timeout", req.Timeout),
	))
	defer span.End()

	inv := p.begin(ctx, "submit_exam", extra...)
	defer inv.end()

	batch, err := p.gradeBatch(ctx, inv, req.BatchRequest)
	if err != nil {
		span.RecordError(err)
		return ExamResult{}, err
	}

	pending := PendingFinalization{
		SubmissionID:      req.SubmissionID,
		StudentID:         req.StudentID,
		QuestionID:        req.QuestionID,
		SourceCode:        req.SourceCode,
		LanguageID:        req.LanguageID,
		IsPerfectSolution: batch.Perfect(),
		TimedOut:          req.Timeout,
		Result:            batch,
	}

	if !req.Timeout && !pending.IsPerfectSolution {
		inv.to(StateAwaitingConfirmation)
		return ExamResult{
			Status:       ExamAwaitingConfirmation,
			Result:       batch,
			SubmissionID: req.SubmissionID,
			Pending:      &pending,
		}, nil
	}

	return p.finalize(ctx, inv, pending, save)
}

func (p *Pipeline) confirm(ctx context.Context, pending PendingFinalization, accept bool, save saveFunc, extra ...Observer) (ExamResult, error) {
	inv := p.beginAt(ctx, "confirm", StateAwaitingConfirmation, extra...)
	defer inv.end()

	if !accept {
		inv.to(StateIdle)
		p.logger.Info().Uint("question_id", pending.QuestionID).Msg("exam submission declined")
		return ExamResult{
			Status:            ExamDeclined,
			Result:            pending.Result,
			IsPerfectSolution: pending.IsPerfectSolution,
			SubmissionID:      pending.SubmissionID,
		}, nil
	}
	return p.finalize(ctx, inv, pending, save)
}

func (p *Pipeline) finalize(ctx context.Context, inv *invocation, pending PendingFinalization, save saveFunc) (ExamResult, error) {
	inv.to(StateFinalizing)
	id, err := save(ctx, pending.record())
	if err != nil {
		p.logger.Error().Err(err).Uint("question_id", pending.QuestionID).Msg("failed to finalize exam submission")
		return ExamResult{}, inv.fail(err)
	}

	p.logger.Info().Uint("submission_id", id).Bool("perfect", pending.IsPerfectSolution).Bool("timeout", pending.TimedOut).Msg("exam submission finalized")
	return ExamResult{
		Status:            ExamFinalized,
		Result:            pending.Result,
		IsPerfectSolution: pending.IsPerfectSolution,
		TimedOut:          pending.TimedOut,
		SubmissionID:      id,
	}, nil
}

// Resume loads the latest saved record for a student and question.
func (p *Pipeline) Resume(ctx context.Context, studentID, questionID uint) (Record, error) {
	if p.store == nil {
		return Record{}, &PersistenceError{Op: "fetch", Err: errNoStore}
	}
	record, err := p.store.GetByQuestion(ctx, studentID, questionID)
	if err != nil {
		return Record{}, &PersistenceError{Op: "fetch", Err: err}
	}
	return record, nil
}

// persist creates the record when it has no id yet and updates it otherwise.
func (p *Pipeline) persist(ctx context.Context, record Record) (uint, error) {
	if p.store == nil {
		return 0, &PersistenceError{Op: "create", Err: errNoStore}
	}

	if record.SubmissionID != 0 {
		if err := p.store.Update(ctx, record.SubmissionID, record); err != nil {
			return 0, &PersistenceError{Op: "update", Err: err}
		}
		return record.SubmissionID, nil
	}

	id, err := p.store.Create(ctx, record)
	if err != nil {
		return 0, &PersistenceError{Op: "create", Err: err}
	}
	return id, nil
}
