package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/gema-judge/pkg/codegen"
)

// DefaultAutosaveInterval is used when a session starts autosave without an interval.
const DefaultAutosaveInterval = 30 * time.Second

// SessionConfig describes one student's attempt at one exam question.
type SessionConfig struct {
	StudentID  uint
	QuestionID uint
	LanguageID codegen.Language
	Code       string
	Signature  codegen.Signature
	TestCases  []codegen.TestCase
	// ResumeSubmissionID is the record saved by an earlier attempt, or zero.
	ResumeSubmissionID uint
	// Finalized marks a resumed record that was already submitted.
	Finalized bool
	// OnAutosaveError receives autosave failures. The autosave loop keeps running after it returns.
	OnAutosaveError func(error)
}

// Session is a timed exam attempt: working code, periodic autosave and the final submission.
// All methods are safe for concurrent use.
type Session struct {
	pipeline *Pipeline
	cfg      SessionConfig

	// batchMu allows one exam batch or confirmation at a time.
	batchMu sync.Mutex
	// saveMu serializes store calls so the first save creates exactly one record.
	saveMu sync.Mutex

	mu           sync.Mutex
	code         string
	languageID   codegen.Language
	submissionID uint
	finalized    bool
	pending      *PendingFinalization
	state        State
	stopAutosave context.CancelFunc
	autosaveDone chan struct{}
}

// NewSession opens an exam session backed by the pipeline's store.
func (p *Pipeline) NewSession(cfg SessionConfig) (*Session, error) {
	if p.store == nil {
		return nil, &PersistenceError{Op: "open", Err: errNoStore}
	}
	if err := cfg.Signature.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		pipeline:     p,
		cfg:          cfg,
		code:         cfg.Code,
		languageID:   cfg.LanguageID,
		submissionID: cfg.ResumeSubmissionID,
		finalized:    cfg.Finalized,
		state:        StateIdle,
	}, nil
}

// SubmissionID returns the id of the saved record, or zero before the first save.
func (s *Session) SubmissionID() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissionID
}

// Finalized reports whether the final submission has been saved.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// State returns the lifecycle state of the latest exam invocation.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Code returns the current working code and language.
func (s *Session) Code() (string, codegen.Language) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.languageID
}

// Pending returns the submission waiting for confirmation, if any.
func (s *Session) Pending() *PendingFinalization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	pending := *s.pending
	return &pending
}

// UpdateCode replaces the working code. It fails once the session is finalized.
func (s *Session) UpdateCode(code string, languageID codegen.Language) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return ErrFinalized
	}
	s.code = code
	if languageID != 0 {
		s.languageID = languageID
	}
	return nil
}

// Autosave persists the working code as a non-final record. It is a no-op once finalized.
func (s *Session) Autosave(ctx context.Context) (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		autosaveTotal.WithLabelValues("skipped").Inc()
		return false, nil
	}
	record := Record{
		SubmissionID: s.submissionID,
		Code:         s.code,
		LanguageID:   s.languageID,
		StudentID:    s.cfg.StudentID,
		QuestionID:   s.cfg.QuestionID,
	}
	s.mu.Unlock()

	id, err := s.pipeline.persist(ctx, record)
	if err != nil {
		autosaveTotal.WithLabelValues("failed").Inc()
		return false, err
	}

	s.mu.Lock()
	s.submissionID = id
	s.mu.Unlock()
	autosaveTotal.WithLabelValues("saved").Inc()
	return true, nil
}

// StartAutosave saves the working code every interval until the session is finalized or closed,
// or ctx is done. Calling it while autosave runs has no effect.
func (s *Session) StartAutosave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized || s.stopAutosave != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.stopAutosave = cancel
	s.autosaveDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := s.Autosave(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
					s.pipeline.logger.Warn().Err(err).Uint("question_id", s.cfg.QuestionID).Msg("autosave failed")
					if s.cfg.OnAutosaveError != nil {
						s.cfg.OnAutosaveError(err)
					}
				}
			}
		}
	}()
}

// StopAutosave stops the autosave loop and waits for it to exit.
func (s *Session) StopAutosave() {
	s.mu.Lock()
	cancel, done := s.stopAutosave, s.autosaveDone
	s.stopAutosave, s.autosaveDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SubmitExam grades the working code and finalizes it or waits for Confirm.
// A new call discards any earlier pending confirmation.
func (s *Session) SubmitExam(ctx context.Context, timeout bool) (ExamResult, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return ExamResult{}, ErrFinalized
	}
	s.pending = nil
	req := ExamRequest{
		BatchRequest: BatchRequest{
			SourceCode: s.code,
			LanguageID: s.languageID,
			Signature:  s.cfg.Signature,
			TestCases:  s.cfg.TestCases,
		},
		StudentID:    s.cfg.StudentID,
		QuestionID:   s.cfg.QuestionID,
		SubmissionID: s.submissionID,
		Timeout:      timeout,
	}
	s.mu.Unlock()

	result, err := s.pipeline.submitExam(ctx, req, s.saveFinal, s.tracker())
	if err != nil {
		return ExamResult{}, err
	}

	if result.Pending != nil {
		s.mu.Lock()
		pending := *result.Pending
		s.pending = &pending
		s.mu.Unlock()
	}
	return result, nil
}

// Confirm answers the pending confirmation. A failed save keeps the confirmation pending
// so the caller can retry.
func (s *Session) Confirm(ctx context.Context, accept bool) (ExamResult, error) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return ExamResult{}, ErrFinalized
	}
	if s.pending == nil {
		s.mu.Unlock()
		return ExamResult{}, ErrNothingPending
	}
	pending := *s.pending
	s.mu.Unlock()

	result, err := s.pipeline.confirm(ctx, pending, accept, s.saveFinal, s.tracker())
	if err != nil {
		return ExamResult{}, err
	}

	if !accept {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
	}
	return result, nil
}

// Close tears the session down and stops autosave.
func (s *Session) Close() {
	s.StopAutosave()
}

// saveFinal persists the final record, then marks the session immutable and stops autosave.
func (s *Session) saveFinal(ctx context.Context, record Record) (uint, error) {
	s.saveMu.Lock()
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		s.saveMu.Unlock()
		return 0, ErrFinalized
	}
	if s.submissionID != 0 {
		record.SubmissionID = s.submissionID
	}
	s.mu.Unlock()

	id, err := s.pipeline.persist(ctx, record)
	if err == nil {
		s.mu.Lock()
		s.submissionID = id
		s.finalized = true
		s.pending = nil
		s.mu.Unlock()
	}
	s.saveMu.Unlock()

	if err != nil {
		return 0, err
	}
	s.StopAutosave()
	return id, nil
}

func (s *Session) tracker() Observer {
	return ObserverFunc(func(_ context.Context, t Transition) {
		s.mu.Lock()
		s.state = t.To
		s.mu.Unlock()
	})
}
