package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/dto"
	"github.com/noah-isme/gema-judge/internal/observability"
	"github.com/noah-isme/gema-judge/pkg/codegen"
	"github.com/noah-isme/gema-judge/pkg/pipeline"
)

var (
	// ErrExamSessionNotFound indicates the session id is unknown or was torn down.
	ErrExamSessionNotFound = errors.New("exam session not found")
	// ErrExamFinalized indicates the exam answer was already submitted.
	ErrExamFinalized = errors.New("exam already submitted")
	// ErrNoPendingConfirmation indicates there is no submission waiting for confirmation.
	ErrNoPendingConfirmation = errors.New("no submission awaiting confirmation")
	// ErrQuestionNotExamable indicates a preview problem was requested as an exam question.
	ErrQuestionNotExamable = errors.New("question is not available for exams")
)

const (
	defaultExamDuration = 10 * time.Minute
	defaultResumeTTL    = 24 * time.Hour
	expirySubmitTimeout = 2 * time.Minute
)

// ExamConfig tunes exam sessions.
type ExamConfig struct {
	Duration         time.Duration
	AutosaveInterval time.Duration
	ResumeTTL        time.Duration
}

// ExamService manages timed exam sessions.
type ExamService interface {
	Start(ctx context.Context, req dto.StartExamRequest) (dto.ExamSessionResponse, error)
	Status(ctx context.Context, sessionID string) (dto.ExamSessionResponse, error)
	UpdateCode(ctx context.Context, sessionID string, req dto.UpdateCodeRequest) (dto.ExamSessionResponse, error)
	Submit(ctx context.Context, sessionID string, req dto.ExamSubmitRequest) (dto.ExamResultResponse, error)
	Confirm(ctx context.Context, sessionID string, req dto.ConfirmRequest) (dto.ExamResultResponse, error)
	End(ctx context.Context, sessionID string) error
	Shutdown()
}

// SessionOpener opens exam sessions and looks up saved work. *pipeline.Pipeline satisfies it.
type SessionOpener interface {
	NewSession(cfg pipeline.SessionConfig) (*pipeline.Session, error)
	Resume(ctx context.Context, studentID, questionID uint) (pipeline.Record, error)
}

type examEntry struct {
	id         string
	studentID  uint
	questionID uint
	deadline   time.Time
	resumed    bool
	session    *pipeline.Session
	timer      *time.Timer
}

type resumeToken struct {
	SessionID    string    `json:"session_id"`
	SubmissionID uint      `json:"submission_id"`
	Deadline     time.Time `json:"deadline"`
}

type examService struct {
	opener    SessionOpener
	problems  ProblemService
	generator *codegen.Generator
	cache     *redis.Client
	events    EventPublisher
	validator *validator.Validate
	cfg       ExamConfig
	now       func() time.Time
	logger    zerolog.Logger

	mu      sync.Mutex
	byID    map[string]*examEntry
	byOwner map[string]*examEntry
}

// NewExamService constructs the exam service. cache and events may be nil.
func NewExamService(opener SessionOpener, problems ProblemService, generator *codegen.Generator, cache *redis.Client, events EventPublisher, validate *validator.Validate, cfg ExamConfig, logger zerolog.Logger) ExamService {
	if cfg.Duration <= 0 {
		cfg.Duration = defaultExamDuration
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = pipeline.DefaultAutosaveInterval
	}
	if cfg.ResumeTTL <= 0 {
		cfg.ResumeTTL = defaultResumeTTL
	}
	if generator == nil {
		generator = codegen.NewGenerator()
	}
	if validate == nil {
		validate = NewValidator()
	}

	return &examService{
		opener:    opener,
		problems:  problems,
		generator: generator,
		cache:     cache,
		events:    events,
		validator: validate,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With().Str("component", "exam_service").Logger(),
		byID:      make(map[string]*examEntry),
		byOwner:   make(map[string]*examEntry),
	}
}

// Start opens an exam session, or returns the live one for the same student and question.
// Saved work and the original deadline are restored when the student comes back.
func (s *examService) Start(ctx context.Context, req dto.StartExamRequest) (dto.ExamSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ExamSessionResponse{}, err
	}

	owner := ownerKey(req.StudentID, req.QuestionID)
	s.mu.Lock()
	existing := s.byOwner[owner]
	s.mu.Unlock()
	if existing != nil {
		return s.describe(existing), nil
	}

	definition, err := s.problems.Definition(ctx, req.QuestionID)
	if err != nil {
		return dto.ExamSessionResponse{}, err
	}
	if definition.IsPreview {
		return dto.ExamSessionResponse{}, ErrQuestionNotExamable
	}

	token, hasToken := s.loadResume(ctx, req.StudentID, req.QuestionID)
	record, err := s.opener.Resume(ctx, req.StudentID, req.QuestionID)
	hasRecord := err == nil
	if err != nil && !errors.Is(err, pipeline.ErrNoSubmission) {
		return dto.ExamSessionResponse{}, err
	}

	now := s.now()
	entry := &examEntry{
		id:         uuid.NewString(),
		studentID:  req.StudentID,
		questionID: req.QuestionID,
		deadline:   now.Add(s.cfg.Duration),
		resumed:    hasToken || hasRecord,
	}
	if hasToken {
		entry.id = token.SessionID
		entry.deadline = token.Deadline
	}

	languageID := codegen.Language(req.LanguageID)
	code := req.Code
	var submissionID uint
	finalized := false
	if hasRecord {
		submissionID = record.SubmissionID
		finalized = record.IsSubmitted
		if code == "" || finalized {
			code = record.Code
			languageID = record.LanguageID
		}
	} else if hasToken {
		submissionID = token.SubmissionID
	}
	if languageID == 0 {
		languageID = codegen.LanguagePython
	}
	if _, err := s.generator.Lookup(languageID); err != nil {
		return dto.ExamSessionResponse{}, fmt.Errorf("%w: %d", ErrUnsupportedLanguage, int(languageID))
	}
	if code == "" {
		code = s.generator.Generate(languageID, definition.Signature)
	}

	session, err := s.opener.NewSession(pipeline.SessionConfig{
		StudentID:          req.StudentID,
		QuestionID:         req.QuestionID,
		LanguageID:         languageID,
		Code:               code,
		Signature:          definition.Signature,
		TestCases:          definition.TestCases,
		ResumeSubmissionID: submissionID,
		Finalized:          finalized,
	})
	if err != nil {
		return dto.ExamSessionResponse{}, err
	}
	entry.session = session

	s.mu.Lock()
	if live := s.byOwner[owner]; live != nil {
		s.mu.Unlock()
		session.Close()
		return s.describe(live), nil
	}
	s.byID[entry.id] = entry
	s.byOwner[owner] = entry
	if !finalized {
		session.StartAutosave(context.Background(), s.cfg.AutosaveInterval)
		remaining := entry.deadline.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		id := entry.id
		entry.timer = time.AfterFunc(remaining, func() { s.expire(id) })
	}
	s.mu.Unlock()

	observability.ExamSessionsActive().Inc()
	s.storeResume(ctx, entry)
	s.logger.Info().
		Str("session_id", entry.id).
		Uint("student_id", req.StudentID).
		Uint("question_id", req.QuestionID).
		Bool("resumed", entry.resumed).
		Bool("finalized", finalized).
		Msg("exam session started")
	return s.describe(entry), nil
}

func (s *examService) Status(ctx context.Context, sessionID string) (dto.ExamSessionResponse, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return dto.ExamSessionResponse{}, err
	}
	return s.describe(entry), nil
}

func (s *examService) UpdateCode(ctx context.Context, sessionID string, req dto.UpdateCodeRequest) (dto.ExamSessionResponse, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return dto.ExamSessionResponse{}, err
	}

	languageID := codegen.Language(req.LanguageID)
	if languageID != 0 {
		if _, err := s.generator.Lookup(languageID); err != nil {
			return dto.ExamSessionResponse{}, fmt.Errorf("%w: %d", ErrUnsupportedLanguage, req.LanguageID)
		}
	}
	if err := entry.session.UpdateCode(req.Code, languageID); err != nil {
		return dto.ExamSessionResponse{}, translateSessionError(err)
	}
	return s.describe(entry), nil
}

// Submit grades the working code. A submit after the deadline counts as a timeout.
func (s *examService) Submit(ctx context.Context, sessionID string, req dto.ExamSubmitRequest) (dto.ExamResultResponse, error) {
	entry, err := s.entry(sessionID)
	if err != nil {
		return dto.ExamResultResponse{}, err
	}

	timeout := req.Timeout || !s.now().Before(entry.deadline)
	result, err := entry.session.SubmitExam(ctx, timeout)
	if err != nil {
		return dto.ExamResultResponse{}, translateSessionError(err)
	}
	s.afterStep(ctx, entry, result)
	return dto.NewExamResultResponse(result), nil
}

func (s *examService) Confirm(ctx context.Context, sessionID string, req dto.ConfirmRequest) (dto.ExamResultResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ExamResultResponse{}, err
	}
	entry, err := s.entry(sessionID)
	if err != nil {
		return dto.ExamResultResponse{}, err
	}

	result, err := entry.session.Confirm(ctx, *req.Accept)
	if err != nil {
		return dto.ExamResultResponse{}, translateSessionError(err)
	}
	s.afterStep(ctx, entry, result)
	return dto.NewExamResultResponse(result), nil
}

// End tears the session down. Autosave stops; saved work stays available for resume.
func (s *examService) End(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	entry, ok := s.byID[sessionID]
	if ok {
		delete(s.byID, sessionID)
		delete(s.byOwner, ownerKey(entry.studentID, entry.questionID))
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	s.mu.Unlock()
	if !ok {
		return ErrExamSessionNotFound
	}

	entry.session.Close()
	observability.ExamSessionsActive().Dec()
	if entry.session.Finalized() {
		s.dropResume(ctx, entry)
	} else {
		s.storeResume(ctx, entry)
	}
	s.logger.Info().Str("session_id", sessionID).Msg("exam session closed")
	return nil
}

// Shutdown closes every live session.
func (s *examService) Shutdown() {
	s.mu.Lock()
	entries := make([]*examEntry, 0, len(s.byID))
	for _, entry := range s.byID {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	for _, entry := range entries {
		_ = s.End(context.Background(), entry.id)
	}
}

// expire force-submits a session whose clock ran out.
func (s *examService) expire(sessionID string) {
	entry, err := s.entry(sessionID)
	if err != nil || entry.session.Finalized() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), expirySubmitTimeout)
	defer cancel()

	result, err := entry.session.SubmitExam(ctx, true)
	if err != nil {
		if !errors.Is(err, pipeline.ErrFinalized) {
			s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to submit expired exam")
		}
		return
	}
	s.logger.Info().Str("session_id", sessionID).Uint("submission_id", result.SubmissionID).Msg("exam time expired, submission finalized")
	s.afterStep(ctx, entry, result)
}

func (s *examService) afterStep(ctx context.Context, entry *examEntry, result pipeline.ExamResult) {
	if result.Status != pipeline.ExamFinalized {
		return
	}

	s.mu.Lock()
	if entry.timer != nil {
		entry.timer.Stop()
	}
	s.mu.Unlock()

	s.storeResume(ctx, entry)
	if s.events != nil {
		s.events.Publish(ctx, dto.GradingEvent{
			Type:         EventExamFinalized,
			ProblemID:    entry.questionID,
			StudentID:    entry.studentID,
			SubmissionID: result.SubmissionID,
			LanguageID:   s.languageOf(entry),
			Passed:       result.Result.Passed,
			Total:        result.Result.Total,
			Perfect:      result.IsPerfectSolution,
			TimedOut:     result.TimedOut,
		})
	}
}

func (s *examService) entry(sessionID string) (*examEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.byID[sessionID]
	if !ok {
		return nil, ErrExamSessionNotFound
	}
	return entry, nil
}

func (s *examService) describe(entry *examEntry) dto.ExamSessionResponse {
	code, languageID := entry.session.Code()
	remaining := entry.deadline.Sub(s.now())
	if remaining < 0 || entry.session.Finalized() {
		remaining = 0
	}

	return dto.ExamSessionResponse{
		SessionID:        entry.id,
		StudentID:        entry.studentID,
		QuestionID:       entry.questionID,
		LanguageID:       int(languageID),
		Code:             code,
		SubmissionID:     entry.session.SubmissionID(),
		State:            entry.session.State().String(),
		Finalized:        entry.session.Finalized(),
		Resumed:          entry.resumed,
		AwaitingConfirm:  entry.session.Pending() != nil,
		Deadline:         entry.deadline,
		RemainingSeconds: int64(remaining / time.Second),
	}
}

func (s *examService) languageOf(entry *examEntry) int {
	_, languageID := entry.session.Code()
	return int(languageID)
}

func (s *examService) loadResume(ctx context.Context, studentID, questionID uint) (resumeToken, bool) {
	if s.cache == nil {
		return resumeToken{}, false
	}
	payload, err := s.cache.Get(ctx, resumeKey(studentID, questionID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read exam resume token")
		}
		return resumeToken{}, false
	}

	var token resumeToken
	if err := json.Unmarshal([]byte(payload), &token); err != nil || token.SessionID == "" {
		s.logger.Warn().Err(err).Msg("invalid exam resume token")
		return resumeToken{}, false
	}
	return token, true
}

func (s *examService) storeResume(ctx context.Context, entry *examEntry) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(resumeToken{
		SessionID:    entry.id,
		SubmissionID: entry.session.SubmissionID(),
		Deadline:     entry.deadline,
	})
	if err != nil {
		return
	}

	ttl := time.Until(entry.deadline) + s.cfg.ResumeTTL
	if ttl <= 0 {
		ttl = s.cfg.ResumeTTL
	}
	if err := s.cache.Set(ctx, resumeKey(entry.studentID, entry.questionID), payload, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("session_id", entry.id).Msg("failed to store exam resume token")
	}
}

func (s *examService) dropResume(ctx context.Context, entry *examEntry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, resumeKey(entry.studentID, entry.questionID)).Err(); err != nil {
		s.logger.Warn().Err(err).Str("session_id", entry.id).Msg("failed to drop exam resume token")
	}
}

func translateSessionError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrFinalized):
		return ErrExamFinalized
	case errors.Is(err, pipeline.ErrNothingPending):
		return ErrNoPendingConfirmation
	default:
		return err
	}
}

func ownerKey(studentID, questionID uint) string {
	return fmt.Sprintf("%d:%d", studentID, questionID)
}

func resumeKey(studentID, questionID uint) string {
	return fmt.Sprintf("exam:resume:%d:%d", studentID, questionID)
}
