// Package session implements the per-user journaling session state machine.
//
// Every mutation of a user's session goes through a per-user mutex so timer
// fires, button clicks and the staleness sweep can never interleave for the
// same user. Operations on different users proceed in parallel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avoronov/journal-bot/internal/domain"
	"github.com/avoronov/journal-bot/internal/store"
)

var (
	// ErrSessionAlreadyActive rejects a second concurrent session for a user.
	// Expected and non-fatal: scheduled fires hitting it are dropped.
	ErrSessionAlreadyActive = errors.New("session already active")
	// ErrSessionNotFound means no active session matches the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStaleAnswer means the answered question is not the current one,
	// e.g. a delayed button click for a question already advanced past.
	ErrStaleAnswer = errors.New("stale answer")
	// ErrNoQuestions means the question bank is empty.
	ErrNoQuestions = errors.New("no questions available")
)

// Bank is the ordered question sequence a session walks through.
type Bank interface {
	Len() int
	At(i int) (domain.Question, bool)
}

// Sink delivers session output to the user. Implemented by the Telegram
// router. A non-nil error from PresentQuestion means delivery failed and the
// caller decides whether to retry the whole session start.
type Sink interface {
	PresentQuestion(ctx context.Context, chatID int64, sessionID string, q domain.Question) error
	SessionCompleted(ctx context.Context, chatID int64, questions int) error
	SessionAbandoned(ctx context.Context, chatID int64) error
}

// Manager owns session lifecycle and the per-user exclusivity guard.
type Manager struct {
	repo store.Repo
	bank Bank
	sink Sink
	log  *zap.Logger

	// staleAfter > 0 abandons sessions older than the duration; zero means
	// the end-of-local-day policy.
	staleAfter time.Duration

	now func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewManager wires a session manager. staleAfter zero selects the
// end-of-local-day staleness policy.
func NewManager(repo store.Repo, bank Bank, sink Sink, log *zap.Logger, staleAfter time.Duration) *Manager {
	return &Manager{
		repo:       repo,
		bank:       bank,
		sink:       sink,
		log:        log,
		staleAfter: staleAfter,
		now:        time.Now,
		locks:      make(map[int64]*sync.Mutex),
	}
}

// userLock returns the mutex guarding one user's session state.
func (m *Manager) userLock(chatID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[chatID] = l
	}
	return l
}

// Start opens a new session at question 0 and presents the first question.
// Returns ErrSessionAlreadyActive if the user already has one. If delivery
// fails the session is rolled back so the exclusivity slot is not leaked.
func (m *Manager) Start(ctx context.Context, chatID int64) error {
	l := m.userLock(chatID)
	l.Lock()
	defer l.Unlock()

	cur, err := m.repo.GetActiveSession(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get active session: %w", err)
	}
	if cur != nil {
		return ErrSessionAlreadyActive
	}

	first, ok := m.bank.At(0)
	if !ok {
		return ErrNoQuestions
	}

	now := m.now().UTC()
	s := &domain.Session{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		QuestionIdx: 0,
		Status:      domain.SessionActive,
		StartedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.repo.PutSession(ctx, s); err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	if err := m.sink.PresentQuestion(ctx, chatID, s.ID, first); err != nil {
		// Release the exclusivity slot; the next fire may retry.
		s.Status = domain.SessionAbandoned
		s.UpdatedAt = m.now().UTC()
		if perr := m.repo.PutSession(ctx, s); perr != nil {
			m.log.Error("rollback of undelivered session failed",
				zap.Error(perr), zap.Int64("chatID", chatID), zap.String("sessionID", s.ID))
		}
		return fmt.Errorf("present first question: %w", err)
	}

	m.log.Info("session started", zap.Int64("chatID", chatID), zap.String("sessionID", s.ID))
	return nil
}

// HandleAction applies one user action to the user's active session.
func (m *Manager) HandleAction(ctx context.Context, chatID int64, sessionID string, act domain.Action) error {
	l := m.userLock(chatID)
	l.Lock()
	defer l.Unlock()

	s, err := m.repo.GetActiveSession(ctx, chatID)
	if err != nil {
		return fmt.Errorf("get active session: %w", err)
	}
	if s == nil || s.ID != sessionID {
		return ErrSessionNotFound
	}

	switch act.Kind {
	case domain.ActionAnswer:
		return m.advance(ctx, s, act.QuestionID, act.Value, true)
	case domain.ActionSkip:
		return m.advance(ctx, s, act.QuestionID, "", false)
	case domain.ActionSkipAll:
		s.Status = domain.SessionAbandoned
		s.UpdatedAt = m.now().UTC()
		if err := m.repo.PutSession(ctx, s); err != nil {
			return fmt.Errorf("abandon session: %w", err)
		}
		m.log.Info("session abandoned by user", zap.Int64("chatID", chatID), zap.String("sessionID", s.ID))
		return m.sink.SessionAbandoned(ctx, chatID)
	default:
		return fmt.Errorf("unknown action kind %d", act.Kind)
	}
}

// advance resolves the current question and moves the cursor. The answer
// record must be durable before the cursor moves; a failed write leaves the
// session untouched.
func (m *Manager) advance(ctx context.Context, s *domain.Session, questionID int, value string, record bool) error {
	cur, ok := m.bank.At(s.QuestionIdx)
	if !ok || cur.ID != questionID {
		return ErrStaleAnswer
	}

	now := m.now().UTC()
	if record {
		rec := &domain.AnswerRecord{
			ChatID:     s.ChatID,
			SessionID:  s.ID,
			QuestionID: questionID,
			Value:      value,
			AnsweredAt: now,
		}
		if err := m.repo.AppendAnswer(ctx, rec); err != nil {
			return fmt.Errorf("append answer: %w", err)
		}
	}

	s.QuestionIdx++
	s.UpdatedAt = now

	if next, ok := m.bank.At(s.QuestionIdx); ok {
		if err := m.repo.PutSession(ctx, s); err != nil {
			return fmt.Errorf("put session: %w", err)
		}
		return m.sink.PresentQuestion(ctx, s.ChatID, s.ID, next)
	}

	s.Status = domain.SessionCompleted
	if err := m.repo.PutSession(ctx, s); err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	m.log.Info("session completed", zap.Int64("chatID", s.ChatID), zap.String("sessionID", s.ID))
	return m.sink.SessionCompleted(ctx, s.ChatID, s.QuestionIdx)
}
