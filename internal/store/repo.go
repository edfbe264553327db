package store

import (
	"context"
	"errors"
	"time"

	"github.com/avoronov/journal-bot/internal/domain"
)

// ErrNotFound reports that a requested row does not exist. Callers use it to
// tell absence apart from storage failures, which must never be swallowed.
var ErrNotFound = errors.New("not found")

// Repo defines storage operations for users, schedules, sessions and the
// append-only answer history.
type Repo interface {
	// Users.
	UpsertUser(ctx context.Context, u *domain.User) error
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	SetUserActive(ctx context.Context, chatID int64, active bool) error

	// Schedule entries. ReplaceScheduleEntries swaps a user's whole schedule
	// atomically; ListActiveScheduleEntries only returns entries of active
	// users (used by the scheduler reload on startup).
	ReplaceScheduleEntries(ctx context.Context, chatID int64, minutes []int) ([]domain.ScheduleEntry, error)
	ListScheduleEntries(ctx context.Context, chatID int64) ([]domain.ScheduleEntry, error)
	ListActiveScheduleEntries(ctx context.Context) ([]domain.ScheduleEntry, error)

	// Sessions. GetActiveSession returns (nil, nil) when the user has no
	// active session.
	GetActiveSession(ctx context.Context, chatID int64) (*domain.Session, error)
	PutSession(ctx context.Context, s *domain.Session) error
	ListActiveSessions(ctx context.Context) ([]domain.Session, error)

	// Answers. AppendAnswer is durable before it returns; records are never
	// updated. ListAnswersSince returns records with answered_at >= since in
	// ascending order (zero since means full history).
	AppendAnswer(ctx context.Context, rec *domain.AnswerRecord) error
	ListAnswersSince(ctx context.Context, chatID int64, since time.Time) ([]domain.AnswerRecord, error)

	Close() error
}
