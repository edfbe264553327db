// Package scheduler keeps one outstanding timer per active schedule entry
// and opens a journaling session when a timer fires.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/avoronov/journal-bot/internal/domain"
	"github.com/avoronov/journal-bot/internal/session"
	"github.com/avoronov/journal-bot/internal/store"
)

// fireTimeout bounds the work done on a timer fire so a slow store or
// transport cannot pile up goroutines.
const fireTimeout = 30 * time.Second

// SessionStarter opens a new session for a user. Implemented by
// session.Manager; its per-user guard makes the overlap check atomic.
type SessionStarter interface {
	Start(ctx context.Context, chatID int64) error
}

// entryTimer is one armed occurrence of a schedule entry. The cancelled flag
// lets Deregister invalidate a timer whose callback already left time's
// runtime queue.
type entryTimer struct {
	entry     domain.ScheduleEntry
	tz        string
	timer     *time.Timer
	cancelled atomic.Bool
}

// Scheduler arms, fires and re-arms per-entry timers. Single timer authority
// per process; entries survive restarts via Reload.
type Scheduler struct {
	repo    store.Repo
	starter SessionStarter
	log     *zap.Logger
	now     func() time.Time

	mu     sync.Mutex
	timers map[int64]*entryTimer // by entry ID
	closed bool
}

// New creates a Scheduler. Call Reload to arm persisted entries.
func New(repo store.Repo, starter SessionStarter, log *zap.Logger) *Scheduler {
	return &Scheduler{
		repo:    repo,
		starter: starter,
		log:     log,
		now:     time.Now,
		timers:  make(map[int64]*entryTimer),
	}
}

// Reload re-arms timers for every active entry of every active user. Fire
// times missed while the process was down are not back-filled; each timer
// targets the next future occurrence.
func (s *Scheduler) Reload(ctx context.Context) error {
	entries, err := s.repo.ListActiveScheduleEntries(ctx)
	if err != nil {
		return err
	}

	armed := 0
	for _, e := range entries {
		u, err := s.repo.GetUser(ctx, e.ChatID)
		if err != nil {
			s.log.Error("load user for entry failed", zap.Error(err), zap.Int64("entryID", e.ID))
			continue
		}
		if err := s.Register(e, u.TZ); err != nil {
			s.log.Error("register entry failed", zap.Error(err),
				zap.Int64("entryID", e.ID), zap.Int64("chatID", e.ChatID))
			continue
		}
		armed++
	}
	s.log.Info("schedule entries armed", zap.Int("count", armed))
	return nil
}

// Register arms a timer for the entry's next occurrence in the given
// timezone. Re-registering an already armed entry replaces its timer.
func (s *Scheduler) Register(entry domain.ScheduleEntry, tz string) error {
	return s.arm(entry, tz, nil)
}

// arm computes the next occurrence and installs the timer. prev is the timer
// being re-armed after a fire; whether it was cancelled is checked under the
// lock, so an in-flight fire that lost a Deregister+Register swap can never
// replace the freshly installed timer with its stale timezone.
func (s *Scheduler) arm(entry domain.ScheduleEntry, tz string, prev *entryTimer) error {
	next, err := domain.NextFireAt(entry.MinuteOfDay, tz, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	if prev != nil && prev.cancelled.Load() {
		return nil
	}
	if old, ok := s.timers[entry.ID]; ok {
		old.cancelled.Store(true)
		old.timer.Stop()
	}

	et := &entryTimer{entry: entry, tz: tz}
	et.timer = time.AfterFunc(next.Sub(s.now()), func() { s.fire(et) })
	s.timers[entry.ID] = et

	s.log.Debug("timer armed",
		zap.Int64("entryID", entry.ID), zap.Int64("chatID", entry.ChatID),
		zap.String("at", domain.FormatMinutes(entry.MinuteOfDay)), zap.Time("next", next))
	return nil
}

// Deregister cancels all timers for a user. It completes synchronously: once
// it returns, no cancelled timer will start a session or re-arm itself, so
// the caller can immediately register fresh entries (e.g. after a timezone
// change) without racing a stale-timezone fire.
func (s *Scheduler) Deregister(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, et := range s.timers {
		if et.entry.ChatID != chatID {
			continue
		}
		et.cancelled.Store(true)
		et.timer.Stop()
		delete(s.timers, id)
	}
}

// Armed reports how many entry timers are currently outstanding.
func (s *Scheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Shutdown cancels every timer. The scheduler accepts no registrations
// afterwards.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, et := range s.timers {
		et.cancelled.Store(true)
		et.timer.Stop()
		delete(s.timers, id)
	}
	s.log.Info("scheduler stopped")
}

// fire runs on the timer goroutine for one due occurrence. An already active
// session drops the fire (never queued, never retried); any outcome re-arms
// the entry for its next occurrence unless the timer was cancelled meanwhile.
func (s *Scheduler) fire(et *entryTimer) {
	if et.cancelled.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	err := s.starter.Start(ctx, et.entry.ChatID)
	switch {
	case err == nil:
		s.log.Info("journal prompt fired",
			zap.Int64("chatID", et.entry.ChatID), zap.Int64("entryID", et.entry.ID))
	case errors.Is(err, session.ErrSessionAlreadyActive):
		s.log.Info("fire dropped, session already active",
			zap.Int64("chatID", et.entry.ChatID), zap.Int64("entryID", et.entry.ID))
	default:
		s.log.Error("session start failed",
			zap.Error(err), zap.Int64("chatID", et.entry.ChatID), zap.Int64("entryID", et.entry.ID))
	}

	if err := s.arm(et.entry, et.tz, et); err != nil {
		s.log.Error("re-register after fire failed",
			zap.Error(err), zap.Int64("entryID", et.entry.ID))
	}
}
