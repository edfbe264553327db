package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avoronov/journal-bot/internal/domain"
)

// RunSweeper periodically abandons stale sessions until ctx is canceled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("staleness sweeper stopping")
			return
		case <-ticker.C:
			m.SweepStale(ctx, m.now())
		}
	}
}

// SweepStale abandons every active session past the staleness threshold,
// releasing the per-user exclusivity lock so future scheduled fires are not
// blocked by a crashed or ignored session.
func (m *Manager) SweepStale(ctx context.Context, now time.Time) {
	sessions, err := m.repo.ListActiveSessions(ctx)
	if err != nil {
		m.log.Error("list active sessions failed", zap.Error(err))
		return
	}

	for i := range sessions {
		s := &sessions[i]
		if !m.isStale(ctx, s, now) {
			continue
		}

		l := m.userLock(s.ChatID)
		l.Lock()
		// Re-read under the lock; an answer may have closed it meanwhile.
		cur, err := m.repo.GetActiveSession(ctx, s.ChatID)
		if err == nil && cur != nil && cur.ID == s.ID {
			cur.Status = domain.SessionAbandoned
			cur.UpdatedAt = now.UTC()
			if err := m.repo.PutSession(ctx, cur); err != nil {
				m.log.Error("abandon stale session failed",
					zap.Error(err), zap.Int64("chatID", cur.ChatID), zap.String("sessionID", cur.ID))
			} else {
				m.log.Info("abandoned stale session",
					zap.Int64("chatID", cur.ChatID), zap.String("sessionID", cur.ID),
					zap.Time("startedAt", cur.StartedAt))
			}
		}
		l.Unlock()
	}
}

// isStale decides staleness for one session. With a configured duration the
// check is a plain age comparison; otherwise a session is stale once the
// user's local day has rolled past the day it started.
func (m *Manager) isStale(ctx context.Context, s *domain.Session, now time.Time) bool {
	if m.staleAfter > 0 {
		return now.Sub(s.StartedAt) > m.staleAfter
	}

	loc := time.UTC
	if u, err := m.repo.GetUser(ctx, s.ChatID); err == nil {
		if l, err := domain.LoadZone(u.TZ); err == nil {
			loc = l
		}
	}
	return s.StartedAt.In(loc).Before(domain.LocalDay(now, loc))
}
