package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/avoronov/journal-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// UpsertUser inserts or updates a user's profile. If the user (chat_id)
// exists, mutable fields are updated; created_at is kept.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}

	created := u.CreatedAt.UTC().Unix()
	if u.CreatedAt.IsZero() {
		created = time.Now().UTC().Unix()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (chat_id, username, tz, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			username = excluded.username,
			tz       = excluded.tz,
			active   = excluded.active`,
		u.ChatID, u.Username, u.TZ, boolToInt(u.Active), created,
	)
	return err
}

// GetUser returns a user by chatID; a missing row yields ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, chatID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT chat_id, username, tz, active, created_at
		FROM users
		WHERE chat_id = ?`,
		chatID,
	)

	var (
		out       domain.User
		activeInt int
		createdAt int64
	)
	if err := row.Scan(&out.ChatID, &out.Username, &out.TZ, &activeInt, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", chatID, ErrNotFound)
		}
		return nil, err
	}
	out.Active = activeInt != 0
	out.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &out, nil
}

// SetUserActive toggles the active flag for a user.
func (r *SQLiteRepo) SetUserActive(ctx context.Context, chatID int64, active bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET active = ?
		WHERE chat_id = ?`,
		boolToInt(active), chatID,
	)
	return err
}

// ReplaceScheduleEntries swaps a user's schedule for the given minutes in one
// transaction and returns the new entries.
func (r *SQLiteRepo) ReplaceScheduleEntries(ctx context.Context, chatID int64, minutes []int) ([]domain.ScheduleEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM schedule_entries WHERE chat_id = ?`, chatID); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Unix()
	var entries []domain.ScheduleEntry
	for _, m := range minutes {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_entries (chat_id, minute_of_day, active, created_at)
			VALUES (?, ?, 1, ?)`,
			chatID, m, now,
		)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.ScheduleEntry{
			ID:          id,
			ChatID:      chatID,
			MinuteOfDay: m,
			Active:      true,
			CreatedAt:   time.Unix(now, 0).UTC(),
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListScheduleEntries returns a user's active entries ordered by time of day.
func (r *SQLiteRepo) ListScheduleEntries(ctx context.Context, chatID int64) ([]domain.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, minute_of_day, active, created_at
		FROM schedule_entries
		WHERE chat_id = ? AND active = 1
		ORDER BY minute_of_day ASC`,
		chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListActiveScheduleEntries returns active entries belonging to active users,
// used to re-arm timers on startup.
func (r *SQLiteRepo) ListActiveScheduleEntries(ctx context.Context) ([]domain.ScheduleEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.chat_id, e.minute_of_day, e.active, e.created_at
		FROM schedule_entries e
		JOIN users u ON u.chat_id = e.chat_id
		WHERE e.active = 1 AND u.active = 1
		ORDER BY e.chat_id, e.minute_of_day`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]domain.ScheduleEntry, error) {
	var res []domain.ScheduleEntry
	for rows.Next() {
		var (
			e         domain.ScheduleEntry
			activeInt int
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.ChatID, &e.MinuteOfDay, &activeInt, &createdAt); err != nil {
			return nil, err
		}
		e.Active = activeInt != 0
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetActiveSession returns the user's active session or (nil, nil) when the
// user has none.
func (r *SQLiteRepo) GetActiveSession(ctx context.Context, chatID int64) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, chat_id, question_idx, status, started_at, updated_at
		FROM sessions
		WHERE chat_id = ? AND status = 'active'`,
		chatID,
	)
	s, err := scanSession(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PutSession inserts or updates a session row by id.
func (r *SQLiteRepo) PutSession(ctx context.Context, s *domain.Session) error {
	if s == nil {
		return errors.New("nil session")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, chat_id, question_idx, status, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question_idx = excluded.question_idx,
			status       = excluded.status,
			updated_at   = excluded.updated_at`,
		s.ID, s.ChatID, s.QuestionIdx, string(s.Status),
		s.StartedAt.UTC().Unix(), s.UpdatedAt.UTC().Unix(),
	)
	return err
}

// ListActiveSessions returns every active session, for the staleness sweep.
func (r *SQLiteRepo) ListActiveSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, question_idx, status, started_at, updated_at
		FROM sessions
		WHERE status = 'active'`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, *s)
	}
	return res, rows.Err()
}

func scanSession(scan func(...any) error) (*domain.Session, error) {
	var (
		s         domain.Session
		status    string
		startedAt int64
		updatedAt int64
	)
	if err := scan(&s.ID, &s.ChatID, &s.QuestionIdx, &status, &startedAt, &updatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	s.StartedAt = time.Unix(startedAt, 0).UTC()
	s.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &s, nil
}

// AppendAnswer writes one immutable answer record. The write is durable once
// ExecContext returns without error.
func (r *SQLiteRepo) AppendAnswer(ctx context.Context, rec *domain.AnswerRecord) error {
	if rec == nil {
		return errors.New("nil answer record")
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO answers (chat_id, session_id, question_id, value, answered_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.ChatID, rec.SessionID, rec.QuestionID, rec.Value, rec.AnsweredAt.UTC().Unix(),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		rec.ID = id
	}
	return nil
}

// ListAnswersSince returns a user's answer records with answered_at >= since,
// ascending. A zero since returns the full history.
func (r *SQLiteRepo) ListAnswersSince(ctx context.Context, chatID int64, since time.Time) ([]domain.AnswerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, session_id, question_id, value, answered_at
		FROM answers
		WHERE chat_id = ? AND answered_at >= ?
		ORDER BY answered_at ASC, id ASC`,
		chatID, since.UTC().Unix(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.AnswerRecord
	for rows.Next() {
		var (
			rec        domain.AnswerRecord
			answeredAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.ChatID, &rec.SessionID, &rec.QuestionID, &rec.Value, &answeredAt); err != nil {
			return nil, err
		}
		rec.AnsweredAt = time.Unix(answeredAt, 0).UTC()
		res = append(res, rec)
	}
	return res, rows.Err()
}

// boolToInt converts a boolean to 1/0 for SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
