package domain

import "time"

// User represents a bot user and their notification preferences.
// Users are never hard-deleted, only deactivated.
type User struct {
	ChatID    int64
	Username  string
	TZ        string // IANA zone name
	Active    bool
	CreatedAt time.Time // UTC
}

// ScheduleEntry is a recurring daily prompt time owned by a user.
// MinuteOfDay is zone-naive and interpreted in the user's TZ at fire time.
type ScheduleEntry struct {
	ID          int64
	ChatID      int64
	MinuteOfDay int // 0..1439
	Active      bool
	CreatedAt   time.Time // UTC
}

// SessionStatus enumerates the lifecycle states of a journaling session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Session tracks one run through the question sequence for a user.
// Invariant: at most one session per user has status "active".
type Session struct {
	ID          string // uuid
	ChatID      int64
	QuestionIdx int // cursor into the question bank order
	Status      SessionStatus
	StartedAt   time.Time // UTC
	UpdatedAt   time.Time // UTC
}

// AnswerRecord is an immutable fact: one question answered within a session.
// Records are append-only and never mutated.
type AnswerRecord struct {
	ID         int64
	ChatID     int64
	SessionID  string
	QuestionID int
	Value      string
	AnsweredAt time.Time // UTC
}

// Question categories as defined by the question bank.
const (
	CategoryMood         = "mood"
	CategoryGratitude    = "gratitude"
	CategoryProductivity = "productivity"
	CategorySelfCare     = "self_care"
)

// Question is static reference data supplied by the question bank,
// read-only from the bot's perspective.
type Question struct {
	ID       int
	Category string
	Text     string
	Order    int
	Options  []Option
}

// Option is one selectable answer for a question. Score is set for
// categories that feed numeric trend analysis (mood).
type Option struct {
	Label string
	Value string
	Score *float64
}
