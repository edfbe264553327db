// Package analytics derives read-side insights from the append-only answer
// history. All queries are deterministic given the same records, bucket days
// in the user's timezone, and return zero-valued results instead of errors
// when a user has no data yet.
package analytics

import (
	"context"
	"sort"
	"time"

	"github.com/avoronov/journal-bot/internal/domain"
)

const (
	week  = 7 * 24 * time.Hour
	month = 30 * 24 * time.Hour

	// moodTrendThreshold is the relative change between the trailing 7-day
	// mean mood score and the prior 7-day mean below which the trend counts
	// as stable.
	moodTrendThreshold = 0.10
)

// Store is the slice of the repository analytics reads from.
type Store interface {
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	ListAnswersSince(ctx context.Context, chatID int64, since time.Time) ([]domain.AnswerRecord, error)
}

// Bank resolves question metadata for recorded answers.
type Bank interface {
	ByID(id int) (domain.Question, bool)
	Categories() []string
}

// Engine answers read-only analytics queries.
type Engine struct {
	store Store
	bank  Bank
}

// New creates an analytics engine over the given store and question bank.
func New(store Store, bank Bank) *Engine {
	return &Engine{store: store, bank: bank}
}

// Trend classifies the direction of the mood score.
type Trend string

const (
	TrendUnknown   Trend = "unknown" // not enough data in one of the windows
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Summary is the trailing 7-day activity snapshot.
type Summary struct {
	TotalAnswers int
	Sessions     int
}

// AnswerCount is one value with its occurrence count.
type AnswerCount struct {
	Value string
	Count int
}

// CategoryStats aggregates one category over a bounded window.
type CategoryStats struct {
	Category     string
	TotalAnswers int
	YesRate      float64 // share of "yes" among yes/no answers; 0 when none
	TopAnswers   []AnswerCount
}

// Report is the 30-day aggregate.
type Report struct {
	TotalAnswers    int
	Sessions        int
	ActiveDays      int
	ConsistencyRate float64 // active days / 30
	ByCategory      map[string]int
}

// userLocation resolves the user's zone, defaulting to UTC for unknown users
// or broken zone names so analytics never fails on missing profile data.
func (e *Engine) userLocation(ctx context.Context, chatID int64) *time.Location {
	u, err := e.store.GetUser(ctx, chatID)
	if err != nil {
		return time.UTC
	}
	loc, err := domain.LoadZone(u.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Streak counts consecutive user-local days with at least one answer, ending
// at asOf. A still-unanswered current day does not break the streak; counting
// may start at yesterday.
func (e *Engine) Streak(ctx context.Context, chatID int64, asOf time.Time) (int, error) {
	recs, err := e.store.ListAnswersSince(ctx, chatID, time.Time{})
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	loc := e.userLocation(ctx, chatID)
	days := make(map[time.Time]bool, len(recs))
	for _, r := range recs {
		days[domain.LocalDay(r.AnsweredAt, loc)] = true
	}

	day := domain.LocalDay(asOf, loc)
	if !days[day] {
		day = day.AddDate(0, 0, -1)
	}

	streak := 0
	for days[day] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak, nil
}

// WeeklySummary reports answers and distinct sessions in the trailing 7 days.
func (e *Engine) WeeklySummary(ctx context.Context, chatID int64, asOf time.Time) (Summary, error) {
	recs, err := e.recordsBetween(ctx, chatID, asOf.Add(-week), asOf)
	if err != nil {
		return Summary{}, err
	}

	sessions := make(map[string]bool)
	for _, r := range recs {
		sessions[r.SessionID] = true
	}
	return Summary{TotalAnswers: len(recs), Sessions: len(sessions)}, nil
}

// MoodTrend compares the mean mood score of the trailing 7 days against the
// prior 7 days. A relative change above moodTrendThreshold is classified as
// improving or declining; an empty window yields TrendUnknown.
func (e *Engine) MoodTrend(ctx context.Context, chatID int64, asOf time.Time) (Trend, error) {
	recs, err := e.recordsBetween(ctx, chatID, asOf.Add(-2*week), asOf)
	if err != nil {
		return TrendUnknown, err
	}

	split := asOf.Add(-week)
	var recent, prior []float64
	for _, r := range recs {
		score, ok := e.moodScore(r)
		if !ok {
			continue
		}
		if r.AnsweredAt.Before(split) {
			prior = append(prior, score)
		} else {
			recent = append(recent, score)
		}
	}
	if len(recent) == 0 || len(prior) == 0 {
		return TrendUnknown, nil
	}

	recentMean := mean(recent)
	priorMean := mean(prior)
	if priorMean == 0 {
		if recentMean > 0 {
			return TrendImproving, nil
		}
		return TrendStable, nil
	}

	change := (recentMean - priorMean) / priorMean
	switch {
	case change > moodTrendThreshold:
		return TrendImproving, nil
	case change < -moodTrendThreshold:
		return TrendDeclining, nil
	default:
		return TrendStable, nil
	}
}

// moodScore maps a recorded answer onto its numeric mood score, if any.
func (e *Engine) moodScore(r domain.AnswerRecord) (float64, bool) {
	q, ok := e.bank.ByID(r.QuestionID)
	if !ok || q.Category != domain.CategoryMood {
		return 0, false
	}
	for _, o := range q.Options {
		if o.Value == r.Value && o.Score != nil {
			return *o.Score, true
		}
	}
	return 0, false
}

// CategoryInsights aggregates one category over the trailing `days` days.
func (e *Engine) CategoryInsights(ctx context.Context, chatID int64, category string, days int, asOf time.Time) (CategoryStats, error) {
	stats := CategoryStats{Category: category}

	recs, err := e.recordsBetween(ctx, chatID, asOf.Add(-time.Duration(days)*24*time.Hour), asOf)
	if err != nil {
		return stats, err
	}

	counts := make(map[string]int)
	yes, no := 0, 0
	for _, r := range recs {
		q, ok := e.bank.ByID(r.QuestionID)
		if !ok || q.Category != category {
			continue
		}
		stats.TotalAnswers++
		counts[r.Value]++
		switch r.Value {
		case "yes":
			yes++
		case "no":
			no++
		}
	}
	if yes+no > 0 {
		stats.YesRate = float64(yes) / float64(yes+no)
	}

	for v, c := range counts {
		stats.TopAnswers = append(stats.TopAnswers, AnswerCount{Value: v, Count: c})
	}
	sort.Slice(stats.TopAnswers, func(i, j int) bool {
		if stats.TopAnswers[i].Count != stats.TopAnswers[j].Count {
			return stats.TopAnswers[i].Count > stats.TopAnswers[j].Count
		}
		return stats.TopAnswers[i].Value < stats.TopAnswers[j].Value
	})
	if len(stats.TopAnswers) > 3 {
		stats.TopAnswers = stats.TopAnswers[:3]
	}
	return stats, nil
}

// MonthlyReport aggregates the trailing 30 days.
func (e *Engine) MonthlyReport(ctx context.Context, chatID int64, asOf time.Time) (Report, error) {
	rep := Report{ByCategory: make(map[string]int)}
	for _, c := range e.bank.Categories() {
		rep.ByCategory[c] = 0
	}

	recs, err := e.recordsBetween(ctx, chatID, asOf.Add(-month), asOf)
	if err != nil {
		return rep, err
	}

	loc := e.userLocation(ctx, chatID)
	sessions := make(map[string]bool)
	days := make(map[time.Time]bool)
	for _, r := range recs {
		rep.TotalAnswers++
		sessions[r.SessionID] = true
		days[domain.LocalDay(r.AnsweredAt, loc)] = true
		if q, ok := e.bank.ByID(r.QuestionID); ok {
			rep.ByCategory[q.Category]++
		}
	}
	rep.Sessions = len(sessions)
	rep.ActiveDays = len(days)
	rep.ConsistencyRate = float64(rep.ActiveDays) / 30
	return rep, nil
}

// BestTimes returns the user's most active local hours, busiest first, at
// most three.
func (e *Engine) BestTimes(ctx context.Context, chatID int64) ([]int, error) {
	recs, err := e.store.ListAnswersSince(ctx, chatID, time.Time{})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	loc := e.userLocation(ctx, chatID)
	counts := make(map[int]int)
	for _, r := range recs {
		counts[r.AnsweredAt.In(loc).Hour()]++
	}

	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})
	if len(hours) > 3 {
		hours = hours[:3]
	}
	return hours, nil
}

// recordsBetween fetches records in [from, to). ListAnswersSince already
// bounds the lower end; the upper bound keeps asOf-relative queries
// deterministic.
func (e *Engine) recordsBetween(ctx context.Context, chatID int64, from, to time.Time) ([]domain.AnswerRecord, error) {
	recs, err := e.store.ListAnswersSince(ctx, chatID, from)
	if err != nil {
		return nil, err
	}
	var out []domain.AnswerRecord
	for _, r := range recs {
		if r.AnsweredAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
