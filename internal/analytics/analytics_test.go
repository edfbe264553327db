package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avoronov/journal-bot/internal/domain"
	"github.com/avoronov/journal-bot/internal/questions"
)

type fakeStore struct {
	user *domain.User
	recs []domain.AnswerRecord
}

func (f *fakeStore) GetUser(_ context.Context, _ int64) (*domain.User, error) {
	if f.user == nil {
		return nil, errors.New("user not found")
	}
	return f.user, nil
}

func (f *fakeStore) ListAnswersSince(_ context.Context, chatID int64, since time.Time) ([]domain.AnswerRecord, error) {
	var res []domain.AnswerRecord
	for _, r := range f.recs {
		if r.ChatID == chatID && !r.AnsweredAt.Before(since) {
			res = append(res, r)
		}
	}
	return res, nil
}

func mustBank(t *testing.T) *questions.Bank {
	t.Helper()
	b, err := questions.Load()
	if err != nil {
		t.Fatalf("load bank: %v", err)
	}
	return b
}

func mustLoc(t *testing.T, tz string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(tz)
	if err != nil {
		t.Fatalf("load tz: %v", err)
	}
	return loc
}

// rec builds an answer record for question qid at the given instant.
func rec(chatID int64, sessionID string, qid int, value string, at time.Time) domain.AnswerRecord {
	return domain.AnswerRecord{ChatID: chatID, SessionID: sessionID, QuestionID: qid, Value: value, AnsweredAt: at.UTC()}
}

func TestStreakZeroWithoutData(t *testing.T) {
	e := New(&fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}, mustBank(t))
	got, err := e.Streak(context.Background(), 1, time.Now())
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if got != 0 {
		t.Fatalf("want streak 0, got %d", got)
	}
}

func TestStreakFiveConsecutiveLocalDays(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "America/New_York"}}
	for d := 6; d <= 10; d++ {
		at := time.Date(2026, time.June, d, 12, 0, 0, 0, loc)
		st.recs = append(st.recs, rec(1, "s", 1, "good", at))
	}
	e := New(st, mustBank(t))

	asOf := time.Date(2026, time.June, 10, 18, 0, 0, 0, loc)
	got, err := e.Streak(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if got != 5 {
		t.Fatalf("want streak 5, got %d", got)
	}
}

func TestStreakResetsAfterMissedDay(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "America/New_York"}}
	// Records on June 5..8 and June 10; June 9 missed.
	for _, d := range []int{5, 6, 7, 8, 10} {
		at := time.Date(2026, time.June, d, 12, 0, 0, 0, loc)
		st.recs = append(st.recs, rec(1, "s", 1, "good", at))
	}
	e := New(st, mustBank(t))

	asOf := time.Date(2026, time.June, 10, 18, 0, 0, 0, loc)
	got, err := e.Streak(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if got != 1 {
		t.Fatalf("want streak 1 after gap, got %d", got)
	}
}

func TestStreakBucketsDaysInUserZone(t *testing.T) {
	loc := mustLoc(t, "America/New_York")
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "America/New_York"}}
	// 23:30 local on June 9 is already June 10 in UTC; with user-local
	// bucketing these two records cover two distinct days.
	st.recs = append(st.recs,
		rec(1, "s1", 1, "good", time.Date(2026, time.June, 9, 23, 30, 0, 0, loc)),
		rec(1, "s2", 1, "good", time.Date(2026, time.June, 10, 12, 0, 0, 0, loc)),
	)
	e := New(st, mustBank(t))

	asOf := time.Date(2026, time.June, 10, 18, 0, 0, 0, loc)
	got, err := e.Streak(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("Streak: %v", err)
	}
	if got != 2 {
		t.Fatalf("want streak 2, got %d", got)
	}
}

func TestWeeklySummary(t *testing.T) {
	asOf := time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}
	st.recs = append(st.recs,
		rec(1, "s1", 1, "good", asOf.Add(-24*time.Hour)),
		rec(1, "s1", 2, "yes", asOf.Add(-24*time.Hour)),
		rec(1, "s2", 1, "okay", asOf.Add(-3*24*time.Hour)),
		rec(1, "s0", 1, "good", asOf.Add(-9*24*time.Hour)), // outside window
	)
	e := New(st, mustBank(t))

	sum, err := e.WeeklySummary(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("WeeklySummary: %v", err)
	}
	if sum.TotalAnswers != 3 || sum.Sessions != 2 {
		t.Fatalf("want {3 2}, got %+v", sum)
	}
}

func TestWeeklySummaryNoData(t *testing.T) {
	e := New(&fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}, mustBank(t))
	sum, err := e.WeeklySummary(context.Background(), 1, time.Now())
	if err != nil {
		t.Fatalf("WeeklySummary: %v", err)
	}
	if sum.TotalAnswers != 0 || sum.Sessions != 0 {
		t.Fatalf("want zero summary, got %+v", sum)
	}
}

func TestMoodTrend(t *testing.T) {
	asOf := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	prior := asOf.Add(-8 * 24 * time.Hour)  // inside the prior window
	recent := asOf.Add(-1 * 24 * time.Hour) // inside the recent window

	cases := []struct {
		name   string
		prior  []string // values for question 2 (yes=1.0, no=0.0)
		recent []string
		want   Trend
	}{
		{"improving", []string{"yes", "no"}, []string{"yes", "yes"}, TrendImproving},
		{"declining", []string{"yes", "yes"}, []string{"yes", "no"}, TrendDeclining},
		{"stable", []string{"yes", "no"}, []string{"no", "yes"}, TrendStable},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}
			for _, v := range c.prior {
				st.recs = append(st.recs, rec(1, "p", 2, v, prior))
			}
			for _, v := range c.recent {
				st.recs = append(st.recs, rec(1, "r", 2, v, recent))
			}
			e := New(st, mustBank(t))

			got, err := e.MoodTrend(context.Background(), 1, asOf)
			if err != nil {
				t.Fatalf("MoodTrend: %v", err)
			}
			if got != c.want {
				t.Fatalf("want %s, got %s", c.want, got)
			}
		})
	}
}

func TestMoodTrendWithinThresholdIsStable(t *testing.T) {
	asOf := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}
	// Prior mean 0.75 ("good"); recent mean 0.75 as well via okay+great.
	st.recs = append(st.recs,
		rec(1, "p", 1, "good", asOf.Add(-8*24*time.Hour)),
		rec(1, "r", 1, "okay", asOf.Add(-2*24*time.Hour)),
		rec(1, "r", 1, "great", asOf.Add(-24*time.Hour)),
	)
	e := New(st, mustBank(t))

	got, err := e.MoodTrend(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("MoodTrend: %v", err)
	}
	if got != TrendStable {
		t.Fatalf("want stable, got %s", got)
	}
}

func TestMoodTrendUnknownWithoutBothWindows(t *testing.T) {
	asOf := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}
	st.recs = append(st.recs, rec(1, "r", 2, "yes", asOf.Add(-24*time.Hour)))
	e := New(st, mustBank(t))

	got, err := e.MoodTrend(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("MoodTrend: %v", err)
	}
	if got != TrendUnknown {
		t.Fatalf("want unknown with empty prior window, got %s", got)
	}

	empty := New(&fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}, mustBank(t))
	got, err = empty.MoodTrend(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("MoodTrend: %v", err)
	}
	if got != TrendUnknown {
		t.Fatalf("want unknown without data, got %s", got)
	}
}

func TestCategoryInsights(t *testing.T) {
	asOf := time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}
	// Question 4 is gratitude; question 1 is mood and must be excluded.
	st.recs = append(st.recs,
		rec(1, "s1", 4, "yes", asOf.Add(-24*time.Hour)),
		rec(1, "s2", 4, "yes", asOf.Add(-2*24*time.Hour)),
		rec(1, "s3", 4, "no", asOf.Add(-3*24*time.Hour)),
		rec(1, "s1", 1, "great", asOf.Add(-24*time.Hour)),
	)
	e := New(st, mustBank(t))

	stats, err := e.CategoryInsights(context.Background(), 1, domain.CategoryGratitude, 30, asOf)
	if err != nil {
		t.Fatalf("CategoryInsights: %v", err)
	}
	if stats.TotalAnswers != 3 {
		t.Fatalf("want 3 answers, got %d", stats.TotalAnswers)
	}
	if stats.YesRate < 0.66 || stats.YesRate > 0.67 {
		t.Fatalf("want yes rate 2/3, got %f", stats.YesRate)
	}
	if len(stats.TopAnswers) != 2 || stats.TopAnswers[0].Value != "yes" || stats.TopAnswers[0].Count != 2 {
		t.Fatalf("unexpected top answers: %+v", stats.TopAnswers)
	}
}

func TestMonthlyReport(t *testing.T) {
	loc := mustLoc(t, "Europe/Berlin")
	asOf := time.Date(2026, time.June, 15, 12, 0, 0, 0, loc)
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "Europe/Berlin"}}
	st.recs = append(st.recs,
		rec(1, "s1", 1, "good", time.Date(2026, time.June, 13, 9, 0, 0, 0, loc)),
		rec(1, "s1", 4, "yes", time.Date(2026, time.June, 13, 9, 1, 0, 0, loc)),
		rec(1, "s2", 7, "yes", time.Date(2026, time.June, 14, 9, 0, 0, 0, loc)),
		rec(1, "s3", 11, "no", time.Date(2026, time.June, 15, 9, 0, 0, 0, loc)),
	)
	e := New(st, mustBank(t))

	rep, err := e.MonthlyReport(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("MonthlyReport: %v", err)
	}
	if rep.TotalAnswers != 4 || rep.Sessions != 3 || rep.ActiveDays != 3 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.ByCategory[domain.CategoryMood] != 1 ||
		rep.ByCategory[domain.CategoryGratitude] != 1 ||
		rep.ByCategory[domain.CategoryProductivity] != 1 ||
		rep.ByCategory[domain.CategorySelfCare] != 1 {
		t.Fatalf("unexpected category breakdown: %+v", rep.ByCategory)
	}
	if rep.ConsistencyRate < 0.09 || rep.ConsistencyRate > 0.11 {
		t.Fatalf("want consistency 3/30, got %f", rep.ConsistencyRate)
	}
}

func TestMonthlyReportNoData(t *testing.T) {
	e := New(&fakeStore{user: &domain.User{ChatID: 1, TZ: "UTC"}}, mustBank(t))
	rep, err := e.MonthlyReport(context.Background(), 1, time.Now())
	if err != nil {
		t.Fatalf("MonthlyReport: %v", err)
	}
	if rep.TotalAnswers != 0 || rep.Sessions != 0 || rep.ActiveDays != 0 {
		t.Fatalf("want empty report, got %+v", rep)
	}
}

func TestBestTimes(t *testing.T) {
	loc := mustLoc(t, "Europe/Berlin")
	st := &fakeStore{user: &domain.User{ChatID: 1, TZ: "Europe/Berlin"}}
	day := time.Date(2026, time.June, 10, 0, 0, 0, 0, loc)
	for i := 0; i < 3; i++ {
		st.recs = append(st.recs, rec(1, "s", 1, "good", day.Add(time.Duration(24*i)*time.Hour).Add(21*time.Hour)))
	}
	st.recs = append(st.recs, rec(1, "s", 4, "yes", day.Add(9*time.Hour)))
	e := New(st, mustBank(t))

	hours, err := e.BestTimes(context.Background(), 1)
	if err != nil {
		t.Fatalf("BestTimes: %v", err)
	}
	if len(hours) != 2 || hours[0] != 21 || hours[1] != 9 {
		t.Fatalf("want [21 9], got %v", hours)
	}
}

func TestAnalyticsSurviveMissingUser(t *testing.T) {
	// A user row missing entirely must not fail analytics; day bucketing
	// falls back to UTC.
	st := &fakeStore{user: nil}
	st.recs = append(st.recs, rec(1, "s", 1, "good", time.Date(2026, time.June, 10, 12, 0, 0, 0, time.UTC)))
	e := New(st, mustBank(t))

	if _, err := e.Streak(context.Background(), 1, time.Date(2026, time.June, 10, 18, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Streak with missing user: %v", err)
	}
}
