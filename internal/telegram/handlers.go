package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avoronov/journal-bot/internal/analytics"
	"github.com/avoronov/journal-bot/internal/domain"
	"github.com/avoronov/journal-bot/internal/session"
	"github.com/avoronov/journal-bot/internal/store"
)

// ensureUser makes sure a user row exists; first contact creates the user
// with the configured defaults and arms their default schedule. Only a
// missing row triggers creation; a store failure propagates so a transient
// error can never overwrite an existing profile with the defaults.
func (r *Router) ensureUser(ctx context.Context, chatID int64, from *tgbotapi.User) (*domain.User, error) {
	u, err := r.repo.GetUser(ctx, chatID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get user: %w", err)
	}

	username := ""
	if from != nil {
		username = from.UserName
	}
	u = &domain.User{
		ChatID:    chatID,
		Username:  username,
		TZ:        r.defaults.TZ,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.repo.UpsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	entries, err := r.repo.ReplaceScheduleEntries(ctx, chatID, r.defaults.ScheduleMinutes)
	if err != nil {
		return nil, fmt.Errorf("create default schedule: %w", err)
	}
	for _, e := range entries {
		if err := r.sched.Register(e, u.TZ); err != nil {
			r.log.Error("register default entry failed", zap.Error(err), zap.Int64("chatID", chatID))
		}
	}

	r.log.Info("new user registered", zap.Int64("chatID", chatID), zap.String("tz", u.TZ))
	return u, nil
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64, from *tgbotapi.User) {
	u, err := r.ensureUser(ctx, chatID, from)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Profile initialization error. Please try again later.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard(u.Active)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) handleJournal(ctx context.Context, chatID int64, from *tgbotapi.User) {
	u, err := r.ensureUser(ctx, chatID, from)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Error reading your profile.")
		return
	}
	if !u.Active {
		r.sendText(chatID, "Prompts are paused. Use /resume first.")
		return
	}

	err = r.sessions.Start(ctx, chatID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrSessionAlreadyActive):
		r.sendText(chatID, "You already have a check-in in progress — answer the question above or use Skip all.")
	default:
		r.log.Error("session start failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Could not start a session. Please try again later.")
	}
}

func (r *Router) handleStats(ctx context.Context, chatID int64, from *tgbotapi.User) {
	if _, err := r.ensureUser(ctx, chatID, from); err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Error reading your stats.")
		return
	}

	now := time.Now()
	streak, err := r.insights.Streak(ctx, chatID, now)
	if err != nil {
		r.log.Error("streak query failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Error reading your stats.")
		return
	}
	weekly, err := r.insights.WeeklySummary(ctx, chatID, now)
	if err != nil {
		r.log.Error("weekly summary failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Error reading your stats.")
		return
	}
	trend, err := r.insights.MoodTrend(ctx, chatID, now)
	if err != nil {
		r.log.Error("mood trend failed", zap.Error(err), zap.Int64("chatID", chatID))
		trend = analytics.TrendUnknown
	}

	body := fmt.Sprintf(
		"📊 Your journaling stats\n\n"+
			"🔥 Current streak: %d days\n\n"+
			"📅 This week:\n"+
			"• answers: %d\n"+
			"• sessions: %d\n",
		streak, weekly.TotalAnswers, weekly.Sessions,
	)
	if t := trendLine(trend); t != "" {
		body += "\n" + t + "\n"
	}
	body += "\nKeep it up! 🌟"
	r.sendText(chatID, body)
}

func trendLine(t analytics.Trend) string {
	switch t {
	case analytics.TrendImproving:
		return "😊 Mood trend: improving 📈"
	case analytics.TrendDeclining:
		return "😟 Mood trend: needs attention 📉"
	case analytics.TrendStable:
		return "😌 Mood trend: stable"
	default:
		return ""
	}
}

func (r *Router) handleSchedule(ctx context.Context, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, scheduleText)
	msg.ReplyMarkup = scheduleKeyboard()
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) handleSettings(ctx context.Context, chatID int64) {
	msg := tgbotapi.NewMessage(chatID, settingsText)
	msg.ReplyMarkup = settingsKeyboard()
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

// --- Pause / Resume ---

func (r *Router) handlePause(ctx context.Context, chatID int64) {
	if err := r.repo.SetUserActive(ctx, chatID, false); err != nil {
		r.log.Error("pause failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Failed to pause.")
		return
	}
	r.sched.Deregister(chatID)

	msg := tgbotapi.NewMessage(chatID, "Prompts paused ⏸")
	msg.ReplyMarkup = mainMenuKeyboard(false)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) handleResume(ctx context.Context, chatID int64, from *tgbotapi.User) {
	if err := r.repo.SetUserActive(ctx, chatID, true); err != nil {
		r.log.Error("resume failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Failed to resume.")
		return
	}
	if err := r.rearmSchedule(ctx, chatID); err != nil {
		r.log.Error("rearm after resume failed", zap.Error(err), zap.Int64("chatID", chatID))
	}

	msg := tgbotapi.NewMessage(chatID, "Prompts resumed ✅")
	msg.ReplyMarkup = mainMenuKeyboard(true)
	if _, err := r.bot.Send(msg); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

// rearmSchedule deregisters and re-registers all of a user's entries with
// their current timezone. Deregister completes before any Register so a
// stale-timezone timer can never fire after the swap.
func (r *Router) rearmSchedule(ctx context.Context, chatID int64) error {
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		return err
	}
	entries, err := r.repo.ListScheduleEntries(ctx, chatID)
	if err != nil {
		return err
	}

	r.sched.Deregister(chatID)
	if !u.Active {
		return nil
	}
	for _, e := range entries {
		if err := r.sched.Register(e, u.TZ); err != nil {
			return err
		}
	}
	return nil
}

// --- Session callbacks ---

func (r *Router) handleSessionCallback(ctx context.Context, chatID int64, data, cbID string) {
	sid, act, ok := parseSessionCallback(data)
	if !ok {
		r.answerCallback(cbID, "")
		return
	}

	err := r.sessions.HandleAction(ctx, chatID, sid, act)
	switch {
	case err == nil:
		r.answerCallback(cbID, "")
	case errors.Is(err, session.ErrSessionNotFound):
		r.answerCallback(cbID, "")
		r.sendText(chatID, "That session has ended. Use /journal to start a new one.")
	case errors.Is(err, session.ErrStaleAnswer):
		// Delayed click for a question already advanced past; ignore.
		r.answerCallback(cbID, "")
		r.log.Debug("stale answer discarded", zap.Int64("chatID", chatID), zap.String("data", data))
	default:
		r.answerCallback(cbID, "")
		r.log.Error("handle action failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Something went wrong saving your answer. Please tap the button again.")
	}
}

// --- Schedule flow ---

func (r *Router) handleScheduleCallback(ctx context.Context, chatID int64, val, cbID string) {
	r.answerCallback(cbID, "")

	switch val {
	case "view":
		entries, err := r.repo.ListScheduleEntries(ctx, chatID)
		if err != nil {
			r.log.Error("list entries failed", zap.Error(err), zap.Int64("chatID", chatID))
			r.sendText(chatID, "Could not read your schedule.")
			return
		}
		if len(entries) == 0 {
			r.sendText(chatID, "You don't have any scheduled times yet.")
			return
		}
		var times []string
		for _, e := range entries {
			times = append(times, "• "+domain.FormatMinutes(e.MinuteOfDay))
		}
		r.sendText(chatID, "⏰ Your scheduled times:\n"+strings.Join(times, "\n"))

	case "custom":
		r.setPending(chatID, pendingSchedule)
		r.sendText(chatID, askScheduleText)

	default:
		m, err := domain.ParseHHMM(val)
		if err != nil {
			r.sendText(chatID, "Invalid time. Example: 09:00")
			return
		}
		r.setSchedule(ctx, chatID, []int{m})
	}
}

// setSchedule replaces the user's schedule and re-arms their timers.
func (r *Router) setSchedule(ctx context.Context, chatID int64, minutes []int) {
	if _, err := r.repo.ReplaceScheduleEntries(ctx, chatID, minutes); err != nil {
		r.log.Error("replace entries failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Could not save your schedule.")
		return
	}
	if err := r.rearmSchedule(ctx, chatID); err != nil {
		r.log.Error("rearm after schedule change failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Could not arm your schedule.")
		return
	}

	var times []string
	for _, m := range minutes {
		times = append(times, domain.FormatMinutes(m))
	}
	r.sendText(chatID, "✅ Schedule set: "+strings.Join(times, ", ")+". You'll receive prompts at these times daily.")
}

// --- Settings flow ---

func (r *Router) handleSettingsCallback(ctx context.Context, chatID int64, val, cbID string) {
	r.answerCallback(cbID, "")

	switch val {
	case "tz":
		r.setPending(chatID, pendingTZ)
		r.sendText(chatID, askTZText)

	case "toggle":
		u, err := r.repo.GetUser(ctx, chatID)
		if err != nil {
			r.log.Error("get user failed", zap.Error(err), zap.Int64("chatID", chatID))
			r.sendText(chatID, "Could not read your settings.")
			return
		}
		if u.Active {
			r.handlePause(ctx, chatID)
		} else {
			r.handleResume(ctx, chatID, nil)
		}

	case "schedule":
		r.sendText(chatID, "Use /schedule to manage your prompt times.")
	}
}

// --- Free-form dispatcher (custom schedule and timezone input) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	switch r.getPending(chatID) {
	case pendingSchedule:
		r.clearPending(chatID)
		minutes, err := domain.ParseScheduleTimes(text)
		if err != nil {
			r.sendText(chatID, "Invalid format. Example: 09:00, 14:30, 20:00")
			return
		}
		r.setSchedule(ctx, chatID, minutes)

	case pendingTZ:
		r.clearPending(chatID)
		tz, err := domain.ValidateTZ(text)
		if err != nil {
			// Rejected; the previous timezone stays in effect.
			r.sendText(chatID, "Invalid timezone. Example: Europe/Berlin")
			return
		}
		r.updateTZ(ctx, chatID, tz)

	default:
		// No pending flow: ignore free-form message
	}
}

// updateTZ stores the new timezone and re-arms the user's timers so the next
// fire happens at the right local instant.
func (r *Router) updateTZ(ctx context.Context, chatID int64, tz string) {
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		r.log.Error("get user failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Could not save timezone.")
		return
	}
	u.TZ = tz
	if err := r.repo.UpsertUser(ctx, u); err != nil {
		r.log.Error("save timezone failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Could not save timezone.")
		return
	}
	if err := r.rearmSchedule(ctx, chatID); err != nil {
		r.log.Error("rearm after tz change failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
	r.sendText(chatID, "Timezone updated: "+tz)
}
