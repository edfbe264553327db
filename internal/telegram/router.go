// Package telegram wires bot updates to the session machine, the scheduler
// and analytics, and implements the session output sink.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/avoronov/journal-bot/internal/analytics"
	"github.com/avoronov/journal-bot/internal/domain"
	"github.com/avoronov/journal-bot/internal/questions"
	"github.com/avoronov/journal-bot/internal/scheduler"
	"github.com/avoronov/journal-bot/internal/session"
	"github.com/avoronov/journal-bot/internal/store"
)

// Pending state keys used in conversational flows.
const (
	pendingSchedule = "await_schedule_text"
	pendingTZ       = "await_tz_text"
)

// Defaults applied to new users; the concrete values come from config.
type Defaults struct {
	TZ              string
	ScheduleMinutes []int
}

// Router routes Telegram updates to handlers and holds minimal in-memory
// pending-input state.
type Router struct {
	bot      *tgbotapi.BotAPI
	log      *zap.Logger
	repo     store.Repo
	bank     *questions.Bank
	defaults Defaults

	sessions *session.Manager
	sched    *scheduler.Scheduler
	insights *analytics.Engine

	mu    sync.RWMutex
	state map[int64]string // chatID -> pending input state
}

// NewRouter creates a router. Attach must be called before updates flow.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo, bank *questions.Bank, defaults Defaults) *Router {
	return &Router{
		bot:      bot,
		log:      log,
		repo:     repo,
		bank:     bank,
		defaults: defaults,
		state:    make(map[int64]string),
	}
}

// Attach connects the router to the session manager, scheduler and analytics
// engine. Done separately because the manager's sink is the router itself.
func (r *Router) Attach(sessions *session.Manager, sched *scheduler.Scheduler, insights *analytics.Engine) {
	r.sessions = sessions
	r.sched = sched
	r.insights = insights
}

func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"):
			r.handleStart(ctx, chatID, msg.From)
		case strings.HasPrefix(text, "/help"):
			r.sendText(chatID, helpText)
		case strings.HasPrefix(text, "/journal"):
			r.handleJournal(ctx, chatID, msg.From)
		case strings.HasPrefix(text, "/stats"):
			r.handleStats(ctx, chatID, msg.From)
		case strings.HasPrefix(text, "/schedule"):
			r.handleSchedule(ctx, chatID)
		case strings.HasPrefix(text, "/settings"):
			r.handleSettings(ctx, chatID)
		case strings.HasPrefix(text, "/pause"):
			r.handlePause(ctx, chatID)
		case strings.HasPrefix(text, "/resume"):
			r.handleResume(ctx, chatID, msg.From)
		default:
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.Message == nil {
			return
		}
		chatID := cb.Message.Chat.ID
		data := cb.Data

		switch {
		case strings.HasPrefix(data, cbAnswer+":"),
			strings.HasPrefix(data, cbSkip+":"),
			strings.HasPrefix(data, cbSkipAll+":"):
			r.handleSessionCallback(ctx, chatID, data, cb.ID)
		case strings.HasPrefix(data, "sched:"):
			r.handleScheduleCallback(ctx, chatID, strings.TrimPrefix(data, "sched:"), cb.ID)
		case strings.HasPrefix(data, "set:"):
			r.handleSettingsCallback(ctx, chatID, strings.TrimPrefix(data, "set:"), cb.ID)
		default:
			// Unknown callback — ignore silently
		}
	}
}

// --- session.Sink ---

// PresentQuestion delivers one question with its option buttons.
func (r *Router) PresentQuestion(ctx context.Context, chatID int64, sessionID string, q domain.Question) error {
	msg := tgbotapi.NewMessage(chatID, questionText(q))
	msg.ReplyMarkup = questionKeyboard(sessionID, q)
	if _, err := r.bot.Send(msg); err != nil {
		return fmt.Errorf("present question %d: %w", q.ID, err)
	}
	return nil
}

// SessionCompleted tells the user the sequence is finished.
func (r *Router) SessionCompleted(ctx context.Context, chatID int64, questions int) error {
	r.sendText(chatID, completedText)
	return nil
}

// SessionAbandoned acknowledges a skip-all.
func (r *Router) SessionAbandoned(ctx context.Context, chatID int64) error {
	r.sendText(chatID, abandonedText)
	return nil
}

// --- helpers ---

func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("send failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

func (r *Router) answerCallback(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Debug("answer callback failed", zap.Error(err))
	}
}
