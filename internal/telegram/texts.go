package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/avoronov/journal-bot/internal/domain"
)

// UI texts in English
const (
	startText = "🌟 Welcome to your journaling bot!\n\n" +
		"I'll help you build a daily journaling habit with quick check-ins:\n" +
		"• prompts at your preferred times\n" +
		"• questions about mood, gratitude, productivity and self-care\n" +
		"• streaks, trends and insights from your answers\n\n" +
		"Use /journal to start your first check-in."

	helpText = "📖 Commands\n\n" +
		"/journal — start a check-in now\n" +
		"/schedule — configure when you receive prompts\n" +
		"/stats — your streak, weekly summary and mood trend\n" +
		"/settings — timezone and notifications\n" +
		"/pause, /resume — toggle prompts\n\n" +
		"During a check-in, answer with the buttons, skip single questions, " +
		"or end the session with Skip all."

	completedText = "✨ Session complete! Your answers have been saved.\n" +
		"Use /stats to see your progress."
	abandonedText = "Session ended. Come back with /journal whenever you like."

	scheduleText = "⏰ When would you like to receive journaling prompts?"
	settingsText = "⚙️ What would you like to configure?"

	askScheduleText = "Send your preferred times in 24-hour format, separated by commas.\n" +
		"Example: 09:00, 14:30, 20:00"
	askTZText = "Send your timezone as Region/City, e.g. Europe/Berlin or America/New_York."
)

var categoryEmoji = map[string]string{
	domain.CategoryMood:         "😊",
	domain.CategoryGratitude:    "🙏",
	domain.CategoryProductivity: "🎯",
	domain.CategorySelfCare:     "💚",
}

// questionText renders a question with its category header.
func questionText(q domain.Question) string {
	emoji, ok := categoryEmoji[q.Category]
	if !ok {
		emoji = "📝"
	}
	return emoji + " " + categoryTitle(q.Category) + "\n\n" + q.Text
}

// categoryTitle turns "self_care" into "Self Care".
func categoryTitle(category string) string {
	words := strings.Split(category, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// questionKeyboard builds option buttons for a question plus skip controls.
// Options go two per row, like the original prompt layout.
func questionKeyboard(sessionID string, q domain.Question) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, o := range q.Options {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(o.Label, answerCallbackData(sessionID, q.ID, o.Value)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Skip ⏭️", skipCallbackData(sessionID, q.ID)),
		tgbotapi.NewInlineKeyboardButtonData("Skip all ⏹️", skipAllCallbackData(sessionID)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// mainMenuKeyboard builds the persistent reply keyboard with a pause/resume
// toggle depending on the user's active flag.
func mainMenuKeyboard(active bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := "/pause"
	if !active {
		toggle = "/resume"
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/journal"),
			tgbotapi.NewKeyboardButton("/stats"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/schedule"),
			tgbotapi.NewKeyboardButton("/settings"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(toggle),
		),
	)
}

func scheduleKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏰ Morning 09:00", "sched:09:00"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌅 Afternoon 14:00", "sched:14:00"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌙 Evening 20:00", "sched:20:00"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "sched:custom"),
			tgbotapi.NewInlineKeyboardButtonData("📋 View current", "sched:view"),
		),
	)
}

func settingsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌍 Timezone", "set:tz"),
			tgbotapi.NewInlineKeyboardButtonData("🔔 Notifications on/off", "set:toggle"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏰ Schedule", "set:schedule"),
		),
	)
}
