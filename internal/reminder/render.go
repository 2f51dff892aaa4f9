package reminder

import (
	"fmt"
	"strconv"

	"vaxbot/internal/store"
	kit "vaxbot/internal/transport"
	"vaxbot/pkg/tgui"
)

// CallbackPlugin is the callback namespace the reminder buttons route to.
// The vaccines plugin owns the markdone/postpone actions.
const CallbackPlugin = "vaccines"

// dueSoonPhrase matches the wording used throughout the bot:
// "due today", "due tomorrow", "due in N days", "overdue by N days".
func dueSoonPhrase(daysRemaining int) string {
	switch {
	case daysRemaining < -1:
		return fmt.Sprintf("overdue by %d days", -daysRemaining)
	case daysRemaining == -1:
		return "overdue by 1 day"
	case daysRemaining == 0:
		return "due today"
	case daysRemaining == 1:
		return "due tomorrow"
	default:
		return fmt.Sprintf("due in %d days", daysRemaining)
	}
}

// Render builds the reminder notification for a vaccine: the days-remaining
// phrasing plus the mark-done and postpone action buttons.
func Render(v store.VaccineWithPet, daysRemaining int, chat kit.ChatTarget) kit.Notification {
	id := strconv.FormatInt(v.ID, 10)
	kb := tgui.NewInline().Row(
		tgui.Btn("✅ Mark as done", tgui.Data(CallbackPlugin, "markdone", id)),
		tgui.Btn("⏳ Postpone 7d", tgui.Data(CallbackPlugin, "postpone", id)),
	)

	msg := tgui.New().
		Title("💉", "Vaccination reminder").
		RawLine(fmt.Sprintf("%s's %s vaccine is %s!",
			tgui.B(v.PetName), tgui.B(v.Name), tgui.Esc(dueSoonPhrase(daysRemaining)))).
		Inline(kb).
		Build()

	prio := 5
	if daysRemaining <= 0 {
		prio = 7
	}
	return kit.Notification{
		Channel:  "telegram",
		Priority: prio,
		Target:   chat,
		Text:     msg.Text,
		Options:  msg.Opt,
	}
}
