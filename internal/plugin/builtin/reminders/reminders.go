package reminders

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"vaxbot/internal/config"
	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/store"
	kit "vaxbot/internal/transport"
	logx "vaxbot/pkg/logx"
	"vaxbot/pkg/tgui"
)

// Plugin manages per-user reminder preferences: which lead days fire and at
// what time of day. Every change reschedules the user's pending reminders.
type Plugin struct {
	plugin.PluginBase
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "reminders" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	return p.StopBase(ctx)
}

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "reminders",
			Description: "reminder lead days and time of day",
			Usage:       "/reminders",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdShow,
		},
		{
			Route:       "reminders time",
			Description: "set the reminder time of day",
			Usage:       "/reminders time HH:MM",
			Access:      plugin.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      p.cmdTime,
		},
	}
}

func (p *Plugin) Callbacks() []plugin.CallbackRoute {
	return []plugin.CallbackRoute{
		{
			Plugin:  p.Name(),
			Action:  "lead",
			Access:  plugin.CallbackAccessEveryone,
			Timeout: 15 * time.Second,
			Handle:  p.cbToggleLead,
		},
	}
}

// settingsFor returns the user's stored preference, falling back to the
// installation defaults from config.
func (p *Plugin) settingsFor(ctx context.Context, userID int64) store.ReminderSettings {
	if rs, ok, err := p.Deps.Store.GetReminderSettings(ctx, userID); err == nil && ok {
		return rs
	}
	cfg := p.Deps.Config.Get()
	hour, minute := cfg.Reminders.PreferredTime()
	return store.ReminderSettings{
		UserID:   userID,
		LeadDays: cfg.Reminders.LeadDays(),
		Hour:     hour,
		Minute:   minute,
	}
}

func (p *Plugin) cmdShow(ctx context.Context, req *plugin.Request) error {
	rs := p.settingsFor(ctx, req.FromID)
	msg := p.render(rs)
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdTime(ctx context.Context, req *plugin.Request) error {
	if len(req.Args) < 1 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "usage: /reminders time HH:MM", nil)
		return nil
	}
	hour, minute, err := parseHHMM(req.Args[0])
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "time must be HH:MM, e.g. 09:00", nil)
		return nil
	}

	rs := p.settingsFor(ctx, req.FromID)
	rs.Hour, rs.Minute = hour, minute
	if err := p.save(ctx, rs); err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not save, try again", nil)
		return err
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat,
		fmt.Sprintf("reminders now fire at %02d:%02d", hour, minute), nil)
	return nil
}

func (p *Plugin) cbToggleLead(ctx context.Context, req *plugin.Request, payload string) error {
	day, err := strconv.Atoi(payload)
	if err != nil || !config.IsSupportedLeadDay(day) {
		return fmt.Errorf("bad lead day payload %q", payload)
	}

	rs := p.settingsFor(ctx, req.FromID)
	rs.LeadDays = toggleDay(rs.LeadDays, day)
	if err := p.save(ctx, rs); err != nil {
		return err
	}

	// Re-render the settings message in place.
	cb := req.Update.Callback
	if cb == nil {
		return nil
	}
	msg := p.render(rs)
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	return msg.Edit(ctx, req.Adapter, ref)
}

// save persists the preference and re-registers every pending reminder for
// the user under the new lead days and time.
func (p *Plugin) save(ctx context.Context, rs store.ReminderSettings) error {
	if err := p.Deps.Store.PutReminderSettings(ctx, rs); err != nil {
		return err
	}
	if err := p.Deps.Registrar.RescheduleUser(ctx, rs.UserID); err != nil {
		p.Log.Warn("reschedule after settings change failed", logx.Int64("user_id", rs.UserID), logx.Any("err", err))
	}
	return nil
}

func (p *Plugin) render(rs store.ReminderSettings) tgui.Message {
	selected := map[int]bool{}
	for _, d := range rs.LeadDays {
		selected[d] = true
	}

	// Highest lead day first, matching the order reminders fire in.
	days := append([]int(nil), config.SupportedLeadDays...)
	sort.Sort(sort.Reverse(sort.IntSlice(days)))

	kb := tgui.NewInline()
	b := tgui.New().
		Title("⏰", "Reminder settings").
		KV("Time of day", fmt.Sprintf("%02d:%02d", rs.Hour, rs.Minute)).
		KV("Lead days", describeLeadDays(rs.LeadDays)).
		Blank().
		Line("Tap to toggle a lead day. /reminders time HH:MM changes the time.")

	for i := 0; i < len(days); i += 3 {
		end := i + 3
		if end > len(days) {
			end = len(days)
		}
		rowBtns := make([]tele.Btn, 0, 3)
		for _, d := range days[i:end] {
			label := leadLabel(d)
			if selected[d] {
				label = "✅ " + label
			}
			rowBtns = append(rowBtns, tgui.Btn(label, tgui.Data(p.Name(), "lead", strconv.Itoa(d))))
		}
		kb.Row(rowBtns...)
	}

	return b.Inline(kb).Build()
}

func leadLabel(day int) string {
	switch day {
	case 0:
		return "due day"
	case 1:
		return "1 day"
	default:
		return strconv.Itoa(day) + " days"
	}
}

func describeLeadDays(days []int) string {
	if len(days) == 0 {
		return "none (reminders off)"
	}
	sorted := append([]int(nil), days...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	parts := make([]string, 0, len(sorted))
	for _, d := range sorted {
		parts = append(parts, leadLabel(d))
	}
	return strings.Join(parts, ", ")
}

func toggleDay(days []int, day int) []int {
	out := make([]int, 0, len(days)+1)
	found := false
	for _, d := range days {
		if d == day {
			found = true
			continue
		}
		out = append(out, d)
	}
	if !found {
		out = append(out, day)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

func parseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}
