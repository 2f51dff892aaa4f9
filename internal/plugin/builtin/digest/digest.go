package digest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"vaxbot/internal/duesoon"
	"vaxbot/internal/eventbus"
	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/reminder"
	"vaxbot/internal/store"
	kit "vaxbot/internal/transport"
	logx "vaxbot/pkg/logx"
	"vaxbot/pkg/tgui"
)

// Plugin maintains the per-user due-soon digest: one editable message per
// chat summarizing overdue, due-this-week, and upcoming vaccines. It is
// refreshed on demand (/digest), daily by cron, and whenever the user's
// reminders change.
type Plugin struct {
	plugin.PluginBase
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "digest" }

func (p *Plugin) Init(ctx context.Context, deps plugin.PluginDeps) error {
	p.InitBase(deps, p.Name())
	return nil
}

func (p *Plugin) Start(ctx context.Context) error {
	p.StartBase(ctx)

	cfg := p.Deps.Config.Get()
	spec := cfg.Reminders.DigestCron
	if spec != "" {
		if _, err := p.Cron("refresh", spec, time.Minute, p.refreshAll); err != nil {
			p.Log.Warn("digest cron registration failed", logx.String("spec", spec), logx.Any("err", err))
		}
	}

	// Reminder changes re-render affected digests immediately.
	if err := p.SubscribeEvents(64, p.onEvent); err != nil {
		p.Log.Warn("event subscription failed", logx.Any("err", err))
	}
	return nil
}

func (p *Plugin) Stop(ctx context.Context) error {
	if p.Deps.Scheduler != nil {
		p.Deps.Scheduler.Remove(p.Name() + ":refresh")
	}
	return p.StopBase(ctx)
}

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "digest",
			Description: "due-soon overview of all your pets",
			Usage:       "/digest",
			Access:      plugin.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      p.cmdDigest,
		},
	}
}

func (p *Plugin) cmdDigest(ctx context.Context, req *plugin.Request) error {
	msg, err := p.build(ctx, req.FromID)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not build the digest, try again", nil)
		return err
	}
	ref, err := msg.Send(ctx, req.Adapter, req.Chat)
	if err != nil {
		return err
	}
	// Remember the message so cron and reminder updates can edit it in place.
	if err := p.Deps.Store.PutDigestRef(ctx, store.DigestRef{
		UserID:    req.FromID,
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
	}); err != nil {
		p.Log.Warn("digest ref save failed", logx.Int64("user_id", req.FromID), logx.Any("err", err))
	}
	return nil
}

func (p *Plugin) onEvent(ctx context.Context, ev eventbus.Event) {
	if ev.Type != eventbus.TypeAlarmsUpdated {
		return
	}
	ae, ok := ev.Data.(reminder.AlarmsEvent)
	if !ok || ae.UserID == 0 {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	p.refreshUser(cctx, ae.UserID)
}

// refreshAll re-renders the digest of every user that has one.
func (p *Plugin) refreshAll(ctx context.Context) error {
	users, err := p.Deps.Store.ListActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		p.refreshUser(ctx, u.ID)
	}
	return nil
}

// refreshUser edits a user's digest message in place, if one exists.
// A failed edit (message deleted by the user) drops the ref.
func (p *Plugin) refreshUser(ctx context.Context, userID int64) {
	ref, err := p.Deps.Store.GetDigestRef(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.Log.Warn("digest ref load failed", logx.Int64("user_id", userID), logx.Any("err", err))
		}
		return
	}
	msg, err := p.build(ctx, userID)
	if err != nil {
		p.Log.Warn("digest build failed", logx.Int64("user_id", userID), logx.Any("err", err))
		return
	}
	mref := kit.MessageRef{ChatID: ref.ChatID, MessageID: ref.MessageID}
	if err := msg.Edit(ctx, p.Deps.Adapter, mref); err != nil {
		p.Log.Debug("digest edit failed, dropping ref", logx.Int64("user_id", userID), logx.Any("err", err))
		_ = p.Deps.Store.DeleteDigestRef(ctx, userID)
	}
}

func (p *Plugin) build(ctx context.Context, userID int64) (tgui.Message, error) {
	vaccines, err := p.Deps.Store.ListVaccinesByUser(ctx, userID)
	if err != nil {
		return tgui.Message{}, err
	}

	now := time.Now()
	if p.Deps.Scheduler != nil {
		now = now.In(p.Deps.Scheduler.Location())
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sum := duesoon.Build(vaccines, today)

	b := tgui.New().Title("📅", "Vaccination digest")
	if sum.Total() == 0 {
		b.Line("Nothing scheduled. Enjoy the quiet!")
		return b.Build(), nil
	}

	if sum.NextUp != nil {
		v := sum.NextUp.Vaccine
		b.RawLine("Next up: " + tgui.B(v.PetName).String() + "'s " + tgui.Esc(v.Name).String() +
			" " + tgui.Esc(dueIn(sum.NextUp.DaysUntilDue)).String())
		b.Blank()
	}
	if len(sum.Overdue) > 0 {
		b.Section("🔴 Overdue")
		for _, it := range sum.Overdue {
			b.RawLine("• " + itemLine(it))
		}
	}
	if len(sum.DueThisWeek) > 0 {
		b.Section("🟡 Due this week")
		for _, it := range sum.DueThisWeek {
			b.RawLine("• " + itemLine(it))
		}
	}
	if len(sum.Later) > 0 {
		b.Section("🟢 Later")
		for _, it := range sum.Later {
			b.RawLine("• " + itemLine(it))
		}
	}
	b.Blank().Line("Updated " + now.Format("2006-01-02 15:04"))
	return b.Build(), nil
}

func itemLine(it duesoon.Item) string {
	v := it.Vaccine
	return tgui.B(v.PetName).String() + ": " + tgui.Esc(v.Name).String() +
		" " + tgui.Code("#"+strconv.FormatInt(v.ID, 10)).String() +
		" — " + tgui.Esc(dueIn(it.DaysUntilDue)).String()
}

func dueIn(days int) string {
	switch {
	case days < -1:
		return fmt.Sprintf("overdue by %d days", -days)
	case days == -1:
		return "overdue by 1 day"
	case days == 0:
		return "due today"
	case days == 1:
		return "due tomorrow"
	default:
		return fmt.Sprintf("due in %d days", days)
	}
}
