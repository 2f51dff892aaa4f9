package accounts

import (
	"context"
	"errors"
	"time"

	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/store"
	logx "vaxbot/pkg/logx"
	"vaxbot/pkg/tgui"
)

// Plugin handles account activation. The Telegram user id is the identity;
// /start records the chat id reminders are delivered to, /stop deactivates
// the account and cancels every pending reminder.
type Plugin struct {
	plugin.PluginBase
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "accounts" }

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
			Route:       "start",
			Description: "activate reminders in this chat",
			Usage:       "/start",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdStart,
		},
		{
			Route:       "stop",
			Description: "deactivate reminders",
			Usage:       "/stop",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdStop,
		},
	}
}

func (p *Plugin) cmdStart(ctx context.Context, req *plugin.Request) error {
	username := ""
	if req.Update.Message != nil {
		username = req.Update.Message.FromUsername
	}
	u := store.User{
		ID:       req.FromID,
		ChatID:   req.Chat.ChatID,
		Username: username,
		Active:   true,
	}
	if err := p.Deps.Store.UpsertUser(ctx, u); err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not activate, try again", nil)
		return err
	}

	// Re-register any reminders that were parked while inactive.
	if err := p.Deps.Registrar.RescheduleUser(ctx, req.FromID); err != nil {
		p.Log.Warn("reschedule after start failed", logx.Int64("user_id", req.FromID), logx.Any("err", err))
	}

	msg := tgui.New().
		Title("🐾", "Welcome!").
		Line("Vaccination reminders are now active in this chat.").
		Blank().
		Bullets(
			"/addpet — register a pet",
			"/vax add — record a vaccine",
			"/digest — due-soon overview",
			"/reminders — lead days and time of day",
		).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdStop(ctx context.Context, req *plugin.Request) error {
	if err := p.Deps.Store.DeactivateUser(ctx, req.FromID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "nothing to deactivate", nil)
			return nil
		}
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not deactivate, try again", nil)
		return err
	}
	if err := p.Deps.Registrar.CancelUser(ctx, req.FromID); err != nil {
		p.Log.Warn("cancel after stop failed", logx.Int64("user_id", req.FromID), logx.Any("err", err))
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat,
		"Reminders deactivated. Your pets and records are kept; /start re-enables them.", nil)
	return nil
}
