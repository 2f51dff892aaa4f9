package vaccines

import (
	"context"
	"errors"
	"strconv"
	"time"

	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/store"
	kit "vaxbot/internal/transport"
)

// Callbacks back the inline buttons on reminder notifications.
// Anyone can tap a button in their own chat; handlers verify the record
// belongs to the tapping user.
func (p *Plugin) Callbacks() []plugin.CallbackRoute {
	return []plugin.CallbackRoute{
		{
			Plugin:  p.Name(),
			Action:  "markdone",
			Access:  plugin.CallbackAccessEveryone,
			Timeout: 15 * time.Second,
			Handle:  p.cbMarkDone,
		},
		{
			Plugin:  p.Name(),
			Action:  "postpone",
			Access:  plugin.CallbackAccessEveryone,
			Timeout: 15 * time.Second,
			Handle:  p.cbPostpone,
		},
	}
}

func (p *Plugin) cbMarkDone(ctx context.Context, req *plugin.Request, payload string) error {
	v, ok, err := p.callbackVaccine(ctx, req, payload)
	if err != nil || !ok {
		return err
	}
	rec, err := p.markDone(ctx, v)
	if err != nil {
		return p.editReminder(ctx, req, "could not update the record, try again")
	}
	return p.editReminder(ctx, req, "✅ "+doneText(v.PetName, rec))
}

func (p *Plugin) cbPostpone(ctx context.Context, req *plugin.Request, payload string) error {
	v, ok, err := p.callbackVaccine(ctx, req, payload)
	if err != nil || !ok {
		return err
	}
	rec, err := p.postpone(ctx, v)
	if err != nil {
		if err == errNoDueDate {
			return p.editReminder(ctx, req, "that vaccine has no due date to postpone")
		}
		return p.editReminder(ctx, req, "could not update the record, try again")
	}
	return p.editReminder(ctx, req, "⏳ "+postponeText(v.PetName, rec))
}

// callbackVaccine resolves the payload id and checks ownership. A stale
// button (record deleted meanwhile) edits the message instead of erroring.
func (p *Plugin) callbackVaccine(ctx context.Context, req *plugin.Request, payload string) (store.VaccineWithPet, bool, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return store.VaccineWithPet{}, false, err
	}
	v, err := p.Deps.Store.GetVaccineWithPet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.VaccineWithPet{}, false, p.editReminder(ctx, req, "that record no longer exists")
		}
		return store.VaccineWithPet{}, false, err
	}
	if v.UserID != req.FromID {
		return store.VaccineWithPet{}, false, p.editReminder(ctx, req, "that record is not yours")
	}
	return v, true, nil
}

func (p *Plugin) editReminder(ctx context.Context, req *plugin.Request, text string) error {
	cb := req.Update.Callback
	if cb == nil {
		return nil
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	return req.Adapter.EditText(ctx, ref, text, nil)
}
