package vaccines

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/reminder"
	"vaxbot/internal/store"
	logx "vaxbot/pkg/logx"
)

const dateLayout = "2006-01-02"

// Plugin manages vaccine records and the mark-done / postpone actions that
// drive the reminder lifecycle.
type Plugin struct {
	plugin.PluginBase
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "vaccines" }

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

// today returns the current calendar date in the scheduler timezone,
// normalized to a date-only UTC value like every stored date.
func (p *Plugin) today() time.Time {
	now := time.Now()
	if p.Deps.Scheduler != nil {
		now = now.In(p.Deps.Scheduler.Location())
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *Plugin) requireUser(ctx context.Context, req *plugin.Request) bool {
	u, err := p.Deps.Store.GetUser(ctx, req.FromID)
	if err != nil || !u.Active {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "use /start first", nil)
		return false
	}
	return true
}

func (p *Plugin) findPet(ctx context.Context, req *plugin.Request, name string) (store.Pet, bool) {
	pet, err := p.Deps.Store.GetPetByName(ctx, req.FromID, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "no pet named "+name+". see /pets", nil)
		} else {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "could not load the pet, try again", nil)
		}
		return store.Pet{}, false
	}
	return pet, true
}

// findVaccine resolves a vaccine id argument and checks ownership.
func (p *Plugin) findVaccine(ctx context.Context, req *plugin.Request, raw string) (store.VaccineWithPet, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "vaccine id must be a number (see /vax list)", nil)
		return store.VaccineWithPet{}, false
	}
	v, err := p.Deps.Store.GetVaccineWithPet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "no such vaccine record", nil)
		} else {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "could not load the record, try again", nil)
		}
		return store.VaccineWithPet{}, false
	}
	if v.UserID != req.FromID {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "that record is not yours", nil)
		return store.VaccineWithPet{}, false
	}
	return v, true
}

// reschedule re-registers reminders after a record change. Scheduling errors
// keep the record change (they are logged, not rolled back).
func (p *Plugin) reschedule(ctx context.Context, vaccineID int64) {
	if err := p.Deps.Registrar.Schedule(ctx, vaccineID); err != nil {
		p.Log.Warn("reschedule failed", logx.Int64("vaccine_id", vaccineID), logx.Any("err", err))
	}
}

// markDone sets administered = today; recurring vaccines advance the due
// date by their interval, one-time vaccines clear it.
func (p *Plugin) markDone(ctx context.Context, v store.VaccineWithPet) (store.Vaccine, error) {
	today := p.today()
	rec := v.Vaccine
	rec.AdministeredAt = &today
	if rec.Recurring && rec.RecurrenceMonths > 0 {
		due := reminder.NextDueDate(today, rec.RecurrenceMonths)
		rec.DueAt = &due
	} else {
		rec.DueAt = nil
	}
	if err := p.Deps.Store.UpdateVaccine(ctx, rec); err != nil {
		return store.Vaccine{}, err
	}
	if rec.DueAt != nil {
		p.reschedule(ctx, rec.ID)
	} else {
		if err := p.Deps.Registrar.Cancel(ctx, rec.ID); err != nil {
			p.Log.Warn("cancel after mark-done failed", logx.Int64("vaccine_id", rec.ID), logx.Any("err", err))
		}
	}
	return rec, nil
}

// postpone shifts the due date forward by a fixed week, regardless of the
// vaccine's own recurrence interval.
func (p *Plugin) postpone(ctx context.Context, v store.VaccineWithPet) (store.Vaccine, error) {
	if v.DueAt == nil {
		return store.Vaccine{}, errNoDueDate
	}
	rec := v.Vaccine
	due := v.DueAt.AddDate(0, 0, reminder.PostponeDays)
	rec.DueAt = &due
	if err := p.Deps.Store.UpdateVaccine(ctx, rec); err != nil {
		return store.Vaccine{}, err
	}
	p.reschedule(ctx, rec.ID)
	return rec, nil
}

func nextDue(rec store.Vaccine) *time.Time {
	if rec.AdministeredAt == nil || rec.RecurrenceMonths < 1 {
		return nil
	}
	d := reminder.NextDueDate(*rec.AdministeredAt, rec.RecurrenceMonths)
	return &d
}

var errNoDueDate = errors.New("vaccine has no due date")
