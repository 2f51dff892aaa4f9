package vaccines

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"vaxbot/internal/duesoon"
	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/reminder"
	"vaxbot/internal/store"
	logx "vaxbot/pkg/logx"
	"vaxbot/pkg/tgui"
)

func (p *Plugin) Commands() []plugin.Command {
	return []plugin.Command{
		{
			Route:       "vax add",
			Aliases:     []string{"addvax"},
			Description: "record a vaccine",
			Usage:       `/vax add <pet> "Name" [--given YYYY-MM-DD] [--due YYYY-MM-DD] [--every N] [--notes "..."]`,
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdAdd,
		},
		{
			Route:       "vax list",
			Description: "list vaccines with urgency",
			Usage:       "/vax list [pet]",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdList,
		},
		{
			Route:       "vax edit",
			Description: "edit a vaccine record",
			Usage:       `/vax edit <id> [--name "..."] [--given YYYY-MM-DD] [--due YYYY-MM-DD] [--every N] [--notes "..."]`,
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdEdit,
		},
		{
			Route:       "vax del",
			Description: "delete a vaccine record",
			Usage:       "/vax del <id>",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdDelete,
		},
		{
			Route:       "vax done",
			Description: "mark a vaccine as administered today",
			Usage:       "/vax done <id>",
			Access:      plugin.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      p.cmdDone,
		},
		{
			Route:       "vax postpone",
			Description: "postpone a due date by 7 days",
			Usage:       "/vax postpone <id>",
			Access:      plugin.AccessEveryone,
			Timeout:     15 * time.Second,
			Handle:      p.cmdPostpone,
		},
		{
			Route:       "vax history",
			Description: "vaccination history, newest first",
			Usage:       "/vax history [pet]",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdHistory,
		},
		{
			Route:       "vax template",
			Description: "seed recommended vaccines for a pet's species",
			Usage:       "/vax template <pet>",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdTemplate,
		},
	}
}

func (p *Plugin) cmdAdd(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}
	if len(req.Args) < 2 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, `usage: /vax add <pet> "Name" [--given YYYY-MM-DD] [--due YYYY-MM-DD] [--every N]`, nil)
		return nil
	}
	pet, ok := p.findPet(ctx, req, req.Args[0])
	if !ok {
		return nil
	}
	name := strings.TrimSpace(strings.Join(req.Args[1:], " "))
	if name == "" {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "the vaccine needs a name", nil)
		return nil
	}

	rec := store.Vaccine{PetID: pet.ID, Name: name, Notes: req.Flags["notes"]}
	if !p.applyDateFlags(ctx, req, &rec) {
		return nil
	}
	if rec.Recurring && rec.AdministeredAt != nil && rec.DueAt == nil {
		rec.DueAt = nextDue(rec)
	}

	id, err := p.Deps.Store.CreateVaccine(ctx, rec)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not save the record, try again", nil)
		return err
	}
	if rec.DueAt != nil {
		p.reschedule(ctx, id)
	}
	p.Log.Info("vaccine created", logx.Int64("vaccine_id", id), logx.Int64("pet_id", pet.ID))

	b := tgui.New().Title("💉", name+" recorded for "+pet.Name).
		KV("Id", "#"+strconv.FormatInt(id, 10))
	if rec.AdministeredAt != nil {
		b.KV("Given", rec.AdministeredAt.Format(dateLayout))
	}
	if rec.DueAt != nil {
		b.KV("Next due", rec.DueAt.Format(dateLayout))
	} else if rec.AdministeredAt == nil {
		b.Line("Marked as recommended. Use /vax done #" + strconv.FormatInt(id, 10) + " once given.")
	}
	if rec.Recurring {
		b.KV("Repeats", "every "+strconv.Itoa(rec.RecurrenceMonths)+" months")
	}
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

// applyDateFlags parses --given/--due/--every into rec. Reports problems to
// the chat and returns false when input is rejected.
func (p *Plugin) applyDateFlags(ctx context.Context, req *plugin.Request, rec *store.Vaccine) bool {
	if raw, ok := req.Flags["given"]; ok {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "administered date must be YYYY-MM-DD", nil)
			return false
		}
		if t.After(p.today()) {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "administered date is in the future", nil)
			return false
		}
		rec.AdministeredAt = &t
	}
	if raw, ok := req.Flags["due"]; ok {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "due date must be YYYY-MM-DD", nil)
			return false
		}
		rec.DueAt = &t
	}
	if raw, ok := req.Flags["every"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 12 {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "--every takes months, 1..12", nil)
			return false
		}
		rec.Recurring = true
		rec.RecurrenceMonths = n
	}
	return true
}

func (p *Plugin) cmdList(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}

	var (
		items []store.VaccineWithPet
		err   error
		title = "All vaccines"
	)
	if len(req.Args) > 0 {
		pet, ok := p.findPet(ctx, req, strings.Join(req.Args, " "))
		if !ok {
			return nil
		}
		vs, lerr := p.Deps.Store.ListVaccinesByPet(ctx, pet.ID)
		err = lerr
		for _, v := range vs {
			items = append(items, store.VaccineWithPet{Vaccine: v, PetName: pet.Name, UserID: req.FromID})
		}
		title = pet.Name + "'s vaccines"
	} else {
		items, err = p.Deps.Store.ListVaccinesByUser(ctx, req.FromID)
	}
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not load the records, try again", nil)
		return err
	}
	if len(items) == 0 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "no vaccine records yet. add one with /vax add", nil)
		return nil
	}

	today := p.today()
	b := tgui.New().Title("💉", title)
	for _, v := range items {
		b.RawLine("• " + describeWithUrgency(v, today))
	}
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func describeWithUrgency(v store.VaccineWithPet, today time.Time) string {
	id := "#" + strconv.FormatInt(v.ID, 10)
	head := tgui.B(v.PetName).String() + ": " + tgui.Esc(v.Name).String() + " " + tgui.Code(id).String()
	if v.DueAt == nil {
		if v.AdministeredAt != nil {
			return head + " — given " + v.AdministeredAt.Format(dateLayout)
		}
		return head + " — recommended, not yet given"
	}
	switch duesoon.Classify(reminder.DaysUntil(*v.DueAt, today)) {
	case duesoon.Overdue:
		return head + " — 🔴 overdue since " + v.DueAt.Format(dateLayout)
	case duesoon.DueThisWeek:
		return head + " — 🟡 due " + v.DueAt.Format(dateLayout)
	default:
		return head + " — due " + v.DueAt.Format(dateLayout)
	}
}

func (p *Plugin) cmdEdit(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}
	if len(req.Args) < 1 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "usage: /vax edit <id> [--name ...] [--given ...] [--due ...] [--every N] [--notes ...]", nil)
		return nil
	}
	v, ok := p.findVaccine(ctx, req, req.Args[0])
	if !ok {
		return nil
	}

	rec := v.Vaccine
	if name, okF := req.Flags["name"]; okF && strings.TrimSpace(name) != "" {
		rec.Name = strings.TrimSpace(name)
	}
	if notes, okF := req.Flags["notes"]; okF {
		rec.Notes = notes
	}
	if req.BoolFlags["once"] {
		rec.Recurring = false
		rec.RecurrenceMonths = 0
	}
	if !p.applyDateFlags(ctx, req, &rec) {
		return nil
	}

	if err := p.Deps.Store.UpdateVaccine(ctx, rec); err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not save the record, try again", nil)
		return err
	}
	// Due date may have moved in either direction; re-register from scratch.
	if rec.DueAt != nil {
		p.reschedule(ctx, rec.ID)
	} else {
		if err := p.Deps.Registrar.Cancel(ctx, rec.ID); err != nil {
			p.Log.Warn("cancel after edit failed", logx.Int64("vaccine_id", rec.ID), logx.Any("err", err))
		}
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, "record updated", nil)
	return nil
}

func (p *Plugin) cmdDelete(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}
	if len(req.Args) < 1 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "usage: /vax del <id>", nil)
		return nil
	}
	v, ok := p.findVaccine(ctx, req, req.Args[0])
	if !ok {
		return nil
	}
	if err := p.Deps.Registrar.Cancel(ctx, v.ID); err != nil {
		p.Log.Warn("cancel on delete failed", logx.Int64("vaccine_id", v.ID), logx.Any("err", err))
	}
	if err := p.Deps.Store.DeleteVaccine(ctx, v.ID); err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not delete the record, try again", nil)
		return err
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, v.Name+" deleted", nil)
	return nil
}

func (p *Plugin) cmdDone(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}
	if len(req.Args) < 1 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "usage: /vax done <id>", nil)
		return nil
	}
	v, ok := p.findVaccine(ctx, req, req.Args[0])
	if !ok {
		return nil
	}
	rec, err := p.markDone(ctx, v)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not update the record, try again", nil)
		return err
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, doneText(v.PetName, rec), nil)
	return nil
}

func (p *Plugin) cmdPostpone(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}
	if len(req.Args) < 1 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "usage: /vax postpone <id>", nil)
		return nil
	}
	v, ok := p.findVaccine(ctx, req, req.Args[0])
	if !ok {
		return nil
	}
	rec, err := p.postpone(ctx, v)
	if err != nil {
		if err == errNoDueDate {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "that vaccine has no due date to postpone", nil)
			return nil
		}
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not update the record, try again", nil)
		return err
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, postponeText(v.PetName, rec), nil)
	return nil
}

func (p *Plugin) cmdHistory(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}

	var (
		items []store.VaccineWithPet
		err   error
	)
	if len(req.Args) > 0 {
		pet, ok := p.findPet(ctx, req, strings.Join(req.Args, " "))
		if !ok {
			return nil
		}
		vs, lerr := p.Deps.Store.ListVaccinesByPet(ctx, pet.ID)
		err = lerr
		for _, v := range vs {
			items = append(items, store.VaccineWithPet{Vaccine: v, PetName: pet.Name, UserID: req.FromID})
		}
	} else {
		items, err = p.Deps.Store.ListVaccinesByUser(ctx, req.FromID)
	}
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not load the records, try again", nil)
		return err
	}

	given := items[:0:0]
	for _, v := range items {
		if v.AdministeredAt != nil {
			given = append(given, v)
		}
	}
	if len(given) == 0 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "no administered vaccines yet", nil)
		return nil
	}
	sort.SliceStable(given, func(i, j int) bool {
		return given[i].AdministeredAt.After(*given[j].AdministeredAt)
	})

	b := tgui.New().Title("📋", "Vaccination history")
	for _, v := range given {
		line := v.AdministeredAt.Format(dateLayout) + " — " +
			tgui.B(v.PetName).String() + ": " + tgui.Esc(v.Name).String()
		if v.Recurring && v.DueAt != nil {
			line += " (next " + v.DueAt.Format(dateLayout) + ")"
		}
		b.RawLine("• " + line)
	}
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func doneText(petName string, rec store.Vaccine) string {
	if rec.DueAt != nil {
		return petName + "'s " + rec.Name + " marked as done. Next due " + rec.DueAt.Format(dateLayout) + "."
	}
	return petName + "'s " + rec.Name + " marked as done."
}

func postponeText(petName string, rec store.Vaccine) string {
	return petName + "'s " + rec.Name + " postponed to " + rec.DueAt.Format(dateLayout) + "."
}
