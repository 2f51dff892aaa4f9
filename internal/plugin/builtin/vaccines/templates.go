package vaccines

import (
	"context"

	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/store"
	logx "vaxbot/pkg/logx"
	"vaxbot/pkg/tgui"
)

// speciesTemplates lists the core vaccines recommended per species. Seeded
// records carry no administered or due date; they become schedulable once
// marked done (or edited with dates).
var speciesTemplates = map[string][]string{
	"dog": {"Rabies", "Distemper (DHPP)", "Bordetella", "Leptospirosis"},
	"cat": {"Rabies", "FVRCP", "FeLV", "FIV"},
}

func (p *Plugin) cmdTemplate(ctx context.Context, req *plugin.Request) error {
	if !p.requireUser(ctx, req) {
		return nil
	}
	if len(req.Args) < 1 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "usage: /vax template <pet>", nil)
		return nil
	}
	pet, ok := p.findPet(ctx, req, req.Args[0])
	if !ok {
		return nil
	}
	names, ok := speciesTemplates[pet.Species]
	if !ok {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "no template for species "+pet.Species, nil)
		return nil
	}

	existing, err := p.Deps.Store.ListVaccinesByPet(ctx, pet.ID)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not load the records, try again", nil)
		return err
	}
	have := map[string]bool{}
	for _, v := range existing {
		have[v.Name] = true
	}

	added := 0
	for _, name := range names {
		if have[name] {
			continue
		}
		if _, err := p.Deps.Store.CreateVaccine(ctx, store.Vaccine{PetID: pet.ID, Name: name}); err != nil {
			p.Log.Warn("template seed failed", logx.String("vaccine", name), logx.Int64("pet_id", pet.ID), logx.Any("err", err))
			continue
		}
		added++
	}
	if added == 0 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, pet.Name+" already has every recommended vaccine on record", nil)
		return nil
	}

	msg := tgui.New().
		Title("💉", "Recommended vaccines added for "+pet.Name).
		Line("Mark each as done once administered; reminders start from there.").
		Bullets(names...).
		Build()
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}
