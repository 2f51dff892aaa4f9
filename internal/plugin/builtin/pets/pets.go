package pets

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/store"
	kit "vaxbot/internal/transport"
	logx "vaxbot/pkg/logx"
	"vaxbot/pkg/tgui"
)

const dateLayout = "2006-01-02"

// Plugin manages pet records: add, list, show (with photo), edit, delete.
// Deleting a pet cascades to its vaccines and cancels their reminders.
type Plugin struct {
	plugin.PluginBase
}

func New() *Plugin { return &Plugin{} }

func (p *Plugin) Name() string { return "pets" }

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
			Route:       "addpet",
			Description: "register a pet",
			Usage:       `/addpet "Name" <species> [breed] [--born YYYY-MM-DD]`,
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdAdd,
		},
		{
			Route:       "pets",
			Description: "list your pets",
			Usage:       "/pets",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdList,
		},
		{
			Route:       "pet",
			Description: "show one pet",
			Usage:       "/pet <name>",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdShow,
		},
		{
			Route:       "pet edit",
			Description: "rename a pet or correct its breed / birth date",
			Usage:       `/pet edit <name> [--name "New"] [--breed "..."] [--born YYYY-MM-DD|none]`,
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdEdit,
		},
		{
			Route:       "petphoto",
			Description: "attach a photo to a pet (send a photo with this caption)",
			Usage:       "/petphoto <name>",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdPhoto,
		},
		{
			Route:       "delpet",
			Description: "delete a pet and all its vaccines",
			Usage:       "/delpet <name>",
			Access:      plugin.AccessEveryone,
			Timeout:     10 * time.Second,
			Handle:      p.cmdDelete,
		},
	}
}

func (p *Plugin) Callbacks() []plugin.CallbackRoute {
	return []plugin.CallbackRoute{
		{
			Plugin:  p.Name(),
			Action:  "del",
			Access:  plugin.CallbackAccessEveryone,
			Timeout: 15 * time.Second,
			Handle:  p.cbDelete,
		},
		{
			Plugin:  p.Name(),
			Action:  "keep",
			Access:  plugin.CallbackAccessEveryone,
			Timeout: 5 * time.Second,
			Handle:  p.cbKeep,
		},
	}
}

func (p *Plugin) requireUser(ctx context.Context, req *plugin.Request) (store.User, bool) {
	u, err := p.Deps.Store.GetUser(ctx, req.FromID)
	if err != nil || !u.Active {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "use /start first", nil)
		return store.User{}, false
	}
	return u, true
}

func (p *Plugin) cmdAdd(ctx context.Context, req *plugin.Request) error {
	if _, ok := p.requireUser(ctx, req); !ok {
		return nil
	}
	if len(req.Args) < 2 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, `usage: /addpet "Name" <species> [breed] [--born YYYY-MM-DD]`, nil)
		return nil
	}
	name := strings.TrimSpace(req.Args[0])
	species := strings.ToLower(strings.TrimSpace(req.Args[1]))
	if name == "" || species == "" {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "name and species are required", nil)
		return nil
	}
	breed := ""
	if len(req.Args) > 2 {
		breed = strings.Join(req.Args[2:], " ")
	}

	var born *time.Time
	if raw, ok := req.Flags["born"]; ok {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "birth date must be YYYY-MM-DD", nil)
			return nil
		}
		if t.After(time.Now()) {
			_, _ = req.Adapter.SendText(ctx, req.Chat, "birth date is in the future", nil)
			return nil
		}
		born = &t
	}

	if _, err := p.Deps.Store.GetPetByName(ctx, req.FromID, name); err == nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "you already have a pet with that name", nil)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	id, err := p.Deps.Store.CreatePet(ctx, store.Pet{
		UserID:    req.FromID,
		Name:      name,
		Species:   species,
		Breed:     breed,
		BirthDate: born,
	})
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not save the pet, try again", nil)
		return err
	}
	p.Log.Info("pet created", logx.Int64("pet_id", id), logx.Int64("user_id", req.FromID))

	msg := tgui.New().
		Title("🐾", name+" registered").
		KV("Species", species).
		Build()
	_, err = msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdList(ctx context.Context, req *plugin.Request) error {
	if _, ok := p.requireUser(ctx, req); !ok {
		return nil
	}
	pets, err := p.Deps.Store.ListPetsByUser(ctx, req.FromID)
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not load your pets, try again", nil)
		return err
	}
	if len(pets) == 0 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "no pets yet. add one with /addpet", nil)
		return nil
	}

	b := tgui.New().Title("🐾", "Your pets")
	for _, pet := range pets {
		line := tgui.B(pet.Name).String() + " — " + tgui.Esc(describePet(pet)).String()
		b.RawLine("• " + line)
	}
	_, err = b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdShow(ctx context.Context, req *plugin.Request) error {
	if _, ok := p.requireUser(ctx, req); !ok {
		return nil
	}
	pet, ok := p.findPet(ctx, req)
	if !ok {
		return nil
	}

	b := tgui.New().Title("🐾", pet.Name).
		KV("Species", pet.Species)
	if pet.Breed != "" {
		b.KV("Breed", pet.Breed)
	}
	if pet.BirthDate != nil {
		b.KV("Born", pet.BirthDate.Format(dateLayout))
	}

	vaccines, err := p.Deps.Store.ListVaccinesByPet(ctx, pet.ID)
	if err == nil && len(vaccines) > 0 {
		b.Blank().Section("Vaccines")
		for _, v := range vaccines {
			b.RawLine("• " + tgui.Esc(describeVaccine(v)).String())
		}
	}
	text := b.Build()

	if pet.PhotoFileID != "" {
		if ps, okPS := req.Adapter.(kit.PhotoSender); okPS {
			_, err := ps.SendPhoto(ctx, req.Chat, pet.PhotoFileID, text.Text, &kit.SendOptions{ParseMode: "HTML"})
			if err == nil {
				return nil
			}
			p.Log.Warn("photo send failed, falling back to text", logx.Int64("pet_id", pet.ID), logx.Any("err", err))
		}
	}
	_, err = text.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cmdEdit(ctx context.Context, req *plugin.Request) error {
	if _, ok := p.requireUser(ctx, req); !ok {
		return nil
	}
	pet, ok := p.findPet(ctx, req)
	if !ok {
		return nil
	}

	changed, err := applyPetEdits(&pet, req.Flags, time.Now())
	if err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, err.Error(), nil)
		return nil
	}
	if !changed {
		_, _ = req.Adapter.SendText(ctx, req.Chat, `nothing to change. usage: /pet edit <name> [--name "New"] [--breed "..."] [--born YYYY-MM-DD|none]`, nil)
		return nil
	}

	// Renames must not collide with another of the user's pets.
	if other, err := p.Deps.Store.GetPetByName(ctx, req.FromID, pet.Name); err == nil && other.ID != pet.ID {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "you already have a pet with that name", nil)
		return nil
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := p.Deps.Store.UpdatePet(ctx, pet); err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not save the pet, try again", nil)
		return err
	}
	p.Log.Info("pet updated", logx.Int64("pet_id", pet.ID), logx.Int64("user_id", req.FromID))
	_, _ = req.Adapter.SendText(ctx, req.Chat, pet.Name+" updated", nil)
	return nil
}

// applyPetEdits mutates the pet from the edit flags and reports whether
// anything changed. "--born none" clears the birth date.
func applyPetEdits(pet *store.Pet, flags map[string]string, now time.Time) (bool, error) {
	changed := false
	if raw, ok := flags["name"]; ok {
		name := strings.TrimSpace(raw)
		if name == "" {
			return false, errors.New("the new name must not be empty")
		}
		if name != pet.Name {
			pet.Name = name
			changed = true
		}
	}
	if raw, ok := flags["breed"]; ok {
		breed := strings.TrimSpace(raw)
		if breed != pet.Breed {
			pet.Breed = breed
			changed = true
		}
	}
	if raw, ok := flags["born"]; ok {
		if strings.EqualFold(strings.TrimSpace(raw), "none") {
			if pet.BirthDate != nil {
				pet.BirthDate = nil
				changed = true
			}
			return changed, nil
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return false, errors.New("birth date must be YYYY-MM-DD or none")
		}
		if t.After(now) {
			return false, errors.New("birth date is in the future")
		}
		if pet.BirthDate == nil || !pet.BirthDate.Equal(t) {
			pet.BirthDate = &t
			changed = true
		}
	}
	return changed, nil
}

func (p *Plugin) cmdPhoto(ctx context.Context, req *plugin.Request) error {
	if _, ok := p.requireUser(ctx, req); !ok {
		return nil
	}
	if req.Update.Message == nil || req.Update.Message.PhotoFileID == "" {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "send a photo with the caption /petphoto <name>", nil)
		return nil
	}
	pet, ok := p.findPet(ctx, req)
	if !ok {
		return nil
	}
	if err := p.Deps.Store.UpdatePetPhoto(ctx, pet.ID, req.Update.Message.PhotoFileID); err != nil {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "could not save the photo, try again", nil)
		return err
	}
	_, _ = req.Adapter.SendText(ctx, req.Chat, "photo saved for "+pet.Name, nil)
	return nil
}

func (p *Plugin) cmdDelete(ctx context.Context, req *plugin.Request) error {
	if _, ok := p.requireUser(ctx, req); !ok {
		return nil
	}
	pet, ok := p.findPet(ctx, req)
	if !ok {
		return nil
	}

	kb := tgui.ConfirmInline(
		tgui.Btn("🗑 Delete", tgui.Data(p.Name(), "del", strconv.FormatInt(pet.ID, 10))),
		tgui.Btn("Keep", tgui.Data(p.Name(), "keep", "")),
	)
	msg := tgui.New().
		Title("⚠️", "Delete "+pet.Name+"?").
		Line("This removes the pet, all its vaccines and their reminders.").
		Inline(kb).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (p *Plugin) cbDelete(ctx context.Context, req *plugin.Request, payload string) error {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return fmt.Errorf("bad payload %q: %w", payload, err)
	}
	pet, err := p.Deps.Store.GetPet(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return p.editCallbackMessage(ctx, req, "already deleted")
		}
		return err
	}
	if pet.UserID != req.FromID {
		return p.editCallbackMessage(ctx, req, "that pet is not yours")
	}

	// Cancel reminders first; the row delete cascades vaccines and alarm rows,
	// but the in-process timers are only dropped through the registrar.
	vaccines, err := p.Deps.Store.ListVaccinesByPet(ctx, pet.ID)
	if err != nil {
		return err
	}
	for _, v := range vaccines {
		if err := p.Deps.Registrar.Cancel(ctx, v.ID); err != nil {
			p.Log.Warn("cancel on pet delete failed", logx.Int64("vaccine_id", v.ID), logx.Any("err", err))
		}
	}
	if err := p.Deps.Store.DeletePet(ctx, pet.ID); err != nil {
		return err
	}
	p.Log.Info("pet deleted", logx.Int64("pet_id", pet.ID), logx.Int64("user_id", req.FromID), logx.Int("vaccines", len(vaccines)))
	return p.editCallbackMessage(ctx, req, pet.Name+" deleted")
}

func (p *Plugin) cbKeep(ctx context.Context, req *plugin.Request, payload string) error {
	return p.editCallbackMessage(ctx, req, "kept")
}

func (p *Plugin) editCallbackMessage(ctx context.Context, req *plugin.Request, text string) error {
	cb := req.Update.Callback
	if cb == nil {
		return nil
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	return req.Adapter.EditText(ctx, ref, text, nil)
}

func (p *Plugin) findPet(ctx context.Context, req *plugin.Request) (store.Pet, bool) {
	if len(req.Args) == 0 {
		_, _ = req.Adapter.SendText(ctx, req.Chat, "which pet? give its name", nil)
		return store.Pet{}, false
	}
	name := strings.Join(req.Args, " ")
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

func describePet(pet store.Pet) string {
	parts := []string{pet.Species}
	if pet.Breed != "" {
		parts = append(parts, pet.Breed)
	}
	if pet.BirthDate != nil {
		parts = append(parts, "born "+pet.BirthDate.Format(dateLayout))
	}
	return strings.Join(parts, ", ")
}

func describeVaccine(v store.Vaccine) string {
	switch {
	case v.DueAt != nil:
		return v.Name + " — due " + v.DueAt.Format(dateLayout)
	case v.AdministeredAt != nil:
		return v.Name + " — given " + v.AdministeredAt.Format(dateLayout)
	default:
		return v.Name + " — recommended, not yet given"
	}
}
