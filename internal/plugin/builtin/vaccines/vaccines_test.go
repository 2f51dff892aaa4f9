package vaccines

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"vaxbot/internal/eventbus"
	"vaxbot/internal/notifier"
	plugin "vaxbot/internal/plugin"
	"vaxbot/internal/reminder"
	"vaxbot/internal/scheduler"
	"vaxbot/internal/store"
	kit "vaxbot/internal/transport"
	logx "vaxbot/pkg/logx"
)

type nullAdapter struct{}

func (nullAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (nullAdapter) Stop(ctx context.Context) error                         { return nil }
func (nullAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}
func (nullAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}
func (nullAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func newTestPlugin(t *testing.T) (*Plugin, *store.Store) {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sched := scheduler.New(scheduler.Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	notif := notifier.New(notifier.Config{Enabled: true}, nullAdapter{}, logx.Nop(), eventbus.New(), st)
	reg := reminder.NewRegistrar(st, sched, notif, eventbus.New(),
		reminder.Defaults{LeadDays: []int{7, 1, 0}, Hour: 9}, logx.Nop())

	p := New()
	if err := p.Init(context.Background(), plugin.PluginDeps{
		Logger:    logx.Nop(),
		Adapter:   nullAdapter{},
		Store:     st,
		Scheduler: sched,
		Notifier:  notif,
		Registrar: reg,
	}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return p, st
}

func seedVaccine(t *testing.T, st *store.Store, v store.Vaccine) store.VaccineWithPet {
	t.Helper()
	ctx := context.Background()
	if err := st.UpsertUser(ctx, store.User{ID: 7, ChatID: 7, Username: "ada", Active: true}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	pet, err := st.GetPetByName(ctx, 7, "Rex")
	if errors.Is(err, store.ErrNotFound) {
		id, cerr := st.CreatePet(ctx, store.Pet{UserID: 7, Name: "Rex", Species: "dog"})
		if cerr != nil {
			t.Fatalf("CreatePet: %v", cerr)
		}
		pet.ID = id
	} else if err != nil {
		t.Fatalf("GetPetByName: %v", err)
	}
	v.PetID = pet.ID
	id, err := st.CreateVaccine(ctx, v)
	if err != nil {
		t.Fatalf("CreateVaccine: %v", err)
	}
	out, err := st.GetVaccineWithPet(ctx, id)
	if err != nil {
		t.Fatalf("GetVaccineWithPet: %v", err)
	}
	return out
}

func TestMarkDoneRecurring(t *testing.T) {
	p, st := newTestPlugin(t)
	ctx := context.Background()
	due := p.today()
	v := seedVaccine(t, st, store.Vaccine{
		Name: "Rabies", DueAt: &due, Recurring: true, RecurrenceMonths: 12,
	})

	rec, err := p.markDone(ctx, v)
	if err != nil {
		t.Fatalf("markDone: %v", err)
	}

	today := p.today()
	if rec.AdministeredAt == nil || !rec.AdministeredAt.Equal(today) {
		t.Fatalf("AdministeredAt = %v, want %v", rec.AdministeredAt, today)
	}
	wantDue := reminder.NextDueDate(today, 12)
	if rec.DueAt == nil || !rec.DueAt.Equal(wantDue) {
		t.Fatalf("DueAt = %v, want %v", rec.DueAt, wantDue)
	}

	// The persisted record matches what was returned.
	stored, err := st.GetVaccine(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetVaccine: %v", err)
	}
	if stored.DueAt == nil || !stored.DueAt.Equal(wantDue) {
		t.Fatalf("stored DueAt = %v, want %v", stored.DueAt, wantDue)
	}
}

func TestMarkDoneOneTime(t *testing.T) {
	p, st := newTestPlugin(t)
	ctx := context.Background()
	due := p.today().AddDate(0, 0, 3)
	v := seedVaccine(t, st, store.Vaccine{Name: "FeLV", DueAt: &due})

	if err := p.Deps.Registrar.Schedule(ctx, v.ID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	rec, err := p.markDone(ctx, v)
	if err != nil {
		t.Fatalf("markDone: %v", err)
	}
	if rec.DueAt != nil {
		t.Fatalf("one-time vaccine kept a due date: %v", rec.DueAt)
	}
	if rec.AdministeredAt == nil {
		t.Fatal("AdministeredAt not set")
	}

	alarms, err := st.ListAlarmsForVaccine(ctx, v.ID)
	if err != nil {
		t.Fatalf("ListAlarmsForVaccine: %v", err)
	}
	if len(alarms) != 0 {
		t.Fatalf("expected alarms cancelled after mark-done, got %d rows", len(alarms))
	}
}

func TestPostpone(t *testing.T) {
	p, st := newTestPlugin(t)
	ctx := context.Background()
	due := p.today().AddDate(0, 0, 2)
	v := seedVaccine(t, st, store.Vaccine{Name: "Bordetella", DueAt: &due})

	rec, err := p.postpone(ctx, v)
	if err != nil {
		t.Fatalf("postpone: %v", err)
	}
	want := due.AddDate(0, 0, 7)
	if rec.DueAt == nil || !rec.DueAt.Equal(want) {
		t.Fatalf("DueAt = %v, want exactly %v", rec.DueAt, want)
	}
	if rec.AdministeredAt != nil {
		t.Fatalf("postpone must not touch AdministeredAt, got %v", rec.AdministeredAt)
	}

	stored, err := st.GetVaccine(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetVaccine: %v", err)
	}
	if stored.DueAt == nil || !stored.DueAt.Equal(want) {
		t.Fatalf("stored DueAt = %v, want %v", stored.DueAt, want)
	}
}

func TestPostponeWithoutDueDate(t *testing.T) {
	p, st := newTestPlugin(t)
	v := seedVaccine(t, st, store.Vaccine{Name: "FIV"})

	if _, err := p.postpone(context.Background(), v); !errors.Is(err, errNoDueDate) {
		t.Fatalf("expected errNoDueDate, got %v", err)
	}
}
