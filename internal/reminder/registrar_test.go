package reminder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vaxbot/internal/eventbus"
	"vaxbot/internal/notifier"
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

type fixture struct {
	st    *store.Store
	sched *scheduler.Service
	notif *notifier.Service
	reg   *Registrar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	sched := scheduler.New(scheduler.Config{Enabled: true, Timezone: "UTC"}, logx.Nop())
	notif := notifier.New(notifier.Config{Enabled: true}, nullAdapter{}, logx.Nop(), eventbus.New(), st)
	reg := NewRegistrar(st, sched, notif, eventbus.New(),
		Defaults{LeadDays: []int{7, 1, 0}, Hour: 9}, logx.Nop())
	return &fixture{st: st, sched: sched, notif: notif, reg: reg}
}

// seedVaccine creates an active user, a pet and one vaccine due at the given
// date, and returns the vaccine id.
func (f *fixture) seedVaccine(t *testing.T, due time.Time) int64 {
	t.Helper()
	ctx := context.Background()
	if err := f.st.UpsertUser(ctx, store.User{ID: 7, ChatID: 7, Username: "ada", Active: true}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	petID, err := f.st.CreatePet(ctx, store.Pet{UserID: 7, Name: "Rex", Species: "dog"})
	if err != nil {
		t.Fatalf("CreatePet: %v", err)
	}
	vaxID, err := f.st.CreateVaccine(ctx, store.Vaccine{PetID: petID, Name: "Rabies", DueAt: &due})
	if err != nil {
		t.Fatalf("CreateVaccine: %v", err)
	}
	return vaxID
}

func futureDue(days int) time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+days, 0, 0, 0, 0, time.UTC)
}

func TestScheduleIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vaxID := f.seedVaccine(t, futureDue(30))

	if err := f.reg.Schedule(ctx, vaxID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := f.reg.Schedule(ctx, vaxID); err != nil {
		t.Fatalf("Schedule (again): %v", err)
	}

	alarms, err := f.st.ListAlarmsForVaccine(ctx, vaxID)
	if err != nil {
		t.Fatalf("ListAlarmsForVaccine: %v", err)
	}
	if len(alarms) != 3 {
		t.Fatalf("expected one row per lead day, got %d", len(alarms))
	}

	seen := map[string]bool{}
	for _, a := range alarms {
		if seen[a.Name] {
			t.Fatalf("duplicate alarm row %s", a.Name)
		}
		seen[a.Name] = true
		if a.Name != Name(vaxID, a.LeadDays) {
			t.Fatalf("alarm name %s does not match lead %d", a.Name, a.LeadDays)
		}
		at, ok := f.sched.OnceAt(a.Name)
		if !ok {
			t.Fatalf("no pending timer for %s", a.Name)
		}
		if !at.Equal(a.FireAt) {
			t.Fatalf("timer %s pending at %v, row says %v", a.Name, at, a.FireAt)
		}
	}
}

func TestScheduleKeepsAlarmsWhileNotifierDisabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := futureDue(30)
	vaxID := f.seedVaccine(t, due)

	if err := f.reg.Schedule(ctx, vaxID); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	before, err := f.st.ListAlarmsForVaccine(ctx, vaxID)
	if err != nil || len(before) != 3 {
		t.Fatalf("seed alarms: %v (%d rows)", err, len(before))
	}
	fireAt := map[int]time.Time{}
	for _, a := range before {
		fireAt[a.LeadDays] = a.FireAt
	}

	// Delivery goes away, the record moves, and the user taps postpone.
	f.notif.Apply(notifier.Config{Enabled: false})

	moved := due.AddDate(0, 0, 7)
	v, err := f.st.GetVaccine(ctx, vaxID)
	if err != nil {
		t.Fatalf("GetVaccine: %v", err)
	}
	v.DueAt = &moved
	if err := f.st.UpdateVaccine(ctx, v); err != nil {
		t.Fatalf("UpdateVaccine: %v", err)
	}

	if err := f.reg.Schedule(ctx, vaxID); err != nil {
		t.Fatalf("Schedule with notifier disabled: %v", err)
	}
	kept, err := f.st.ListAlarmsForVaccine(ctx, vaxID)
	if err != nil {
		t.Fatalf("ListAlarmsForVaccine: %v", err)
	}
	if len(kept) != 3 {
		t.Fatalf("registered set was touched while notifier disabled: %d rows", len(kept))
	}
	for _, a := range kept {
		if !a.FireAt.Equal(fireAt[a.LeadDays]) {
			t.Fatalf("lead %d fire time changed while notifier disabled", a.LeadDays)
		}
		if _, ok := f.sched.OnceAt(a.Name); !ok {
			t.Fatalf("timer %s dropped while notifier disabled", a.Name)
		}
	}

	// Re-enable and reconcile: every fire time shifts with the due date.
	f.notif.Apply(notifier.Config{Enabled: true})
	if err := f.reg.RescheduleAll(ctx); err != nil {
		t.Fatalf("RescheduleAll: %v", err)
	}
	after, err := f.st.ListAlarmsForVaccine(ctx, vaxID)
	if err != nil {
		t.Fatalf("ListAlarmsForVaccine: %v", err)
	}
	if len(after) != 3 {
		t.Fatalf("expected 3 rows after reconcile, got %d", len(after))
	}
	for _, a := range after {
		want := fireAt[a.LeadDays].AddDate(0, 0, 7)
		if !a.FireAt.Equal(want) {
			t.Fatalf("lead %d fires at %v, want %v", a.LeadDays, a.FireAt, want)
		}
		at, ok := f.sched.OnceAt(a.Name)
		if !ok {
			t.Fatalf("no pending timer for %s after reconcile", a.Name)
		}
		if !at.Equal(want) {
			t.Fatalf("timer %s pending at %v, want %v", a.Name, at, want)
		}
	}
}
