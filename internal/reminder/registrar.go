package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vaxbot/internal/eventbus"
	"vaxbot/internal/notifier"
	"vaxbot/internal/scheduler"
	"vaxbot/internal/store"
	kit "vaxbot/internal/transport"
	logx "vaxbot/pkg/logx"
)

// Defaults is the installation-wide reminder preference applied to users who
// never saved their own.
type Defaults struct {
	LeadDays []int
	Hour     int
	Minute   int
}

// AlarmsEvent is the payload of alarms.updated bus events. The digest
// subscribes to it to refresh the user's summary message.
type AlarmsEvent struct {
	UserID int64
}

// FiredEvent is the payload of reminder.fired bus events.
type FiredEvent struct {
	VaccineID int64
	UserID    int64
	LeadDays  int
}

// Registrar owns the reminder timer set. One timer per vaccine/lead-day
// pair, named "vaccine:<id>:lead:<days>". The alarms table mirrors the
// registered set so cancellation never guesses and restarts rebuild exactly
// what was pending.
type Registrar struct {
	mu       sync.Mutex
	defaults Defaults

	log   logx.Logger
	st    *store.Store
	sched *scheduler.Service
	notif *notifier.Service
	bus   eventbus.Bus
}

func NewRegistrar(st *store.Store, sched *scheduler.Service, notif *notifier.Service, bus eventbus.Bus, defaults Defaults, log logx.Logger) *Registrar {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registrar{
		defaults: defaults,
		log:      log,
		st:       st,
		sched:    sched,
		notif:    notif,
		bus:      bus,
	}
}

// Apply swaps the installation defaults (config hot reload).
func (r *Registrar) Apply(d Defaults) {
	r.mu.Lock()
	r.defaults = d
	r.mu.Unlock()
}

// Name returns the deterministic timer identifier for a vaccine/lead-day pair.
func Name(vaccineID int64, leadDays int) string {
	return fmt.Sprintf("vaccine:%d:lead:%d", vaccineID, leadDays)
}

// settingsFor resolves the effective reminder preference for a user.
func (r *Registrar) settingsFor(ctx context.Context, userID int64) (leads []int, hour, minute int) {
	r.mu.Lock()
	d := r.defaults
	r.mu.Unlock()

	leads, hour, minute = d.LeadDays, d.Hour, d.Minute
	rs, ok, err := r.st.GetReminderSettings(ctx, userID)
	if err != nil {
		r.log.Warn("reminder settings lookup failed; using defaults", logx.Int64("user_id", userID), logx.Err(err))
		return leads, hour, minute
	}
	if ok {
		leads, hour, minute = rs.LeadDays, rs.Hour, rs.Minute
	}
	return leads, hour, minute
}

// Schedule registers the reminder timers for one vaccine, replacing whatever
// set was registered before. Re-scheduling with an unchanged due date and
// settings is a no-op in effect: the same names get the same fire times.
//
// Registration is skipped with the old set cancelled when the record itself
// has nothing to deliver: no due date, or the user never activated the bot.
// A disabled notifier skips registration WITHOUT touching the persisted set,
// so RescheduleAll can recover it when the notifier comes back.
func (r *Registrar) Schedule(ctx context.Context, vaccineID int64) error {
	v, err := r.st.GetVaccineWithPet(ctx, vaccineID)
	if errors.Is(err, store.ErrNotFound) {
		return r.Cancel(ctx, vaccineID)
	}
	if err != nil {
		return err
	}

	if v.DueAt == nil {
		return r.Cancel(ctx, vaccineID)
	}

	u, err := r.st.GetUser(ctx, v.UserID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !u.Active) {
		r.log.Debug("reminders skipped: user has no active chat", logx.Int64("vaccine_id", vaccineID), logx.Int64("user_id", v.UserID))
		return r.Cancel(ctx, vaccineID)
	}
	if err != nil {
		return err
	}
	if r.notif == nil || !r.notif.Enabled() {
		// Keep whatever was registered: a timer that fires while delivery is
		// off fails and keeps its row, and re-enabling reconciles everything.
		r.log.Warn("registration skipped: notifier disabled", logx.Int64("vaccine_id", vaccineID))
		return nil
	}

	leads, hour, minute := r.settingsFor(ctx, v.UserID)
	loc := r.sched.Location()
	instants := Instants(*v.DueAt, leads, hour, minute, time.Now(), loc)

	desired := instants2map(instants, vaccineID)

	// Drop previously registered timers that are no longer wanted.
	prev, err := r.st.ListAlarmsForVaccine(ctx, vaccineID)
	if err != nil {
		return err
	}
	for _, a := range prev {
		if _, keep := desired[a.Name]; keep {
			continue
		}
		r.sched.Remove(a.Name)
		if err := r.st.DeleteAlarm(ctx, a.Name); err != nil {
			return err
		}
	}

	// Register (upsert) the wanted set.
	for name, in := range desired {
		job := r.fireJob(name, vaccineID, in.LeadDays)
		if _, err := r.sched.AddOnce(name, in.At, 0, job); err != nil {
			return err
		}
		if err := r.st.UpsertAlarm(ctx, store.Alarm{
			Name:      name,
			VaccineID: vaccineID,
			UserID:    v.UserID,
			LeadDays:  in.LeadDays,
			FireAt:    in.At,
		}); err != nil {
			return err
		}
	}

	r.log.Debug("reminders scheduled",
		logx.Int64("vaccine_id", vaccineID),
		logx.Int("instants", len(instants)),
		logx.Int("dropped_past", len(leads)-len(instants)))
	r.publishUpdated(v.UserID)
	return nil
}

func instants2map(instants []Instant, vaccineID int64) map[string]Instant {
	m := make(map[string]Instant, len(instants))
	for _, in := range instants {
		m[Name(vaccineID, in.LeadDays)] = in
	}
	return m
}

// Cancel removes every registered timer for a vaccine, using the persisted
// set rather than guessing identifiers from the current settings.
func (r *Registrar) Cancel(ctx context.Context, vaccineID int64) error {
	alarms, err := r.st.ListAlarmsForVaccine(ctx, vaccineID)
	if err != nil {
		return err
	}
	if len(alarms) == 0 {
		return nil
	}
	userID := alarms[0].UserID
	for _, a := range alarms {
		r.sched.Remove(a.Name)
	}
	if err := r.st.DeleteAlarmsForVaccine(ctx, vaccineID); err != nil {
		return err
	}
	r.publishUpdated(userID)
	return nil
}

// CancelUser removes every registered timer across a user's vaccines,
// e.g. on /stop or account removal.
func (r *Registrar) CancelUser(ctx context.Context, userID int64) error {
	alarms, err := r.st.ListAlarmsForUser(ctx, userID)
	if err != nil {
		return err
	}
	for _, a := range alarms {
		r.sched.Remove(a.Name)
	}
	if err := r.st.DeleteAlarmsForUser(ctx, userID); err != nil {
		return err
	}
	if len(alarms) > 0 {
		r.publishUpdated(userID)
	}
	return nil
}

// RescheduleUser re-registers every due vaccine of a user. Called after the
// user changes lead days or preferred time.
func (r *Registrar) RescheduleUser(ctx context.Context, userID int64) error {
	vaccines, err := r.st.ListVaccinesByUser(ctx, userID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, v := range vaccines {
		if v.DueAt == nil {
			continue
		}
		if err := r.Schedule(ctx, v.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RescheduleAll re-registers every active user's due vaccines, reconciling
// timers and alarm rows with the current records. Called when the notifier
// transitions back to enabled: registrations made while it was off were
// skipped, so the persisted set may be stale.
func (r *Registrar) RescheduleAll(ctx context.Context) error {
	users, err := r.st.ListActiveUsers(ctx)
	if err != nil {
		return err
	}
	var firstErr error
	for _, u := range users {
		if err := r.RescheduleUser(ctx, u.ID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Rebuild recreates in-process timers from the persisted alarm set. Alarms
// whose fire time passed while the process was down fire immediately; the
// fire job re-validates against current data before sending.
func (r *Registrar) Rebuild(ctx context.Context) error {
	alarms, err := r.st.ListAlarms(ctx)
	if err != nil {
		return err
	}
	for _, a := range alarms {
		name := a.Name
		vaccineID := a.VaccineID
		if _, err := r.sched.AddOnce(name, a.FireAt, 0, r.fireJob(name, vaccineID, a.LeadDays)); err != nil {
			return err
		}
	}
	r.log.Info("reminder timers rebuilt", logx.Int("count", len(alarms)))
	return nil
}

// fireJob builds the scheduler callback for one timer. It re-validates the
// vaccine and account at fire time: stale timers clean themselves up instead
// of sending.
func (r *Registrar) fireJob(name string, vaccineID int64, leadDays int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		v, err := r.st.GetVaccineWithPet(ctx, vaccineID)
		if errors.Is(err, store.ErrNotFound) {
			_ = r.st.DeleteAlarm(ctx, name)
			return nil
		}
		if err != nil {
			return err
		}
		if v.DueAt == nil {
			_ = r.st.DeleteAlarm(ctx, name)
			return nil
		}

		u, err := r.st.GetUser(ctx, v.UserID)
		if err != nil || !u.Active {
			_ = r.st.DeleteAlarm(ctx, name)
			return nil
		}

		loc := r.sched.Location()
		days := DaysUntil(*v.DueAt, time.Now().In(loc))
		n := Render(v, days, kit.ChatTarget{ChatID: u.ChatID})
		if err := r.notif.Notify(ctx, n); err != nil {
			// Scheduler retries with backoff; the alarm row stays until the
			// notifier accepts the message into its queue. Delivery from
			// there on is the notifier's own retry pipeline.
			return err
		}

		if err := r.st.DeleteAlarm(ctx, name); err != nil {
			r.log.Warn("fired alarm cleanup failed", logx.String("name", name), logx.Err(err))
		}
		if r.bus != nil {
			r.bus.Publish(eventbus.Event{Type: eventbus.TypeReminderFired, Time: time.Now(), Data: FiredEvent{
				VaccineID: vaccineID, UserID: v.UserID, LeadDays: leadDays,
			}})
		}
		r.publishUpdated(v.UserID)
		return nil
	}
}

func (r *Registrar) publishUpdated(userID int64) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeAlarmsUpdated, Time: time.Now(), Data: AlarmsEvent{UserID: userID}})
}
