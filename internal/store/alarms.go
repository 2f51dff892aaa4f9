package store

import (
	"context"
	"time"
)

// UpsertAlarm records a registered timer. Re-registering the same name
// replaces the previous fire time (one timer per vaccine/lead-day pair).
func (s *Store) UpsertAlarm(ctx context.Context, a Alarm) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alarms(name, vaccine_id, user_id, lead_days, fire_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET
		   vaccine_id=excluded.vaccine_id,
		   user_id=excluded.user_id,
		   lead_days=excluded.lead_days,
		   fire_at=excluded.fire_at`,
		a.Name, a.VaccineID, a.UserID, a.LeadDays, a.FireAt.UnixMilli(),
	)
	return err
}

func (s *Store) DeleteAlarm(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE name=?`, name)
	return err
}

// ListAlarmsForVaccine returns the exact set registered for one vaccine,
// so cancellation never has to guess which lead days were used.
func (s *Store) ListAlarmsForVaccine(ctx context.Context, vaccineID int64) ([]Alarm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, vaccine_id, user_id, lead_days, fire_at FROM alarms WHERE vaccine_id=?`,
		vaccineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlarms(rows)
}

func (s *Store) ListAlarmsForUser(ctx context.Context, userID int64) ([]Alarm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, vaccine_id, user_id, lead_days, fire_at FROM alarms WHERE user_id=?`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlarms(rows)
}

// ListAlarms returns every registered alarm, used to rebuild in-process
// timers at startup.
func (s *Store) ListAlarms(ctx context.Context) ([]Alarm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, vaccine_id, user_id, lead_days, fire_at FROM alarms ORDER BY fire_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlarms(rows)
}

func (s *Store) DeleteAlarmsForVaccine(ctx context.Context, vaccineID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE vaccine_id=?`, vaccineID)
	return err
}

func (s *Store) DeleteAlarmsForUser(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE user_id=?`, userID)
	return err
}

func collectAlarms(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Alarm, error) {
	var out []Alarm
	for rows.Next() {
		var (
			a  Alarm
			ms int64
		)
		if err := rows.Scan(&a.Name, &a.VaccineID, &a.UserID, &a.LeadDays, &ms); err != nil {
			return nil, err
		}
		a.FireAt = time.UnixMilli(ms)
		out = append(out, a)
	}
	return out, rows.Err()
}
