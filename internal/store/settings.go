package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// GetReminderSettings returns the user's saved preference.
// ok=false means the user never saved one and installation defaults apply.
func (s *Store) GetReminderSettings(ctx context.Context, userID int64) (ReminderSettings, bool, error) {
	var (
		rs   ReminderSettings
		lead string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, lead_days, hour, minute FROM reminder_settings WHERE user_id=?`,
		userID,
	).Scan(&rs.UserID, &lead, &rs.Hour, &rs.Minute)
	if errors.Is(err, sql.ErrNoRows) {
		return ReminderSettings{}, false, nil
	}
	if err != nil {
		return ReminderSettings{}, false, err
	}
	if rs.LeadDays, err = parseLeadDays(lead); err != nil {
		return ReminderSettings{}, false, err
	}
	return rs, true, nil
}

func (s *Store) PutReminderSettings(ctx context.Context, rs ReminderSettings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_settings(user_id, lead_days, hour, minute, updated_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   lead_days=excluded.lead_days,
		   hour=excluded.hour,
		   minute=excluded.minute,
		   updated_at=excluded.updated_at`,
		rs.UserID, formatLeadDays(rs.LeadDays), rs.Hour, rs.Minute,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func formatLeadDays(days []int) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}

func parseLeadDays(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
