package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertUser activates (or reactivates) an account and records its chat.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, chat_id, username, active, created_at, updated_at)
		 VALUES(?,?,?,1,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   chat_id=excluded.chat_id,
		   username=excluded.username,
		   active=1,
		   updated_at=excluded.updated_at`,
		u.ID, u.ChatID, nullStr(u.Username), now, now,
	)
	return err
}

// DeactivateUser marks the account inactive. Pets and vaccines are kept;
// reminders stop until the user sends /start again.
func (s *Store) DeactivateUser(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET active=0, updated_at=? WHERE id=?`,
		time.Now().UTC().Format(time.RFC3339), userID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (User, error) {
	var (
		u                  User
		username           sql.NullString
		active             int
		createdAt, updated string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, username, active, created_at, updated_at FROM users WHERE id=?`,
		userID,
	).Scan(&u.ID, &u.ChatID, &username, &active, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	u.Username = username.String
	u.Active = active != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return u, nil
}

// ListActiveUsers returns every account reminders may be delivered to.
func (s *Store) ListActiveUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, username FROM users WHERE active=1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var (
			u        User
			username sql.NullString
		)
		if err := rows.Scan(&u.ID, &u.ChatID, &username); err != nil {
			return nil, err
		}
		u.Username = username.String
		u.Active = true
		out = append(out, u)
	}
	return out, rows.Err()
}
