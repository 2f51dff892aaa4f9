package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PutDigestRef remembers the message that holds a user's due-soon summary,
// so later refreshes edit it in place instead of posting a new one.
func (s *Store) PutDigestRef(ctx context.Context, ref DigestRef) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO digest_messages(user_id, chat_id, message_id, updated_at)
		 VALUES(?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   chat_id=excluded.chat_id,
		   message_id=excluded.message_id,
		   updated_at=excluded.updated_at`,
		ref.UserID, ref.ChatID, ref.MessageID, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDigestRef(ctx context.Context, userID int64) (DigestRef, error) {
	var ref DigestRef
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, chat_id, message_id FROM digest_messages WHERE user_id=?`,
		userID,
	).Scan(&ref.UserID, &ref.ChatID, &ref.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return DigestRef{}, ErrNotFound
	}
	if err != nil {
		return DigestRef{}, err
	}
	return ref, nil
}

func (s *Store) DeleteDigestRef(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM digest_messages WHERE user_id=?`, userID)
	return err
}
