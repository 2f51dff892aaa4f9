package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *Store) CreatePet(ctx context.Context, p Pet) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pets(user_id, name, species, breed, birth_date, photo_file_id, created_at)
		 VALUES(?,?,?,?,?,?,?)`,
		p.UserID, p.Name, p.Species, nullStr(p.Breed), nullDate(p.BirthDate),
		nullStr(p.PhotoFileID), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetPet(ctx context.Context, id int64) (Pet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, species, breed, birth_date, photo_file_id, created_at
		 FROM pets WHERE id=?`, id)
	return scanPet(row)
}

// GetPetByName resolves a pet by its owner and case-insensitive name.
// Commands refer to pets by name, not id.
func (s *Store) GetPetByName(ctx context.Context, userID int64, name string) (Pet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, species, breed, birth_date, photo_file_id, created_at
		 FROM pets WHERE user_id=? AND name=? COLLATE NOCASE`, userID, name)
	return scanPet(row)
}

func (s *Store) ListPetsByUser(ctx context.Context, userID int64) ([]Pet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, species, breed, birth_date, photo_file_id, created_at
		 FROM pets WHERE user_id=? ORDER BY name COLLATE NOCASE`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Pet
	for rows.Next() {
		p, err := scanPet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePet rewrites the editable pet fields: name, breed and birth date.
// Species and photo are changed through their own operations.
func (s *Store) UpdatePet(ctx context.Context, p Pet) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pets SET name=?, breed=?, birth_date=? WHERE id=?`,
		p.Name, nullStr(p.Breed), nullDate(p.BirthDate), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdatePetPhoto(ctx context.Context, id int64, fileID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pets SET photo_file_id=? WHERE id=?`, nullStr(fileID), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePet removes a pet. Its vaccines and their registered alarms go with
// it through ON DELETE CASCADE.
func (s *Store) DeletePet(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPet(row rowScanner) (Pet, error) {
	var (
		p         Pet
		breed     sql.NullString
		birth     sql.NullString
		photo     sql.NullString
		createdAt string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Species, &breed, &birth, &photo, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Pet{}, ErrNotFound
	}
	if err != nil {
		return Pet{}, err
	}
	p.Breed = breed.String
	p.PhotoFileID = photo.String
	if p.BirthDate, err = scanDate(birth); err != nil {
		return Pet{}, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}
