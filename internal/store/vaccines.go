package store

import (
	"context"
	"database/sql"
	"errors"
)

func (s *Store) CreateVaccine(ctx context.Context, v Vaccine) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vaccines(pet_id, name, administered_at, due_at, notes, recurring, recurrence_months)
		 VALUES(?,?,?,?,?,?,?)`,
		v.PetID, v.Name, nullDate(v.AdministeredAt), nullDate(v.DueAt),
		nullStr(v.Notes), boolInt(v.Recurring), v.RecurrenceMonths,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetVaccine(ctx context.Context, id int64) (Vaccine, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pet_id, name, administered_at, due_at, notes, recurring, recurrence_months
		 FROM vaccines WHERE id=?`, id)
	return scanVaccine(row)
}

// GetVaccineWithPet joins the owning pet's name and user id.
func (s *Store) GetVaccineWithPet(ctx context.Context, id int64) (VaccineWithPet, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT v.id, v.pet_id, v.name, v.administered_at, v.due_at, v.notes, v.recurring, v.recurrence_months,
		        p.name, p.user_id
		 FROM vaccines v JOIN pets p ON p.id = v.pet_id
		 WHERE v.id=?`, id)

	var (
		out   VaccineWithPet
		admin sql.NullString
		due   sql.NullString
		notes sql.NullString
		rec   int
	)
	err := row.Scan(&out.ID, &out.PetID, &out.Name, &admin, &due, &notes, &rec,
		&out.RecurrenceMonths, &out.PetName, &out.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return VaccineWithPet{}, ErrNotFound
	}
	if err != nil {
		return VaccineWithPet{}, err
	}
	out.Notes = notes.String
	out.Recurring = rec != 0
	if out.AdministeredAt, err = scanDate(admin); err != nil {
		return VaccineWithPet{}, err
	}
	if out.DueAt, err = scanDate(due); err != nil {
		return VaccineWithPet{}, err
	}
	return out, nil
}

func (s *Store) ListVaccinesByPet(ctx context.Context, petID int64) ([]Vaccine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pet_id, name, administered_at, due_at, notes, recurring, recurrence_months
		 FROM vaccines WHERE pet_id=?
		 ORDER BY due_at IS NULL, due_at, name COLLATE NOCASE`, petID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVaccines(rows)
}

// ListVaccinesByUser returns every vaccine across the user's pets with the
// pet names joined in, soonest due first.
func (s *Store) ListVaccinesByUser(ctx context.Context, userID int64) ([]VaccineWithPet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT v.id, v.pet_id, v.name, v.administered_at, v.due_at, v.notes, v.recurring, v.recurrence_months,
		        p.name, p.user_id
		 FROM vaccines v JOIN pets p ON p.id = v.pet_id
		 WHERE p.user_id=?
		 ORDER BY v.due_at IS NULL, v.due_at, p.name COLLATE NOCASE, v.name COLLATE NOCASE`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VaccineWithPet
	for rows.Next() {
		var (
			w     VaccineWithPet
			admin sql.NullString
			due   sql.NullString
			notes sql.NullString
			rec   int
		)
		if err := rows.Scan(&w.ID, &w.PetID, &w.Name, &admin, &due, &notes, &rec,
			&w.RecurrenceMonths, &w.PetName, &w.UserID); err != nil {
			return nil, err
		}
		w.Notes = notes.String
		w.Recurring = rec != 0
		if w.AdministeredAt, err = scanDate(admin); err != nil {
			return nil, err
		}
		if w.DueAt, err = scanDate(due); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) UpdateVaccine(ctx context.Context, v Vaccine) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vaccines SET name=?, administered_at=?, due_at=?, notes=?, recurring=?, recurrence_months=?
		 WHERE id=?`,
		v.Name, nullDate(v.AdministeredAt), nullDate(v.DueAt), nullStr(v.Notes),
		boolInt(v.Recurring), v.RecurrenceMonths, v.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteVaccine(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vaccines WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func collectVaccines(rows *sql.Rows) ([]Vaccine, error) {
	var out []Vaccine
	for rows.Next() {
		v, err := scanVaccine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVaccine(row rowScanner) (Vaccine, error) {
	var (
		v     Vaccine
		admin sql.NullString
		due   sql.NullString
		notes sql.NullString
		rec   int
	)
	err := row.Scan(&v.ID, &v.PetID, &v.Name, &admin, &due, &notes, &rec, &v.RecurrenceMonths)
	if errors.Is(err, sql.ErrNoRows) {
		return Vaccine{}, ErrNotFound
	}
	if err != nil {
		return Vaccine{}, err
	}
	v.Notes = notes.String
	v.Recurring = rec != 0
	if v.AdministeredAt, err = scanDate(admin); err != nil {
		return Vaccine{}, err
	}
	if v.DueAt, err = scanDate(due); err != nil {
		return Vaccine{}, err
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
