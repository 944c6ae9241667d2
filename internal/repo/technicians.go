package repo

import (
	"context"
	"database/sql"

	"assetline/internal/domain"
)

const technicianCols = `id,name,COALESCE(specialty,''),rank,password,active_tasks,rating,created_at,updated_at`

func scanTechnician(row interface{ Scan(...any) error }) (domain.Technician, error) {
	var t domain.Technician
	var rating sql.NullFloat64
	err := row.Scan(&t.ID, &t.Name, &t.Specialty, &t.Rank, &t.Password, &t.ActiveTasks,
		&rating, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if rating.Valid {
		t.Rating = &rating.Float64
	}
	return t, nil
}

func (r Repo) InsertTechnician(ctx context.Context, tx *sql.Tx, t domain.Technician) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO technicians(id,name,specialty,rank,password,active_tasks,rating,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Name, nullable(t.Specialty), t.Rank, t.Password, t.ActiveTasks,
		nullableFloatPtr(t.Rating), t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) UpdateTechnician(ctx context.Context, tx *sql.Tx, t domain.Technician) error {
	res, err := tx.ExecContext(ctx, `UPDATE technicians SET name=?, specialty=?, rank=?, password=?, active_tasks=?, rating=?, updated_at=? WHERE id=?`,
		t.Name, nullable(t.Specialty), t.Rank, t.Password, t.ActiveTasks,
		nullableFloatPtr(t.Rating), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTechnician(ctx context.Context, id string) (domain.Technician, error) {
	return scanTechnician(r.DB.QueryRowContext(ctx, `SELECT `+technicianCols+` FROM technicians WHERE id=?`, id))
}

func (r Repo) GetTechnicianTx(ctx context.Context, tx *sql.Tx, id string) (domain.Technician, error) {
	return scanTechnician(tx.QueryRowContext(ctx, `SELECT `+technicianCols+` FROM technicians WHERE id=?`, id))
}

func (r Repo) ListTechnicians(ctx context.Context) ([]domain.Technician, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+technicianCols+` FROM technicians ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) ListTechniciansTx(ctx context.Context, tx *sql.Tx) ([]domain.Technician, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+technicianCols+` FROM technicians ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) DeleteTechnician(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM technicians WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActiveTasks writes the derived counter directly. Only the ledger calls this.
func (r Repo) SetActiveTasks(ctx context.Context, tx *sql.Tx, id string, count int, updatedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE technicians SET active_tasks=?, updated_at=? WHERE id=?`, count, updatedAt, id)
	return err
}

// ReplaceTechnicians deletes all technicians and inserts the given set. Used by restore.
func (r Repo) ReplaceTechnicians(ctx context.Context, tx *sql.Tx, techs []domain.Technician) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM technicians`); err != nil {
		return err
	}
	for _, t := range techs {
		if err := r.InsertTechnician(ctx, tx, t); err != nil {
			return err
		}
	}
	return nil
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
