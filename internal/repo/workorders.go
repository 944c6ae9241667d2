package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"assetline/internal/domain"
)

const orderCols = `id,asset_id,technician_id,title,COALESCE(description,''),priority,status,COALESCE(due_date,''),COALESCE(completion_note,''),evidence_json,created_at,updated_at,completed_at`

func scanWorkOrder(row interface{ Scan(...any) error }) (domain.WorkOrder, error) {
	var w domain.WorkOrder
	var evidence, completedAt sql.NullString
	err := row.Scan(&w.ID, &w.AssetID, &w.TechnicianID, &w.Title, &w.Description,
		&w.Priority, &w.Status, &w.DueDate, &w.CompletionNote, &evidence,
		&w.CreatedAt, &w.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if evidence.Valid && evidence.String != "" {
		_ = json.Unmarshal([]byte(evidence.String), &w.Evidence)
	}
	if completedAt.Valid {
		w.CompletedAt = &completedAt.String
	}
	return w, nil
}

func evidenceJSON(evidence []string) any {
	if len(evidence) == 0 {
		return nil
	}
	b, _ := json.Marshal(evidence)
	return string(b)
}

func (r Repo) InsertWorkOrder(ctx context.Context, tx *sql.Tx, w domain.WorkOrder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO work_orders(id,asset_id,technician_id,title,description,priority,status,due_date,completion_note,evidence_json,created_at,updated_at,completed_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.AssetID, w.TechnicianID, w.Title, nullable(w.Description), w.Priority,
		w.Status, nullable(w.DueDate), nullable(w.CompletionNote), evidenceJSON(w.Evidence),
		w.CreatedAt, w.UpdatedAt, nullableStringPtr(w.CompletedAt))
	return err
}

func (r Repo) UpdateWorkOrder(ctx context.Context, tx *sql.Tx, w domain.WorkOrder) error {
	res, err := tx.ExecContext(ctx, `UPDATE work_orders SET asset_id=?, technician_id=?, title=?, description=?, priority=?, status=?, due_date=?, completion_note=?, evidence_json=?, updated_at=?, completed_at=? WHERE id=?`,
		w.AssetID, w.TechnicianID, w.Title, nullable(w.Description), w.Priority, w.Status,
		nullable(w.DueDate), nullable(w.CompletionNote), evidenceJSON(w.Evidence),
		w.UpdatedAt, nullableStringPtr(w.CompletedAt), w.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	return scanWorkOrder(r.DB.QueryRowContext(ctx, `SELECT `+orderCols+` FROM work_orders WHERE id=?`, id))
}

func (r Repo) GetWorkOrderTx(ctx context.Context, tx *sql.Tx, id string) (domain.WorkOrder, error) {
	return scanWorkOrder(tx.QueryRowContext(ctx, `SELECT `+orderCols+` FROM work_orders WHERE id=?`, id))
}

type WorkOrderFilters struct {
	AssetID      string
	TechnicianID string
	Status       string
	Priority     string
	Limit        int
}

func (r Repo) ListWorkOrders(ctx context.Context, f WorkOrderFilters) ([]domain.WorkOrder, error) {
	var clauses []string
	var args []any
	if f.AssetID != "" {
		clauses = append(clauses, "asset_id=?")
		args = append(args, f.AssetID)
	}
	if f.TechnicianID != "" {
		clauses = append(clauses, "technician_id=?")
		args = append(args, f.TechnicianID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + orderCols + ` FROM work_orders ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkOrder
	for rows.Next() {
		w, err := scanWorkOrder(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// CountActiveByTechnician counts open/in_progress orders per technician id,
// reading the work-order set as the source of truth.
func (r Repo) CountActiveByTechnician(ctx context.Context, tx *sql.Tx) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT technician_id, count(*) FROM work_orders WHERE status IN ('open','in_progress') GROUP BY technician_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		res[id] = count
	}
	return res, rows.Err()
}

// CountActiveForTechnician counts a single technician's open/in_progress orders.
func (r Repo) CountActiveForTechnician(ctx context.Context, tx *sql.Tx, technicianID string) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM work_orders WHERE technician_id=? AND status IN ('open','in_progress')`, technicianID).Scan(&count)
	return count, err
}

func (r Repo) CountWorkOrdersByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM work_orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// ReplaceWorkOrders deletes all work orders and inserts the given set. Used by restore.
func (r Repo) ReplaceWorkOrders(ctx context.Context, tx *sql.Tx, orders []domain.WorkOrder) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM work_orders`); err != nil {
		return err
	}
	for _, w := range orders {
		if err := r.InsertWorkOrder(ctx, tx, w); err != nil {
			return err
		}
	}
	return nil
}
