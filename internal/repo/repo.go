package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"assetline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const assetCols = `id,name,category,location,status,COALESCE(image_ref,''),COALESCE(purchase_date,''),COALESCE(arrival_date,''),last_maintained,created_at,updated_at`

func scanAsset(row interface{ Scan(...any) error }) (domain.Asset, error) {
	var a domain.Asset
	var lastMaintained sql.NullString
	err := row.Scan(&a.ID, &a.Name, &a.Category, &a.Location, &a.Status, &a.ImageRef,
		&a.PurchaseDate, &a.ArrivalDate, &lastMaintained, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if lastMaintained.Valid {
		a.LastMaintained = &lastMaintained.String
	}
	return a, nil
}

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assets(id,name,category,location,status,image_ref,purchase_date,arrival_date,last_maintained,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Name, a.Category, a.Location, a.Status, nullable(a.ImageRef),
		nullable(a.PurchaseDate), nullable(a.ArrivalDate), nullableStringPtr(a.LastMaintained),
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	res, err := tx.ExecContext(ctx, `UPDATE assets SET name=?, category=?, location=?, status=?, image_ref=?, purchase_date=?, arrival_date=?, last_maintained=?, updated_at=? WHERE id=?`,
		a.Name, a.Category, a.Location, a.Status, nullable(a.ImageRef),
		nullable(a.PurchaseDate), nullable(a.ArrivalDate), nullableStringPtr(a.LastMaintained),
		a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	return scanAsset(r.DB.QueryRowContext(ctx, `SELECT `+assetCols+` FROM assets WHERE id=?`, id))
}

func (r Repo) GetAssetTx(ctx context.Context, tx *sql.Tx, id string) (domain.Asset, error) {
	return scanAsset(tx.QueryRowContext(ctx, `SELECT `+assetCols+` FROM assets WHERE id=?`, id))
}

type AssetFilters struct {
	Status   string
	Category string
	Location string
	Limit    int
}

func (r Repo) ListAssets(ctx context.Context, f AssetFilters) ([]domain.Asset, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Category != "" {
		clauses = append(clauses, "category=?")
		args = append(args, f.Category)
	}
	if f.Location != "" {
		clauses = append(clauses, "location=?")
		args = append(args, f.Location)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + assetCols + ` FROM assets ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAsset(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountAssetsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM assets GROUP BY status`)
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

// ReplaceAssets deletes all assets and inserts the given set. Used by restore.
func (r Repo) ReplaceAssets(ctx context.Context, tx *sql.Tx, assets []domain.Asset) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM assets`); err != nil {
		return err
	}
	for _, a := range assets {
		if err := r.InsertAsset(ctx, tx, a); err != nil {
			return err
		}
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
