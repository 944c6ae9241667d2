package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// Settings are small independently keyed scalars (theme, language, seed flag)
// plus the two admin-editable lists, stored as JSON arrays.
const (
	SettingTheme      = "theme"
	SettingLanguage   = "language"
	SettingSeeded     = "seeded"
	SettingCategories = "categories"
	SettingLocations  = "locations"
)

func (r Repo) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (r Repo) SetSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	return err
}

func (r Repo) SetSettingTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	return err
}

func (r Repo) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		res[k] = v
	}
	return res, rows.Err()
}

// GetStringList reads a JSON-array setting, returning nil when unset.
func (r Repo) GetStringList(ctx context.Context, key string) ([]string, error) {
	raw, err := r.GetSetting(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r Repo) SetStringList(ctx context.Context, key string, list []string) error {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return r.SetSetting(ctx, key, string(b))
}

func (r Repo) SetStringListTx(ctx context.Context, tx *sql.Tx, key string, list []string) error {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return r.SetSettingTx(ctx, tx, key, string(b))
}
