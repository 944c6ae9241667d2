// Package backup exports and restores the full dataset as a single JSON
// document. The document layout is a wire format shared with other tooling;
// the key names, including "spks" for work orders, must not change.
package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"assetline/internal/config"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/repo"
)

// Version is written into every exported document.
const Version = "1.0"

// Document is the portable snapshot. Work orders travel under the legacy
// "spks" key.
type Document struct {
	Version     string              `json:"version"`
	ExportDate  string              `json:"exportDate"`
	Assets      []domain.Asset      `json:"assets"`
	Orders      []domain.WorkOrder  `json:"spks"`
	Technicians []domain.Technician `json:"technicians"`
	Categories  []string            `json:"categories"`
	Locations   []string            `json:"locations"`
}

type Manager struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Manager {
	return Manager{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

// Export snapshots every entity plus the admin-editable lists. Slices are
// always non-nil so the document marshals with explicit empty arrays.
func (m Manager) Export(ctx context.Context) (Document, error) {
	doc := Document{
		Version:    Version,
		ExportDate: m.Now().UTC().Format(time.RFC3339),
	}
	var err error
	if doc.Assets, err = m.Repo.ListAssets(ctx, repo.AssetFilters{}); err != nil {
		return doc, err
	}
	if doc.Orders, err = m.Repo.ListWorkOrders(ctx, repo.WorkOrderFilters{}); err != nil {
		return doc, err
	}
	if doc.Technicians, err = m.Repo.ListTechnicians(ctx); err != nil {
		return doc, err
	}
	if doc.Categories, err = m.Repo.GetStringList(ctx, repo.SettingCategories); err != nil {
		return doc, err
	}
	if doc.Locations, err = m.Repo.GetStringList(ctx, repo.SettingLocations); err != nil {
		return doc, err
	}
	if doc.Categories == nil {
		doc.Categories = m.Config.Categories
	}
	if doc.Locations == nil {
		doc.Locations = m.Config.Locations
	}
	if doc.Assets == nil {
		doc.Assets = []domain.Asset{}
	}
	if doc.Orders == nil {
		doc.Orders = []domain.WorkOrder{}
	}
	if doc.Technicians == nil {
		doc.Technicians = []domain.Technician{}
	}
	if doc.Categories == nil {
		doc.Categories = []string{}
	}
	if doc.Locations == nil {
		doc.Locations = []string{}
	}
	return doc, nil
}

// rawDocument distinguishes a missing key from an empty array during parse.
type rawDocument struct {
	Version     string          `json:"version"`
	ExportDate  string          `json:"exportDate"`
	Assets      json.RawMessage `json:"assets"`
	Orders      json.RawMessage `json:"spks"`
	Technicians json.RawMessage `json:"technicians"`
	Categories  []string        `json:"categories"`
	Locations   []string        `json:"locations"`
}

// Parse decodes and validates a backup document. All three entity arrays
// must be present; a document failing validation never reaches the database.
func Parse(data []byte) (Document, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return Document{}, fmt.Errorf("invalid backup document: %w", err)
	}
	doc := Document{
		Version:    raw.Version,
		ExportDate: raw.ExportDate,
		Categories: raw.Categories,
		Locations:  raw.Locations,
	}
	for _, field := range []struct {
		key  string
		raw  json.RawMessage
		dest any
	}{
		{"assets", raw.Assets, &doc.Assets},
		{"spks", raw.Orders, &doc.Orders},
		{"technicians", raw.Technicians, &doc.Technicians},
	} {
		if len(field.raw) == 0 {
			return Document{}, fmt.Errorf("invalid backup document: missing %q array", field.key)
		}
		if err := json.Unmarshal(field.raw, field.dest); err != nil {
			return Document{}, fmt.Errorf("invalid backup document: %q: %w", field.key, err)
		}
	}
	return doc, nil
}

// Restore replaces the entire dataset with the document's contents in one
// transaction. Counters and statuses come across verbatim; restore is a
// byte-level replacement, not a replay through the ledger.
func (m Manager) Restore(ctx context.Context, doc Document, actorID string) error {
	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := m.Repo.ReplaceAssets(ctx, tx, doc.Assets); err != nil {
		return fmt.Errorf("restore assets: %w", err)
	}
	if err := m.Repo.ReplaceWorkOrders(ctx, tx, doc.Orders); err != nil {
		return fmt.Errorf("restore work orders: %w", err)
	}
	if err := m.Repo.ReplaceTechnicians(ctx, tx, doc.Technicians); err != nil {
		return fmt.Errorf("restore technicians: %w", err)
	}
	if doc.Categories != nil {
		if err := m.Repo.SetStringListTx(ctx, tx, repo.SettingCategories, doc.Categories); err != nil {
			return err
		}
	}
	if doc.Locations != nil {
		if err := m.Repo.SetStringListTx(ctx, tx, repo.SettingLocations, doc.Locations); err != nil {
			return err
		}
	}
	if err := m.Events.Append(ctx, tx, "backup.restored", "backup", "", actorID, events.EventPayload{
		"assets":      len(doc.Assets),
		"spks":        len(doc.Orders),
		"technicians": len(doc.Technicians),
		"export_date": doc.ExportDate,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
