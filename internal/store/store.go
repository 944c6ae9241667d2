// Package store is the persistence adapter consumed by the CLI. A Store is
// either local (in-process ledger over sqlite) or remote (HTTP client against
// a serve instance); callers cannot tell which.
package store

import (
	"context"
	"fmt"

	"assetline/internal/backup"
	"assetline/internal/config"
	"assetline/internal/domain"
	"assetline/internal/ledger"
	"assetline/internal/repo"
)

// Store is the mode-independent persistence surface. Every write that touches
// derived state goes through ledger semantics on both sides.
type Store interface {
	// Mode reports "local" or "remote".
	Mode() string
	// CheckConnection verifies the backing store is reachable.
	CheckConnection(ctx context.Context) error

	RegisterAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error)
	EditAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error)
	GetAsset(ctx context.Context, id string) (domain.Asset, error)
	ListAssets(ctx context.Context, f repo.AssetFilters) ([]domain.Asset, error)
	UpdateAssetStatus(ctx context.Context, id, status, actorID string) (domain.Asset, error)
	DeleteAsset(ctx context.Context, id, actorID string) error

	RegisterTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error)
	EditTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error)
	GetTechnician(ctx context.Context, id string) (domain.Technician, error)
	ListTechnicians(ctx context.Context) ([]domain.Technician, error)
	PromoteTechnician(ctx context.Context, id, rank, actorID string) (domain.Technician, error)
	DeleteTechnician(ctx context.Context, id, actorID string) (int, error)

	CreateWorkOrder(ctx context.Context, w domain.WorkOrder, actorID string) (domain.WorkOrder, ledger.SyncReport, error)
	UpdateWorkOrder(ctx context.Context, w domain.WorkOrder, actorID string) (domain.WorkOrder, ledger.SyncReport, error)
	UpdateWorkOrderStatus(ctx context.Context, id, status, note string, evidence []string, actorID string) (domain.WorkOrder, ledger.SyncReport, error)
	GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error)
	ListWorkOrders(ctx context.Context, f repo.WorkOrderFilters) ([]domain.WorkOrder, error)

	Export(ctx context.Context) (backup.Document, error)
	Restore(ctx context.Context, doc backup.Document, actorID string) error
	Reconcile(ctx context.Context, actorID string) ([]ledger.Adjustment, error)

	Close() error
}

// Open builds a Store for the configured mode. workdir is the directory
// holding the local database when mode is local.
func Open(cfg *config.Config, workdir string) (Store, error) {
	switch cfg.Storage.Mode {
	case config.ModeLocal:
		return OpenLocal(cfg, workdir)
	case config.ModeRemote:
		return OpenRemote(cfg), nil
	default:
		return nil, fmt.Errorf("invalid storage mode %q", cfg.Storage.Mode)
	}
}

// Migrate copies the full dataset from one store to the other as a single
// snapshot. Restoring through the backup path keeps counters and statuses
// byte-identical; nothing is replayed.
func Migrate(ctx context.Context, from, to Store, actorID string) (backup.Document, error) {
	doc, err := from.Export(ctx)
	if err != nil {
		return doc, fmt.Errorf("export from %s: %w", from.Mode(), err)
	}
	if err := to.Restore(ctx, doc, actorID); err != nil {
		return doc, fmt.Errorf("restore to %s: %w", to.Mode(), err)
	}
	return doc, nil
}
