package store

import (
	"context"
	"database/sql"

	"assetline/internal/backup"
	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/ledger"
	"assetline/internal/migrate"
	"assetline/internal/repo"
)

// Local runs the ledger in-process over the workspace sqlite database.
type Local struct {
	DB     *sql.DB
	Ledger ledger.Ledger
	Backup backup.Manager
}

// OpenLocal opens the workspace database, applies migrations and wires the
// ledger over it.
func OpenLocal(cfg *config.Config, workdir string) (*Local, error) {
	conn, err := db.Open(db.Config{Workspace: workdir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &Local{
		DB:     conn,
		Ledger: ledger.New(conn, cfg),
		Backup: backup.New(conn, cfg),
	}, nil
}

func (s *Local) Mode() string { return config.ModeLocal }

func (s *Local) CheckConnection(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Local) Close() error { return s.DB.Close() }

func (s *Local) RegisterAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error) {
	return s.Ledger.RegisterAsset(ctx, a, actorID)
}

func (s *Local) EditAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error) {
	return s.Ledger.EditAsset(ctx, a, actorID)
}

func (s *Local) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	return s.Ledger.Repo.GetAsset(ctx, id)
}

func (s *Local) ListAssets(ctx context.Context, f repo.AssetFilters) ([]domain.Asset, error) {
	return s.Ledger.Repo.ListAssets(ctx, f)
}

func (s *Local) UpdateAssetStatus(ctx context.Context, id, status, actorID string) (domain.Asset, error) {
	return s.Ledger.UpdateAssetStatus(ctx, id, status, actorID)
}

func (s *Local) DeleteAsset(ctx context.Context, id, actorID string) error {
	return s.Ledger.DeleteAsset(ctx, id, actorID)
}

func (s *Local) RegisterTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error) {
	return s.Ledger.RegisterTechnician(ctx, t, actorID)
}

func (s *Local) EditTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error) {
	return s.Ledger.EditTechnician(ctx, t, actorID)
}

func (s *Local) GetTechnician(ctx context.Context, id string) (domain.Technician, error) {
	return s.Ledger.Repo.GetTechnician(ctx, id)
}

func (s *Local) ListTechnicians(ctx context.Context) ([]domain.Technician, error) {
	return s.Ledger.Repo.ListTechnicians(ctx)
}

func (s *Local) PromoteTechnician(ctx context.Context, id, rank, actorID string) (domain.Technician, error) {
	return s.Ledger.PromoteTechnician(ctx, id, rank, actorID)
}

func (s *Local) DeleteTechnician(ctx context.Context, id, actorID string) (int, error) {
	return s.Ledger.DeleteTechnician(ctx, id, actorID)
}

func (s *Local) CreateWorkOrder(ctx context.Context, w domain.WorkOrder, actorID string) (domain.WorkOrder, ledger.SyncReport, error) {
	return s.Ledger.CreateWorkOrder(ctx, w, actorID)
}

func (s *Local) UpdateWorkOrder(ctx context.Context, w domain.WorkOrder, actorID string) (domain.WorkOrder, ledger.SyncReport, error) {
	return s.Ledger.UpdateWorkOrder(ctx, w, actorID)
}

func (s *Local) UpdateWorkOrderStatus(ctx context.Context, id, status, note string, evidence []string, actorID string) (domain.WorkOrder, ledger.SyncReport, error) {
	return s.Ledger.UpdateWorkOrderStatus(ctx, id, status, note, evidence, actorID)
}

func (s *Local) GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	return s.Ledger.Repo.GetWorkOrder(ctx, id)
}

func (s *Local) ListWorkOrders(ctx context.Context, f repo.WorkOrderFilters) ([]domain.WorkOrder, error) {
	return s.Ledger.Repo.ListWorkOrders(ctx, f)
}

func (s *Local) Export(ctx context.Context) (backup.Document, error) {
	return s.Backup.Export(ctx)
}

func (s *Local) Restore(ctx context.Context, doc backup.Document, actorID string) error {
	return s.Backup.Restore(ctx, doc, actorID)
}

func (s *Local) Reconcile(ctx context.Context, actorID string) ([]ledger.Adjustment, error) {
	return s.Ledger.Reconcile(ctx, actorID)
}
