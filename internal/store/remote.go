package store

import (
	"context"
	"encoding/json"
	"errors"

	"assetline/internal/backup"
	"assetline/internal/config"
	"assetline/internal/domain"
	"assetline/internal/ledger"
	"assetline/internal/repo"
	assetlinesdk "assetline/sdk/go"
)

// Remote proxies every operation to a serve instance. Ledger semantics run
// server-side; this driver only translates types and errors.
type Remote struct {
	Client *assetlinesdk.Client
}

func OpenRemote(cfg *config.Config) *Remote {
	client := assetlinesdk.New(cfg.Storage.Remote.BaseURL)
	client.BearerToken = cfg.Storage.Remote.Token
	return &Remote{Client: client}
}

func (s *Remote) Mode() string { return config.ModeRemote }

// CheckConnection hits the unauthenticated health endpoint.
func (s *Remote) CheckConnection(ctx context.Context) error {
	return mapError(s.Client.Health(ctx))
}

func (s *Remote) Close() error { return nil }

func (s *Remote) RegisterAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error) {
	res, err := s.Client.CreateAsset(ctx, assetlinesdk.Asset(a))
	return domain.Asset(res), mapError(err)
}

func (s *Remote) EditAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error) {
	res, err := s.Client.UpdateAsset(ctx, assetlinesdk.Asset(a))
	return domain.Asset(res), mapError(err)
}

func (s *Remote) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	res, err := s.Client.GetAsset(ctx, id)
	return domain.Asset(res), mapError(err)
}

func (s *Remote) ListAssets(ctx context.Context, f repo.AssetFilters) ([]domain.Asset, error) {
	items, err := s.Client.ListAssets(ctx, f.Status)
	if err != nil {
		return nil, mapError(err)
	}
	res := make([]domain.Asset, 0, len(items))
	for _, a := range items {
		res = append(res, domain.Asset(a))
	}
	return res, nil
}

func (s *Remote) UpdateAssetStatus(ctx context.Context, id, status, actorID string) (domain.Asset, error) {
	res, err := s.Client.SetAssetStatus(ctx, id, status)
	return domain.Asset(res), mapError(err)
}

func (s *Remote) DeleteAsset(ctx context.Context, id, actorID string) error {
	return mapError(s.Client.DeleteAsset(ctx, id))
}

func (s *Remote) RegisterTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error) {
	res, err := s.Client.CreateTechnician(ctx, technicianToSDK(t), t.Password)
	return technicianFromSDK(res), mapError(err)
}

func (s *Remote) EditTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error) {
	res, err := s.Client.UpdateTechnician(ctx, technicianToSDK(t), t.Password)
	return technicianFromSDK(res), mapError(err)
}

func (s *Remote) GetTechnician(ctx context.Context, id string) (domain.Technician, error) {
	res, err := s.Client.GetTechnician(ctx, id)
	return technicianFromSDK(res), mapError(err)
}

func (s *Remote) ListTechnicians(ctx context.Context) ([]domain.Technician, error) {
	items, err := s.Client.ListTechnicians(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	res := make([]domain.Technician, 0, len(items))
	for _, t := range items {
		res = append(res, technicianFromSDK(t))
	}
	return res, nil
}

func (s *Remote) PromoteTechnician(ctx context.Context, id, rank, actorID string) (domain.Technician, error) {
	res, err := s.Client.SetTechnicianRank(ctx, id, rank)
	return technicianFromSDK(res), mapError(err)
}

func (s *Remote) DeleteTechnician(ctx context.Context, id, actorID string) (int, error) {
	orphaned, err := s.Client.DeleteTechnician(ctx, id)
	return orphaned, mapError(err)
}

func (s *Remote) CreateWorkOrder(ctx context.Context, w domain.WorkOrder, actorID string) (domain.WorkOrder, ledger.SyncReport, error) {
	res, err := s.Client.CreateWorkOrder(ctx, assetlinesdk.WorkOrder(w))
	return domain.WorkOrder(res.WorkOrder), syncFromSDK(res.Sync), mapError(err)
}

func (s *Remote) UpdateWorkOrder(ctx context.Context, w domain.WorkOrder, actorID string) (domain.WorkOrder, ledger.SyncReport, error) {
	res, err := s.Client.UpdateWorkOrder(ctx, assetlinesdk.WorkOrder(w))
	return domain.WorkOrder(res.WorkOrder), syncFromSDK(res.Sync), mapError(err)
}

func (s *Remote) UpdateWorkOrderStatus(ctx context.Context, id, status, note string, evidence []string, actorID string) (domain.WorkOrder, ledger.SyncReport, error) {
	res, err := s.Client.SetWorkOrderStatus(ctx, id, status, note, evidence)
	return domain.WorkOrder(res.WorkOrder), syncFromSDK(res.Sync), mapError(err)
}

func (s *Remote) GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	res, err := s.Client.GetWorkOrder(ctx, id)
	return domain.WorkOrder(res), mapError(err)
}

func (s *Remote) ListWorkOrders(ctx context.Context, f repo.WorkOrderFilters) ([]domain.WorkOrder, error) {
	items, err := s.Client.ListWorkOrders(ctx, map[string]string{
		"asset_id":      f.AssetID,
		"technician_id": f.TechnicianID,
		"status":        f.Status,
		"priority":      f.Priority,
	})
	if err != nil {
		return nil, mapError(err)
	}
	res := make([]domain.WorkOrder, 0, len(items))
	for _, w := range items {
		res = append(res, domain.WorkOrder(w))
	}
	return res, nil
}

func (s *Remote) Export(ctx context.Context) (backup.Document, error) {
	raw, err := s.Client.ExportBackup(ctx)
	if err != nil {
		return backup.Document{}, mapError(err)
	}
	return backup.Parse(raw)
}

func (s *Remote) Restore(ctx context.Context, doc backup.Document, actorID string) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return mapError(s.Client.RestoreBackup(ctx, raw))
}

func (s *Remote) Reconcile(ctx context.Context, actorID string) ([]ledger.Adjustment, error) {
	items, err := s.Client.Reconcile(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	res := make([]ledger.Adjustment, 0, len(items))
	for _, a := range items {
		res = append(res, ledger.Adjustment(a))
	}
	return res, nil
}

func technicianToSDK(t domain.Technician) assetlinesdk.Technician {
	return assetlinesdk.Technician{
		ID:          t.ID,
		Name:        t.Name,
		Specialty:   t.Specialty,
		Rank:        t.Rank,
		ActiveTasks: t.ActiveTasks,
		Rating:      t.Rating,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func technicianFromSDK(t assetlinesdk.Technician) domain.Technician {
	return domain.Technician{
		ID:          t.ID,
		Name:        t.Name,
		Specialty:   t.Specialty,
		Rank:        t.Rank,
		ActiveTasks: t.ActiveTasks,
		Rating:      t.Rating,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func syncFromSDK(r assetlinesdk.SyncReport) ledger.SyncReport {
	return ledger.SyncReport{
		Technician: ledger.Outcome(r.Technician),
		Asset:      ledger.Outcome(r.Asset),
	}
}

// mapError folds API error codes back into the sentinel errors local callers
// already branch on.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *assetlinesdk.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case "not_found":
		return repo.ErrNotFound
	case "completed_immutable":
		return ledger.ErrCompletedImmutable
	case "validation_failed", "bad_request":
		return ledger.ValidationError{Reason: errorMessage(apiErr.Body)}
	}
	return err
}

func errorMessage(body string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err != nil || envelope.Error.Message == "" {
		return body
	}
	return envelope.Error.Message
}
