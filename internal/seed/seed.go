// Package seed loads a small demo dataset into a local store. It runs once
// per workspace, guarded by a settings flag.
package seed

import (
	"context"
	"fmt"

	"assetline/internal/domain"
	"assetline/internal/repo"
	"assetline/internal/store"
)

// Apply seeds demo data through the regular ledger operations so counters and
// events come out the same as hand-entered data. Returns false when the
// workspace was already seeded.
func Apply(ctx context.Context, s *store.Local, actorID string) (bool, error) {
	r := s.Ledger.Repo
	if flag, err := r.GetSetting(ctx, repo.SettingSeeded); err == nil && flag == "true" {
		return false, nil
	} else if err != nil && err != repo.ErrNotFound {
		return false, err
	}

	techs := []domain.Technician{
		{ID: "tech-ayu", Name: "Ayu Lestari", Specialty: "Electrical", Rank: "senior", Password: "changeme"},
		{ID: "tech-budi", Name: "Budi Santoso", Specialty: "HVAC", Rank: "intermediate", Password: "changeme"},
		{ID: "tech-citra", Name: "Citra Dewi", Specialty: "Mechanical", Rank: "junior", Password: "changeme"},
	}
	for _, t := range techs {
		if _, err := s.RegisterTechnician(ctx, t, actorID); err != nil {
			return false, fmt.Errorf("seed technician %s: %w", t.ID, err)
		}
	}

	assets := []domain.Asset{
		{ID: "asset-genset", Name: "Backup Generator", Category: "Machinery", Location: "Warehouse A"},
		{ID: "asset-forklift", Name: "Forklift 2T", Category: "Vehicles", Location: "Warehouse B"},
		{ID: "asset-printer", Name: "Office Printer", Category: "Electronics", Location: "Head Office"},
		{ID: "asset-compressor", Name: "Air Compressor", Category: "Machinery", Location: "Workshop"},
	}
	for _, a := range assets {
		if _, err := s.RegisterAsset(ctx, a, actorID); err != nil {
			return false, fmt.Errorf("seed asset %s: %w", a.ID, err)
		}
	}

	orders := []domain.WorkOrder{
		{ID: "spk-genset-service", AssetID: "asset-genset", TechnicianID: "tech-ayu", Title: "Quarterly generator service", Priority: domain.PriorityHigh},
		{ID: "spk-forklift-brakes", AssetID: "asset-forklift", TechnicianID: "tech-budi", Title: "Replace brake pads", Priority: domain.PriorityMedium},
		{ID: "spk-printer-jam", AssetID: "asset-printer", TechnicianID: "tech-citra", Title: "Clear feed mechanism", Priority: domain.PriorityLow},
	}
	for _, w := range orders {
		if _, _, err := s.CreateWorkOrder(ctx, w, actorID); err != nil {
			return false, fmt.Errorf("seed work order %s: %w", w.ID, err)
		}
	}
	// One finished job so the demo shows a completed lifecycle.
	if _, _, err := s.UpdateWorkOrderStatus(ctx, "spk-printer-jam", domain.OrderCompleted, "Cleared jammed rollers and test printed", nil, actorID); err != nil {
		return false, fmt.Errorf("seed completion: %w", err)
	}

	if err := r.SetSetting(ctx, repo.SettingSeeded, "true"); err != nil {
		return false, err
	}
	return true, nil
}
