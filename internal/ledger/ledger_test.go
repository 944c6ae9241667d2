package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/ledger"
	"assetline/internal/migrate"
	"assetline/internal/repo"
)

type testEnv struct {
	Ledger ledger.Ledger
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := ledger.New(conn, config.Default())
	l.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Ledger: l, Ctx: context.Background()}
}

func (env testEnv) addTechnician(t *testing.T, id string) domain.Technician {
	t.Helper()
	tech, err := env.Ledger.RegisterTechnician(env.Ctx, domain.Technician{
		ID:   id,
		Name: "Tech " + id,
		Rank: "junior",
	}, "tester")
	if err != nil {
		t.Fatalf("register technician %s: %v", id, err)
	}
	return tech
}

func (env testEnv) addAsset(t *testing.T, id string) domain.Asset {
	t.Helper()
	a, err := env.Ledger.RegisterAsset(env.Ctx, domain.Asset{
		ID:       id,
		Name:     "Asset " + id,
		Category: "Machinery",
		Location: "Workshop",
	}, "tester")
	if err != nil {
		t.Fatalf("register asset %s: %v", id, err)
	}
	return a
}

func (env testEnv) addOrder(t *testing.T, id, assetID, techID string) domain.WorkOrder {
	t.Helper()
	w, _, err := env.Ledger.CreateWorkOrder(env.Ctx, domain.WorkOrder{
		ID:           id,
		AssetID:      assetID,
		TechnicianID: techID,
		Title:        "Fix " + assetID,
	}, "tester")
	if err != nil {
		t.Fatalf("create work order %s: %v", id, err)
	}
	return w
}

func TestCreateWorkOrderActivates(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addAsset(t, "a1")

	w, report, err := env.Ledger.CreateWorkOrder(env.Ctx, domain.WorkOrder{
		ID:           "w1",
		AssetID:      "a1",
		TechnicianID: "t1",
		Title:        "Replace bearings",
	}, "tester")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Status != domain.OrderOpen {
		t.Fatalf("status = %q, want open", w.Status)
	}
	if w.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %q, want medium default", w.Priority)
	}
	if report.Technician != ledger.OutcomeApplied || report.Asset != ledger.OutcomeApplied {
		t.Fatalf("sync report = %+v, want applied/applied", report)
	}
	tech, err := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if tech.ActiveTasks != 1 {
		t.Fatalf("active tasks = %d, want 1", tech.ActiveTasks)
	}
	a, err := env.Ledger.Repo.GetAsset(env.Ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.AssetUnderRepair {
		t.Fatalf("asset status = %q, want under_repair", a.Status)
	}
}

func TestCompleteWorkOrderReleases(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")

	w, report, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w1", domain.OrderCompleted, "replaced bearings", nil, "tester")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if w.Status != domain.OrderCompleted {
		t.Fatalf("status = %q, want completed", w.Status)
	}
	if w.CompletedAt == nil {
		t.Fatal("completedAt not set")
	}
	if w.CompletionNote != "replaced bearings" {
		t.Fatalf("note = %q", w.CompletionNote)
	}
	if report.Technician != ledger.OutcomeApplied || report.Asset != ledger.OutcomeApplied {
		t.Fatalf("sync report = %+v", report)
	}
	tech, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	if tech.ActiveTasks != 0 {
		t.Fatalf("active tasks = %d, want 0", tech.ActiveTasks)
	}
	a, _ := env.Ledger.Repo.GetAsset(env.Ctx, "a1")
	if a.Status != domain.AssetOperational {
		t.Fatalf("asset status = %q, want operational", a.Status)
	}
	if a.LastMaintained == nil {
		t.Fatal("lastMaintained not stamped on completion")
	}
}

func TestCompleteTwiceIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")

	first, _, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w1", domain.OrderCompleted, "done", nil, "tester")
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}

	// Later wall clock; completedAt must not move.
	env.Ledger.Now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	second, report, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w1", domain.OrderCompleted, "done again", nil, "tester")
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if *second.CompletedAt != *first.CompletedAt {
		t.Fatalf("completedAt moved: %s -> %s", *first.CompletedAt, *second.CompletedAt)
	}
	if report.Technician != ledger.OutcomeUnchanged || report.Asset != ledger.OutcomeUnchanged {
		t.Fatalf("second completion ran side effects: %+v", report)
	}
	tech, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	if tech.ActiveTasks != 0 {
		t.Fatalf("active tasks = %d, want 0 after double completion", tech.ActiveTasks)
	}
}

func TestCompleteRequiresNote(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")

	_, _, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w1", domain.OrderCompleted, "   ", nil, "tester")
	var ve ledger.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	w, _ := env.Ledger.Repo.GetWorkOrder(env.Ctx, "w1")
	if w.Status != domain.OrderOpen {
		t.Fatalf("status changed to %q on rejected completion", w.Status)
	}
	tech, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	if tech.ActiveTasks != 1 {
		t.Fatalf("active tasks = %d, want 1 untouched", tech.ActiveTasks)
	}
}

func TestHandoverMovesCounter(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addTechnician(t, "t2")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")

	w, _, err := env.Ledger.UpdateWorkOrder(env.Ctx, domain.WorkOrder{ID: "w1", TechnicianID: "t2"}, "tester")
	if err != nil {
		t.Fatalf("handover: %v", err)
	}
	if w.TechnicianID != "t2" {
		t.Fatalf("technician = %q, want t2", w.TechnicianID)
	}
	t1, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	t2, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t2")
	if t1.ActiveTasks != 0 || t2.ActiveTasks != 1 {
		t.Fatalf("counters = %d/%d, want 0/1", t1.ActiveTasks, t2.ActiveTasks)
	}
}

func TestNoReassignAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addTechnician(t, "t2")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")
	if _, _, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w1", domain.OrderCompleted, "done", nil, "tester"); err != nil {
		t.Fatal(err)
	}

	_, _, err := env.Ledger.UpdateWorkOrder(env.Ctx, domain.WorkOrder{ID: "w1", TechnicianID: "t2"}, "tester")
	if !errors.Is(err, ledger.ErrCompletedImmutable) {
		t.Fatalf("expected ErrCompletedImmutable, got %v", err)
	}
	w, _ := env.Ledger.Repo.GetWorkOrder(env.Ctx, "w1")
	if w.TechnicianID != "t1" {
		t.Fatalf("technician = %q, reassignment leaked through", w.TechnicianID)
	}
	t2, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t2")
	if t2.ActiveTasks != 0 {
		t.Fatalf("t2 counter = %d, want 0", t2.ActiveTasks)
	}
}

func TestCounterFloorsAtZero(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")

	// Simulate drift: counter forced to zero while the order is still open.
	tx, err := env.Ledger.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Ledger.Repo.SetActiveTasks(env.Ctx, tx, "t1", 0, "2024-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w1", domain.OrderCompleted, "done", nil, "tester"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tech, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	if tech.ActiveTasks != 0 {
		t.Fatalf("active tasks = %d, want floor at 0", tech.ActiveTasks)
	}
}

func TestCreateWithDanglingReferences(t *testing.T) {
	env := newTestEnv(t)

	w, report, err := env.Ledger.CreateWorkOrder(env.Ctx, domain.WorkOrder{
		ID:           "w1",
		AssetID:      "ghost-asset",
		TechnicianID: "ghost-tech",
		Title:        "Orphan job",
	}, "tester")
	if err != nil {
		t.Fatalf("create with dangling refs: %v", err)
	}
	if w.Status != domain.OrderOpen {
		t.Fatalf("status = %q", w.Status)
	}
	if report.Technician != ledger.OutcomeSkippedNotFound || report.Asset != ledger.OutcomeSkippedNotFound {
		t.Fatalf("sync report = %+v, want skipped/skipped", report)
	}
	if _, err := env.Ledger.Repo.GetWorkOrder(env.Ctx, "w1"); err != nil {
		t.Fatalf("order not persisted: %v", err)
	}
}

func TestDeleteTechnicianReportsOrphans(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addAsset(t, "a1")
	env.addAsset(t, "a2")
	env.addOrder(t, "w1", "a1", "t1")
	env.addOrder(t, "w2", "a2", "t1")
	if _, _, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w2", domain.OrderCompleted, "done", nil, "tester"); err != nil {
		t.Fatal(err)
	}

	orphaned, err := env.Ledger.DeleteTechnician(env.Ctx, "t1", "tester")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if orphaned != 1 {
		t.Fatalf("orphaned = %d, want 1 (only the open order)", orphaned)
	}
	if _, err := env.Ledger.Repo.GetTechnician(env.Ctx, "t1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("technician still present: %v", err)
	}
	// Orders keep the dead reference.
	w, err := env.Ledger.Repo.GetWorkOrder(env.Ctx, "w1")
	if err != nil {
		t.Fatal(err)
	}
	if w.TechnicianID != "t1" {
		t.Fatalf("order reference rewritten to %q", w.TechnicianID)
	}
}

func TestReconcileRepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addTechnician(t, "t2")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")

	tx, err := env.Ledger.DB.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Ledger.Repo.SetActiveTasks(env.Ctx, tx, "t1", 7, "2024-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := env.Ledger.Repo.SetActiveTasks(env.Ctx, tx, "t2", 3, "2024-01-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	adjustments, err := env.Ledger.Reconcile(env.Ctx, "tester")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(adjustments) != 2 {
		t.Fatalf("adjustments = %d, want 2", len(adjustments))
	}
	t1, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	t2, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t2")
	if t1.ActiveTasks != 1 || t2.ActiveTasks != 0 {
		t.Fatalf("counters = %d/%d, want 1/0", t1.ActiveTasks, t2.ActiveTasks)
	}

	again, err := env.Ledger.Reconcile(env.Ctx, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("second reconcile adjusted %d counters, want 0", len(again))
	}
}

func TestPromoteRejectsUnknownRank(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")

	_, err := env.Ledger.PromoteTechnician(env.Ctx, "t1", "wizard", "tester")
	var ve ledger.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	tech, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	if tech.Rank != "junior" {
		t.Fatalf("rank = %q, want junior", tech.Rank)
	}
}

func TestAssetStatusOverride(t *testing.T) {
	env := newTestEnv(t)
	env.addAsset(t, "a1")

	a, err := env.Ledger.UpdateAssetStatus(env.Ctx, "a1", domain.AssetBroken, "tester")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if a.Status != domain.AssetBroken {
		t.Fatalf("status = %q, want broken", a.Status)
	}
	if _, err := env.Ledger.UpdateAssetStatus(env.Ctx, "a1", "melted", "tester"); err == nil {
		t.Fatal("expected rejection of unknown status")
	}
}

func TestEditTechnicianPreservesCounter(t *testing.T) {
	env := newTestEnv(t)
	env.addTechnician(t, "t1")
	env.addAsset(t, "a1")
	env.addOrder(t, "w1", "a1", "t1")

	tech, _ := env.Ledger.Repo.GetTechnician(env.Ctx, "t1")
	tech.Name = "Renamed"
	tech.ActiveTasks = 99
	updated, err := env.Ledger.EditTechnician(env.Ctx, tech, "tester")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.ActiveTasks != 1 {
		t.Fatalf("active tasks = %d, edit overwrote derived state", updated.ActiveTasks)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("name = %q", updated.Name)
	}
}
