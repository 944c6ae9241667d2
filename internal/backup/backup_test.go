package backup_test

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"assetline/internal/backup"
	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/domain"
	"assetline/internal/ledger"
	"assetline/internal/migrate"
)

type testEnv struct {
	Ledger ledger.Ledger
	Backup backup.Manager
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
	cfg := config.Default()
	clock := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	l := ledger.New(conn, cfg)
	l.Now = clock
	m := backup.New(conn, cfg)
	m.Now = clock
	return testEnv{Ledger: l, Backup: m, Ctx: context.Background()}
}

func (env testEnv) populate(t *testing.T) {
	t.Helper()
	if _, err := env.Ledger.RegisterTechnician(env.Ctx, domain.Technician{ID: "t1", Name: "Ayu", Rank: "senior"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Ledger.RegisterAsset(env.Ctx, domain.Asset{ID: "a1", Name: "Generator", Category: "Machinery", Location: "Warehouse"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Ledger.CreateWorkOrder(env.Ctx, domain.WorkOrder{ID: "w1", AssetID: "a1", TechnicianID: "t1", Title: "Service"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Ledger.RegisterAsset(env.Ctx, domain.Asset{ID: "a2", Name: "Forklift", Category: "Vehicles", Location: "Yard"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Ledger.CreateWorkOrder(env.Ctx, domain.WorkOrder{ID: "w2", AssetID: "a2", TechnicianID: "t1", Title: "Brakes"}, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Ledger.UpdateWorkOrderStatus(env.Ctx, "w2", domain.OrderCompleted, "pads replaced", nil, "tester"); err != nil {
		t.Fatal(err)
	}
}

func TestExportRestoreRoundTrip(t *testing.T) {
	src := newTestEnv(t)
	src.populate(t)

	doc, err := src.Backup.Export(src.Ctx)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newTestEnv(t)
	if err := dst.Backup.Restore(dst.Ctx, doc, "tester"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	doc2, err := dst.Backup.Export(dst.Ctx)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}

	if !reflect.DeepEqual(doc.Assets, doc2.Assets) {
		t.Fatalf("assets differ after round trip:\n%+v\n%+v", doc.Assets, doc2.Assets)
	}
	if !reflect.DeepEqual(doc.Orders, doc2.Orders) {
		t.Fatalf("orders differ after round trip:\n%+v\n%+v", doc.Orders, doc2.Orders)
	}
	if !reflect.DeepEqual(doc.Technicians, doc2.Technicians) {
		t.Fatalf("technicians differ after round trip:\n%+v\n%+v", doc.Technicians, doc2.Technicians)
	}

	// Restore carries derived state verbatim, it never recomputes.
	tech, err := dst.Ledger.Repo.GetTechnician(dst.Ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if tech.ActiveTasks != 1 {
		t.Fatalf("active tasks = %d after restore, want 1", tech.ActiveTasks)
	}
	a2, err := dst.Ledger.Repo.GetAsset(dst.Ctx, "a2")
	if err != nil {
		t.Fatal(err)
	}
	if a2.Status != domain.AssetOperational || a2.LastMaintained == nil {
		t.Fatalf("asset a2 lost completion state: %+v", a2)
	}
}

func TestRestoreReplacesExistingData(t *testing.T) {
	env := newTestEnv(t)
	env.populate(t)

	doc := backup.Document{
		Version:     backup.Version,
		ExportDate:  "2024-06-01T00:00:00Z",
		Assets:      []domain.Asset{{ID: "only", Name: "Only Asset", Status: domain.AssetOperational}},
		Orders:      []domain.WorkOrder{},
		Technicians: []domain.Technician{},
	}
	if err := env.Backup.Restore(env.Ctx, doc, "tester"); err != nil {
		t.Fatalf("restore: %v", err)
	}

	after, err := env.Backup.Export(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Assets) != 1 || after.Assets[0].ID != "only" {
		t.Fatalf("assets = %+v, want single replacement", after.Assets)
	}
	if len(after.Orders) != 0 || len(after.Technicians) != 0 {
		t.Fatalf("old rows survived replacement: %d orders, %d technicians", len(after.Orders), len(after.Technicians))
	}
}

func TestDocumentWireFormat(t *testing.T) {
	env := newTestEnv(t)
	env.populate(t)

	doc, err := env.Backup.Export(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"version", "exportDate", "assets", "spks", "technicians", "categories", "locations"} {
		if _, ok := keys[key]; !ok {
			t.Fatalf("document missing key %q", key)
		}
	}
	if doc.Version != "1.0" {
		t.Fatalf("version = %q", doc.Version)
	}
	if doc.ExportDate != "2024-01-01T00:00:00Z" {
		t.Fatalf("exportDate = %q", doc.ExportDate)
	}
}

func TestExportEmptyDatasetHasArrays(t *testing.T) {
	env := newTestEnv(t)

	doc, err := env.Backup.Export(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, fragment := range []string{`"assets":[]`, `"spks":[]`, `"technicians":[]`} {
		if !strings.Contains(s, fragment) {
			t.Fatalf("document %s lacks %s", s, fragment)
		}
	}
}

func TestParseRejectsMissingArrays(t *testing.T) {
	cases := []struct {
		name string
		body string
		key  string
	}{
		{"no spks", `{"version":"1.0","exportDate":"2024-01-01T00:00:00Z","assets":[],"technicians":[]}`, "spks"},
		{"no assets", `{"version":"1.0","spks":[],"technicians":[]}`, "assets"},
		{"no technicians", `{"version":"1.0","assets":[],"spks":[]}`, "technicians"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := backup.Parse([]byte(tc.body))
			if err == nil {
				t.Fatal("expected parse error")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("error %q does not name %q", err, tc.key)
			}
		})
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := backup.Parse([]byte(`{not json`)); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := backup.Parse([]byte(`{"assets":{},"spks":[],"technicians":[]}`)); err == nil {
		t.Fatal("expected parse error for non-array assets")
	}
}

func TestParseAcceptsExported(t *testing.T) {
	env := newTestEnv(t)
	env.populate(t)

	doc, err := env.Backup.Export(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := backup.Parse(data)
	if err != nil {
		t.Fatalf("parse own export: %v", err)
	}
	if len(parsed.Orders) != len(doc.Orders) || len(parsed.Assets) != len(doc.Assets) {
		t.Fatalf("parsed counts differ: %d/%d orders, %d/%d assets",
			len(parsed.Orders), len(doc.Orders), len(parsed.Assets), len(doc.Assets))
	}
}
