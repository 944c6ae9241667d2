package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"assetline/internal/backup"
	"assetline/internal/config"
	"assetline/internal/db"
	"assetline/internal/ledger"
	"assetline/internal/migrate"
)

const (
	testAdminToken = "test-admin-token"
	testJWTSecret  = "test-jwt-secret"
)

type testServer struct {
	URL    string
	Ledger ledger.Ledger
	client *http.Client
}

func newTestServer(t *testing.T) *testServer {
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
	l := ledger.New(conn, cfg)
	l.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Ledger:    l,
		Backup:    backup.New(conn, cfg),
		AppConfig: cfg,
		Auth: AuthConfig{
			JWTSecret:  testJWTSecret,
			AdminToken: testAdminToken,
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		Ledger: l,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res.StatusCode, data
}

func decodeInto(t *testing.T, data []byte, dest any) {
	t.Helper()
	if err := json.Unmarshal(data, dest); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeInto(t, data, &env)
	return env.Error.Code
}

func (s *testServer) seedTechnician(t *testing.T, id, password string) {
	t.Helper()
	status, data := s.doJSON(t, http.MethodPost, "/v1/technicians", testAdminToken, map[string]any{
		"id":       id,
		"name":     "Tech " + id,
		"rank":     "senior",
		"password": password,
	})
	if status != http.StatusCreated {
		t.Fatalf("create technician: %d %s", status, data)
	}
}

func (s *testServer) seedAsset(t *testing.T, id string) {
	t.Helper()
	status, data := s.doJSON(t, http.MethodPost, "/v1/assets", testAdminToken, map[string]any{
		"id":       id,
		"name":     "Asset " + id,
		"category": "Machinery",
		"location": "Workshop",
	})
	if status != http.StatusCreated {
		t.Fatalf("create asset: %d %s", status, data)
	}
}

func (s *testServer) seedWorkOrder(t *testing.T, id, assetID, techID string) {
	t.Helper()
	status, data := s.doJSON(t, http.MethodPost, "/v1/work-orders", testAdminToken, map[string]any{
		"id":            id,
		"asset_id":      assetID,
		"technician_id": techID,
		"title":         "Fix " + assetID,
	})
	if status != http.StatusCreated {
		t.Fatalf("create work order: %d %s", status, data)
	}
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t)
	status, data := s.doJSON(t, http.MethodGet, "/v1/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health: %d %s", status, data)
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	s := newTestServer(t)
	status, data := s.doJSON(t, http.MethodGet, "/v1/assets", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("no token: %d %s", status, data)
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("code = %q", code)
	}
	status, data = s.doJSON(t, http.MethodGet, "/v1/assets", "not-a-real-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("bad token: %d %s", status, data)
	}
}

func TestWorkOrderLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.seedTechnician(t, "t1", "pw")
	s.seedAsset(t, "a1")

	status, data := s.doJSON(t, http.MethodPost, "/v1/work-orders", testAdminToken, map[string]any{
		"id":            "w1",
		"asset_id":      "a1",
		"technician_id": "t1",
		"title":         "Replace filter",
	})
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, data)
	}
	var created struct {
		WorkOrder WorkOrderResponse  `json:"work_order"`
		Sync      SyncReportResponse `json:"sync"`
	}
	decodeInto(t, data, &created)
	if created.WorkOrder.Status != "open" {
		t.Fatalf("status = %q", created.WorkOrder.Status)
	}
	if created.Sync.Technician != "applied" || created.Sync.Asset != "applied" {
		t.Fatalf("sync = %+v", created.Sync)
	}

	status, data = s.doJSON(t, http.MethodGet, "/v1/technicians/t1", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("get technician: %d %s", status, data)
	}
	var tech TechnicianResponse
	decodeInto(t, data, &tech)
	if tech.ActiveTasks != 1 {
		t.Fatalf("active_tasks = %d, want 1", tech.ActiveTasks)
	}

	status, data = s.doJSON(t, http.MethodGet, "/v1/assets/a1", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatal(status)
	}
	var asset AssetResponse
	decodeInto(t, data, &asset)
	if asset.Status != "under_repair" {
		t.Fatalf("asset status = %q", asset.Status)
	}

	status, data = s.doJSON(t, http.MethodPatch, "/v1/work-orders/w1/status", testAdminToken, map[string]any{
		"status": "completed",
		"note":   "filter replaced",
	})
	if status != http.StatusOK {
		t.Fatalf("complete: %d %s", status, data)
	}
	var completed struct {
		WorkOrder WorkOrderResponse `json:"work_order"`
	}
	decodeInto(t, data, &completed)
	if completed.WorkOrder.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}

	status, data = s.doJSON(t, http.MethodGet, "/v1/technicians/t1", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatal(status)
	}
	decodeInto(t, data, &tech)
	if tech.ActiveTasks != 0 {
		t.Fatalf("active_tasks = %d after completion", tech.ActiveTasks)
	}
	status, data = s.doJSON(t, http.MethodGet, "/v1/assets/a1", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatal(status)
	}
	decodeInto(t, data, &asset)
	if asset.Status != "operational" {
		t.Fatalf("asset status = %q after completion", asset.Status)
	}
}

func TestCompleteWithoutNoteRejected(t *testing.T) {
	s := newTestServer(t)
	s.seedTechnician(t, "t1", "pw")
	s.seedAsset(t, "a1")
	s.seedWorkOrder(t, "w1", "a1", "t1")

	status, data := s.doJSON(t, http.MethodPatch, "/v1/work-orders/w1/status", testAdminToken, map[string]any{
		"status": "completed",
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d %s, want 422", status, data)
	}
	if code := errorCode(t, data); code != "validation_failed" {
		t.Fatalf("code = %q", code)
	}
}

func TestReassignCompletedConflicts(t *testing.T) {
	s := newTestServer(t)
	s.seedTechnician(t, "t1", "pw")
	s.seedTechnician(t, "t2", "pw")
	s.seedAsset(t, "a1")
	s.seedWorkOrder(t, "w1", "a1", "t1")

	status, data := s.doJSON(t, http.MethodPatch, "/v1/work-orders/w1/status", testAdminToken, map[string]any{
		"status": "completed",
		"note":   "done",
	})
	if status != http.StatusOK {
		t.Fatalf("complete: %d %s", status, data)
	}

	status, data = s.doJSON(t, http.MethodPatch, "/v1/work-orders/w1", testAdminToken, map[string]any{
		"technician_id": "t2",
	})
	if status != http.StatusConflict {
		t.Fatalf("reassign: %d %s, want 409", status, data)
	}
	if code := errorCode(t, data); code != "completed_immutable" {
		t.Fatalf("code = %q", code)
	}
}

func TestLoginAndRoleEnforcement(t *testing.T) {
	s := newTestServer(t)
	s.seedTechnician(t, "t1", "secret-pw")

	status, data := s.doJSON(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"technician_id": "t1",
		"password":      "wrong",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad password: %d %s", status, data)
	}

	status, data = s.doJSON(t, http.MethodPost, "/v1/auth/login", "", map[string]any{
		"technician_id": "t1",
		"password":      "secret-pw",
	})
	if status != http.StatusOK {
		t.Fatalf("login: %d %s", status, data)
	}
	var login LoginResponse
	decodeInto(t, data, &login)
	if login.Token == "" {
		t.Fatal("empty token")
	}
	if login.Technician.ID != "t1" {
		t.Fatalf("technician = %+v", login.Technician)
	}

	// Technician tokens can read.
	status, data = s.doJSON(t, http.MethodGet, "/v1/assets", login.Token, nil)
	if status != http.StatusOK {
		t.Fatalf("technician list assets: %d %s", status, data)
	}

	// Admin-only surface stays closed to technicians.
	status, data = s.doJSON(t, http.MethodPost, "/v1/technicians", login.Token, map[string]any{
		"name": "Intruder",
	})
	if status != http.StatusForbidden {
		t.Fatalf("technician create technician: %d %s", status, data)
	}
	status, data = s.doJSON(t, http.MethodGet, "/v1/backup", login.Token, nil)
	if status != http.StatusForbidden {
		t.Fatalf("technician export backup: %d %s", status, data)
	}
}

func TestGetMissingAsset(t *testing.T) {
	s := newTestServer(t)
	status, data := s.doJSON(t, http.MethodGet, "/v1/assets/nope", testAdminToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d %s", status, data)
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("code = %q", code)
	}
}

func TestBackupExportRestore(t *testing.T) {
	s := newTestServer(t)
	s.seedTechnician(t, "t1", "pw")
	s.seedAsset(t, "a1")
	s.seedWorkOrder(t, "w1", "a1", "t1")

	status, data := s.doJSON(t, http.MethodGet, "/v1/backup", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("export: %d %s", status, data)
	}
	var keys map[string]json.RawMessage
	decodeInto(t, data, &keys)
	for _, key := range []string{"version", "exportDate", "assets", "spks", "technicians"} {
		if _, ok := keys[key]; !ok {
			t.Fatalf("export missing %q: %s", key, data)
		}
	}

	// A document missing the spks array never reaches the database.
	status, body := s.doJSON(t, http.MethodPost, "/v1/backup/restore", testAdminToken, map[string]any{
		"version":     "1.0",
		"assets":      []any{},
		"technicians": []any{},
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("invalid restore: %d %s", status, body)
	}

	req, err := http.NewRequest(http.MethodPost, s.URL+"/v1/backup/restore", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	res, err := s.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	restored, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("restore own export: %d %s", res.StatusCode, restored)
	}

	status, data = s.doJSON(t, http.MethodGet, "/v1/work-orders/w1", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("order lost in restore: %d %s", status, data)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seedTechnician(t, "t1", "pw")
	s.seedAsset(t, "a1")
	s.seedWorkOrder(t, "w1", "a1", "t1")

	status, data := s.doJSON(t, http.MethodPost, "/v1/reconcile", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("reconcile: %d %s", status, data)
	}
	var adjustments []AdjustmentResponse
	decodeInto(t, data, &adjustments)
	if len(adjustments) != 0 {
		t.Fatalf("clean dataset adjusted: %+v", adjustments)
	}
}

func TestEventsRecorded(t *testing.T) {
	s := newTestServer(t)
	s.seedTechnician(t, "t1", "pw")
	s.seedAsset(t, "a1")
	s.seedWorkOrder(t, "w1", "a1", "t1")

	status, data := s.doJSON(t, http.MethodGet, "/v1/events?entity_kind=work_order", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("events: %d %s", status, data)
	}
	var events []EventResponse
	decodeInto(t, data, &events)
	if len(events) == 0 {
		t.Fatal("no work order events recorded")
	}
	found := false
	for _, e := range events {
		if e.Type == "work_order.created" && e.EntityID == "w1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("work_order.created for w1 not in %s", data)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestServer(t)

	status, data := s.doJSON(t, http.MethodGet, "/v1/settings", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("get settings: %d %s", status, data)
	}
	var settings SettingsResponse
	decodeInto(t, data, &settings)
	if settings.Theme != "light" {
		t.Fatalf("theme = %q", settings.Theme)
	}

	status, data = s.doJSON(t, http.MethodPatch, "/v1/settings", testAdminToken, map[string]any{
		"theme":      "dark",
		"categories": []string{"Machinery", "Tools"},
	})
	if status != http.StatusOK {
		t.Fatalf("update settings: %d %s", status, data)
	}
	decodeInto(t, data, &settings)
	if settings.Theme != "dark" {
		t.Fatalf("theme = %q after update", settings.Theme)
	}
	if len(settings.Categories) != 2 || settings.Categories[1] != "Tools" {
		t.Fatalf("categories = %v", settings.Categories)
	}
}

func TestOpenAPIServed(t *testing.T) {
	s := newTestServer(t)
	status, data := s.doJSON(t, http.MethodGet, "/v1/openapi.json", testAdminToken, nil)
	if status != http.StatusOK {
		t.Fatalf("openapi: %d", status)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("openapi not json: %v", err)
	}
	if _, ok := doc["paths"]; !ok {
		t.Fatal("openapi missing paths")
	}
	if fmt.Sprint(doc["info"]) == "" {
		t.Fatal("openapi missing info")
	}
}
