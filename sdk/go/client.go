// Package assetlinesdk is a small HTTP client for the Assetline API.
package assetlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Assetline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Asset mirrors the API asset model.
type Asset struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Location       string  `json:"location"`
	Status         string  `json:"status"`
	ImageRef       string  `json:"image_ref,omitempty"`
	PurchaseDate   string  `json:"purchase_date,omitempty"`
	ArrivalDate    string  `json:"arrival_date,omitempty"`
	LastMaintained *string `json:"last_maintained,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// WorkOrder mirrors the API work-order model.
type WorkOrder struct {
	ID             string   `json:"id"`
	AssetID        string   `json:"asset_id"`
	TechnicianID   string   `json:"technician_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority"`
	Status         string   `json:"status"`
	DueDate        string   `json:"due_date,omitempty"`
	CompletionNote string   `json:"completion_note,omitempty"`
	Evidence       []string `json:"evidence,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	CompletedAt    *string  `json:"completed_at,omitempty"`
}

// Technician mirrors the API technician model. Passwords never travel back.
type Technician struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Specialty   string   `json:"specialty,omitempty"`
	Rank        string   `json:"rank"`
	ActiveTasks int      `json:"active_tasks"`
	Rating      *float64 `json:"rating,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// SyncReport mirrors the bookkeeping outcome attached to work-order writes.
type SyncReport struct {
	Technician string `json:"technician"`
	Asset      string `json:"asset"`
}

// WorkOrderResult is a work-order write response.
type WorkOrderResult struct {
	WorkOrder WorkOrder  `json:"work_order"`
	Sync      SyncReport `json:"sync"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Settings mirrors the API settings model.
type Settings struct {
	Theme      string   `json:"theme"`
	Language   string   `json:"language"`
	Categories []string `json:"categories"`
	Locations  []string `json:"locations"`
	Ranks      []string `json:"ranks"`
}

// Adjustment is one counter repair reported by Reconcile.
type Adjustment struct {
	TechnicianID string `json:"technician_id"`
	From         int    `json:"from"`
	To           int    `json:"to"`
}

// LoginResult is the login response.
type LoginResult struct {
	Token      string     `json:"token"`
	Technician Technician `json:"technician"`
}

// APIError wraps non-2xx responses. Code carries the error envelope code when
// the body parses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// Health checks the service without authentication.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// Login authenticates a technician and returns a session token.
func (c *Client) Login(ctx context.Context, technicianID, password string) (LoginResult, error) {
	body := map[string]any{
		"technician_id": technicianID,
		"password":      password,
	}
	var resp LoginResult
	err := c.do(ctx, http.MethodPost, "auth/login", body, &resp)
	return resp, err
}

// Status returns the dataset overview counters.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, "status", nil, &resp)
	return resp, err
}

// CreateAsset registers an asset.
func (c *Client) CreateAsset(ctx context.Context, a Asset) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodPost, "assets", assetPayload(a), &resp)
	return resp, err
}

// ListAssets returns assets, optionally filtered by status.
func (c *Client) ListAssets(ctx context.Context, status string) ([]Asset, error) {
	endpoint := "assets"
	if status != "" {
		endpoint = fmt.Sprintf("assets?status=%s", url.QueryEscape(status))
	}
	var resp []Asset
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetAsset fetches an asset by id.
func (c *Client) GetAsset(ctx context.Context, id string) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodGet, "assets/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateAsset patches asset fields.
func (c *Client) UpdateAsset(ctx context.Context, a Asset) (Asset, error) {
	body := assetPayload(a)
	delete(body, "id")
	var resp Asset
	err := c.do(ctx, http.MethodPatch, "assets/"+url.PathEscape(a.ID), body, &resp)
	return resp, err
}

// SetAssetStatus overrides an asset's status.
func (c *Client) SetAssetStatus(ctx context.Context, id, status string) (Asset, error) {
	var resp Asset
	err := c.do(ctx, http.MethodPatch, "assets/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// DeleteAsset removes an asset.
func (c *Client) DeleteAsset(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "assets/"+url.PathEscape(id), nil, nil)
}

// CreateTechnician registers a technician.
func (c *Client) CreateTechnician(ctx context.Context, t Technician, password string) (Technician, error) {
	body := map[string]any{
		"id":        t.ID,
		"name":      t.Name,
		"specialty": t.Specialty,
		"rank":      t.Rank,
	}
	if password != "" {
		body["password"] = password
	}
	if t.Rating != nil {
		body["rating"] = *t.Rating
	}
	var resp Technician
	err := c.do(ctx, http.MethodPost, "technicians", body, &resp)
	return resp, err
}

// ListTechnicians returns all technicians.
func (c *Client) ListTechnicians(ctx context.Context) ([]Technician, error) {
	var resp []Technician
	err := c.do(ctx, http.MethodGet, "technicians", nil, &resp)
	return resp, err
}

// GetTechnician fetches a technician by id.
func (c *Client) GetTechnician(ctx context.Context, id string) (Technician, error) {
	var resp Technician
	err := c.do(ctx, http.MethodGet, "technicians/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateTechnician patches technician profile fields.
func (c *Client) UpdateTechnician(ctx context.Context, t Technician, password string) (Technician, error) {
	body := map[string]any{
		"name":      t.Name,
		"specialty": t.Specialty,
		"rank":      t.Rank,
	}
	if password != "" {
		body["password"] = password
	}
	if t.Rating != nil {
		body["rating"] = *t.Rating
	}
	var resp Technician
	err := c.do(ctx, http.MethodPatch, "technicians/"+url.PathEscape(t.ID), body, &resp)
	return resp, err
}

// SetTechnicianRank promotes a technician.
func (c *Client) SetTechnicianRank(ctx context.Context, id, rank string) (Technician, error) {
	var resp Technician
	err := c.do(ctx, http.MethodPatch, "technicians/"+url.PathEscape(id)+"/rank", map[string]any{"rank": rank}, &resp)
	return resp, err
}

// DeleteTechnician removes a technician and returns the count of work orders
// left pointing at the dead id.
func (c *Client) DeleteTechnician(ctx context.Context, id string) (int, error) {
	var resp struct {
		Deleted        bool `json:"deleted"`
		OrphanedOrders int  `json:"orphaned_orders"`
	}
	err := c.do(ctx, http.MethodDelete, "technicians/"+url.PathEscape(id), nil, &resp)
	return resp.OrphanedOrders, err
}

// CreateWorkOrder dispatches a work order.
func (c *Client) CreateWorkOrder(ctx context.Context, w WorkOrder) (WorkOrderResult, error) {
	var resp WorkOrderResult
	err := c.do(ctx, http.MethodPost, "work-orders", workOrderPayload(w), &resp)
	return resp, err
}

// ListWorkOrders returns work orders matching the given filters. Empty
// filter values are omitted.
func (c *Client) ListWorkOrders(ctx context.Context, filters map[string]string) ([]WorkOrder, error) {
	endpoint := "work-orders"
	q := url.Values{}
	for k, v := range filters {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []WorkOrder
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetWorkOrder fetches a work order by id.
func (c *Client) GetWorkOrder(ctx context.Context, id string) (WorkOrder, error) {
	var resp WorkOrder
	err := c.do(ctx, http.MethodGet, "work-orders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateWorkOrder edits order fields, including handover to another
// technician.
func (c *Client) UpdateWorkOrder(ctx context.Context, w WorkOrder) (WorkOrderResult, error) {
	body := workOrderPayload(w)
	delete(body, "id")
	var resp WorkOrderResult
	err := c.do(ctx, http.MethodPatch, "work-orders/"+url.PathEscape(w.ID), body, &resp)
	return resp, err
}

// SetWorkOrderStatus transitions a work order. Note is required when
// completing.
func (c *Client) SetWorkOrderStatus(ctx context.Context, id, status, note string, evidence []string) (WorkOrderResult, error) {
	body := map[string]any{"status": status}
	if note != "" {
		body["note"] = note
	}
	if evidence != nil {
		body["evidence"] = evidence
	}
	var resp WorkOrderResult
	err := c.do(ctx, http.MethodPatch, "work-orders/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// Settings fetches the resolved settings.
func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodGet, "settings", nil, &resp)
	return resp, err
}

// UpdateSettings patches settings. Nil slices are omitted.
func (c *Client) UpdateSettings(ctx context.Context, theme, language string, categories, locations []string) (Settings, error) {
	body := map[string]any{}
	if theme != "" {
		body["theme"] = theme
	}
	if language != "" {
		body["language"] = language
	}
	if categories != nil {
		body["categories"] = categories
	}
	if locations != nil {
		body["locations"] = locations
	}
	var resp Settings
	err := c.do(ctx, http.MethodPatch, "settings", body, &resp)
	return resp, err
}

// ExportBackup returns the raw backup document.
func (c *Client) ExportBackup(ctx context.Context) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodGet, "backup", nil, &resp)
	return resp, err
}

// RestoreBackup replaces the remote dataset with the given document.
func (c *Client) RestoreBackup(ctx context.Context, doc json.RawMessage) error {
	return c.do(ctx, http.MethodPost, "backup/restore", doc, nil)
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("events?limit=%d", limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Reconcile recomputes technician counters on the server.
func (c *Client) Reconcile(ctx context.Context) ([]Adjustment, error) {
	var resp []Adjustment
	err := c.do(ctx, http.MethodPost, "reconcile", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(json.RawMessage); ok {
			buf.Write(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Code: errorCode(b), Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// assetPayload keeps only the writable asset fields; empty values are
// omitted so server-side fallbacks apply.
func assetPayload(a Asset) map[string]any {
	body := map[string]any{}
	for k, v := range map[string]string{
		"id":            a.ID,
		"name":          a.Name,
		"category":      a.Category,
		"location":      a.Location,
		"status":        a.Status,
		"image_ref":     a.ImageRef,
		"purchase_date": a.PurchaseDate,
		"arrival_date":  a.ArrivalDate,
	} {
		if v != "" {
			body[k] = v
		}
	}
	return body
}

// workOrderPayload keeps only the writable work-order fields. Status and
// completion fields are owned by the status endpoint and never sent here.
func workOrderPayload(w WorkOrder) map[string]any {
	body := map[string]any{}
	for k, v := range map[string]string{
		"id":            w.ID,
		"asset_id":      w.AssetID,
		"technician_id": w.TechnicianID,
		"title":         w.Title,
		"description":   w.Description,
		"priority":      w.Priority,
		"due_date":      w.DueDate,
	} {
		if v != "" {
			body[k] = v
		}
	}
	if w.Evidence != nil {
		body["evidence"] = w.Evidence
	}
	return body
}

func errorCode(body []byte) string {
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Error.Code
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
