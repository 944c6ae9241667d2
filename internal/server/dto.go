package server

import (
	"encoding/json"

	"assetline/internal/domain"
	"assetline/internal/ledger"
)

// Request payloads

type LoginRequest struct {
	TechnicianID string `json:"technician_id"`
	Password     string `json:"password"`
}

type CreateAssetRequest struct {
	ID           *string `json:"id,omitempty"`
	Name         string  `json:"name"`
	Category     string  `json:"category,omitempty"`
	Location     string  `json:"location,omitempty"`
	Status       *string `json:"status,omitempty" enum:"operational,maintenance,under_repair,broken"`
	ImageRef     *string `json:"image_ref,omitempty"`
	PurchaseDate *string `json:"purchase_date,omitempty" format:"date-time"`
	ArrivalDate  *string `json:"arrival_date,omitempty" format:"date-time"`
}

type UpdateAssetRequest struct {
	Name         *string `json:"name,omitempty"`
	Category     *string `json:"category,omitempty"`
	Location     *string `json:"location,omitempty"`
	Status       *string `json:"status,omitempty" enum:"operational,maintenance,under_repair,broken"`
	ImageRef     *string `json:"image_ref,omitempty"`
	PurchaseDate *string `json:"purchase_date,omitempty" format:"date-time"`
	ArrivalDate  *string `json:"arrival_date,omitempty" format:"date-time"`
}

type SetAssetStatusRequest struct {
	Status string `json:"status" enum:"operational,maintenance,under_repair,broken"`
}

type CreateTechnicianRequest struct {
	ID        *string  `json:"id,omitempty"`
	Name      string   `json:"name"`
	Specialty *string  `json:"specialty,omitempty"`
	Rank      *string  `json:"rank,omitempty"`
	Password  *string  `json:"password,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

type UpdateTechnicianRequest struct {
	Name      *string  `json:"name,omitempty"`
	Specialty *string  `json:"specialty,omitempty"`
	Rank      *string  `json:"rank,omitempty"`
	Password  *string  `json:"password,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

type SetRankRequest struct {
	Rank string `json:"rank"`
}

type CreateWorkOrderRequest struct {
	ID           *string  `json:"id,omitempty"`
	AssetID      string   `json:"asset_id"`
	TechnicianID string   `json:"technician_id"`
	Title        string   `json:"title"`
	Description  *string  `json:"description,omitempty"`
	Priority     *string  `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate      *string  `json:"due_date,omitempty" format:"date-time"`
	Evidence     []string `json:"evidence,omitempty"`
}

type UpdateWorkOrderRequest struct {
	AssetID      *string  `json:"asset_id,omitempty"`
	TechnicianID *string  `json:"technician_id,omitempty"`
	Title        *string  `json:"title,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Priority     *string  `json:"priority,omitempty" enum:"low,medium,high"`
	DueDate      *string  `json:"due_date,omitempty" format:"date-time"`
	Evidence     []string `json:"evidence,omitempty"`
}

type SetWorkOrderStatusRequest struct {
	Status   string   `json:"status" enum:"open,in_progress,completed,cancelled"`
	Note     *string  `json:"note,omitempty"`
	Evidence []string `json:"evidence,omitempty"`
}

type UpdateSettingsRequest struct {
	Theme      *string  `json:"theme,omitempty"`
	Language   *string  `json:"language,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Locations  []string `json:"locations,omitempty"`
}

// Response payloads

type LoginResponse struct {
	Token      string             `json:"token"`
	Technician TechnicianResponse `json:"technician"`
}

type AssetResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Category       string  `json:"category"`
	Location       string  `json:"location"`
	Status         string  `json:"status" enum:"operational,maintenance,under_repair,broken"`
	ImageRef       string  `json:"image_ref,omitempty"`
	PurchaseDate   string  `json:"purchase_date,omitempty" format:"date-time"`
	ArrivalDate    string  `json:"arrival_date,omitempty" format:"date-time"`
	LastMaintained *string `json:"last_maintained,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// TechnicianResponse never carries the password.
type TechnicianResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Specialty   string   `json:"specialty,omitempty"`
	Rank        string   `json:"rank"`
	ActiveTasks int      `json:"active_tasks"`
	Rating      *float64 `json:"rating,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type WorkOrderResponse struct {
	ID             string   `json:"id"`
	AssetID        string   `json:"asset_id"`
	TechnicianID   string   `json:"technician_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority" enum:"low,medium,high"`
	Status         string   `json:"status" enum:"open,in_progress,completed,cancelled"`
	DueDate        string   `json:"due_date,omitempty" format:"date-time"`
	CompletionNote string   `json:"completion_note,omitempty"`
	Evidence       []string `json:"evidence"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
	CompletedAt    *string  `json:"completed_at,omitempty" format:"date-time"`
}

type SyncReportResponse struct {
	Technician string `json:"technician" enum:"applied,skipped_not_found,unchanged"`
	Asset      string `json:"asset" enum:"applied,skipped_not_found,unchanged"`
}

type WorkOrderWithSyncResponse struct {
	WorkOrder WorkOrderResponse  `json:"work_order"`
	Sync      SyncReportResponse `json:"sync"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type SettingsResponse struct {
	Theme      string   `json:"theme"`
	Language   string   `json:"language"`
	Categories []string `json:"categories"`
	Locations  []string `json:"locations"`
	Ranks      []string `json:"ranks"`
}

type DeleteTechnicianResponse struct {
	Deleted        bool `json:"deleted"`
	OrphanedOrders int  `json:"orphaned_orders"`
}

type AdjustmentResponse struct {
	TechnicianID string `json:"technician_id"`
	From         int    `json:"from"`
	To           int    `json:"to"`
}

// Conversion helpers

func assetResponse(a domain.Asset) AssetResponse {
	return AssetResponse(a)
}

func mapAssets(items []domain.Asset) []AssetResponse {
	res := make([]AssetResponse, 0, len(items))
	for _, a := range items {
		res = append(res, assetResponse(a))
	}
	return res
}

func technicianResponse(t domain.Technician) TechnicianResponse {
	return TechnicianResponse{
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

func mapTechnicians(items []domain.Technician) []TechnicianResponse {
	res := make([]TechnicianResponse, 0, len(items))
	for _, t := range items {
		res = append(res, technicianResponse(t))
	}
	return res
}

func workOrderResponse(w domain.WorkOrder) WorkOrderResponse {
	return WorkOrderResponse{
		ID:             w.ID,
		AssetID:        w.AssetID,
		TechnicianID:   w.TechnicianID,
		Title:          w.Title,
		Description:    w.Description,
		Priority:       w.Priority,
		Status:         w.Status,
		DueDate:        w.DueDate,
		CompletionNote: w.CompletionNote,
		Evidence:       nonNilSlice(w.Evidence),
		CreatedAt:      w.CreatedAt,
		UpdatedAt:      w.UpdatedAt,
		CompletedAt:    w.CompletedAt,
	}
}

func mapWorkOrders(items []domain.WorkOrder) []WorkOrderResponse {
	res := make([]WorkOrderResponse, 0, len(items))
	for _, w := range items {
		res = append(res, workOrderResponse(w))
	}
	return res
}

func syncResponse(r ledger.SyncReport) SyncReportResponse {
	return SyncReportResponse{
		Technician: string(r.Technician),
		Asset:      string(r.Asset),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	res := make([]EventResponse, 0, len(items))
	for _, e := range items {
		res = append(res, eventResponse(e))
	}
	return res
}

func mapAdjustments(items []ledger.Adjustment) []AdjustmentResponse {
	res := make([]AdjustmentResponse, 0, len(items))
	for _, a := range items {
		res = append(res, AdjustmentResponse(a))
	}
	return res
}

func assetFromCreate(req CreateAssetRequest) domain.Asset {
	return domain.Asset{
		ID:           stringOrEmpty(req.ID),
		Name:         req.Name,
		Category:     req.Category,
		Location:     req.Location,
		Status:       stringOrEmpty(req.Status),
		ImageRef:     stringOrEmpty(req.ImageRef),
		PurchaseDate: stringOrEmpty(req.PurchaseDate),
		ArrivalDate:  stringOrEmpty(req.ArrivalDate),
	}
}

func applyAssetUpdate(a *domain.Asset, req UpdateAssetRequest) {
	if req.Name != nil {
		a.Name = *req.Name
	}
	if req.Category != nil {
		a.Category = *req.Category
	}
	if req.Location != nil {
		a.Location = *req.Location
	}
	if req.Status != nil {
		a.Status = *req.Status
	}
	if req.ImageRef != nil {
		a.ImageRef = *req.ImageRef
	}
	if req.PurchaseDate != nil {
		a.PurchaseDate = *req.PurchaseDate
	}
	if req.ArrivalDate != nil {
		a.ArrivalDate = *req.ArrivalDate
	}
}

func technicianFromCreate(req CreateTechnicianRequest) domain.Technician {
	return domain.Technician{
		ID:        stringOrEmpty(req.ID),
		Name:      req.Name,
		Specialty: stringOrEmpty(req.Specialty),
		Rank:      stringOrEmpty(req.Rank),
		Password:  stringOrEmpty(req.Password),
		Rating:    req.Rating,
	}
}

func applyTechnicianUpdate(t *domain.Technician, req UpdateTechnicianRequest) {
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.Specialty != nil {
		t.Specialty = *req.Specialty
	}
	if req.Rank != nil {
		t.Rank = *req.Rank
	}
	if req.Password != nil {
		t.Password = *req.Password
	}
	if req.Rating != nil {
		t.Rating = req.Rating
	}
}

func workOrderFromCreate(req CreateWorkOrderRequest) domain.WorkOrder {
	return domain.WorkOrder{
		ID:           stringOrEmpty(req.ID),
		AssetID:      req.AssetID,
		TechnicianID: req.TechnicianID,
		Title:        req.Title,
		Description:  stringOrEmpty(req.Description),
		Priority:     stringOrEmpty(req.Priority),
		DueDate:      stringOrEmpty(req.DueDate),
		Evidence:     req.Evidence,
	}
}

func workOrderFromUpdate(id string, req UpdateWorkOrderRequest) domain.WorkOrder {
	return domain.WorkOrder{
		ID:           id,
		AssetID:      stringOrEmpty(req.AssetID),
		TechnicianID: stringOrEmpty(req.TechnicianID),
		Title:        stringOrEmpty(req.Title),
		Description:  stringOrEmpty(req.Description),
		Priority:     stringOrEmpty(req.Priority),
		DueDate:      stringOrEmpty(req.DueDate),
		Evidence:     req.Evidence,
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
