package domain

// Asset status values. The ledger flips UnderRepair/Operational as work orders
// open and complete; the other values are set by direct admin edits.
const (
	AssetOperational = "operational"
	AssetMaintenance = "maintenance"
	AssetUnderRepair = "under_repair"
	AssetBroken      = "broken"
)

// Work order status values.
const (
	OrderOpen       = "open"
	OrderInProgress = "in_progress"
	OrderCompleted  = "completed"
	OrderCancelled  = "cancelled"
)

// Work order priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type Asset struct {
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

// WorkOrder is an SPK: one technician servicing one asset by a due date.
// AssetID and TechnicianID are soft references; they are not enforced with
// foreign keys and may dangle after deletes.
type WorkOrder struct {
	ID             string   `json:"id"`
	AssetID        string   `json:"asset_id"`
	TechnicianID   string   `json:"technician_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority" enum:"low,medium,high"`
	Status         string   `json:"status" enum:"open,in_progress,completed,cancelled"`
	DueDate        string   `json:"due_date,omitempty" format:"date-time"`
	CompletionNote string   `json:"completion_note,omitempty"`
	Evidence       []string `json:"evidence,omitempty"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	UpdatedAt      string   `json:"updated_at" format:"date-time"`
	CompletedAt    *string  `json:"completed_at,omitempty" format:"date-time"`
}

type Technician struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Specialty   string   `json:"specialty,omitempty"`
	Rank        string   `json:"rank"`
	Password    string   `json:"password,omitempty"`
	ActiveTasks int      `json:"active_tasks"`
	Rating      *float64 `json:"rating,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ValidOrderStatus reports whether s is one of the four work-order states.
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderOpen, OrderInProgress, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// ValidAssetStatus reports whether s is a known asset state.
func ValidAssetStatus(s string) bool {
	switch s {
	case AssetOperational, AssetMaintenance, AssetUnderRepair, AssetBroken:
		return true
	}
	return false
}

// OrderIsActive reports whether a work order in status s counts against its
// technician's activeTasks.
func OrderIsActive(s string) bool {
	return s == OrderOpen || s == OrderInProgress
}
