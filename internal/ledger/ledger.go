// Package ledger is the single writer of cross-entity derived state: an
// asset's repair status and a technician's active-task counter are only
// mutated here, in step with the work-order lifecycle.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetline/internal/config"
	"assetline/internal/domain"
	"assetline/internal/events"
	"assetline/internal/repo"
)

type Ledger struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Ledger {
	return Ledger{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// ErrCompletedImmutable rejects reassignment of a completed work order.
var ErrCompletedImmutable = errors.New("work order is completed; reassignment not allowed")

// ValidationError marks a rejected operation; no state was changed.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string { return e.Reason }

func invalid(format string, args ...any) error {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Outcome of one best-effort bookkeeping write.
type Outcome string

const (
	// OutcomeApplied means the dependent entity was found and updated.
	OutcomeApplied Outcome = "applied"
	// OutcomeSkippedNotFound means the referenced id did not resolve and the
	// update was skipped. The primary write still happened.
	OutcomeSkippedNotFound Outcome = "skipped_not_found"
	// OutcomeUnchanged means the operation had no bookkeeping to do.
	OutcomeUnchanged Outcome = "unchanged"
)

// SyncReport describes what happened to the derived state alongside a
// work-order write. Callers can warn on skipped updates instead of them
// being invisible.
type SyncReport struct {
	Technician Outcome `json:"technician"`
	Asset      Outcome `json:"asset"`
}

func unchangedReport() SyncReport {
	return SyncReport{Technician: OutcomeUnchanged, Asset: OutcomeUnchanged}
}

// CreateWorkOrder dispatches a new work order: the order is persisted with
// status open, the technician's activeTasks is incremented and the asset is
// flipped to under_repair. Asset and technician ids are soft references; a
// dangling id skips that update and is reported, never rejected.
func (l Ledger) CreateWorkOrder(ctx context.Context, w domain.WorkOrder, actorID string) (domain.WorkOrder, SyncReport, error) {
	report := unchangedReport()
	if strings.TrimSpace(w.Title) == "" {
		return w, report, invalid("title is required")
	}
	if w.AssetID == "" {
		return w, report, invalid("asset_id is required")
	}
	if w.TechnicianID == "" {
		return w, report, invalid("technician_id is required")
	}
	if w.Priority == "" {
		w.Priority = domain.PriorityMedium
	}
	now := l.now().UTC().Format(time.RFC3339)
	if w.ID == "" {
		w.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(w.AssetID+"|"+w.Title+"|"+now)).String()
	}
	w.Status = domain.OrderOpen
	w.CompletionNote = ""
	w.CompletedAt = nil
	w.CreatedAt = now
	w.UpdatedAt = now

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return w, report, err
	}
	defer tx.Rollback()

	if err := l.Repo.InsertWorkOrder(ctx, tx, w); err != nil {
		return w, report, fmt.Errorf("insert work order: %w", err)
	}
	report.Technician, err = l.adjustActiveTasks(ctx, tx, w.TechnicianID, +1, now)
	if err != nil {
		return w, report, err
	}
	report.Asset, err = l.setAssetStatusTx(ctx, tx, w.AssetID, domain.AssetUnderRepair, now, false)
	if err != nil {
		return w, report, err
	}
	if err := l.Events.Append(ctx, tx, "work_order.created", "work_order", w.ID, actorID, events.EventPayload{
		"asset_id":      w.AssetID,
		"technician_id": w.TechnicianID,
		"priority":      w.Priority,
		"sync":          report,
	}); err != nil {
		return w, report, err
	}
	if err := tx.Commit(); err != nil {
		return w, report, err
	}
	return w, report, nil
}

// UpdateWorkOrder edits order fields and handles handover to another
// technician. Status, completion note and completion timestamp are owned by
// UpdateWorkOrderStatus and are preserved from the stored order. The asset is
// never touched here.
func (l Ledger) UpdateWorkOrder(ctx context.Context, updated domain.WorkOrder, actorID string) (domain.WorkOrder, SyncReport, error) {
	report := unchangedReport()
	stored, err := l.Repo.GetWorkOrder(ctx, updated.ID)
	if err != nil {
		return updated, report, err
	}
	reassigned := updated.TechnicianID != "" && updated.TechnicianID != stored.TechnicianID
	if reassigned && stored.Status == domain.OrderCompleted {
		return stored, report, ErrCompletedImmutable
	}
	if strings.TrimSpace(updated.Title) == "" {
		updated.Title = stored.Title
	}
	if updated.TechnicianID == "" {
		updated.TechnicianID = stored.TechnicianID
	}
	if updated.AssetID == "" {
		updated.AssetID = stored.AssetID
	}
	if updated.Description == "" {
		updated.Description = stored.Description
	}
	if updated.Priority == "" {
		updated.Priority = stored.Priority
	}
	if updated.DueDate == "" {
		updated.DueDate = stored.DueDate
	}
	if updated.Evidence == nil {
		updated.Evidence = stored.Evidence
	}
	updated.Status = stored.Status
	updated.CompletionNote = stored.CompletionNote
	updated.CompletedAt = stored.CompletedAt
	updated.CreatedAt = stored.CreatedAt
	now := l.now().UTC().Format(time.RFC3339)
	updated.UpdatedAt = now

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return updated, report, err
	}
	defer tx.Rollback()

	if err := l.Repo.UpdateWorkOrder(ctx, tx, updated); err != nil {
		return updated, report, err
	}
	if reassigned {
		if _, err := l.adjustActiveTasks(ctx, tx, stored.TechnicianID, -1, now); err != nil {
			return updated, report, err
		}
		report.Technician, err = l.adjustActiveTasks(ctx, tx, updated.TechnicianID, +1, now)
		if err != nil {
			return updated, report, err
		}
		if err := l.Events.Append(ctx, tx, "work_order.handover", "work_order", updated.ID, actorID, events.EventPayload{
			"from": stored.TechnicianID,
			"to":   updated.TechnicianID,
		}); err != nil {
			return updated, report, err
		}
	}
	if err := l.Events.Append(ctx, tx, "work_order.updated", "work_order", updated.ID, actorID, events.EventPayload{
		"reassigned": reassigned,
	}); err != nil {
		return updated, report, err
	}
	if err := tx.Commit(); err != nil {
		return updated, report, err
	}
	return updated, report, nil
}

// UpdateWorkOrderStatus transitions a work order. Completing an order
// requires a non-empty note, stamps completedAt exactly once, releases the
// technician's counter and returns the asset to operational. Re-completing an
// already completed order repeats none of the side effects.
func (l Ledger) UpdateWorkOrderStatus(ctx context.Context, id, newStatus, note string, evidence []string, actorID string) (domain.WorkOrder, SyncReport, error) {
	report := unchangedReport()
	if !domain.ValidOrderStatus(newStatus) {
		return domain.WorkOrder{}, report, invalid("invalid work order status %q", newStatus)
	}
	stored, err := l.Repo.GetWorkOrder(ctx, id)
	if err != nil {
		return stored, report, err
	}
	completing := newStatus == domain.OrderCompleted && stored.Status != domain.OrderCompleted
	if completing && strings.TrimSpace(note) == "" {
		return stored, report, invalid("completion note is required")
	}
	now := l.now().UTC().Format(time.RFC3339)
	prev := stored.Status
	stored.Status = newStatus
	if note != "" {
		stored.CompletionNote = note
	}
	if evidence != nil {
		stored.Evidence = evidence
	}
	if completing && stored.CompletedAt == nil {
		stored.CompletedAt = &now
	}
	stored.UpdatedAt = now

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return stored, report, err
	}
	defer tx.Rollback()

	if err := l.Repo.UpdateWorkOrder(ctx, tx, stored); err != nil {
		return stored, report, err
	}
	if completing {
		report.Technician, err = l.adjustActiveTasks(ctx, tx, stored.TechnicianID, -1, now)
		if err != nil {
			return stored, report, err
		}
		report.Asset, err = l.setAssetStatusTx(ctx, tx, stored.AssetID, domain.AssetOperational, now, true)
		if err != nil {
			return stored, report, err
		}
	}
	if err := l.Events.Append(ctx, tx, "work_order.status", "work_order", stored.ID, actorID, events.EventPayload{
		"from": prev,
		"to":   newStatus,
		"sync": report,
	}); err != nil {
		return stored, report, err
	}
	if err := tx.Commit(); err != nil {
		return stored, report, err
	}
	return stored, report, nil
}

// adjustActiveTasks applies a +1/-1 delta to a technician's counter, floored
// at zero. A missing technician is skipped, not an error.
func (l Ledger) adjustActiveTasks(ctx context.Context, tx *sql.Tx, technicianID string, delta int, now string) (Outcome, error) {
	t, err := l.Repo.GetTechnicianTx(ctx, tx, technicianID)
	if errors.Is(err, repo.ErrNotFound) {
		return OutcomeSkippedNotFound, nil
	}
	if err != nil {
		return OutcomeUnchanged, err
	}
	count := t.ActiveTasks + delta
	if count < 0 {
		count = 0
	}
	if err := l.Repo.SetActiveTasks(ctx, tx, t.ID, count, now); err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeApplied, nil
}

// setAssetStatusTx flips an asset's status inside an order transition. When
// the flip marks a completed repair, the last-maintained date is stamped too.
func (l Ledger) setAssetStatusTx(ctx context.Context, tx *sql.Tx, assetID, status, now string, maintained bool) (Outcome, error) {
	a, err := l.Repo.GetAssetTx(ctx, tx, assetID)
	if errors.Is(err, repo.ErrNotFound) {
		return OutcomeSkippedNotFound, nil
	}
	if err != nil {
		return OutcomeUnchanged, err
	}
	a.Status = status
	if maintained {
		a.LastMaintained = &now
	}
	a.UpdatedAt = now
	if err := l.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return OutcomeUnchanged, err
	}
	return OutcomeApplied, nil
}

// UpdateAssetStatus is the direct override: always permitted, no side effects
// beyond the status itself. Used for manual admin correction.
func (l Ledger) UpdateAssetStatus(ctx context.Context, id, status, actorID string) (domain.Asset, error) {
	if !domain.ValidAssetStatus(status) {
		return domain.Asset{}, invalid("invalid asset status %q", status)
	}
	a, err := l.Repo.GetAsset(ctx, id)
	if err != nil {
		return a, err
	}
	prev := a.Status
	a.Status = status
	a.UpdatedAt = l.now().UTC().Format(time.RFC3339)

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := l.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := l.Events.Append(ctx, tx, "asset.status", "asset", a.ID, actorID, events.EventPayload{
		"from": prev,
		"to":   status,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// RegisterAsset creates an asset record.
func (l Ledger) RegisterAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error) {
	if strings.TrimSpace(a.Name) == "" {
		return a, invalid("name is required")
	}
	if a.Status == "" {
		a.Status = domain.AssetOperational
	}
	if !domain.ValidAssetStatus(a.Status) {
		return a, invalid("invalid asset status %q", a.Status)
	}
	now := l.now().UTC().Format(time.RFC3339)
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := l.Repo.InsertAsset(ctx, tx, a); err != nil {
		return a, fmt.Errorf("insert asset: %w", err)
	}
	if err := l.Events.Append(ctx, tx, "asset.registered", "asset", a.ID, actorID, events.EventPayload{
		"name": a.Name, "status": a.Status,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// EditAsset is the direct admin edit path: any field may be set, including
// status. Derived-state bookkeeping does not run here.
func (l Ledger) EditAsset(ctx context.Context, a domain.Asset, actorID string) (domain.Asset, error) {
	stored, err := l.Repo.GetAsset(ctx, a.ID)
	if err != nil {
		return a, err
	}
	if strings.TrimSpace(a.Name) == "" {
		a.Name = stored.Name
	}
	if a.Status == "" {
		a.Status = stored.Status
	}
	if !domain.ValidAssetStatus(a.Status) {
		return a, invalid("invalid asset status %q", a.Status)
	}
	a.CreatedAt = stored.CreatedAt
	a.UpdatedAt = l.now().UTC().Format(time.RFC3339)

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()
	if err := l.Repo.UpdateAsset(ctx, tx, a); err != nil {
		return a, err
	}
	if err := l.Events.Append(ctx, tx, "asset.updated", "asset", a.ID, actorID, nil); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

// DeleteAsset removes the asset. Work orders referencing it are retained and
// become orphaned; no referential cleanup runs.
func (l Ledger) DeleteAsset(ctx context.Context, id, actorID string) error {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := l.Repo.DeleteAsset(ctx, tx, id); err != nil {
		return err
	}
	if err := l.Events.Append(ctx, tx, "asset.deleted", "asset", id, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// RegisterTechnician creates a technician with activeTasks initialized to 0.
func (l Ledger) RegisterTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error) {
	if strings.TrimSpace(t.Name) == "" {
		return t, invalid("name is required")
	}
	if t.Rank == "" && len(l.Config.Ranks) > 0 {
		t.Rank = l.Config.Ranks[0]
	}
	if l.Config.RankIndex(t.Rank) < 0 {
		return t, invalid("unknown rank %q", t.Rank)
	}
	now := l.now().UTC().Format(time.RFC3339)
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.ActiveTasks = 0
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := l.Repo.InsertTechnician(ctx, tx, t); err != nil {
		return t, fmt.Errorf("insert technician: %w", err)
	}
	if err := l.Events.Append(ctx, tx, "technician.registered", "technician", t.ID, actorID, events.EventPayload{
		"name": t.Name, "rank": t.Rank,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// EditTechnician updates profile fields. The activeTasks counter is derived
// state and always preserved from the stored record.
func (l Ledger) EditTechnician(ctx context.Context, t domain.Technician, actorID string) (domain.Technician, error) {
	stored, err := l.Repo.GetTechnician(ctx, t.ID)
	if err != nil {
		return t, err
	}
	if strings.TrimSpace(t.Name) == "" {
		t.Name = stored.Name
	}
	if t.Rank == "" {
		t.Rank = stored.Rank
	}
	if l.Config.RankIndex(t.Rank) < 0 {
		return t, invalid("unknown rank %q", t.Rank)
	}
	if t.Password == "" {
		t.Password = stored.Password
	}
	t.ActiveTasks = stored.ActiveTasks
	t.CreatedAt = stored.CreatedAt
	t.UpdatedAt = l.now().UTC().Format(time.RFC3339)

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := l.Repo.UpdateTechnician(ctx, tx, t); err != nil {
		return t, err
	}
	if err := l.Events.Append(ctx, tx, "technician.updated", "technician", t.ID, actorID, nil); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// PromoteTechnician moves a technician to another rank tier.
func (l Ledger) PromoteTechnician(ctx context.Context, id, rank, actorID string) (domain.Technician, error) {
	if l.Config.RankIndex(rank) < 0 {
		return domain.Technician{}, invalid("unknown rank %q", rank)
	}
	t, err := l.Repo.GetTechnician(ctx, id)
	if err != nil {
		return t, err
	}
	prev := t.Rank
	t.Rank = rank
	t.UpdatedAt = l.now().UTC().Format(time.RFC3339)

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	if err := l.Repo.UpdateTechnician(ctx, tx, t); err != nil {
		return t, err
	}
	if err := l.Events.Append(ctx, tx, "technician.promoted", "technician", t.ID, actorID, events.EventPayload{
		"from": prev, "to": rank,
	}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// DeleteTechnician removes a technician and reports how many of their
// work orders are still open or in progress. Those orders keep the dead
// reference; there is no reassignment on delete.
func (l Ledger) DeleteTechnician(ctx context.Context, id, actorID string) (int, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	orphaned, err := l.Repo.CountActiveForTechnician(ctx, tx, id)
	if err != nil {
		return 0, err
	}
	if err := l.Repo.DeleteTechnician(ctx, tx, id); err != nil {
		return 0, err
	}
	if err := l.Events.Append(ctx, tx, "technician.deleted", "technician", id, actorID, events.EventPayload{
		"orphaned_orders": orphaned,
	}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return orphaned, nil
}

// Adjustment records one counter repair made by Reconcile.
type Adjustment struct {
	TechnicianID string `json:"technician_id"`
	From         int    `json:"from"`
	To           int    `json:"to"`
}

// Reconcile recomputes every technician's activeTasks from the work-order
// set and repairs any drift. The incremental counters can diverge when an
// external actor writes work orders without going through the ledger.
func (l Ledger) Reconcile(ctx context.Context, actorID string) ([]Adjustment, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	counts, err := l.Repo.CountActiveByTechnician(ctx, tx)
	if err != nil {
		return nil, err
	}
	techs, err := l.Repo.ListTechniciansTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	now := l.now().UTC().Format(time.RFC3339)
	var adjustments []Adjustment
	for _, t := range techs {
		want := counts[t.ID]
		if t.ActiveTasks == want {
			continue
		}
		if err := l.Repo.SetActiveTasks(ctx, tx, t.ID, want, now); err != nil {
			return nil, err
		}
		adjustments = append(adjustments, Adjustment{TechnicianID: t.ID, From: t.ActiveTasks, To: want})
	}
	if len(adjustments) > 0 {
		if err := l.Events.Append(ctx, tx, "ledger.reconciled", "technician", "", actorID, events.EventPayload{
			"adjustments": adjustments,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return adjustments, nil
}
