package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"stock-ledger-service/internal/models"
)

// TransitionKind names the document lifecycle event being reconciled.
type TransitionKind string

const (
	TransitionCreate       TransitionKind = "CREATE"
	TransitionUpdate       TransitionKind = "UPDATE"
	TransitionStatusChange TransitionKind = "STATUS_CHANGE"
	TransitionDelete       TransitionKind = "DELETE"
)

// ErrDeleteNotDraft is returned when a delete is attempted on a non-draft
// document. Non-draft documents must be cancelled, not deleted.
var ErrDeleteNotDraft = errors.New("only draft documents can be deleted; cancel the document first")

// maxCommitRetries bounds automatic retries after a concurrent modification.
const maxCommitRetries = 3

// Transition describes one document lifecycle event.
type Transition struct {
	Kind     TransitionKind
	Document StockDocument

	// OldItems is the prior item list for UPDATE transitions. Products
	// absent from one side are treated as quantity zero.
	OldItems []DocumentItem

	// From and To apply to STATUS_CHANGE transitions.
	From models.DocumentStatus
	To   models.DocumentStatus

	PerformedBy string
}

// ProductResult is the reconciliation outcome for one product.
type ProductResult struct {
	ProductID uuid.UUID                 `json:"productId"`
	Entries   []models.StockLedgerEntry `json:"entries"`
	Records   []models.StockRecord      `json:"records"`
}

// Report lists what the engine applied, per product, and the document's
// resulting consumed-state, which the caller persists alongside the
// document.
type Report struct {
	ReferenceID   string          `json:"referenceId"`
	StockConsumed bool            `json:"stockConsumed"`
	Products      []ProductResult `json:"products"`
}

// productDelta is one product's pending signed quantity change.
type productDelta struct {
	productID uuid.UUID
	quantity  int // magnitude
	outward   bool
	plan      *models.AllocationPlan
}

// plannedMutation is one validated bin mutation awaiting commit.
type plannedMutation struct {
	delta       productDelta
	allocations []binAllocation
}

// Engine computes the per-product quantity deltas of a document lifecycle
// transition and applies the matching stock mutations and ledger entries.
//
// Reconcile is two-pass: every product is validated against live records
// before any mutation is issued, so an insufficiency aborts the transition
// with nothing applied. For atomicity across the commit pass the caller
// passes a transaction-scoped store; the engine itself never opens
// transactions.
type Engine struct {
	logger *logrus.Entry
}

// NewEngine returns an engine that logs through the given logger.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{logger: logger.WithField("component", "reconcile-engine")}
}

// RetryConflicts runs fn, re-running it up to maxCommitRetries times when it
// fails with ErrConcurrentModification. fn must open its own transaction:
// mutations a losing attempt already issued are only discarded by that
// transaction's rollback, so retrying inside a still-open transaction would
// apply them twice.
func (e *Engine) RetryConflicts(referenceID string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= maxCommitRetries; attempt++ {
		if attempt > 0 {
			e.logger.WithFields(logrus.Fields{
				"referenceId": referenceID,
				"attempt":     attempt,
			}).Warn("Retrying reconciliation after concurrent modification")
		}
		err = fn()
		if !errors.Is(err, ErrConcurrentModification) {
			break
		}
	}
	return err
}

// Reconcile applies one document transition against the store, in a single
// validate-then-commit pass. The store must be scoped to the surrounding
// transaction; callers wrap the whole transaction in RetryConflicts so that
// an ErrConcurrentModification rolls back and re-runs cleanly.
func (e *Engine) Reconcile(ctx context.Context, store StockStore, tenantID string, t Transition) (*Report, error) {
	deltas, consumed, err := e.computeDeltas(t)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ReferenceID:   t.Document.ReferenceID(),
		StockConsumed: consumed,
		Products:      make([]ProductResult, 0, len(deltas)),
	}
	if len(deltas) == 0 {
		return report, nil
	}

	// Validate pass: resolve every product before touching anything.
	resolver := NewResolver(store)
	planned := make([]plannedMutation, 0, len(deltas))
	for _, d := range deltas {
		var allocations []binAllocation
		if d.outward {
			allocations, err = resolver.ResolveOutward(ctx, tenantID, d.productID, d.quantity, d.plan)
		} else {
			allocations, err = resolver.ResolveInward(ctx, tenantID, d.productID, d.quantity, d.plan)
		}
		if err != nil {
			return nil, err
		}
		planned = append(planned, plannedMutation{delta: d, allocations: allocations})
	}

	// Commit pass: apply adjustments and paired ledger entries.
	reason := e.reason(t)
	now := time.Now().UTC()
	for _, p := range planned {
		result := ProductResult{ProductID: p.delta.productID}
		for _, alloc := range p.allocations {
			signed := alloc.Quantity
			txType := models.TransactionInward
			if p.delta.outward {
				signed = -alloc.Quantity
				txType = models.TransactionOutward
			}

			record, err := store.Adjust(ctx, tenantID, alloc.Record.ID, signed)
			if err != nil {
				return nil, err
			}

			entry := models.StockLedgerEntry{
				TenantID:          tenantID,
				ProductID:         p.delta.productID,
				Location:          record.Location,
				Room:              record.Room,
				Rack:              record.Rack,
				TransactionType:   txType,
				Quantity:          signed,
				PreviousQuantity:  record.QuantityOnHand - signed,
				ResultingQuantity: record.QuantityOnHand,
				Reason:            reason,
				ReferenceID:       t.Document.ReferenceID(),
				ReferenceType:     t.Document.ReferenceType(),
				PerformedBy:       t.PerformedBy,
				TransactionDate:   now,
			}
			if err := store.AppendLedger(ctx, &entry); err != nil {
				return nil, err
			}

			result.Entries = append(result.Entries, entry)
			result.Records = append(result.Records, *record)
		}
		report.Products = append(report.Products, result)

		e.logger.WithFields(logrus.Fields{
			"referenceId": t.Document.ReferenceID(),
			"productId":   p.delta.productID,
			"quantity":    p.delta.quantity,
			"outward":     p.delta.outward,
			"bins":        len(p.allocations),
		}).Info("Reconciled product stock")
	}

	return report, nil
}

// computeDeltas maps a transition to per-product quantity changes and the
// document's resulting consumed-state. Zero deltas produce no entry.
func (e *Engine) computeDeltas(t Transition) ([]productDelta, bool, error) {
	doc := t.Document
	switch t.Kind {
	case TransitionCreate:
		// Consume-on-create: stock is drawn at creation time even for
		// documents left in draft.
		return itemDeltas(doc.Items(), true), true, nil

	case TransitionUpdate:
		// A document holding no consumed stock has nothing to reconcile;
		// the next consuming transition picks up the new quantities.
		if !doc.ConsumedStock() {
			return nil, false, nil
		}
		return diffDeltas(t.OldItems, doc.Items()), true, nil

	case TransitionStatusChange:
		effect, ok := models.StockEffectFor(t.From, t.To)
		if !ok || !models.IsValidDocumentStatus(t.To) {
			return nil, doc.ConsumedStock(), &InvalidTransitionError{From: t.From, To: t.To}
		}
		switch effect {
		case models.StockEffectConsume:
			if doc.ConsumedStock() {
				return nil, true, nil
			}
			return itemDeltas(doc.Items(), true), true, nil
		case models.StockEffectRestore:
			if !doc.ConsumedStock() {
				return nil, false, nil
			}
			return itemDeltas(doc.Items(), false), false, nil
		default:
			return nil, doc.ConsumedStock(), nil
		}

	case TransitionDelete:
		if doc.Status() != models.DocumentStatusDraft {
			return nil, doc.ConsumedStock(), ErrDeleteNotDraft
		}
		if !doc.ConsumedStock() {
			return nil, false, nil
		}
		return itemDeltas(doc.Items(), false), false, nil
	}
	return nil, doc.ConsumedStock(), fmt.Errorf("unknown transition kind %q", t.Kind)
}

// itemDeltas turns an item list into one delta per product, merging lines
// that share a product.
func itemDeltas(items []DocumentItem, outward bool) []productDelta {
	merged := make(map[uuid.UUID]*productDelta)
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if d, ok := merged[item.ProductID]; ok {
			d.quantity += item.Quantity
			continue
		}
		merged[item.ProductID] = &productDelta{
			productID: item.ProductID,
			quantity:  item.Quantity,
			outward:   outward,
			plan:      item.Allocation,
		}
	}
	return sortDeltas(merged)
}

// diffDeltas computes the per-product difference between two item lists.
// Positive differences consume, negative restore, zero is skipped entirely
// so no-op updates never write ledger entries.
func diffDeltas(oldItems, newItems []DocumentItem) []productDelta {
	type side struct {
		quantity int
		plan     *models.AllocationPlan
	}
	oldSide := make(map[uuid.UUID]side)
	for _, item := range oldItems {
		s := oldSide[item.ProductID]
		s.quantity += item.Quantity
		if item.Allocation != nil {
			s.plan = item.Allocation
		}
		oldSide[item.ProductID] = s
	}
	newSide := make(map[uuid.UUID]side)
	for _, item := range newItems {
		s := newSide[item.ProductID]
		s.quantity += item.Quantity
		if item.Allocation != nil {
			s.plan = item.Allocation
		}
		newSide[item.ProductID] = s
	}

	merged := make(map[uuid.UUID]*productDelta)
	for productID, n := range newSide {
		o := oldSide[productID]
		diff := n.quantity - o.quantity
		if diff == 0 {
			continue
		}
		plan := n.plan
		if plan == nil {
			plan = o.plan
		}
		d := &productDelta{productID: productID, plan: plan}
		if diff > 0 {
			d.quantity = diff
			d.outward = true
		} else {
			d.quantity = -diff
		}
		merged[productID] = d
	}
	for productID, o := range oldSide {
		if _, ok := newSide[productID]; ok {
			continue
		}
		if o.quantity <= 0 {
			continue
		}
		merged[productID] = &productDelta{
			productID: productID,
			quantity:  o.quantity,
			plan:      o.plan,
		}
	}
	return sortDeltas(merged)
}

// sortDeltas orders deltas by product ID so validation errors and ledger
// entries come out deterministically.
func sortDeltas(merged map[uuid.UUID]*productDelta) []productDelta {
	deltas := make([]productDelta, 0, len(merged))
	for _, d := range merged {
		deltas = append(deltas, *d)
	}
	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].productID.String() < deltas[j].productID.String()
	})
	return deltas
}

func (e *Engine) reason(t Transition) string {
	ref := t.Document.ReferenceID()
	switch t.Kind {
	case TransitionCreate:
		return fmt.Sprintf("Stock consumed on creation of %s", ref)
	case TransitionUpdate:
		return fmt.Sprintf("Stock adjusted on update of %s", ref)
	case TransitionStatusChange:
		return fmt.Sprintf("Stock reconciled on %s -> %s of %s", t.From, t.To, ref)
	case TransitionDelete:
		return fmt.Sprintf("Stock restored on deletion of %s", ref)
	}
	return fmt.Sprintf("Stock reconciled for %s", ref)
}
