package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-ledger-service/internal/models"
)

const testTenant = "tenant-1"

// memStore is an in-memory StockStore for engine and resolver tests.
// transaction gives it the rollback semantics of the production store:
// an attempt runs against a copy and only commits on success.
type memStore struct {
	records []*models.StockRecord
	ledger  []models.StockLedgerEntry
	faults  *adjustFaults
}

// adjustFaults injects ErrConcurrentModification into selected Adjust
// calls, counted across transaction attempts.
type adjustFaults struct {
	calls     int
	failFirst int // fail the first N calls
	failCall  int // fail exactly this call number (1-based), 0 disables
}

func (f *adjustFaults) next() error {
	f.calls++
	if f.calls <= f.failFirst || (f.failCall != 0 && f.calls == f.failCall) {
		return ErrConcurrentModification
	}
	return nil
}

func newMemStore() *memStore {
	return &memStore{faults: &adjustFaults{}}
}

// transaction runs fn against a copy of the store, committing the copy only
// when fn succeeds. The fault counter is shared so injected failures are
// counted across attempts.
func (s *memStore) transaction(fn func(tx *memStore) error) error {
	tx := &memStore{
		records: make([]*models.StockRecord, len(s.records)),
		ledger:  append([]models.StockLedgerEntry(nil), s.ledger...),
		faults:  s.faults,
	}
	for i, r := range s.records {
		copied := *r
		tx.records[i] = &copied
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.records = tx.records
	s.ledger = tx.ledger
	return nil
}

func (s *memStore) addRecord(productID uuid.UUID, location, room, rack string, quantity int) *models.StockRecord {
	record := &models.StockRecord{
		ID:                uuid.New(),
		TenantID:          testTenant,
		ProductID:         productID,
		Location:          location,
		Room:              room,
		Rack:              rack,
		QuantityOnHand:    quantity,
		QuantityAvailable: quantity,
	}
	s.records = append(s.records, record)
	return record
}

func (s *memStore) FindByBin(_ context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error) {
	for _, r := range s.records {
		if r.TenantID == tenantID && r.ProductID == productID && r.Location == location && r.Room == room && r.Rack == rack {
			copied := *r
			return &copied, nil
		}
	}
	return nil, &LocationNotFoundError{ProductID: productID, Location: location, Room: room, Rack: rack}
}

func (s *memStore) ListByProduct(_ context.Context, tenantID string, productID uuid.UUID) ([]models.StockRecord, error) {
	var out []models.StockRecord
	for _, r := range s.records {
		if r.TenantID == tenantID && r.ProductID == productID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *memStore) EnsureRecord(_ context.Context, tenantID string, productID uuid.UUID, location, room, rack string) (*models.StockRecord, error) {
	for _, r := range s.records {
		if r.TenantID == tenantID && r.ProductID == productID && r.Location == location && r.Room == room && r.Rack == rack {
			copied := *r
			return &copied, nil
		}
	}
	record := &models.StockRecord{
		ID:        uuid.New(),
		TenantID:  tenantID,
		ProductID: productID,
		Location:  location,
		Room:      room,
		Rack:      rack,
	}
	s.records = append(s.records, record)
	copied := *record
	return &copied, nil
}

func (s *memStore) Adjust(_ context.Context, tenantID string, recordID uuid.UUID, delta int) (*models.StockRecord, error) {
	if err := s.faults.next(); err != nil {
		return nil, err
	}
	for _, r := range s.records {
		if r.TenantID == tenantID && r.ID == recordID {
			if r.QuantityOnHand+delta < 0 {
				return nil, ErrConcurrentModification
			}
			r.QuantityOnHand += delta
			r.QuantityAvailable = r.QuantityOnHand - r.QuantityReserved
			copied := *r
			return &copied, nil
		}
	}
	return nil, &LocationNotFoundError{ProductID: uuid.Nil}
}

func (s *memStore) AppendLedger(_ context.Context, entry *models.StockLedgerEntry) error {
	if !entry.Balanced() {
		return &LedgerValidationError{
			Previous:  entry.PreviousQuantity,
			Quantity:  entry.Quantity,
			Resulting: entry.ResultingQuantity,
		}
	}
	entry.Sequence = int64(len(s.ledger) + 1)
	s.ledger = append(s.ledger, *entry)
	return nil
}

func (s *memStore) onHand(productID uuid.UUID) int {
	total := 0
	for _, r := range s.records {
		if r.ProductID == productID {
			total += r.QuantityOnHand
		}
	}
	return total
}

// testDoc implements StockDocument for engine tests.
type testDoc struct {
	items    []DocumentItem
	status   models.DocumentStatus
	number   string
	consumed bool
}

func (d *testDoc) Items() []DocumentItem         { return d.items }
func (d *testDoc) Status() models.DocumentStatus { return d.status }
func (d *testDoc) ReferenceID() string           { return d.number }
func (d *testDoc) ReferenceType() string         { return "DELIVERY_CHALLAN" }
func (d *testDoc) ConsumedStock() bool           { return d.consumed }

func planFor(location, room, rack string, quantity, available int) *models.AllocationPlan {
	return &models.AllocationPlan{
		Lines: []models.AllocationLine{
			{Location: location, Room: room, Rack: rack, AllocatedQuantity: quantity, AvailableQuantity: available},
		},
		CanFulfill: true,
	}
}

func TestReconcileCreateConsumesStock(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "R1", 10)

	doc := &testDoc{
		number: "DC-202608-000001",
		status: models.DocumentStatusDraft,
		items: []DocumentItem{
			{ProductID: productID, Quantity: 4, Allocation: planFor("MAIN", "A", "R1", 4, 10)},
		},
	}

	engine := NewEngine(nil)
	report, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind:        TransitionCreate,
		Document:    doc,
		PerformedBy: "user-1",
	})
	require.NoError(t, err)
	assert.True(t, report.StockConsumed)

	assert.Equal(t, 6, store.onHand(productID))
	require.Len(t, store.ledger, 1)

	entry := store.ledger[0]
	assert.Equal(t, models.TransactionOutward, entry.TransactionType)
	assert.Equal(t, -4, entry.Quantity)
	assert.Equal(t, 10, entry.PreviousQuantity)
	assert.Equal(t, 6, entry.ResultingQuantity)
	assert.Equal(t, "DC-202608-000001", entry.ReferenceID)
	assert.Equal(t, "user-1", entry.PerformedBy)
	assert.True(t, entry.Balanced())
}

func TestReconcileCreateInsufficientStockAppliesNothing(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)

	doc := &testDoc{
		number: "DC-202608-000002",
		status: models.DocumentStatusDraft,
		items:  []DocumentItem{{ProductID: productID, Quantity: 15}},
	}

	engine := NewEngine(nil)
	_, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind:     TransitionCreate,
		Document: doc,
	})

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 10, insufficient.Available)
	assert.Equal(t, 15, insufficient.Requested)

	assert.Equal(t, 10, store.onHand(productID))
	assert.Empty(t, store.ledger)
}

func TestReconcileCreateValidatesAllProductsBeforeCommitting(t *testing.T) {
	store := newMemStore()
	productA := uuid.New()
	productB := uuid.New()
	store.addRecord(productA, "MAIN", "", "", 10)
	store.addRecord(productB, "MAIN", "", "", 1)

	doc := &testDoc{
		number: "DC-202608-000003",
		status: models.DocumentStatusDraft,
		items: []DocumentItem{
			{ProductID: productA, Quantity: 5},
			{ProductID: productB, Quantity: 2},
		},
	}

	engine := NewEngine(nil)
	_, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind:     TransitionCreate,
		Document: doc,
	})

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The coverable product must not have been touched either.
	assert.Equal(t, 10, store.onHand(productA))
	assert.Equal(t, 1, store.onHand(productB))
	assert.Empty(t, store.ledger)
}

func TestReconcileUpdateAppliesDifferenceThenDeleteRestores(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	engine := NewEngine(nil)
	ctx := context.Background()

	doc := &testDoc{
		number: "DC-202608-000004",
		status: models.DocumentStatusDraft,
		items:  []DocumentItem{{ProductID: productID, Quantity: 4}},
	}
	report, err := engine.Reconcile(ctx, store, testTenant, Transition{Kind: TransitionCreate, Document: doc})
	require.NoError(t, err)
	doc.consumed = report.StockConsumed
	assert.Equal(t, 6, store.onHand(productID))

	// Increase quantity 4 -> 6: only the difference of 2 is consumed.
	oldItems := doc.items
	doc.items = []DocumentItem{{ProductID: productID, Quantity: 6}}
	report, err = engine.Reconcile(ctx, store, testTenant, Transition{
		Kind:     TransitionUpdate,
		Document: doc,
		OldItems: oldItems,
	})
	require.NoError(t, err)
	assert.True(t, report.StockConsumed)
	assert.Equal(t, 4, store.onHand(productID))

	require.Len(t, store.ledger, 2)
	assert.Equal(t, -2, store.ledger[1].Quantity)
	assert.Equal(t, 6, store.ledger[1].PreviousQuantity)
	assert.Equal(t, 4, store.ledger[1].ResultingQuantity)

	// Deleting the draft returns the full consumed quantity.
	report, err = engine.Reconcile(ctx, store, testTenant, Transition{Kind: TransitionDelete, Document: doc})
	require.NoError(t, err)
	assert.False(t, report.StockConsumed)
	assert.Equal(t, 10, store.onHand(productID))

	require.Len(t, store.ledger, 3)
	assert.Equal(t, 6, store.ledger[2].Quantity)
	assert.Equal(t, models.TransactionInward, store.ledger[2].TransactionType)

	// Conservation: signed ledger quantities cancel out.
	total := 0
	for _, entry := range store.ledger {
		total += entry.Quantity
	}
	assert.Zero(t, total)
}

func TestReconcileUpdateNoChangeWritesNothing(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	engine := NewEngine(nil)

	items := []DocumentItem{{ProductID: productID, Quantity: 3}}
	doc := &testDoc{number: "DC-202608-000005", status: models.DocumentStatusDraft, items: items, consumed: true}

	report, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind:     TransitionUpdate,
		Document: doc,
		OldItems: items,
	})
	require.NoError(t, err)
	assert.True(t, report.StockConsumed)
	assert.Empty(t, report.Products)
	assert.Empty(t, store.ledger)
	assert.Equal(t, 10, store.onHand(productID))
}

func TestReconcileUpdateOnUnconsumedDocumentWritesNothing(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	engine := NewEngine(nil)

	doc := &testDoc{
		number:   "DC-202608-000006",
		status:   models.DocumentStatusDraft,
		items:    []DocumentItem{{ProductID: productID, Quantity: 8}},
		consumed: false,
	}

	report, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind:     TransitionUpdate,
		Document: doc,
		OldItems: []DocumentItem{{ProductID: productID, Quantity: 2}},
	})
	require.NoError(t, err)
	assert.False(t, report.StockConsumed)
	assert.Empty(t, store.ledger)
	assert.Equal(t, 10, store.onHand(productID))
}

func TestStatusCycleNeverDoubleConsumes(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 20)
	engine := NewEngine(nil)
	ctx := context.Background()

	doc := &testDoc{
		number: "DC-202608-000007",
		status: models.DocumentStatusDraft,
		items:  []DocumentItem{{ProductID: productID, Quantity: 5}},
	}

	report, err := engine.Reconcile(ctx, store, testTenant, Transition{Kind: TransitionCreate, Document: doc})
	require.NoError(t, err)
	doc.consumed = report.StockConsumed
	assert.Equal(t, 15, store.onHand(productID))

	// DRAFT -> SENT would consume, but the stock is already held.
	report, err = engine.Reconcile(ctx, store, testTenant, Transition{
		Kind: TransitionStatusChange, Document: doc,
		From: models.DocumentStatusDraft, To: models.DocumentStatusSent,
	})
	require.NoError(t, err)
	doc.status, doc.consumed = models.DocumentStatusSent, report.StockConsumed
	assert.Equal(t, 15, store.onHand(productID))
	assert.Len(t, store.ledger, 1)

	// SENT -> DRAFT restores.
	report, err = engine.Reconcile(ctx, store, testTenant, Transition{
		Kind: TransitionStatusChange, Document: doc,
		From: models.DocumentStatusSent, To: models.DocumentStatusDraft,
	})
	require.NoError(t, err)
	doc.status, doc.consumed = models.DocumentStatusDraft, report.StockConsumed
	assert.Equal(t, 20, store.onHand(productID))
	assert.False(t, doc.consumed)

	// DRAFT -> SENT consumes again, exactly once.
	report, err = engine.Reconcile(ctx, store, testTenant, Transition{
		Kind: TransitionStatusChange, Document: doc,
		From: models.DocumentStatusDraft, To: models.DocumentStatusSent,
	})
	require.NoError(t, err)
	doc.status, doc.consumed = models.DocumentStatusSent, report.StockConsumed

	assert.Equal(t, 15, store.onHand(productID))
	assert.Len(t, store.ledger, 3)
}

func TestReconcileSentToDeliveredTouchesNothing(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	engine := NewEngine(nil)

	doc := &testDoc{
		number:   "DC-202608-000008",
		status:   models.DocumentStatusSent,
		items:    []DocumentItem{{ProductID: productID, Quantity: 5}},
		consumed: true,
	}

	report, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind: TransitionStatusChange, Document: doc,
		From: models.DocumentStatusSent, To: models.DocumentStatusDelivered,
	})
	require.NoError(t, err)
	assert.True(t, report.StockConsumed)
	assert.Empty(t, store.ledger)
	assert.Equal(t, 10, store.onHand(productID))
}

func TestReconcileInvalidTransitionRejected(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	engine := NewEngine(nil)

	doc := &testDoc{
		number:   "DC-202608-000009",
		status:   models.DocumentStatusDelivered,
		items:    []DocumentItem{{ProductID: productID, Quantity: 5}},
		consumed: true,
	}

	_, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind: TransitionStatusChange, Document: doc,
		From: models.DocumentStatusDelivered, To: models.DocumentStatusSent,
	})

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, store.ledger)
}

func TestReconcileDeleteNonDraftRejected(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	engine := NewEngine(nil)

	doc := &testDoc{
		number:   "DC-202608-000010",
		status:   models.DocumentStatusSent,
		items:    []DocumentItem{{ProductID: productID, Quantity: 5}},
		consumed: true,
	}

	_, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind:     TransitionDelete,
		Document: doc,
	})
	require.ErrorIs(t, err, ErrDeleteNotDraft)
	assert.Equal(t, 10, store.onHand(productID))
	assert.Empty(t, store.ledger)
}

// reconcileWithRetry drives a transition the way the document services do:
// each attempt runs inside its own transaction, and RetryConflicts re-runs
// the whole transaction after a concurrent modification.
func reconcileWithRetry(t *testing.T, engine *Engine, store *memStore, transition Transition) (*Report, error) {
	t.Helper()
	var report *Report
	err := engine.RetryConflicts(transition.Document.ReferenceID(), func() error {
		return store.transaction(func(tx *memStore) error {
			var err error
			report, err = engine.Reconcile(context.Background(), tx, testTenant, transition)
			return err
		})
	})
	return report, err
}

func TestRetryConflictsRetriesAfterConcurrentModification(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	store.faults.failFirst = 1
	engine := NewEngine(nil)

	doc := &testDoc{
		number: "DC-202608-000011",
		status: models.DocumentStatusDraft,
		items:  []DocumentItem{{ProductID: productID, Quantity: 4}},
	}

	report, err := reconcileWithRetry(t, engine, store, Transition{
		Kind:     TransitionCreate,
		Document: doc,
	})
	require.NoError(t, err)
	assert.True(t, report.StockConsumed)
	assert.Equal(t, 6, store.onHand(productID))
	assert.Len(t, store.ledger, 1)
	assert.Equal(t, 2, store.faults.calls)
}

func TestRetryConflictsGivesUpAfterBoundedRetries(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	store.faults.failFirst = 10
	engine := NewEngine(nil)

	doc := &testDoc{
		number: "DC-202608-000012",
		status: models.DocumentStatusDraft,
		items:  []DocumentItem{{ProductID: productID, Quantity: 4}},
	}

	_, err := reconcileWithRetry(t, engine, store, Transition{
		Kind:     TransitionCreate,
		Document: doc,
	})
	require.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, 10, store.onHand(productID))
	assert.Empty(t, store.ledger)
}

func TestRetryAfterPartialCommitAppliesEachProductOnce(t *testing.T) {
	store := newMemStore()
	productA := uuid.New()
	productB := uuid.New()
	store.addRecord(productA, "MAIN", "", "", 10)
	store.addRecord(productB, "MAIN", "", "", 10)

	// The first attempt adjusts one product, then loses the guard on the
	// second. The rollback must discard the first product's consumption so
	// the retry applies every product exactly once.
	store.faults.failCall = 2
	engine := NewEngine(nil)

	doc := &testDoc{
		number: "DC-202608-000015",
		status: models.DocumentStatusDraft,
		items: []DocumentItem{
			{ProductID: productA, Quantity: 5},
			{ProductID: productB, Quantity: 5},
		},
	}

	report, err := reconcileWithRetry(t, engine, store, Transition{
		Kind:     TransitionCreate,
		Document: doc,
	})
	require.NoError(t, err)
	assert.True(t, report.StockConsumed)

	assert.Equal(t, 5, store.onHand(productA))
	assert.Equal(t, 5, store.onHand(productB))
	require.Len(t, store.ledger, 2)

	total := 0
	perProduct := make(map[uuid.UUID]int)
	for _, entry := range store.ledger {
		total += entry.Quantity
		perProduct[entry.ProductID]++
	}
	assert.Equal(t, -10, total)
	assert.Equal(t, 1, perProduct[productA])
	assert.Equal(t, 1, perProduct[productB])
	assert.Equal(t, 4, store.faults.calls)
}

func TestReconcileMultiBinPlanConsumesAndRestoresSameBins(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "R1", 3)
	store.addRecord(productID, "MAIN", "B", "R2", 5)
	engine := NewEngine(nil)
	ctx := context.Background()

	plan := &models.AllocationPlan{
		Lines: []models.AllocationLine{
			{Location: "MAIN", Room: "A", Rack: "R1", AllocatedQuantity: 3, AvailableQuantity: 3},
			{Location: "MAIN", Room: "B", Rack: "R2", AllocatedQuantity: 2, AvailableQuantity: 5},
		},
		CanFulfill: true,
	}
	doc := &testDoc{
		number: "DC-202608-000013",
		status: models.DocumentStatusDraft,
		items:  []DocumentItem{{ProductID: productID, Quantity: 5, Allocation: plan}},
	}

	report, err := engine.Reconcile(ctx, store, testTenant, Transition{Kind: TransitionCreate, Document: doc})
	require.NoError(t, err)
	doc.consumed = report.StockConsumed

	require.Len(t, store.ledger, 2)
	assert.Equal(t, "A", store.ledger[0].Room)
	assert.Equal(t, -3, store.ledger[0].Quantity)
	assert.Equal(t, "B", store.ledger[1].Room)
	assert.Equal(t, -2, store.ledger[1].Quantity)
	assert.Equal(t, 3, store.onHand(productID))

	// Cancelling the draft restores into the same bins.
	report, err = engine.Reconcile(ctx, store, testTenant, Transition{
		Kind: TransitionStatusChange, Document: doc,
		From: models.DocumentStatusDraft, To: models.DocumentStatusCancelled,
	})
	require.NoError(t, err)
	assert.False(t, report.StockConsumed)
	assert.Equal(t, 8, store.onHand(productID))

	require.Len(t, store.ledger, 4)
	assert.Equal(t, "A", store.ledger[2].Room)
	assert.Equal(t, 3, store.ledger[2].Quantity)
	assert.Equal(t, "B", store.ledger[3].Room)
	assert.Equal(t, 2, store.ledger[3].Quantity)
}

func TestReconcileMergesDuplicateProductLines(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "", "", 10)
	engine := NewEngine(nil)

	doc := &testDoc{
		number: "DC-202608-000014",
		status: models.DocumentStatusDraft,
		items: []DocumentItem{
			{ProductID: productID, Quantity: 2},
			{ProductID: productID, Quantity: 3},
		},
	}

	report, err := engine.Reconcile(context.Background(), store, testTenant, Transition{
		Kind:     TransitionCreate,
		Document: doc,
	})
	require.NoError(t, err)
	require.Len(t, report.Products, 1)
	assert.Equal(t, 5, store.onHand(productID))
	require.Len(t, store.ledger, 1)
	assert.Equal(t, -5, store.ledger[0].Quantity)
}
