package reconcile

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-ledger-service/internal/models"
)

func TestResolveOutwardPlannedMultiBin(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "R1", 4)
	store.addRecord(productID, "MAIN", "B", "R2", 6)

	plan := &models.AllocationPlan{
		Lines: []models.AllocationLine{
			{Location: "MAIN", Room: "A", Rack: "R1", AllocatedQuantity: 4},
			{Location: "MAIN", Room: "B", Rack: "R2", AllocatedQuantity: 3},
		},
		CanFulfill: true,
	}

	resolver := NewResolver(store)
	allocations, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 7, plan)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, "A", allocations[0].Record.Room)
	assert.Equal(t, 4, allocations[0].Quantity)
	assert.Equal(t, "B", allocations[1].Record.Room)
	assert.Equal(t, 3, allocations[1].Quantity)
}

func TestResolveOutwardPlannedStopsAtRequestedQuantity(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 4)
	store.addRecord(productID, "MAIN", "B", "", 6)

	plan := &models.AllocationPlan{
		Lines: []models.AllocationLine{
			{Location: "MAIN", Room: "A", AllocatedQuantity: 4},
			{Location: "MAIN", Room: "B", AllocatedQuantity: 6},
		},
		CanFulfill: true,
	}

	resolver := NewResolver(store)
	allocations, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 5, plan)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, 4, allocations[0].Quantity)
	assert.Equal(t, 1, allocations[1].Quantity)
}

func TestResolveOutwardPlannedRejectsShortPlan(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 10)

	plan := &models.AllocationPlan{
		Lines:      []models.AllocationLine{{Location: "MAIN", Room: "A", AllocatedQuantity: 3}},
		CanFulfill: true,
	}

	resolver := NewResolver(store)
	_, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 5, plan)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Available)
	assert.Equal(t, 5, insufficient.Requested)
}

func TestResolveOutwardPlannedReverifiesLiveQuantity(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	// The plan's snapshot claimed 5 available, but the live record only has 2.
	store.addRecord(productID, "MAIN", "A", "", 2)

	plan := &models.AllocationPlan{
		Lines:      []models.AllocationLine{{Location: "MAIN", Room: "A", AllocatedQuantity: 5, AvailableQuantity: 5}},
		CanFulfill: true,
	}

	resolver := NewResolver(store)
	_, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 5, plan)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "A", insufficient.Room)
	assert.Equal(t, 2, insufficient.Available)
}

func TestResolveOutwardPlannedUnknownBin(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 10)

	plan := &models.AllocationPlan{
		Lines:      []models.AllocationLine{{Location: "WAREHOUSE-2", AllocatedQuantity: 5}},
		CanFulfill: true,
	}

	resolver := NewResolver(store)
	_, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 5, plan)

	var notFound *LocationNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "WAREHOUSE-2", notFound.Location)
}

func TestResolveOutwardFallbackSweepsCreationOrder(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 3)
	store.addRecord(productID, "MAIN", "B", "", 3)
	store.addRecord(productID, "MAIN", "C", "", 3)

	resolver := NewResolver(store)
	allocations, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 7, nil)
	require.NoError(t, err)
	require.Len(t, allocations, 3)
	assert.Equal(t, "A", allocations[0].Record.Room)
	assert.Equal(t, 3, allocations[0].Quantity)
	assert.Equal(t, "B", allocations[1].Record.Room)
	assert.Equal(t, 3, allocations[1].Quantity)
	assert.Equal(t, "C", allocations[2].Record.Room)
	assert.Equal(t, 1, allocations[2].Quantity)
}

func TestResolveOutwardFallbackSkipsEmptyBins(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 0)
	store.addRecord(productID, "MAIN", "B", "", 5)

	resolver := NewResolver(store)
	allocations, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 5, nil)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "B", allocations[0].Record.Room)
}

func TestResolveOutwardFallbackInsufficientAggregate(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 3)
	store.addRecord(productID, "MAIN", "B", "", 3)

	resolver := NewResolver(store)
	_, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 10, nil)

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 6, insufficient.Available)
	assert.Equal(t, 10, insufficient.Requested)
	assert.Empty(t, insufficient.Location)
}

func TestResolveInwardPlannedReturnsToPlanBins(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 0)
	store.addRecord(productID, "MAIN", "B", "", 0)

	plan := &models.AllocationPlan{
		Lines: []models.AllocationLine{
			{Location: "MAIN", Room: "A", AllocatedQuantity: 3},
			{Location: "MAIN", Room: "B", AllocatedQuantity: 2},
		},
		CanFulfill: true,
	}

	resolver := NewResolver(store)
	allocations, err := resolver.ResolveInward(context.Background(), testTenant, productID, 5, plan)
	require.NoError(t, err)
	require.Len(t, allocations, 2)
	assert.Equal(t, "A", allocations[0].Record.Room)
	assert.Equal(t, 3, allocations[0].Quantity)
	assert.Equal(t, "B", allocations[1].Record.Room)
	assert.Equal(t, 2, allocations[1].Quantity)
}

func TestResolveInwardFallbackUsesFirstRecord(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	store.addRecord(productID, "MAIN", "A", "", 1)
	store.addRecord(productID, "MAIN", "B", "", 9)

	resolver := NewResolver(store)
	allocations, err := resolver.ResolveInward(context.Background(), testTenant, productID, 4, nil)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "A", allocations[0].Record.Room)
	assert.Equal(t, 4, allocations[0].Quantity)
}

func TestResolveInwardFallbackCreatesDefaultRecord(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()

	resolver := NewResolver(store)
	allocations, err := resolver.ResolveInward(context.Background(), testTenant, productID, 4, nil)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, DefaultLocation, allocations[0].Record.Location)
	assert.Equal(t, 0, allocations[0].Record.QuantityOnHand)

	// The record was persisted, not just returned.
	record, err := store.FindByBin(context.Background(), testTenant, productID, DefaultLocation, "", "")
	require.NoError(t, err)
	assert.Equal(t, productID, record.ProductID)
}

func TestResolveRejectsNonPositiveQuantities(t *testing.T) {
	store := newMemStore()
	productID := uuid.New()
	resolver := NewResolver(store)

	_, err := resolver.ResolveOutward(context.Background(), testTenant, productID, 0, nil)
	assert.Error(t, err)

	_, err = resolver.ResolveInward(context.Background(), testTenant, productID, -2, nil)
	assert.Error(t, err)
}
