package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/go-marketplace-backoffice/internal/model"
)

func TestCartService_AddItem(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "4.50", 10)

	qty, clamped, err := e.cart.AddItem(context.Background(), buyer, p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
	assert.False(t, clamped)

	cart, err := e.cart.GetItems(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{p.ID: 2}, cart.Items)
}

func TestCartService_AddItem_ClampsToStock(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 5)
	ctx := context.Background()

	qty, clamped, err := e.cart.AddItem(ctx, buyer, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, qty)
	assert.False(t, clamped)

	qty, clamped, err = e.cart.AddItem(ctx, buyer, p.ID, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, qty)
	assert.True(t, clamped, "3 held + 4 requested exceeds stock 5")

	cart, err := e.cart.GetItems(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Items[p.ID])
	assert.Equal(t, 5, e.db.product(p.ID).Quantity, "cart must not reserve stock")
}

func TestCartService_AddItem_FirstAddClamps(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 2)

	qty, clamped, err := e.cart.AddItem(context.Background(), buyer, p.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, qty)
	assert.True(t, clamped)
}

func TestCartService_AddItem_ExactStockIsNotClamped(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 5)
	ctx := context.Background()

	_, _, err := e.cart.AddItem(ctx, buyer, p.ID, 2)
	require.NoError(t, err)
	qty, clamped, err := e.cart.AddItem(ctx, buyer, p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, qty)
	assert.False(t, clamped)
}

func TestCartService_AddItem_ConcurrentAddsKeepEveryIncrement(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 100)

	const adds = 20
	var wg sync.WaitGroup
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.cart.AddItem(context.Background(), buyer, p.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cart, err := e.cart.GetItems(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, adds, cart.Items[p.ID])
}

func TestCartService_AddItem_InvalidQuantity(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 5)

	for _, qty := range []int{0, -1} {
		_, _, err := e.cart.AddItem(context.Background(), buyer, p.ID, qty)
		assert.ErrorIs(t, err, ErrValidation, "qty %d", qty)
	}
	assert.Empty(t, e.carts.carts)
}

func TestCartService_AddItem_ProductNotFound(t *testing.T) {
	e := newEnv(t)
	buyer := e.actor(t, model.RoleBuyer)

	_, _, err := e.cart.AddItem(context.Background(), buyer, uuid.New(), 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCartService_AddItem_SoftDeletedProduct(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 5)
	require.NoError(t, e.catalog.SoftDelete(context.Background(), supplier, p.ID))

	_, _, err := e.cart.AddItem(context.Background(), buyer, p.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCartService_AddItem_OutOfStock(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 0)

	_, _, err := e.cart.AddItem(context.Background(), buyer, p.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	cart, err := e.cart.GetItems(context.Background(), buyer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartService_AddItem_RequiresBuyerSession(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	p := e.product(t, supplier.UserID, "1.00", 5)

	_, _, err := e.cart.AddItem(context.Background(), supplier, p.ID, 1)
	assert.ErrorIs(t, err, ErrAuthorization)

	buyer := e.actor(t, model.RoleBuyer)
	buyer.SessionID = ""
	_, _, err = e.cart.AddItem(context.Background(), buyer, p.ID, 1)
	assert.ErrorIs(t, err, ErrNoSession)

	_, _, err = e.cart.AddItem(context.Background(), model.Actor{}, p.ID, 1)
	assert.ErrorIs(t, err, ErrAuthorization)
}

func TestCartService_RemoveItemAndClear(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	a := e.product(t, supplier.UserID, "1.00", 5)
	b := e.product(t, supplier.UserID, "2.00", 5)
	ctx := context.Background()

	_, _, err := e.cart.AddItem(ctx, buyer, a.ID, 1)
	require.NoError(t, err)
	_, _, err = e.cart.AddItem(ctx, buyer, b.ID, 2)
	require.NoError(t, err)

	require.NoError(t, e.cart.RemoveItem(ctx, buyer, a.ID))
	cart, err := e.cart.GetItems(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{b.ID: 2}, cart.Items)

	require.NoError(t, e.cart.Clear(ctx, buyer))
	cart, err = e.cart.GetItems(ctx, buyer)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
}

func TestCartService_StoreFailure(t *testing.T) {
	e := newEnv(t)
	supplier := e.actor(t, model.RoleSupplier)
	buyer := e.actor(t, model.RoleBuyer)
	p := e.product(t, supplier.UserID, "1.00", 5)
	e.carts.err = errBoom

	_, _, err := e.cart.AddItem(context.Background(), buyer, p.ID, 1)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, errBoom)
}
