package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/returns"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/infrastructure/store/mocks"
	"github.com/example/ec-shop/internal/validate"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event any) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event.(Event))
	return nil
}

func (p *recordingPublisher) typesSeen() []string {
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store      *mocks.MockStore
	catalog    *product.Catalog
	orders     *order.Service
	returns    *returns.Service
	producer   *recordingPublisher
	engine     *Engine
	categoryID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := mocks.NewMockStore()
	registry := category.NewRegistry(st)
	catalog := product.NewCatalog(st, registry)
	registry.BindProducts(catalog)
	orders := order.NewService(st, catalog)
	rets := returns.NewService(st, orders)
	producer := &recordingPublisher{}

	f := &fixture{
		store:    st,
		catalog:  catalog,
		orders:   orders,
		returns:  rets,
		producer: producer,
		engine:   NewEngine(catalog, orders, rets, producer),
	}
	ctx := context.Background()
	require.NoError(t, registry.Load(ctx))
	require.NoError(t, catalog.Load(ctx))
	require.NoError(t, orders.Load(ctx))
	require.NoError(t, rets.Load(ctx))

	cat, err := registry.Create(ctx, "Beverages")
	require.NoError(t, err)
	f.categoryID = cat.ID
	return f
}

func (f *fixture) addProduct(t *testing.T, name string, price string, stock int) *product.Product {
	t.Helper()
	p, err := f.catalog.Create(context.Background(), validate.ProductInput{
		Name:        name,
		Price:       price,
		Stock:       fmt.Sprintf("%d", stock),
		CategoryID:  f.categoryID,
		Description: "A quality product for testing",
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) placeOrder(t *testing.T, items ...order.CheckoutItem) *order.Order {
	t.Helper()
	o, err := f.orders.Checkout(context.Background(), "user-1", "Taro Yamada", items)
	require.NoError(t, err)
	return o
}

// seedOrder writes an order straight to the store, bypassing Checkout's
// validation and line merging, then reloads the order service.
func (f *fixture) seedOrder(t *testing.T, status order.Status, items ...order.Item) string {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.Add(ctx, store.CollectionOrders, &order.Order{
		UserID:       "user-1",
		CustomerName: "Taro Yamada",
		Items:        items,
		Status:       status,
		Date:         time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, f.orders.Load(ctx))
	return id
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	p, err := f.catalog.Get(productID)
	require.NoError(t, err)
	return p.Stock
}

func TestConfirmOrderDeductsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 3})

	err := f.engine.ConfirmOrder(ctx, o.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, f.stock(t, p.ID))
	got, err := f.orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
	assert.Equal(t, []string{EventOrderConfirmed, EventStockDeducted}, f.producer.typesSeen())
}

func TestConfirmOrderInsufficientStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 3})

	// Another confirmed order drained the stock in the meantime.
	drain := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 4})
	require.NoError(t, f.engine.ConfirmOrder(ctx, drain.ID))
	require.Equal(t, 1, f.stock(t, p.ID))

	err := f.engine.ConfirmOrder(ctx, o.ID)
	var insufficient *order.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortages, 1)
	assert.Equal(t, "Green Tea", insufficient.Shortages[0].Name)
	assert.Equal(t, 3, insufficient.Shortages[0].Requested)
	assert.Equal(t, 1, insufficient.Shortages[0].Available)

	// Nothing changed: stock stays, order stays pending.
	assert.Equal(t, 1, f.stock(t, p.ID))
	got, err := f.orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestConfirmOrderAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	covered := f.addProduct(t, "Green Tea", "5.00", 10)
	short := f.addProduct(t, "Black Tea", "4.00", 2)
	o := f.placeOrder(t,
		order.CheckoutItem{ProductID: covered.ID, Quantity: 2},
		order.CheckoutItem{ProductID: short.ID, Quantity: 2},
	)

	drain := f.placeOrder(t, order.CheckoutItem{ProductID: short.ID, Quantity: 1})
	require.NoError(t, f.engine.ConfirmOrder(ctx, drain.ID))

	err := f.engine.ConfirmOrder(ctx, o.ID)
	var insufficient *order.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)

	// The covered item must not have been deducted.
	assert.Equal(t, 10, f.stock(t, covered.ID))
	assert.Equal(t, 1, f.stock(t, short.ID))
}

func TestConfirmOrderAggregatesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 10)
	orderID := f.seedOrder(t, order.StatusPending,
		order.Item{ProductID: p.ID, Quantity: 3, Price: 5},
		order.Item{ProductID: p.ID, Quantity: 3, Price: 5},
	)

	require.NoError(t, f.engine.ConfirmOrder(ctx, orderID))

	// Both lines deducted: one combined write of 6, not two writes of 3
	// against the same pre-read value.
	assert.Equal(t, 4, f.stock(t, p.ID))
	assert.Equal(t, []string{EventOrderConfirmed, EventStockDeducted}, f.producer.typesSeen())
}

func TestConfirmOrderDuplicateLinesShortage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	orderID := f.seedOrder(t, order.StatusPending,
		order.Item{ProductID: p.ID, Quantity: 3, Price: 5},
		order.Item{ProductID: p.ID, Quantity: 3, Price: 5},
	)

	// Each line fits on its own but their sum does not.
	err := f.engine.ConfirmOrder(ctx, orderID)
	var insufficient *order.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	require.Len(t, insufficient.Shortages, 1)
	assert.Equal(t, 6, insufficient.Shortages[0].Requested)
	assert.Equal(t, 5, insufficient.Shortages[0].Available)

	assert.Equal(t, 5, f.stock(t, p.ID))
	got, err := f.orders.Get(orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestRejectOrderRestoresDuplicateLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 4)
	orderID := f.seedOrder(t, order.StatusConfirmed,
		order.Item{ProductID: p.ID, Quantity: 3, Price: 5},
		order.Item{ProductID: p.ID, Quantity: 3, Price: 5},
	)

	require.NoError(t, f.engine.RejectOrder(ctx, orderID))

	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestConfirmOrderRollsBackOnPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.addProduct(t, "Green Tea", "5.00", 10)
	second := f.addProduct(t, "Black Tea", "4.00", 10)
	o := f.placeOrder(t,
		order.CheckoutItem{ProductID: first.ID, Quantity: 3},
		order.CheckoutItem{ProductID: second.ID, Quantity: 3},
	)

	boom := errors.New("write failed")
	f.store.UpdateCallback = func(ctx context.Context, collection, id string, data any) error {
		if collection == store.CollectionProducts && id == second.ID {
			return boom
		}
		return nil
	}

	err := f.engine.ConfirmOrder(ctx, o.ID)
	require.ErrorIs(t, err, boom)

	// The first item's deduction was compensated.
	f.store.UpdateCallback = nil
	assert.Equal(t, 10, f.stock(t, first.ID))
	assert.Equal(t, 10, f.stock(t, second.ID))
	got, err := f.orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Empty(t, f.producer.events)
}

func TestRejectPendingOrderKeepsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 3})

	require.NoError(t, f.engine.RejectOrder(ctx, o.ID))

	assert.Equal(t, 5, f.stock(t, p.ID))
	got, err := f.orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRejected, got.Status)
	assert.Equal(t, []string{EventOrderRejected}, f.producer.typesSeen())
}

func TestRejectConfirmedOrderRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 3})

	require.NoError(t, f.engine.ConfirmOrder(ctx, o.ID))
	require.Equal(t, 2, f.stock(t, p.ID))

	require.NoError(t, f.engine.RejectOrder(ctx, o.ID))

	assert.Equal(t, 5, f.stock(t, p.ID))
	got, err := f.orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRejected, got.Status)
	assert.Contains(t, f.producer.typesSeen(), EventStockRestored)
}

func TestRejectedOrderIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 1})

	require.NoError(t, f.engine.RejectOrder(ctx, o.ID))

	err := f.engine.ConfirmOrder(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
	err = f.engine.RejectOrder(ctx, o.ID)
	assert.ErrorIs(t, err, order.ErrInvalidTransition)
}

func TestConfirmOrderNotFound(t *testing.T) {
	f := newFixture(t)
	err := f.engine.ConfirmOrder(context.Background(), "missing")
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestApproveReturnRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 3})
	require.NoError(t, f.engine.ConfirmOrder(ctx, o.ID))
	require.Equal(t, 2, f.stock(t, p.ID))

	r, err := f.returns.Request(ctx, "user-1", o.ID, p.ID, 2, "Arrived damaged")
	require.NoError(t, err)

	require.NoError(t, f.engine.ApproveReturn(ctx, r.ID))

	assert.Equal(t, 4, f.stock(t, p.ID))
	got, err := f.returns.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusApproved, got.Status)
	assert.Contains(t, f.producer.typesSeen(), EventReturnApproved)
	assert.Contains(t, f.producer.typesSeen(), EventStockRestored)
}

func TestRejectReturnKeepsStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 3})
	require.NoError(t, f.engine.ConfirmOrder(ctx, o.ID))

	r, err := f.returns.Request(ctx, "user-1", o.ID, p.ID, 2, "Changed my mind")
	require.NoError(t, err)

	require.NoError(t, f.engine.RejectReturn(ctx, r.ID))

	assert.Equal(t, 2, f.stock(t, p.ID))
	got, err := f.returns.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusRejected, got.Status)
}

func TestApproveReturnTerminalStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 3})
	require.NoError(t, f.engine.ConfirmOrder(ctx, o.ID))

	r, err := f.returns.Request(ctx, "user-1", o.ID, p.ID, 1, "Arrived damaged")
	require.NoError(t, err)
	require.NoError(t, f.engine.ApproveReturn(ctx, r.ID))

	// Approved is terminal: a second approval must not restore stock again.
	err = f.engine.ApproveReturn(ctx, r.ID)
	assert.ErrorIs(t, err, returns.ErrInvalidTransition)
	assert.Equal(t, 3, f.stock(t, p.ID))
}

func TestApproveReturnWindowExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)

	// Seed an old confirmed order and a pending return directly: Checkout
	// always stamps the current time, and Request enforces the window too.
	oldOrder := &order.Order{
		UserID:       "user-1",
		CustomerName: "Taro Yamada",
		Items:        []order.Item{{ProductID: p.ID, Quantity: 2, Price: 5}},
		Total:        10,
		Status:       order.StatusConfirmed,
		Date:         time.Now().AddDate(0, 0, -20),
	}
	orderID, err := f.store.Add(ctx, store.CollectionOrders, oldOrder)
	require.NoError(t, err)
	ret := &returns.Return{
		OrderID:   orderID,
		UserID:    "user-1",
		ProductID: p.ID,
		Quantity:  2,
		Reason:    "Arrived damaged",
		Status:    returns.StatusPending,
		Date:      time.Now().AddDate(0, 0, -19),
	}
	returnID, err := f.store.Add(ctx, store.CollectionReturns, ret)
	require.NoError(t, err)
	require.NoError(t, f.orders.Load(ctx))
	require.NoError(t, f.returns.Load(ctx))

	err = f.engine.ApproveReturn(ctx, returnID)
	assert.ErrorIs(t, err, returns.ErrReturnWindowExpired)
	assert.Equal(t, 5, f.stock(t, p.ID))
	got, err := f.returns.Get(returnID)
	require.NoError(t, err)
	assert.Equal(t, returns.StatusPending, got.Status)
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 1})

	f.producer.err = errors.New("broker unavailable")
	require.NoError(t, f.engine.ConfirmOrder(ctx, o.ID))

	assert.Equal(t, 4, f.stock(t, p.ID))
	got, err := f.orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestNilProducerIsAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.engine = NewEngine(f.catalog, f.orders, f.returns, nil)
	p := f.addProduct(t, "Green Tea", "5.00", 5)
	o := f.placeOrder(t, order.CheckoutItem{ProductID: p.ID, Quantity: 1})

	require.NoError(t, f.engine.ConfirmOrder(ctx, o.ID))
	assert.Equal(t, 4, f.stock(t, p.ID))
}
