// Package reconcile is the single place where product stock changes in
// response to order and return status transitions.
package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/returns"
	"github.com/example/ec-shop/internal/validate"
)

// Publisher writes domain events to the event topic. A nil Publisher
// disables publishing.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Engine applies order/return status transitions and reconciles stock.
// A single mutex serializes every stock-affecting operation: transitions on
// the same entities are never interleaved, so a confirm cannot race a
// reversal or a return approval.
type Engine struct {
	mu       sync.Mutex
	catalog  *product.Catalog
	orders   *order.Service
	returns  *returns.Service
	producer Publisher
	log      *logrus.Entry
}

func NewEngine(catalog *product.Catalog, orders *order.Service, rets *returns.Service, producer Publisher) *Engine {
	return &Engine{
		catalog:  catalog,
		orders:   orders,
		returns:  rets,
		producer: producer,
		log:      logrus.WithField("component", "reconcile"),
	}
}

// stockChange is one planned (or applied) stock write, kept so a failed
// multi-item transition can be compensated.
type stockChange struct {
	productID string
	name      string
	before    int
	after     int
}

// itemsByProduct folds an order's line items into one quantity per product,
// first-seen order preserved. Checkout merges duplicate lines, but stored
// orders are not trusted to: checking or writing duplicate lines against the
// same pre-read stock value would lose all but the last deduction.
func itemsByProduct(items []order.Item) []order.Item {
	idx := make(map[string]int, len(items))
	out := make([]order.Item, 0, len(items))
	for _, item := range items {
		if i, ok := idx[item.ProductID]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		idx[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out
}

// ConfirmOrder transitions a pending order to confirmed and deducts stock
// for every line item. The check is all-or-nothing: stock is re-read from
// the persistence adapter per item, every short product is collected first,
// and nothing is deducted unless all items are covered.
func (e *Engine) ConfirmOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orders.Get(orderID)
	if err != nil {
		return err
	}
	if !o.CanTransitionTo(order.StatusConfirmed) {
		return o.TransitionError(order.StatusConfirmed)
	}

	var (
		shortages []order.Shortage
		changes   []stockChange
	)
	for _, item := range itemsByProduct(o.Items) {
		p, err := e.catalog.Reload(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if p.Stock < item.Quantity {
			shortages = append(shortages, order.Shortage{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: item.Quantity,
				Available: p.Stock,
			})
			continue
		}
		after := p.Stock - item.Quantity
		if after < 0 {
			after = 0
		}
		changes = append(changes, stockChange{productID: p.ID, name: p.Name, before: p.Stock, after: after})
	}
	if len(shortages) > 0 {
		return &order.InsufficientStockError{Shortages: shortages}
	}

	for i, ch := range changes {
		if err := e.catalog.SetStock(ctx, ch.productID, ch.after); err != nil {
			e.compensate(ctx, changes[:i])
			return err
		}
	}
	if err := e.orders.SetStatus(ctx, orderID, order.StatusConfirmed); err != nil {
		e.compensate(ctx, changes)
		return err
	}

	e.log.WithFields(logrus.Fields{"order": orderID, "items": len(o.Items)}).Info("order confirmed, stock deducted")

	e.publish(ctx, orderID, EventOrderConfirmed, OrderConfirmed{
		OrderID:      o.ID,
		UserID:       o.UserID,
		CustomerName: o.CustomerName,
		Items:        o.Items,
		Total:        o.Total,
		ConfirmedAt:  time.Now(),
	})
	for _, ch := range changes {
		e.publish(ctx, ch.productID, EventStockDeducted, StockDeducted{
			ProductID: ch.productID,
			Name:      ch.name,
			OrderID:   orderID,
			Quantity:  ch.before - ch.after,
			Remaining: ch.after,
		})
	}
	return nil
}

// RejectOrder transitions a pending or confirmed order to rejected. From
// pending no stock was ever deducted, so nothing changes; from confirmed the
// deduction is reversed item by item.
func (e *Engine) RejectOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, err := e.orders.Get(orderID)
	if err != nil {
		return err
	}
	if !o.CanTransitionTo(order.StatusRejected) {
		return o.TransitionError(order.StatusRejected)
	}
	prev := o.Status

	var changes []stockChange
	if prev == order.StatusConfirmed {
		for _, item := range itemsByProduct(o.Items) {
			p, err := e.catalog.Reload(ctx, item.ProductID)
			if err != nil {
				return err
			}
			changes = append(changes, stockChange{
				productID: p.ID,
				name:      p.Name,
				before:    p.Stock,
				after:     p.Stock + item.Quantity,
			})
		}
		for i, ch := range changes {
			if err := e.catalog.SetStock(ctx, ch.productID, ch.after); err != nil {
				e.compensate(ctx, changes[:i])
				return err
			}
		}
	}

	if err := e.orders.SetStatus(ctx, orderID, order.StatusRejected); err != nil {
		e.compensate(ctx, changes)
		return err
	}

	e.log.WithFields(logrus.Fields{"order": orderID, "from": prev}).Info("order rejected")

	e.publish(ctx, orderID, EventOrderRejected, OrderRejected{
		OrderID:        orderID,
		PreviousStatus: string(prev),
		RejectedAt:     time.Now(),
	})
	for _, ch := range changes {
		e.publish(ctx, ch.productID, EventStockRestored, StockRestored{
			ProductID: ch.productID,
			Source:    "order",
			RefID:     orderID,
			Quantity:  ch.after - ch.before,
			Remaining: ch.after,
		})
	}
	return nil
}

// ApproveReturn transitions a pending return to approved and restores the
// returned quantity, provided the order's return window has not expired.
func (e *Engine) ApproveReturn(ctx context.Context, returnID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.returns.Get(returnID)
	if err != nil {
		return err
	}
	if !r.CanTransitionTo(returns.StatusApproved) {
		return r.TransitionError(returns.StatusApproved)
	}

	o, err := e.orders.Get(r.OrderID)
	if err != nil {
		return err
	}
	if res := validate.ReturnPeriod(o.Date, validate.ReturnPeriodDays); !res.OK {
		return returns.ErrReturnWindowExpired
	}

	p, err := e.catalog.Reload(ctx, r.ProductID)
	if err != nil {
		return err
	}
	ch := stockChange{productID: p.ID, name: p.Name, before: p.Stock, after: p.Stock + r.Quantity}

	if err := e.catalog.SetStock(ctx, ch.productID, ch.after); err != nil {
		return err
	}
	if err := e.returns.SetStatus(ctx, returnID, returns.StatusApproved); err != nil {
		e.compensate(ctx, []stockChange{ch})
		return err
	}

	e.log.WithFields(logrus.Fields{"return": returnID, "product": r.ProductID, "quantity": r.Quantity}).Info("return approved, stock restored")

	e.publish(ctx, returnID, EventReturnApproved, ReturnApproved{
		ReturnID:   returnID,
		OrderID:    r.OrderID,
		ProductID:  r.ProductID,
		Quantity:   r.Quantity,
		ApprovedAt: time.Now(),
	})
	e.publish(ctx, ch.productID, EventStockRestored, StockRestored{
		ProductID: ch.productID,
		Source:    "return",
		RefID:     returnID,
		Quantity:  r.Quantity,
		Remaining: ch.after,
	})
	return nil
}

// RejectReturn transitions a pending return to rejected. Stock is untouched.
func (e *Engine) RejectReturn(ctx context.Context, returnID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.returns.Get(returnID)
	if err != nil {
		return err
	}
	if !r.CanTransitionTo(returns.StatusRejected) {
		return r.TransitionError(returns.StatusRejected)
	}

	if err := e.returns.SetStatus(ctx, returnID, returns.StatusRejected); err != nil {
		return err
	}

	e.log.WithField("return", returnID).Info("return rejected")

	e.publish(ctx, returnID, EventReturnRejected, ReturnRejected{
		ReturnID:   returnID,
		RejectedAt: time.Now(),
	})
	return nil
}

// compensate undoes already-persisted stock writes after a later step in the
// same transition failed, so persisted state and caches match again.
func (e *Engine) compensate(ctx context.Context, applied []stockChange) {
	for _, ch := range applied {
		if err := e.catalog.SetStock(ctx, ch.productID, ch.before); err != nil {
			e.log.WithError(err).WithField("product", ch.productID).Error("stock rollback failed; stored stock may be stale")
		}
	}
}

// publish sends an event envelope; failures are logged, not propagated, since
// the state transition has already been committed.
func (e *Engine) publish(ctx context.Context, key, eventType string, payload any) {
	if e.producer == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		e.log.WithError(err).WithField("type", eventType).Error("marshal event")
		return
	}
	evt := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
	if err := e.producer.Publish(ctx, key, evt); err != nil {
		e.log.WithError(err).WithField("type", eventType).Warn("publish event")
	}
}
