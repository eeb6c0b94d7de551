package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyOrder        = errors.New("cannot place an empty order")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// validTransitions defines allowed state transitions. A confirmed order may
// still be rejected: that is the reversal path, and it restores stock.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected},
	StatusConfirmed: {StatusRejected},
	StatusRejected:  {}, // terminal state
}

// Item is one (product, quantity) line of an order. Price is the unit price
// captured at checkout time.
type Item struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	CustomerName string    `json:"customerName"`
	Items        []Item    `json:"items"`
	Total        float64   `json:"total"`
	Status       Status    `json:"status"`
	Date         time.Time `json:"date"`
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionError describes why a transition to target is not allowed.
func (o *Order) TransitionError(target Status) error {
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, target)
}

// Shortage is one product whose available stock cannot cover a requested
// quantity.
type Shortage struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError lists every short product, not just the first.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s: Only %d available (requested: %d)", s.Name, s.Available, s.Requested)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// CheckoutItem is the (product, quantity) pair submitted from the cart.
type CheckoutItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Service owns the order collection. Orders are append-only history: there is
// no delete, and status changes go through the reconciliation engine.
type Service struct {
	mu      sync.RWMutex
	store   store.Store
	catalog *product.Catalog
	orders  map[string]*Order
	log     *logrus.Entry
}

func NewService(st store.Store, catalog *product.Catalog) *Service {
	return &Service{
		store:   st,
		catalog: catalog,
		orders:  make(map[string]*Order),
		log:     logrus.WithField("component", "order"),
	}
}

// Load fills the cache from the persistence adapter.
func (s *Service) Load(ctx context.Context) error {
	docs, err := s.store.GetAll(ctx, store.CollectionOrders)
	if err != nil {
		return fmt.Errorf("load orders: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[string]*Order, len(docs))
	for _, doc := range docs {
		var o Order
		if err := json.Unmarshal(doc.Data, &o); err != nil {
			return fmt.Errorf("decode order %s: %w", doc.ID, err)
		}
		o.ID = doc.ID
		s.orders[o.ID] = &o
	}
	s.log.WithField("count", len(s.orders)).Info("orders loaded")
	return nil
}

func (s *Service) Get(id string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := s.clone(o)
	return cp, nil
}

// List returns all orders, newest first.
func (s *Service) List() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *s.clone(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// ListByUser returns one user's orders, newest first.
func (s *Service) ListByUser(userID string) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *s.clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// Checkout validates the cart and creates a pending order. Quantities are
// checked against current stock here as well as at confirm time; stock itself
// is not touched until the order is confirmed.
func (s *Service) Checkout(ctx context.Context, userID, customerName string, items []CheckoutItem) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	// Duplicate lines for the same product are merged before the stock
	// check, so their combined quantity is what gets compared (and later
	// deducted) rather than each line against the same stock value.
	merged := make([]CheckoutItem, 0, len(items))
	seen := make(map[string]int, len(items))
	for _, item := range items {
		if res := validate.Quantity(item.Quantity, -1); !res.OK {
			return nil, validate.FieldErrors{"quantity": res.Message}
		}
		if i, ok := seen[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		seen[item.ProductID] = len(merged)
		merged = append(merged, item)
	}

	var (
		orderItems []Item
		shortages  []Shortage
		total      float64
	)
	for _, item := range merged {
		p, err := s.catalog.Get(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", product.ErrProductNotFound, item.ProductID)
		}
		if item.Quantity > p.Stock {
			shortages = append(shortages, Shortage{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: item.Quantity,
				Available: p.Stock,
			})
			continue
		}
		orderItems = append(orderItems, Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     p.Price,
		})
		total += p.Price * float64(item.Quantity)
	}
	if len(shortages) > 0 {
		return nil, &InsufficientStockError{Shortages: shortages}
	}

	o := &Order{
		UserID:       userID,
		CustomerName: customerName,
		Items:        orderItems,
		Total:        math.Round(total*100) / 100,
		Status:       StatusPending,
		Date:         time.Now(),
	}

	id, err := s.store.Add(ctx, store.CollectionOrders, o)
	if err != nil {
		return nil, err
	}
	o.ID = id

	s.mu.Lock()
	s.orders[id] = o
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"id": id, "user": userID, "total": o.Total}).Info("order placed")
	return s.clone(o), nil
}

// SetStatus persists a status change and then updates the cache. Transition
// rules are enforced by the caller (the reconciliation engine).
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	s.mu.RLock()
	current, ok := s.orders[id]
	s.mu.RUnlock()
	if !ok {
		return ErrOrderNotFound
	}

	updated := *current
	updated.Items = append([]Item(nil), current.Items...)
	updated.Status = status
	if err := s.store.Update(ctx, store.CollectionOrders, id, &updated); err != nil {
		return err
	}

	s.mu.Lock()
	s.orders[id] = &updated
	s.mu.Unlock()
	return nil
}

func (s *Service) clone(o *Order) *Order {
	cp := *o
	cp.Items = append([]Item(nil), o.Items...)
	return &cp
}
