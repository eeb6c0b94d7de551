package returns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

var (
	ErrReturnNotFound      = errors.New("return request not found")
	ErrInvalidTransition   = errors.New("invalid return status transition")
	ErrOrderNotConfirmed   = errors.New("only confirmed orders can be returned")
	ErrProductNotInOrder   = errors.New("product is not part of the order")
	ErrDuplicateReturn     = errors.New("a return for this order item is already open")
	ErrReturnWindowExpired = errors.New("return period has expired")
)

var validTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {}, // terminal state
	StatusRejected: {}, // terminal state
}

// Return is a customer request to send back part of a confirmed order.
type Return struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Status    Status    `json:"status"`
	Date      time.Time `json:"date"`
}

func (r *Return) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[r.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (r *Return) TransitionError(target Status) error {
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, r.Status, target)
}

// Service owns the returns collection. Like orders, returns are append-only
// history; status changes go through the reconciliation engine.
type Service struct {
	mu      sync.RWMutex
	store   store.Store
	orders  *order.Service
	returns map[string]*Return
	log     *logrus.Entry
}

func NewService(st store.Store, orders *order.Service) *Service {
	return &Service{
		store:   st,
		orders:  orders,
		returns: make(map[string]*Return),
		log:     logrus.WithField("component", "returns"),
	}
}

// Load fills the cache from the persistence adapter.
func (s *Service) Load(ctx context.Context) error {
	docs, err := s.store.GetAll(ctx, store.CollectionReturns)
	if err != nil {
		return fmt.Errorf("load returns: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.returns = make(map[string]*Return, len(docs))
	for _, doc := range docs {
		var r Return
		if err := json.Unmarshal(doc.Data, &r); err != nil {
			return fmt.Errorf("decode return %s: %w", doc.ID, err)
		}
		r.ID = doc.ID
		s.returns[r.ID] = &r
	}
	s.log.WithField("count", len(s.returns)).Info("returns loaded")
	return nil
}

func (s *Service) Get(id string) (*Return, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.returns[id]
	if !ok {
		return nil, ErrReturnNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns all return requests, newest first.
func (s *Service) List() []Return {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Return, 0, len(s.returns))
	for _, r := range s.returns {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// ListByUser returns one user's return requests, newest first.
func (s *Service) ListByUser(userID string) []Return {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Return
	for _, r := range s.returns {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// hasOpenReturn reports whether a non-rejected return already exists for the
// (order, product) pair.
func (s *Service) hasOpenReturn(orderID, productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.returns {
		if r.OrderID == orderID && r.ProductID == productID && r.Status != StatusRejected {
			return true
		}
	}
	return false
}

// Request creates a pending return after checking: the order exists and is
// confirmed, the product is one of its line items, the quantity does not
// exceed what was ordered, the 14-day window is still open, and no other
// open return exists for the same (order, product) pair.
func (s *Service) Request(ctx context.Context, userID, orderID, productID string, quantity int, reason string) (*Return, error) {
	if res := validate.ReturnReason(reason); !res.OK {
		return nil, validate.FieldErrors{"reason": res.Message}
	}

	o, err := s.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusConfirmed {
		return nil, ErrOrderNotConfirmed
	}

	var ordered int
	for _, item := range o.Items {
		if item.ProductID == productID {
			ordered = item.Quantity
			break
		}
	}
	if ordered == 0 {
		return nil, ErrProductNotInOrder
	}
	if res := validate.Quantity(quantity, ordered); !res.OK {
		return nil, validate.FieldErrors{"quantity": res.Message}
	}

	if res := validate.ReturnPeriod(o.Date, validate.ReturnPeriodDays); !res.OK {
		return nil, ErrReturnWindowExpired
	}

	if s.hasOpenReturn(orderID, productID) {
		return nil, ErrDuplicateReturn
	}

	r := &Return{
		OrderID:   orderID,
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		Reason:    reason,
		Status:    StatusPending,
		Date:      time.Now(),
	}

	id, err := s.store.Add(ctx, store.CollectionReturns, r)
	if err != nil {
		return nil, err
	}
	r.ID = id

	s.mu.Lock()
	s.returns[id] = r
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"id": id, "order": orderID, "product": productID}).Info("return requested")
	cp := *r
	return &cp, nil
}

// SetStatus persists a status change and then updates the cache. Transition
// rules are enforced by the caller (the reconciliation engine).
func (s *Service) SetStatus(ctx context.Context, id string, status Status) error {
	s.mu.RLock()
	current, ok := s.returns[id]
	s.mu.RUnlock()
	if !ok {
		return ErrReturnNotFound
	}

	updated := *current
	updated.Status = status
	if err := s.store.Update(ctx, store.CollectionReturns, id, &updated); err != nil {
		return err
	}

	s.mu.Lock()
	s.returns[id] = &updated
	s.mu.Unlock()
	return nil
}
