// Package notification turns shop events into emails and operator alerts.
package notification

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/email"
	"github.com/example/ec-shop/internal/reconcile"
)

// Handler consumes shop events: order confirmations become customer emails,
// and stock deductions below the threshold become low-stock warnings.
type Handler struct {
	emailService *email.Service
	users        *user.Service
	catalog      *product.Catalog
	lowStock     int
	log          *logrus.Entry
}

func NewHandler(emailSvc *email.Service, users *user.Service, catalog *product.Catalog, lowStockThreshold int) *Handler {
	return &Handler{
		emailService: emailSvc,
		users:        users,
		catalog:      catalog,
		lowStock:     lowStockThreshold,
		log:          logrus.WithField("component", "notifier"),
	}
}

// HandleEvent processes one event from the topic.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event reconcile.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.log.WithError(err).Error("unmarshal event")
		return err
	}

	switch event.Type {
	case reconcile.EventOrderConfirmed:
		return h.handleOrderConfirmed(event)
	case reconcile.EventStockDeducted:
		return h.handleStockDeducted(event)
	}
	return nil
}

func (h *Handler) handleOrderConfirmed(event reconcile.Event) error {
	var e reconcile.OrderConfirmed
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.log.WithError(err).Error("unmarshal order confirmed event")
		return err
	}

	u, err := h.users.Get(e.UserID)
	if err != nil {
		// Guest checkout has no account to mail.
		h.log.WithField("user", e.UserID).Info("no account for confirmed order, skipping email")
		return nil
	}

	emailItems := make([]email.OrderItem, len(e.Items))
	for i, item := range e.Items {
		name := item.ProductID
		if p, err := h.catalog.Get(item.ProductID); err == nil {
			name = p.Name
		}
		emailItems[i] = email.OrderItem{
			ProductID: item.ProductID,
			Name:      name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		}
	}

	if err := h.emailService.SendOrderConfirmation(u.Email, e.OrderID, e.Total, emailItems); err != nil {
		h.log.WithError(err).WithField("to", u.Email).Error("send confirmation email")
		return err
	}

	h.log.WithFields(logrus.Fields{"order": e.OrderID, "to": u.Email}).Info("confirmation email sent")
	return nil
}

func (h *Handler) handleStockDeducted(event reconcile.Event) error {
	var e reconcile.StockDeducted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.log.WithError(err).Error("unmarshal stock deducted event")
		return err
	}

	if e.Remaining <= h.lowStock {
		h.log.WithFields(logrus.Fields{
			"product":   e.ProductID,
			"name":      e.Name,
			"remaining": e.Remaining,
		}).Warn("stock running low")
	}
	return nil
}
