package reconcile

import (
	"encoding/json"
	"time"

	"github.com/example/ec-shop/internal/domain/order"
)

// Event types published after successful reconciliation transitions.
const (
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderRejected  = "OrderRejected"
	EventReturnApproved = "ReturnApproved"
	EventReturnRejected = "ReturnRejected"
	EventStockDeducted  = "StockDeducted"
	EventStockRestored  = "StockRestored"
)

// Event is the envelope written to the event topic.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type OrderConfirmed struct {
	OrderID      string       `json:"orderId"`
	UserID       string       `json:"userId"`
	CustomerName string       `json:"customerName"`
	Items        []order.Item `json:"items"`
	Total        float64      `json:"total"`
	ConfirmedAt  time.Time    `json:"confirmedAt"`
}

type OrderRejected struct {
	OrderID        string    `json:"orderId"`
	PreviousStatus string    `json:"previousStatus"`
	RejectedAt     time.Time `json:"rejectedAt"`
}

type ReturnApproved struct {
	ReturnID   string    `json:"returnId"`
	OrderID    string    `json:"orderId"`
	ProductID  string    `json:"productId"`
	Quantity   int       `json:"quantity"`
	ApprovedAt time.Time `json:"approvedAt"`
}

type ReturnRejected struct {
	ReturnID   string    `json:"returnId"`
	RejectedAt time.Time `json:"rejectedAt"`
}

type StockDeducted struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	OrderID   string `json:"orderId"`
	Quantity  int    `json:"quantity"`
	Remaining int    `json:"remaining"`
}

type StockRestored struct {
	ProductID string `json:"productId"`
	// Source is "order" for a confirmed-order reversal, "return" for an
	// approved return; RefID is the order or return id.
	Source    string `json:"source"`
	RefID     string `json:"refId"`
	Quantity  int    `json:"quantity"`
	Remaining int    `json:"remaining"`
}
