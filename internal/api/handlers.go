// Package api exposes the shop over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/returns"
	"github.com/example/ec-shop/internal/domain/review"
	"github.com/example/ec-shop/internal/validate"
)

// requestValidator checks structural request constraints (required fields,
// bounds). Domain rules live in internal/validate and the services.
var requestValidator = validator.New()

// Reconciler is the transition side of the reconciliation engine.
type Reconciler interface {
	ConfirmOrder(ctx context.Context, orderID string) error
	RejectOrder(ctx context.Context, orderID string) error
	ApproveReturn(ctx context.Context, returnID string) error
	RejectReturn(ctx context.Context, returnID string) error
}

type Handlers struct {
	catalog *product.Catalog
	orders  *order.Service
	returns *returns.Service
	reviews *review.Service
	engine  Reconciler
}

func NewHandlers(catalog *product.Catalog, orders *order.Service, rets *returns.Service, reviews *review.Service, engine Reconciler) *Handlers {
	return &Handlers{
		catalog: catalog,
		orders:  orders,
		returns: rets,
		reviews: reviews,
		engine:  engine,
	}
}

// Product Handlers

// productRequest carries raw form strings; internal/validate owns the field
// rules and produces the user-facing messages.
type productRequest struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Stock       string `json:"stock"`
	CategoryID  string `json:"categoryId"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (r productRequest) input() validate.ProductInput {
	return validate.ProductInput{
		Name:        r.Name,
		Price:       r.Price,
		Stock:       r.Stock,
		CategoryID:  r.CategoryID,
		Description: r.Description,
		Image:       r.Image,
	}
}

func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.catalog.List())
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	p, err := h.catalog.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.catalog.Create(r.Context(), req.input())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.catalog.Update(r.Context(), id, req.input())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/products/")
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Product deleted")
}

// Order Handlers

type checkoutRequest struct {
	CustomerName string               `json:"customerName" validate:"required"`
	Items        []order.CheckoutItem `json:"items" validate:"required,min=1,dive"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := requestValidator.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := h.orders.Checkout(r.Context(), getUserID(r), req.CustomerName, req.Items)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		respondJSON(w, http.StatusOK, h.orders.List())
		return
	}
	respondJSON(w, http.StatusOK, h.orders.ListByUser(getUserID(r)))
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")
	o, err := h.orders.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/confirm")
	if err := h.engine.ConfirmOrder(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Order confirmed")
}

func (h *Handlers) RejectOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/orders/"), "/reject")
	if err := h.engine.RejectOrder(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Order rejected")
}

// Return Handlers

type returnRequest struct {
	OrderID   string `json:"orderId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Reason    string `json:"reason" validate:"required"`
}

func (h *Handlers) RequestReturn(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := requestValidator.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ret, err := h.returns.Request(r.Context(), getUserID(r), req.OrderID, req.ProductID, req.Quantity, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ret)
}

func (h *Handlers) GetReturns(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		respondJSON(w, http.StatusOK, h.returns.List())
		return
	}
	respondJSON(w, http.StatusOK, h.returns.ListByUser(getUserID(r)))
}

func (h *Handlers) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/returns/"), "/approve")
	if err := h.engine.ApproveReturn(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Return approved")
}

func (h *Handlers) RejectReturn(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/returns/"), "/reject")
	if err := h.engine.RejectReturn(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Return rejected")
}

// Review Handlers

type reviewRequest struct {
	UserName string `json:"userName"`
	Rating   int    `json:"rating"`
	Text     string `json:"text"`
}

func (h *Handlers) GetProductReviews(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSuffix(extractPathParam(r.URL.Path, "/products/"), "/reviews")
	list := h.reviews.ListByProduct(productID)
	average, count := h.reviews.AverageRating(productID)
	respondJSON(w, http.StatusOK, map[string]any{
		"reviews": list,
		"average": average,
		"count":   count,
	})
}

func (h *Handlers) CreateReview(w http.ResponseWriter, r *http.Request) {
	productID := strings.TrimSuffix(extractPathParam(r.URL.Path, "/products/"), "/reviews")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rev, err := h.reviews.Create(r.Context(), productID, getUserID(r), req.UserName, req.Rating, req.Text)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rev)
}

func (h *Handlers) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/reviews/")
	if err := h.reviews.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Review deleted")
}

// Helper functions

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// getUserID reads the caller identity from the X-User-ID header. Session
// handling lives outside this service.
func getUserID(r *http.Request) string {
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		return userID
	}
	return "default-user"
}
