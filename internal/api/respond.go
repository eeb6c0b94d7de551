package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/domain/order"
	"github.com/example/ec-shop/internal/domain/product"
	"github.com/example/ec-shop/internal/domain/returns"
	"github.com/example/ec-shop/internal/domain/review"
	"github.com/example/ec-shop/internal/domain/user"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// respondError maps domain errors to HTTP status codes. Field-level
// validation failures carry the per-field messages in the body.
func respondError(w http.ResponseWriter, err error) {
	var fieldErrs validate.FieldErrors
	if errors.As(err, &fieldErrs) {
		respondJSON(w, http.StatusBadRequest, map[string]any{"errors": fieldErrs})
		return
	}

	var insufficient *order.InsufficientStockError
	if errors.As(err, &insufficient) {
		messages := make([]string, len(insufficient.Shortages))
		for i, s := range insufficient.Shortages {
			messages[i] = fmt.Sprintf("%s: Only %d available (requested: %d)", s.Name, s.Available, s.Requested)
		}
		respondJSON(w, http.StatusConflict, map[string]any{"error": "Insufficient stock", "details": messages})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, product.ErrProductNotFound),
		errors.Is(err, category.ErrCategoryNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, returns.ErrReturnNotFound),
		errors.Is(err, review.ErrReviewNotFound),
		errors.Is(err, user.ErrUserNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound

	case errors.Is(err, category.ErrCategoryInUse),
		errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, returns.ErrInvalidTransition),
		errors.Is(err, returns.ErrDuplicateReturn),
		errors.Is(err, review.ErrAlreadyReviewed),
		errors.Is(err, user.ErrEmailExists):
		status = http.StatusConflict

	case errors.Is(err, returns.ErrReturnWindowExpired):
		status = http.StatusUnprocessableEntity

	case errors.Is(err, user.ErrInvalidCredentials):
		status = http.StatusUnauthorized

	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, returns.ErrOrderNotConfirmed),
		errors.Is(err, returns.ErrProductNotInOrder):
		status = http.StatusBadRequest

	case errors.Is(err, store.ErrPersistence):
		logrus.WithError(err).Error("persistence failure")
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "A storage error occurred. Please try again.",
		})
		return
	}

	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("unhandled error")
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
