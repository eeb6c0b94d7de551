package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/ec-shop/internal/domain/category"
)

type CategoryHandlers struct {
	registry *category.Registry
}

func NewCategoryHandlers(registry *category.Registry) *CategoryHandlers {
	return &CategoryHandlers{registry: registry}
}

type categoryRequest struct {
	Name string `json:"name"`
}

func (h *CategoryHandlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.registry.List())
}

func (h *CategoryHandlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cat, err := h.registry.Create(r.Context(), req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, cat)
}

func (h *CategoryHandlers) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/categories/")

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cat, err := h.registry.Update(r.Context(), id, req.Name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cat)
}

func (h *CategoryHandlers) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/categories/")
	if err := h.registry.Delete(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respondMessage(w, http.StatusOK, "Category deleted")
}
