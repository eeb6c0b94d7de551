package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type RouterConfig struct {
	Handlers         *Handlers
	CategoryHandlers *CategoryHandlers
	UserHandlers     *UserHandlers
	WebDir           string
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	// Static files (web UI)
	if cfg.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.WebDir)))
	}

	h := cfg.Handlers

	// Products
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetProducts(w, r)
		case http.MethodPost:
			h.CreateProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/products/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/reviews") && r.Method == http.MethodGet:
			h.GetProductReviews(w, r)
		case strings.HasSuffix(path, "/reviews") && r.Method == http.MethodPost:
			h.CreateReview(w, r)
		case r.Method == http.MethodGet:
			h.GetProduct(w, r)
		case r.Method == http.MethodPut:
			h.UpdateProduct(w, r)
		case r.Method == http.MethodDelete:
			h.DeleteProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Categories
	mux.HandleFunc("/categories", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			cfg.CategoryHandlers.GetCategories(w, r)
		case http.MethodPost:
			cfg.CategoryHandlers.CreateCategory(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/categories/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			cfg.CategoryHandlers.UpdateCategory(w, r)
		case http.MethodDelete:
			cfg.CategoryHandlers.DeleteCategory(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Orders
	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetOrders(w, r)
		case http.MethodPost:
			h.PlaceOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/confirm") && r.Method == http.MethodPost:
			h.ConfirmOrder(w, r)
		case strings.HasSuffix(path, "/reject") && r.Method == http.MethodPost:
			h.RejectOrder(w, r)
		case r.Method == http.MethodGet:
			h.GetOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Returns
	mux.HandleFunc("/returns", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetReturns(w, r)
		case http.MethodPost:
			h.RequestReturn(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/returns/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/approve") && r.Method == http.MethodPost:
			h.ApproveReturn(w, r)
		case strings.HasSuffix(path, "/reject") && r.Method == http.MethodPost:
			h.RejectReturn(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Reviews (admin moderation)
	mux.HandleFunc("/reviews/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			h.DeleteReview(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Users
	mux.HandleFunc("/users/register", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			cfg.UserHandlers.Register(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/users/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			cfg.UserHandlers.Login(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("request")
	})
}
