package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

var (
	ErrReviewNotFound  = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("you have already reviewed this product")
)

// Review is a customer rating plus text for a product.
type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
}

// Service owns the reviews collection. One review per (user, product);
// admins may delete reviews (moderation).
type Service struct {
	mu      sync.RWMutex
	store   store.Store
	reviews map[string]*Review
	log     *logrus.Entry
}

func NewService(st store.Store) *Service {
	return &Service{
		store:   st,
		reviews: make(map[string]*Review),
		log:     logrus.WithField("component", "review"),
	}
}

// Load fills the cache from the persistence adapter.
func (s *Service) Load(ctx context.Context) error {
	docs, err := s.store.GetAll(ctx, store.CollectionReviews)
	if err != nil {
		return fmt.Errorf("load reviews: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = make(map[string]*Review, len(docs))
	for _, doc := range docs {
		var r Review
		if err := json.Unmarshal(doc.Data, &r); err != nil {
			return fmt.Errorf("decode review %s: %w", doc.ID, err)
		}
		r.ID = doc.ID
		s.reviews[r.ID] = &r
	}
	return nil
}

// ListByProduct returns a product's reviews, newest first.
func (s *Service) ListByProduct(productID string) []Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Review
	for _, r := range s.reviews {
		if r.ProductID == productID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// List returns all reviews, newest first (admin moderation view).
func (s *Service) List() []Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// AverageRating returns the mean rating for a product, rounded to one
// decimal, and the review count. Zero reviews yield (0, 0).
func (s *Service) AverageRating(productID string) (float64, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum, n int
	for _, r := range s.reviews {
		if r.ProductID == productID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return math.Round(float64(sum)/float64(n)*10) / 10, n
}

// Create validates the review and rejects a second review by the same user
// for the same product.
func (s *Service) Create(ctx context.Context, productID, userID, userName string, rating int, text string) (*Review, error) {
	if errs := validate.Review(rating, text); errs != nil {
		return nil, errs
	}

	s.mu.RLock()
	for _, r := range s.reviews {
		if r.ProductID == productID && r.UserID == userID {
			s.mu.RUnlock()
			return nil, ErrAlreadyReviewed
		}
	}
	s.mu.RUnlock()

	r := &Review{
		ProductID: productID,
		UserID:    userID,
		UserName:  userName,
		Rating:    rating,
		Text:      text,
		Date:      time.Now(),
	}

	id, err := s.store.Add(ctx, store.CollectionReviews, r)
	if err != nil {
		return nil, err
	}
	r.ID = id

	s.mu.Lock()
	s.reviews[id] = r
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"id": id, "product": productID, "rating": rating}).Info("review created")
	cp := *r
	return &cp, nil
}

// Delete removes a review (admin moderation).
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	_, ok := s.reviews[id]
	s.mu.RUnlock()
	if !ok {
		return ErrReviewNotFound
	}

	if err := s.store.Delete(ctx, store.CollectionReviews, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.reviews, id)
	s.mu.Unlock()
	return nil
}
