package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s := NewService(store.NewMemoryStore())
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestCreateReview(t *testing.T) {
	s := newService(t)

	r, err := s.Create(context.Background(), "p1", "user-1", "Taro", 4, "Really enjoyed this tea")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, 4, r.Rating)
}

func TestCreateReviewValidation(t *testing.T) {
	s := newService(t)

	_, err := s.Create(context.Background(), "p1", "user-1", "Taro", 0, "short")
	var errs validate.FieldErrors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "Please select a rating", errs["rating"])
	assert.Equal(t, "Review must be at least 10 characters", errs["text"])
}

func TestOneReviewPerUserPerProduct(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "p1", "user-1", "Taro", 4, "Really enjoyed this tea")
	require.NoError(t, err)

	_, err = s.Create(ctx, "p1", "user-1", "Taro", 5, "Changed my mind, even better")
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	// Same user, different product is fine.
	_, err = s.Create(ctx, "p2", "user-1", "Taro", 3, "This one was just okay")
	assert.NoError(t, err)
}

func TestAverageRating(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	avg, count := s.AverageRating("p1")
	assert.Zero(t, avg)
	assert.Zero(t, count)

	_, err := s.Create(ctx, "p1", "user-1", "Taro", 4, "Really enjoyed this tea")
	require.NoError(t, err)
	_, err = s.Create(ctx, "p1", "user-2", "Hanako", 5, "Best tea I have had")
	require.NoError(t, err)
	_, err = s.Create(ctx, "p1", "user-3", "Jiro", 4, "Good value for the price")
	require.NoError(t, err)

	avg, count = s.AverageRating("p1")
	assert.Equal(t, 4.3, avg) // 13/3 rounded to one decimal
	assert.Equal(t, 3, count)
}

func TestDeleteReview(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	r, err := s.Create(ctx, "p1", "user-1", "Taro", 4, "Really enjoyed this tea")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, r.ID))
	assert.Empty(t, s.ListByProduct("p1"))
	assert.ErrorIs(t, s.Delete(ctx, r.ID), ErrReviewNotFound)
}

func TestListByProduct(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "p1", "user-1", "Taro", 4, "Really enjoyed this tea")
	require.NoError(t, err)
	_, err = s.Create(ctx, "p2", "user-1", "Taro", 2, "Not really what I expected")
	require.NoError(t, err)

	assert.Len(t, s.ListByProduct("p1"), 1)
	assert.Len(t, s.ListByProduct("p2"), 1)
	assert.Empty(t, s.ListByProduct("p3"))
	assert.Len(t, s.List(), 2)
}
