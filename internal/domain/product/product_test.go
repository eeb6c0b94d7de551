package product

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

func newCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	registry := category.NewRegistry(st)
	catalog := NewCatalog(st, registry)
	registry.BindProducts(catalog)
	require.NoError(t, registry.Load(ctx))
	require.NoError(t, catalog.Load(ctx))

	cat, err := registry.Create(ctx, "Drinks")
	require.NoError(t, err)
	return catalog, cat.ID
}

func input(categoryID string) validate.ProductInput {
	return validate.ProductInput{
		Name:        "Green Tea",
		Price:       "5.99",
		Stock:       "10",
		CategoryID:  categoryID,
		Description: "A refreshing green tea",
	}
}

func TestCreateProduct(t *testing.T) {
	catalog, catID := newCatalog(t)

	p, err := catalog.Create(context.Background(), input(catID))
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Green Tea", p.Name)
	assert.Equal(t, 5.99, p.Price)
	assert.Equal(t, 10, p.Stock)
	assert.Equal(t, PlaceholderImage, p.Image)
	assert.True(t, p.InStock())
}

func TestCreateProductCollectsErrors(t *testing.T) {
	catalog, _ := newCatalog(t)

	_, err := catalog.Create(context.Background(), validate.ProductInput{
		Name:  "ab",
		Price: "9.999",
		Stock: "-1",
	})
	var errs validate.FieldErrors
	require.ErrorAs(t, err, &errs)
	assert.Equal(t, "Product name must be at least 3 characters", errs["name"])
	assert.Equal(t, "Price may have at most 2 decimal places", errs["price"])
	assert.Equal(t, "Stock cannot be negative", errs["stock"])
	assert.Equal(t, "Please select a category", errs["category"])
}

func TestUpdateProduct(t *testing.T) {
	catalog, catID := newCatalog(t)
	ctx := context.Background()

	p, err := catalog.Create(ctx, input(catID))
	require.NoError(t, err)

	in := input(catID)
	in.Price = "4.50"
	in.Stock = "3"
	updated, err := catalog.Update(ctx, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 4.5, updated.Price)
	assert.Equal(t, 3, updated.Stock)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)
}

func TestUpdateProductNotFound(t *testing.T) {
	catalog, catID := newCatalog(t)
	_, err := catalog.Update(context.Background(), "missing", input(catID))
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestDeleteProduct(t *testing.T) {
	catalog, catID := newCatalog(t)
	ctx := context.Background()

	p, err := catalog.Create(ctx, input(catID))
	require.NoError(t, err)

	require.NoError(t, catalog.Delete(ctx, p.ID))
	_, err = catalog.Get(p.ID)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.ErrorIs(t, catalog.Delete(ctx, p.ID), ErrProductNotFound)
}

func TestAnyInCategory(t *testing.T) {
	catalog, catID := newCatalog(t)
	ctx := context.Background()

	assert.False(t, catalog.AnyInCategory(catID))

	p, err := catalog.Create(ctx, input(catID))
	require.NoError(t, err)
	assert.True(t, catalog.AnyInCategory(catID))

	require.NoError(t, catalog.Delete(ctx, p.ID))
	assert.False(t, catalog.AnyInCategory(catID))
}

func TestSetStockClampsNegative(t *testing.T) {
	catalog, catID := newCatalog(t)
	ctx := context.Background()

	p, err := catalog.Create(ctx, input(catID))
	require.NoError(t, err)

	require.NoError(t, catalog.SetStock(ctx, p.ID, -5))
	got, err := catalog.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
	assert.False(t, got.InStock())
}

func TestReloadPicksUpExternalWrite(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	registry := category.NewRegistry(st)
	catalog := NewCatalog(st, registry)
	registry.BindProducts(catalog)
	require.NoError(t, registry.Load(ctx))
	require.NoError(t, catalog.Load(ctx))

	cat, err := registry.Create(ctx, "Drinks")
	require.NoError(t, err)
	p, err := catalog.Create(ctx, input(cat.ID))
	require.NoError(t, err)

	// Simulate another process writing through the shared adapter.
	external := *p
	external.Stock = 99
	require.NoError(t, st.Update(ctx, store.CollectionProducts, p.ID, &external))

	// Cache still has the old value until Reload.
	cached, err := catalog.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, cached.Stock)

	reloaded, err := catalog.Reload(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, reloaded.Stock)

	cached, err = catalog.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, cached.Stock)
}

func TestListSortedByName(t *testing.T) {
	catalog, catID := newCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"Sencha", "black tea", "Matcha"} {
		in := input(catID)
		in.Name = name
		_, err := catalog.Create(ctx, in)
		require.NoError(t, err)
	}

	list := catalog.List()
	require.Len(t, list, 3)
	assert.Equal(t, "black tea", list[0].Name)
	assert.Equal(t, "Matcha", list[1].Name)
	assert.Equal(t, "Sencha", list[2].Name)
}
