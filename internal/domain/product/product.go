package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/domain/category"
	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

// PlaceholderImage is used when a product has no image URL.
const PlaceholderImage = "https://via.placeholder.com/300x200"

var ErrProductNotFound = errors.New("product not found")

// Product is a catalog entry. Stock is never written directly by order or
// return code; only the reconciliation engine (via SetStock) and the
// validated admin update touch it.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	CategoryID  string    `json:"categoryId"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// InStock reports whether any units are available.
func (p *Product) InStock() bool { return p.Stock > 0 }

// Catalog owns the product collection and is the sole owner of stock counts.
type Catalog struct {
	mu         sync.RWMutex
	store      store.Store
	categories *category.Registry
	products   map[string]*Product
	log        *logrus.Entry
}

var _ category.ProductRefs = (*Catalog)(nil)

func NewCatalog(st store.Store, categories *category.Registry) *Catalog {
	return &Catalog{
		store:      st,
		categories: categories,
		products:   make(map[string]*Product),
		log:        logrus.WithField("component", "catalog"),
	}
}

// Load fills the cache from the persistence adapter.
func (c *Catalog) Load(ctx context.Context) error {
	docs, err := c.store.GetAll(ctx, store.CollectionProducts)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products = make(map[string]*Product, len(docs))
	for _, doc := range docs {
		var p Product
		if err := json.Unmarshal(doc.Data, &p); err != nil {
			return fmt.Errorf("decode product %s: %w", doc.ID, err)
		}
		p.ID = doc.ID
		c.products[p.ID] = &p
	}
	c.log.WithField("count", len(c.products)).Info("products loaded")
	return nil
}

func (c *Catalog) Get(id string) (*Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (c *Catalog) List() []Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// AnyInCategory implements category.ProductRefs.
func (c *Catalog) AnyInCategory(categoryID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.products {
		if p.CategoryID == categoryID {
			return true
		}
	}
	return false
}

// Create validates the raw form input, persists the product and caches it.
func (c *Catalog) Create(ctx context.Context, in validate.ProductInput) (*Product, error) {
	if errs := validate.Product(in, c.categories.Names()); errs != nil {
		return nil, errs
	}

	price, _ := strconv.ParseFloat(strings.TrimSpace(in.Price), 64)
	stock, _ := strconv.Atoi(strings.TrimSpace(in.Stock))
	image := strings.TrimSpace(in.Image)
	if image == "" {
		image = PlaceholderImage
	}

	now := time.Now()
	p := &Product{
		Name:        strings.TrimSpace(in.Name),
		Price:       price,
		Stock:       stock,
		CategoryID:  in.CategoryID,
		Description: strings.TrimSpace(in.Description),
		Image:       image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	id, err := c.store.Add(ctx, store.CollectionProducts, p)
	if err != nil {
		return nil, err
	}
	p.ID = id

	c.mu.Lock()
	c.products[id] = p
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"id": id, "name": p.Name, "stock": p.Stock}).Info("product created")
	cp := *p
	return &cp, nil
}

// Update validates the merged result and persists it. NotFound when the id
// is absent.
func (c *Catalog) Update(ctx context.Context, id string, in validate.ProductInput) (*Product, error) {
	c.mu.RLock()
	current, ok := c.products[id]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrProductNotFound
	}

	if errs := validate.Product(in, c.categories.Names()); errs != nil {
		return nil, errs
	}

	price, _ := strconv.ParseFloat(strings.TrimSpace(in.Price), 64)
	stock, _ := strconv.Atoi(strings.TrimSpace(in.Stock))
	image := strings.TrimSpace(in.Image)
	if image == "" {
		image = PlaceholderImage
	}

	updated := *current
	updated.Name = strings.TrimSpace(in.Name)
	updated.Price = price
	updated.Stock = stock
	updated.CategoryID = in.CategoryID
	updated.Description = strings.TrimSpace(in.Description)
	updated.Image = image
	updated.UpdatedAt = time.Now()

	if err := c.store.Update(ctx, store.CollectionProducts, id, &updated); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.products[id] = &updated
	c.mu.Unlock()

	cp := updated
	return &cp, nil
}

// Delete removes a product unconditionally.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	c.mu.RLock()
	_, ok := c.products[id]
	c.mu.RUnlock()
	if !ok {
		return ErrProductNotFound
	}

	if err := c.store.Delete(ctx, store.CollectionProducts, id); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.products, id)
	c.mu.Unlock()

	c.log.WithField("id", id).Info("product deleted")
	return nil
}

// Reload re-reads one product from the persistence adapter and refreshes the
// cache. The engine calls this right before a deduction so a stale cache
// (another tab, another process) cannot cause a lost update.
func (c *Catalog) Reload(ctx context.Context, id string) (*Product, error) {
	doc, err := c.store.Get(ctx, store.CollectionProducts, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.mu.Lock()
			delete(c.products, id)
			c.mu.Unlock()
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	var p Product
	if err := json.Unmarshal(doc.Data, &p); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	p.ID = doc.ID

	c.mu.Lock()
	c.products[id] = &p
	c.mu.Unlock()

	cp := p
	return &cp, nil
}

// SetStock writes a product's stock count: persist first, cache second, so
// the two can only diverge if persistence failed and the caller aborted.
// Reserved for the reconciliation engine.
func (c *Catalog) SetStock(ctx context.Context, id string, stock int) error {
	if stock < 0 {
		stock = 0
	}

	c.mu.RLock()
	current, ok := c.products[id]
	c.mu.RUnlock()
	if !ok {
		return ErrProductNotFound
	}

	updated := *current
	updated.Stock = stock
	updated.UpdatedAt = time.Now()

	if err := c.store.Update(ctx, store.CollectionProducts, id, &updated); err != nil {
		return err
	}

	c.mu.Lock()
	c.products[id] = &updated
	c.mu.Unlock()
	return nil
}
