package category

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/ec-shop/internal/infrastructure/store"
	"github.com/example/ec-shop/internal/validate"
)

var (
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCategoryInUse blocks deletion while any product references the
	// category.
	ErrCategoryInUse = errors.New("category has products assigned to it")
)

// Category is a product grouping. Names are unique case-insensitively.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProductRefs reports whether any product references a category. The registry
// consults it before deleting; the product catalog implements it.
type ProductRefs interface {
	AnyInCategory(categoryID string) bool
}

// Registry owns the category collection: an in-memory cache over the
// persistence adapter, with every write validated first.
type Registry struct {
	mu    sync.RWMutex
	store store.Store
	cats  map[string]*Category
	refs  ProductRefs
	log   *logrus.Entry
}

func NewRegistry(st store.Store) *Registry {
	return &Registry{
		store: st,
		cats:  make(map[string]*Category),
		log:   logrus.WithField("component", "category"),
	}
}

// BindProducts wires the product reference check. Set once during startup,
// after the catalog exists.
func (r *Registry) BindProducts(refs ProductRefs) {
	r.mu.Lock()
	r.refs = refs
	r.mu.Unlock()
}

// Load fills the cache from the persistence adapter.
func (r *Registry) Load(ctx context.Context) error {
	docs, err := r.store.GetAll(ctx, store.CollectionCategories)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cats = make(map[string]*Category, len(docs))
	for _, doc := range docs {
		var c Category
		if err := json.Unmarshal(doc.Data, &c); err != nil {
			return fmt.Errorf("decode category %s: %w", doc.ID, err)
		}
		c.ID = doc.ID
		r.cats[c.ID] = &c
	}
	r.log.WithField("count", len(r.cats)).Info("categories loaded")
	return nil
}

func (r *Registry) Get(id string) (*Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cats[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *Registry) List() []Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Category, 0, len(r.cats))
	for _, c := range r.cats {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Names returns an id -> name snapshot for the validators.
func (r *Registry) Names() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make(map[string]string, len(r.cats))
	for id, c := range r.cats {
		names[id] = c.Name
	}
	return names
}

func (r *Registry) Create(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if res := validate.CategoryName(name); !res.OK {
		return nil, validate.FieldErrors{"name": res.Message}
	}
	if res := validate.CategoryUnique(name, r.Names(), ""); !res.OK {
		return nil, validate.FieldErrors{"name": res.Message}
	}

	now := time.Now()
	c := &Category{Name: name, CreatedAt: now, UpdatedAt: now}
	id, err := r.store.Add(ctx, store.CollectionCategories, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	r.mu.Lock()
	r.cats[id] = c
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"id": id, "name": name}).Info("category created")
	cp := *c
	return &cp, nil
}

func (r *Registry) Update(ctx context.Context, id, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if res := validate.CategoryName(name); !res.OK {
		return nil, validate.FieldErrors{"name": res.Message}
	}
	if res := validate.CategoryUnique(name, r.Names(), id); !res.OK {
		return nil, validate.FieldErrors{"name": res.Message}
	}

	r.mu.RLock()
	current, ok := r.cats[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrCategoryNotFound
	}

	updated := *current
	updated.Name = name
	updated.UpdatedAt = time.Now()
	if err := r.store.Update(ctx, store.CollectionCategories, id, &updated); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cats[id] = &updated
	r.mu.Unlock()

	cp := updated
	return &cp, nil
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.RLock()
	_, ok := r.cats[id]
	refs := r.refs
	r.mu.RUnlock()
	if !ok {
		return ErrCategoryNotFound
	}
	if refs != nil && refs.AnyInCategory(id) {
		return ErrCategoryInUse
	}

	if err := r.store.Delete(ctx, store.CollectionCategories, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cats, id)
	r.mu.Unlock()

	r.log.WithField("id", id).Info("category deleted")
	return nil
}
