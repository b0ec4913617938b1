package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mikepea/flagd/pkg/flagd/flagerr"
	"gorm.io/gorm"
)

// Item is a resolved content item with the attributes a caller may ask for.
type Item struct {
	Ref   Ref
	Attrs map[string]any
}

// Creator reads the user id held in the named attribute. An empty field means
// no creator was requested.
func (it Item) Creator(field string) (*uint, error) {
	if field == "" {
		return nil, nil
	}
	v, ok := it.Attrs[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", flagerr.ErrUnknownCreatorField, field, it.Ref.Type)
	}
	var id uint
	switch n := v.(type) {
	case nil:
		return nil, nil
	case uint:
		id = n
	case uint32:
		id = uint(n)
	case uint64:
		id = uint(n)
	case int:
		id = signedID(int64(n))
	case int32:
		id = signedID(int64(n))
	case int64:
		id = signedID(n)
	default:
		return nil, fmt.Errorf("%w: %q on %s is not a user id", flagerr.ErrUnknownCreatorField, field, it.Ref.Type)
	}
	if id == 0 {
		return nil, nil
	}
	return &id, nil
}

// signedID maps non-positive column values to zero, meaning no creator.
func signedID(n int64) uint {
	if n <= 0 {
		return 0
	}
	return uint(n)
}

// Resolver finds the content item behind a Ref.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (Item, error)
}

// GormResolver looks items up in the tables named by the registry.
type GormResolver struct {
	db       *gorm.DB
	registry *Registry
}

// NewGormResolver creates a resolver reading registered tables from db.
func NewGormResolver(db *gorm.DB, registry *Registry) *GormResolver {
	return &GormResolver{db: db, registry: registry}
}

func (r *GormResolver) Resolve(ctx context.Context, ref Ref) (Item, error) {
	spec, ok := r.registry.Lookup(ref.Type)
	if !ok || spec.Table == "" {
		return Item{}, fmt.Errorf("%w: %s has no backing table", flagerr.ErrContentNotFound, ref.Type)
	}

	cols := append([]string{"id"}, spec.CreatorFields...)
	row := map[string]any{}
	err := r.db.WithContext(ctx).
		Table(spec.Table).
		Select(cols).
		Where("id = ?", ref.ObjectID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Item{}, fmt.Errorf("%w: no %s with id %d", flagerr.ErrContentNotFound, ref.Type, ref.ObjectID)
	}
	if err != nil {
		return Item{}, fmt.Errorf("resolving %s: %w", ref, err)
	}

	attrs := make(map[string]any, len(spec.CreatorFields))
	for _, f := range spec.CreatorFields {
		attrs[f] = row[f]
	}
	return Item{Ref: ref, Attrs: attrs}, nil
}

// MemResolver is an in-memory Resolver.
type MemResolver struct {
	mu    sync.RWMutex
	items map[Ref]map[string]any
}

func NewMemResolver() *MemResolver {
	return &MemResolver{items: make(map[Ref]map[string]any)}
}

// Put registers an item with its attributes.
func (r *MemResolver) Put(ref Ref, attrs map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	r.items[ref] = cp
}

func (r *MemResolver) Resolve(ctx context.Context, ref Ref) (Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attrs, ok := r.items[ref]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", flagerr.ErrContentNotFound, ref)
	}
	cp := make(map[string]any, len(attrs))
	for k, v := range attrs {
		cp[k] = v
	}
	return Item{Ref: ref, Attrs: cp}, nil
}
