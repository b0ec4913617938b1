// Package auth supplies the identity of the acting user: bearer token
// verification, a cached user directory and gin middleware.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/mikepea/flagd/pkg/flagd/models"
	"gorm.io/gorm"
)

var ErrUnknownUser = errors.New("unknown user")

// User is the handle the engine reasons about. It carries only what the
// flagging rules need.
type User struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Active        bool      `json:"active"`
	Authenticated bool      `json:"authenticated"`
	Staff         bool      `json:"staff"`
	JoinedAt      time.Time `json:"joined_at"`
}

// FromModel builds the handle of a stored, authenticated account.
func FromModel(u models.User) User {
	return User{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Active:        u.Active,
		Authenticated: true,
		Staff:         u.IsStaff(),
		JoinedAt:      u.CreatedAt,
	}
}

// Directory looks users up by id.
type Directory interface {
	Lookup(ctx context.Context, id uint) (User, error)
}

// Provider is a Directory over the users table with a short-lived cache, so
// every request does not hit the database for the same account.
type Provider struct {
	db    *gorm.DB
	cache *expirable.LRU[uint, User]
}

// NewProvider creates a directory caching up to size users for ttl.
func NewProvider(db *gorm.DB, size int, ttl time.Duration) *Provider {
	if size <= 0 {
		size = 1024
	}
	return &Provider{
		db:    db,
		cache: expirable.NewLRU[uint, User](size, nil, ttl),
	}
}

func (p *Provider) Lookup(ctx context.Context, id uint) (User, error) {
	if u, ok := p.cache.Get(id); ok {
		return u, nil
	}

	var m models.User
	err := p.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("%w: %d", ErrUnknownUser, id)
	}
	if err != nil {
		return User{}, err
	}

	u := FromModel(m)
	p.cache.Add(id, u)
	return u, nil
}

// forget drops a cached user.
func (p *Provider) forget(id uint) {
	p.cache.Remove(id)
}

// Names returns display names for ids, skipping unknown ones.
func (p *Provider) Names(ctx context.Context, ids ...uint) map[uint]string {
	out := make(map[uint]string, len(ids))
	for _, id := range ids {
		if u, err := p.Lookup(ctx, id); err == nil {
			out[id] = u.Name
		}
	}
	return out
}
