// Package profile stores per-user profile data: a display name and an
// optional avatar image. Each profile is private to its identity.
package profile

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrProfileNotFound is returned when no profile exists for a uid.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is the per-user profile record. Avatar holds raw PNG or JPEG
// bytes and is empty when no image has been uploaded.
type Profile struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	Avatar      []byte    `json:"-"`
	AvatarType  string    `json:"avatarType,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Repository persists profiles.
type Repository interface {
	// Get retrieves the profile for a uid, or ErrProfileNotFound.
	Get(ctx context.Context, uid string) (*Profile, error)
	// Upsert creates or replaces the profile for p.UID.
	Upsert(ctx context.Context, p *Profile) error
}

// InMemoryRepository is a Repository backed by a map, for tests and
// single-process deployments.
type InMemoryRepository struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{profiles: make(map[string]*Profile)}
}

// Get retrieves the profile for a uid.
func (r *InMemoryRepository) Get(ctx context.Context, uid string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[uid]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return copyProfile(p), nil
}

// Upsert creates or replaces the profile for p.UID.
func (r *InMemoryRepository) Upsert(ctx context.Context, p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.UID] = copyProfile(p)
	return nil
}

func copyProfile(p *Profile) *Profile {
	cp := *p
	if p.Avatar != nil {
		cp.Avatar = make([]byte, len(p.Avatar))
		copy(cp.Avatar, p.Avatar)
	}
	return &cp
}
