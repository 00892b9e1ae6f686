// Package identity provides the user directory behind the Connect API:
// account records, anonymous bootstrap, the legacy name-based login and
// the privileged claim management consumed by the admin panel.
package identity

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/connectro/connect/internal/auth"
)

// Common errors for identity operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email is already registered")
)

// User is a directory account. Role is never stored here directly; it
// lives in the claim set and is derived at the credential boundary.
type User struct {
	UID          string          `json:"uid"`
	Email        string          `json:"email,omitempty"`
	DisplayName  string          `json:"display_name,omitempty"`
	IsAnonymous  bool            `json:"is_anonymous"`
	CreationTime time.Time       `json:"creation_time"`
	Claims       auth.RoleClaims `json:"claims"`

	// PasswordHash holds the bcrypt hash for name-login accounts.
	// Anonymous accounts have none.
	PasswordHash []byte `json:"-"`
}

// Repository defines the interface for user directory operations.
type Repository interface {
	// Create inserts a new user. Fails with ErrEmailTaken when the email
	// is already registered to another account.
	Create(ctx context.Context, u *User) error

	// GetByUID retrieves a user by id.
	GetByUID(ctx context.Context, uid string) (*User, error)

	// GetByEmail retrieves a user by email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// ReplaceClaims atomically replaces the user's entire claim set.
	// Claims are never merged; partial writes are what produce illegal
	// multi-flag combinations.
	ReplaceClaims(ctx context.Context, uid string, claims auth.RoleClaims) error

	// UpdateDisplayName sets the user's display name.
	UpdateDisplayName(ctx context.Context, uid, name string) error

	// List returns all users, oldest account first.
	List(ctx context.Context) ([]*User, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	users  map[string]*User
	emails map[string]string // email -> uid
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:  make(map[string]*User),
		emails: make(map[string]string),
	}
}

// Create inserts a new user, assigning a UID and creation time if absent.
func (r *InMemoryRepository) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u.Email != "" {
		if _, taken := r.emails[u.Email]; taken {
			return ErrEmailTaken
		}
	}
	if u.UID == "" {
		u.UID = uuid.New().String()
	}
	if u.CreationTime.IsZero() {
		u.CreationTime = time.Now()
	}

	userCopy := *u
	r.users[u.UID] = &userCopy
	if u.Email != "" {
		r.emails[u.Email] = u.UID
	}
	return nil
}

// GetByUID retrieves a user by id.
func (r *InMemoryRepository) GetByUID(_ context.Context, uid string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[uid]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// GetByEmail retrieves a user by email.
func (r *InMemoryRepository) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	uid, ok := r.emails[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *r.users[uid]
	return &userCopy, nil
}

// ReplaceClaims atomically replaces the user's entire claim set.
func (r *InMemoryRepository) ReplaceClaims(_ context.Context, uid string, claims auth.RoleClaims) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.Claims = claims
	return nil
}

// UpdateDisplayName sets the user's display name.
func (r *InMemoryRepository) UpdateDisplayName(_ context.Context, uid, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[uid]
	if !ok {
		return ErrUserNotFound
	}
	u.DisplayName = name
	return nil
}

// List returns all users, oldest account first with uid as tie-breaker.
func (r *InMemoryRepository) List(_ context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		userCopy := *u
		users = append(users, &userCopy)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreationTime.Equal(users[j].CreationTime) {
			return users[i].CreationTime.Before(users[j].CreationTime)
		}
		return users[i].UID < users[j].UID
	})
	return users, nil
}
