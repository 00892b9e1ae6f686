package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/connectro/connect/internal/auth"
)

// Login errors.
var (
	ErrEmptyName          = errors.New("login name is empty")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// DirectoryEntry is a user record as exposed to the admin directory,
// with the effective role resolved from the claim set.
type DirectoryEntry struct {
	UID          string    `json:"uid"`
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	IsAnonymous  bool      `json:"is_anonymous"`
	CreationTime time.Time `json:"creation_time"`
	Role         auth.Role `json:"role"`
}

// Service coordinates account lifecycle, login and claim management on
// top of the user repository and the token service.
type Service struct {
	repo        Repository
	tokens      *auth.TokenService
	revocations auth.RevocationStore
	generic     []byte // bcrypt hash of the shared login password
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates an identity service. genericPassword is the shared
// secret accepted by the name login; it is hashed once at construction.
func NewService(repo Repository, tokens *auth.TokenService, revocations auth.RevocationStore, genericPassword string, logger *slog.Logger) (*Service, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(genericPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing generic password: %w", err)
	}
	return &Service{
		repo:        repo,
		tokens:      tokens,
		revocations: revocations,
		generic:     hash,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// BootstrapAnonymous creates a throwaway anonymous account and issues a
// credential for it. Anonymous accounts carry no claims; their role
// resolves to adolescent.
func (s *Service) BootstrapAnonymous(ctx context.Context) (*User, string, error) {
	u := &User{
		UID:          uuid.New().String(),
		IsAnonymous:  true,
		CreationTime: s.now(),
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, "", fmt.Errorf("creating anonymous user: %w", err)
	}

	token, err := s.issueFor(ctx, u)
	if err != nil {
		return nil, "", err
	}

	s.logger.Info("anonymous account bootstrapped", "user_uid", u.UID)
	return u, token, nil
}

// LoginWithName signs a user in by display name and the shared
// password. The name is sanitized into a synthetic address; a matching
// account is reused, otherwise one is created on the spot.
func (s *Service) LoginWithName(ctx context.Context, name, password string) (*User, string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, "", ErrEmptyName
	}

	email := EmailForName(trimmed)

	u, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
			return nil, "", ErrInvalidCredentials
		}
	case errors.Is(err, ErrUserNotFound):
		if bcrypt.CompareHashAndPassword(s.generic, []byte(password)) != nil {
			return nil, "", ErrInvalidCredentials
		}
		u = &User{
			UID:          uuid.New().String(),
			Email:        email,
			DisplayName:  trimmed,
			CreationTime: s.now(),
			PasswordHash: s.generic,
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return nil, "", fmt.Errorf("creating user: %w", err)
		}
		s.logger.Info("account created via name login", "user_uid", u.UID, "email", email)
	default:
		return nil, "", fmt.Errorf("looking up user: %w", err)
	}

	token, err := s.issueFor(ctx, u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// SetRole replaces the target user's claim set with the canonical set
// for the given role and revokes all of their outstanding sessions, so
// the new role takes effect on the next credential refresh.
func (s *Service) SetRole(ctx context.Context, targetUID string, role auth.Role) error {
	if !role.Valid() {
		return fmt.Errorf("cannot assign role %q", role)
	}
	if err := s.repo.ReplaceClaims(ctx, targetUID, auth.ClaimsForRole(role)); err != nil {
		return fmt.Errorf("replacing claims: %w", err)
	}
	if _, err := s.revocations.Revoke(ctx, targetUID); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	s.logger.Info("role assigned", "target_uid", targetUID, "role", string(role))
	return nil
}

// RevokeSessions invalidates every outstanding credential for uid.
// Previously issued tokens fail validation with ErrTokenRevoked afterwards.
func (s *Service) RevokeSessions(ctx context.Context, uid string) error {
	if _, err := s.revocations.Revoke(ctx, uid); err != nil {
		return fmt.Errorf("revoking sessions: %w", err)
	}
	s.logger.Info("sessions revoked", "uid", uid)
	return nil
}

// ReissueToken mints a fresh credential for an existing account, used
// after a role refresh or a revocation-driven re-login.
func (s *Service) ReissueToken(ctx context.Context, uid string) (*User, string, error) {
	u, err := s.repo.GetByUID(ctx, uid)
	if err != nil {
		return nil, "", err
	}
	token, err := s.issueFor(ctx, u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// GetUser retrieves an account by uid.
func (s *Service) GetUser(ctx context.Context, uid string) (*User, error) {
	return s.repo.GetByUID(ctx, uid)
}

// ListUsers returns every account with its resolved role, oldest first.
func (s *Service) ListUsers(ctx context.Context) ([]DirectoryEntry, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	entries := make([]DirectoryEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, DirectoryEntry{
			UID:          u.UID,
			Email:        u.Email,
			DisplayName:  u.DisplayName,
			IsAnonymous:  u.IsAnonymous,
			CreationTime: u.CreationTime,
			Role:         directoryRole(u),
		})
	}
	return entries, nil
}

func (s *Service) issueFor(ctx context.Context, u *User) (string, error) {
	token, err := s.tokens.Issue(ctx, u.UID, u.DisplayName, u.IsAnonymous, u.Claims)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}
	return token, nil
}

// directoryRole resolves the effective role for directory listings.
// Accounts without any claims default to adolescent when anonymous and
// to the unknown role otherwise.
func directoryRole(u *User) auth.Role {
	if u.Claims != (auth.RoleClaims{}) {
		return auth.DeriveRole(u.Claims)
	}
	if u.IsAnonymous {
		return auth.RoleAdolescent
	}
	return auth.RoleUnknown
}
