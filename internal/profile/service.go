package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/connectro/connect/internal/validate"
)

// DefaultAvatarMaxBytes bounds avatar uploads when no limit is configured.
const DefaultAvatarMaxBytes = 256 * 1024

// Service applies validation on top of a Repository.
type Service struct {
	repo           Repository
	avatarMaxBytes int64
	logger         *slog.Logger
	now            func() time.Time
}

// NewService creates a profile service. avatarMaxBytes <= 0 falls back to
// DefaultAvatarMaxBytes.
func NewService(repo Repository, avatarMaxBytes int64, logger *slog.Logger) *Service {
	if avatarMaxBytes <= 0 {
		avatarMaxBytes = DefaultAvatarMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:           repo,
		avatarMaxBytes: avatarMaxBytes,
		logger:         logger,
		now:            time.Now,
	}
}

// AvatarMaxBytes reports the configured avatar size limit.
func (s *Service) AvatarMaxBytes() int64 {
	return s.avatarMaxBytes
}

// Get retrieves the profile for a uid, or ErrProfileNotFound.
func (s *Service) Get(ctx context.Context, uid string) (*Profile, error) {
	return s.repo.Get(ctx, uid)
}

// UpdateDisplayName validates and stores a new display name, creating the
// profile if it does not exist yet. Any stored avatar is preserved.
func (s *Service) UpdateDisplayName(ctx context.Context, uid, name string) (*Profile, error) {
	cleaned, err := validate.DisplayName(name)
	if err != nil {
		return nil, fmt.Errorf("invalid display name: %w", err)
	}

	p, err := s.repo.Get(ctx, uid)
	if errors.Is(err, ErrProfileNotFound) {
		p = &Profile{UID: uid}
	} else if err != nil {
		return nil, err
	}

	p.DisplayName = cleaned
	p.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile display name updated", "uid", uid)
	return p, nil
}

// SetAvatar validates and stores avatar bytes, creating the profile if it
// does not exist yet. The image type is sniffed from the content; only PNG
// and JPEG are accepted, bounded by the configured maximum size.
func (s *Service) SetAvatar(ctx context.Context, uid string, data []byte) (*Profile, error) {
	mimeType, err := validate.AvatarImage(data, s.avatarMaxBytes)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Get(ctx, uid)
	if errors.Is(err, ErrProfileNotFound) {
		p = &Profile{UID: uid}
	} else if err != nil {
		return nil, err
	}

	p.Avatar = data
	p.AvatarType = mimeType
	p.UpdatedAt = s.now()
	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("profile avatar updated", "uid", uid, "type", mimeType, "bytes", len(data))
	return p, nil
}
