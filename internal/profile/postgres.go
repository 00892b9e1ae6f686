package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// PostgresRepository implements Repository on PostgreSQL via database/sql
// (lib/pq).
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a PostgresRepository on the given
// connection pool.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Get retrieves the profile for a uid, or ErrProfileNotFound.
func (r *PostgresRepository) Get(ctx context.Context, uid string) (*Profile, error) {
	query := `
		SELECT uid, COALESCE(display_name, ''), avatar, COALESCE(avatar_type, ''), updated_at
		FROM profiles
		WHERE uid = $1
	`
	var p Profile
	err := r.db.QueryRowContext(ctx, query, uid).Scan(
		&p.UID, &p.DisplayName, &p.Avatar, &p.AvatarType, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if len(p.Avatar) == 0 {
		p.Avatar = nil
	}
	return &p, nil
}

// Upsert creates or replaces the profile for p.UID.
func (r *PostgresRepository) Upsert(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO profiles (uid, display_name, avatar, avatar_type, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5)
		ON CONFLICT (uid) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			avatar = EXCLUDED.avatar,
			avatar_type = EXCLUDED.avatar_type,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		p.UID, p.DisplayName, p.Avatar, p.AvatarType, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
