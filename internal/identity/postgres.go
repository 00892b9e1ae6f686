package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/connectro/connect/internal/auth"
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

// Create inserts a new user. Fails with ErrEmailTaken when the email is
// already registered.
func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (uid, email, display_name, is_anonymous, password_hash,
			claim_admin, claim_lider, claim_adolescent, claim_role, created_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.UID, u.Email, u.DisplayName, u.IsAnonymous, u.PasswordHash,
		u.Claims.Admin, u.Claims.Lider, u.Claims.Adolescent, u.Claims.Role, u.CreationTime)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetByUID retrieves a user by id.
func (r *PostgresRepository) GetByUID(ctx context.Context, uid string) (*User, error) {
	return r.getWhere(ctx, "uid = $1", uid)
}

// GetByEmail retrieves a user by email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getWhere(ctx, "email = $1", email)
}

func (r *PostgresRepository) getWhere(ctx context.Context, where string, arg any) (*User, error) {
	query := `
		SELECT uid, COALESCE(email, ''), COALESCE(display_name, ''), is_anonymous, password_hash,
			claim_admin, claim_lider, claim_adolescent, COALESCE(claim_role, ''), created_at
		FROM users
		WHERE ` + where
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ReplaceClaims atomically replaces the user's entire claim set.
func (r *PostgresRepository) ReplaceClaims(ctx context.Context, uid string, claims auth.RoleClaims) error {
	query := `
		UPDATE users
		SET claim_admin = $2, claim_lider = $3, claim_adolescent = $4, claim_role = NULLIF($5, '')
		WHERE uid = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		uid, claims.Admin, claims.Lider, claims.Adolescent, claims.Role)
	if err != nil {
		return fmt.Errorf("failed to replace claims: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateDisplayName sets the user's display name.
func (r *PostgresRepository) UpdateDisplayName(ctx context.Context, uid, name string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET display_name = NULLIF($2, '') WHERE uid = $1`, uid, name)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// List returns all users, oldest account first with uid as tie-breaker.
func (r *PostgresRepository) List(ctx context.Context) ([]*User, error) {
	query := `
		SELECT uid, COALESCE(email, ''), COALESCE(display_name, ''), is_anonymous, password_hash,
			claim_admin, claim_lider, claim_adolescent, COALESCE(claim_role, ''), created_at
		FROM users
		ORDER BY created_at, uid
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.Warn("failed to close rows", "error", err)
		}
	}()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

// scanner abstracts sql.Row and sql.Rows for scanUser.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	if err := row.Scan(&u.UID, &u.Email, &u.DisplayName, &u.IsAnonymous, &u.PasswordHash,
		&u.Claims.Admin, &u.Claims.Lider, &u.Claims.Adolescent, &u.Claims.Role,
		&u.CreationTime); err != nil {
		return nil, err
	}
	return &u, nil
}
