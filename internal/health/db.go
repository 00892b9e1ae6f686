package health

import (
	"context"
	"database/sql"
)

// DBChecker reports whether the Postgres backing store answers.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a checker over the event store's database handle.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (d *DBChecker) HealthCheck(ctx context.Context) error {
	return d.db.PingContext(ctx)
}
