package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// PostgresStore implements Store on PostgreSQL via database/sql (lib/pq).
// Change feeds are served by an in-process Notifier; every instance that
// writes also signals its own subscribers.
type PostgresStore struct {
	db       *sql.DB
	logger   *slog.Logger
	notifier *Notifier
}

// NewPostgresStore creates a PostgresStore on the given connection pool.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		db:       db,
		logger:   logger,
		notifier: NewNotifier(),
	}
}

// CreateEvent inserts a new event, assigning an id if absent.
func (s *PostgresStore) CreateEvent(ctx context.Context, ev *Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	query := `
		INSERT INTO events (id, title, description, date, time, created_by, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`
	if _, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.Title, ev.Description, ev.Date, ev.Time, ev.CreatedBy, ev.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	s.notifier.PublishEvents()
	return nil
}

// UpdateEvent replaces the stored record for ev.ID.
func (s *PostgresStore) UpdateEvent(ctx context.Context, ev *Event) error {
	query := `
		UPDATE events
		SET title = $2, description = $3, date = $4, time = NULLIF($5, ''), updated_at = $6
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		ev.ID, ev.Title, ev.Description, ev.Date, ev.Time, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return ErrEventNotFound
	}

	s.notifier.PublishEvents()
	return nil
}

// DeleteEvent hard-deletes an event. Attendance rows go with it via the
// foreign key cascade.
func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rows == 0 {
		return ErrEventNotFound
	}

	s.notifier.PublishEvents()
	return nil
}

// GetEvent retrieves an event by id.
func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	query := `
		SELECT id, title, COALESCE(description, ''), date, COALESCE(time, ''), created_by, created_at, updated_at
		FROM events
		WHERE id = $1
	`
	ev, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return ev, nil
}

// ListEvents returns all events in arrival order.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]*Event, error) {
	query := `
		SELECT id, title, COALESCE(description, ''), date, COALESCE(time, ''), created_by, created_at, updated_at
		FROM events
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close rows", "error", err)
		}
	}()

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// UpsertAttendance inserts or replaces the attendance record keyed by a.UID.
func (s *PostgresStore) UpsertAttendance(ctx context.Context, eventID string, a *Attendance) error {
	query := `
		INSERT INTO attendance (event_id, uid, user_name, opted_in_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, uid)
		DO UPDATE SET user_name = EXCLUDED.user_name, opted_in_at = EXCLUDED.opted_in_at
	`
	if _, err := s.db.ExecContext(ctx, query, eventID, a.UID, a.UserName, a.Timestamp); err != nil {
		return fmt.Errorf("failed to upsert attendance: %w", err)
	}

	s.notifier.PublishAttendance(eventID)
	return nil
}

// DeleteAttendance removes the attendance record keyed by uid.
func (s *PostgresStore) DeleteAttendance(ctx context.Context, eventID, uid string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM attendance WHERE event_id = $1 AND uid = $2`, eventID, uid)
	if err != nil {
		return fmt.Errorf("failed to delete attendance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if rows == 0 {
		return ErrAttendanceNotFound
	}

	s.notifier.PublishAttendance(eventID)
	return nil
}

// ListAttendance returns the attendance records for an event, oldest
// opt-in first with uid as tie-breaker.
func (s *PostgresStore) ListAttendance(ctx context.Context, eventID string) ([]*Attendance, error) {
	query := `
		SELECT uid, user_name, opted_in_at
		FROM attendance
		WHERE event_id = $1
		ORDER BY opted_in_at, uid
	`
	rows, err := s.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Warn("failed to close rows", "error", err)
		}
	}()

	var records []*Attendance
	for rows.Next() {
		var a Attendance
		if err := rows.Scan(&a.UID, &a.UserName, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance: %w", err)
	}
	return records, nil
}

// SubscribeEvents returns a live feed of event-collection changes.
func (s *PostgresStore) SubscribeEvents() *Subscription {
	return s.notifier.SubscribeEvents()
}

// SubscribeAttendance returns a live feed of attendance changes for one event.
func (s *PostgresStore) SubscribeAttendance(eventID string) *Subscription {
	return s.notifier.SubscribeAttendance(eventID)
}

// scanner abstracts sql.Row and sql.Rows for scanEvent.
type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var ev Event
	var updatedAt sql.NullTime
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.Date, &ev.Time,
		&ev.CreatedBy, &ev.CreatedAt, &updatedAt); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		ev.UpdatedAt = &updatedAt.Time
	}
	return &ev, nil
}
