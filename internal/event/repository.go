package event

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store defines the backing document store for events and their attendance
// sub-collections, including the live change feeds. Attendance records are
// keyed by (event id, user id) and are removed together with their parent
// event.
type Store interface {
	// CreateEvent inserts a new event, assigning an id if absent.
	CreateEvent(ctx context.Context, ev *Event) error

	// UpdateEvent replaces the stored record for ev.ID.
	UpdateEvent(ctx context.Context, ev *Event) error

	// DeleteEvent hard-deletes an event together with its attendance
	// records.
	DeleteEvent(ctx context.Context, id string) error

	// GetEvent retrieves an event by id.
	GetEvent(ctx context.Context, id string) (*Event, error)

	// ListEvents returns all events in arrival order.
	ListEvents(ctx context.Context) ([]*Event, error)

	// UpsertAttendance inserts or replaces the attendance record keyed by
	// a.UID under eventID.
	UpsertAttendance(ctx context.Context, eventID string, a *Attendance) error

	// DeleteAttendance removes the attendance record keyed by uid.
	DeleteAttendance(ctx context.Context, eventID, uid string) error

	// ListAttendance returns the attendance records for an event, oldest
	// opt-in first.
	ListAttendance(ctx context.Context, eventID string) ([]*Attendance, error)

	// SubscribeEvents returns a live feed of event-collection changes.
	SubscribeEvents() *Subscription

	// SubscribeAttendance returns a live feed of attendance changes for
	// one event.
	SubscribeAttendance(eventID string) *Subscription
}

// InMemoryStore is an in-memory implementation of Store. Thread-safe via
// RWMutex. Suitable for tests and single-instance deployments.
type InMemoryStore struct {
	mu         sync.RWMutex
	events     map[string]*Event
	arrival    map[string]int // event id -> arrival sequence
	nextSeq    int
	attendance map[string]map[string]*Attendance // event id -> uid -> record
	notifier   *Notifier
}

// NewInMemoryStore creates an empty in-memory event store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events:     make(map[string]*Event),
		arrival:    make(map[string]int),
		attendance: make(map[string]map[string]*Attendance),
		notifier:   NewNotifier(),
	}
}

// CreateEvent inserts a new event, assigning an id if absent.
func (s *InMemoryStore) CreateEvent(_ context.Context, ev *Event) error {
	s.mu.Lock()
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	evCopy := *ev
	s.events[ev.ID] = &evCopy
	s.arrival[ev.ID] = s.nextSeq
	s.nextSeq++
	s.mu.Unlock()

	s.notifier.PublishEvents()
	return nil
}

// UpdateEvent replaces the stored record for ev.ID.
func (s *InMemoryStore) UpdateEvent(_ context.Context, ev *Event) error {
	s.mu.Lock()
	if _, ok := s.events[ev.ID]; !ok {
		s.mu.Unlock()
		return ErrEventNotFound
	}
	evCopy := *ev
	s.events[ev.ID] = &evCopy
	s.mu.Unlock()

	s.notifier.PublishEvents()
	return nil
}

// DeleteEvent hard-deletes an event and its attendance records.
func (s *InMemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.events[id]; !ok {
		s.mu.Unlock()
		return ErrEventNotFound
	}
	delete(s.events, id)
	delete(s.arrival, id)
	delete(s.attendance, id)
	s.mu.Unlock()

	s.notifier.PublishEvents()
	return nil
}

// GetEvent retrieves an event by id.
func (s *InMemoryStore) GetEvent(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	evCopy := *ev
	return &evCopy, nil
}

// ListEvents returns all events in arrival order.
func (s *InMemoryStore) ListEvents(_ context.Context) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*Event, 0, len(s.events))
	for _, ev := range s.events {
		evCopy := *ev
		events = append(events, &evCopy)
	}
	sort.Slice(events, func(i, j int) bool {
		return s.arrival[events[i].ID] < s.arrival[events[j].ID]
	})
	return events, nil
}

// UpsertAttendance inserts or replaces the attendance record keyed by
// a.UID. Keying by user id is what makes repeated RSVPs collapse into a
// single record.
func (s *InMemoryStore) UpsertAttendance(_ context.Context, eventID string, a *Attendance) error {
	s.mu.Lock()
	if s.attendance[eventID] == nil {
		s.attendance[eventID] = make(map[string]*Attendance)
	}
	aCopy := *a
	s.attendance[eventID][a.UID] = &aCopy
	s.mu.Unlock()

	s.notifier.PublishAttendance(eventID)
	return nil
}

// DeleteAttendance removes the attendance record keyed by uid.
func (s *InMemoryStore) DeleteAttendance(_ context.Context, eventID, uid string) error {
	s.mu.Lock()
	records, ok := s.attendance[eventID]
	if !ok {
		s.mu.Unlock()
		return ErrAttendanceNotFound
	}
	if _, ok := records[uid]; !ok {
		s.mu.Unlock()
		return ErrAttendanceNotFound
	}
	delete(records, uid)
	s.mu.Unlock()

	s.notifier.PublishAttendance(eventID)
	return nil
}

// ListAttendance returns the attendance records for an event, oldest
// opt-in first with uid as tie-breaker.
func (s *InMemoryStore) ListAttendance(_ context.Context, eventID string) ([]*Attendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Attendance, 0, len(s.attendance[eventID]))
	for _, a := range s.attendance[eventID] {
		aCopy := *a
		records = append(records, &aCopy)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.Before(records[j].Timestamp)
		}
		return records[i].UID < records[j].UID
	})
	return records, nil
}

// SubscribeEvents returns a live feed of event-collection changes.
func (s *InMemoryStore) SubscribeEvents() *Subscription {
	return s.notifier.SubscribeEvents()
}

// SubscribeAttendance returns a live feed of attendance changes for one event.
func (s *InMemoryStore) SubscribeAttendance(eventID string) *Subscription {
	return s.notifier.SubscribeAttendance(eventID)
}

// Notifier exposes the store's notification hub. Used by tests to assert
// that subscriptions are torn down.
func (s *InMemoryStore) Notifier() *Notifier {
	return s.notifier
}
