// Package calendarview maintains a live, denormalized view of the event
// calendar: events grouped by day and time-sorted, plus per-event
// attendance counts. The view is rebuilt wholesale from store snapshots
// on every change notification, never patched incrementally, so it stays
// correct under out-of-order delivery of event and attendance signals.
package calendarview

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/event"
)

// ErrNoIdentity is returned when Start is called before an identity is
// available. Subscriptions must be deferred until the session is
// established to avoid partial or unauthorized reads.
var ErrNoIdentity = errors.New("no identity available; deferring subscription start")

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("synchronizer already started")

// Snapshot is one consistent state of the view. Days maps YYYY-MM-DD keys
// to time-sorted events; Counts maps event ids to their live attendance
// size. Both maps are replaced wholesale on every rebuild and must not be
// mutated by consumers.
type Snapshot struct {
	Days     map[string][]*event.Event `json:"days"`
	Counts   map[string]int            `json:"counts"`
	Fetching bool                      `json:"fetching"`
}

// Synchronizer subscribes to the event collection and, per known event,
// to its attendance sub-collection, keeping the denormalized view fresh.
type Synchronizer struct {
	store  event.Store
	logger *slog.Logger

	mu       sync.RWMutex
	days     map[string][]*event.Event
	counts   map[string]int
	fetching bool
	started  bool

	eventsSub      *event.Subscription
	attendanceSubs map[string]*event.Subscription
	attendanceCh   chan struct{}

	onChange func(Snapshot)
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New creates a Synchronizer over store. onChange, if non-nil, is invoked
// with a fresh snapshot after every rebuild; it runs on the synchronizer
// goroutine and must not block.
func New(store event.Store, logger *slog.Logger, onChange func(Snapshot)) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		store:          store,
		logger:         logger,
		days:           make(map[string][]*event.Event),
		counts:         make(map[string]int),
		fetching:       true,
		attendanceSubs: make(map[string]*event.Subscription),
		attendanceCh:   make(chan struct{}, 1),
		onChange:       onChange,
		stop:           make(chan struct{}),
	}
}

// Start begins synchronization. It requires an established identity;
// callers that do not have one yet must wait and try again rather than
// subscribe unauthenticated.
func (s *Synchronizer) Start(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.UID() == "" {
		return ErrNoIdentity
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	s.eventsSub = s.store.SubscribeEvents()

	// Initial snapshot, mirroring a subscription that fires immediately.
	s.rebuildEvents(ctx)
	s.rebuildCounts(ctx)
	s.notify()

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop tears down every subscription and waits for the run loop to exit.
// Must be called on teardown; the subscriptions leak otherwise.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	s.eventsSub.Cancel()
	s.cancelAttendanceSubs()
	s.wg.Wait()
}

func (s *Synchronizer) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case _, ok := <-s.eventsSub.C:
			if !ok {
				return
			}
			s.rebuildEvents(ctx)
			s.rebuildCounts(ctx)
			s.notify()
		case <-s.attendanceCh:
			// Attendance signals can arrive before or after the event
			// notification that introduced their event; recounting every
			// known event from the store makes the order irrelevant.
			s.rebuildCounts(ctx)
			s.notify()
		}
	}
}

// rebuildEvents replaces the per-day map from a full store snapshot and
// re-establishes all attendance subscriptions for the current event set.
func (s *Synchronizer) rebuildEvents(ctx context.Context) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		// The last good view is kept; only the fetching flag is cleared.
		s.logger.Error("failed to list events", "error", err)
		s.mu.Lock()
		s.fetching = false
		s.mu.Unlock()
		return
	}

	days := groupByDay(events)

	// Tear down every prior attendance subscription before re-subscribing,
	// so listeners on deleted events or stale batches never accumulate.
	s.cancelAttendanceSubs()
	subs := make(map[string]*event.Subscription, len(events))
	for _, ev := range events {
		sub := s.store.SubscribeAttendance(ev.ID)
		subs[ev.ID] = sub
		s.wg.Add(1)
		go s.forwardAttendance(sub)
	}

	s.mu.Lock()
	if !s.started {
		// Stopped while rebuilding; do not leak the fresh subscriptions.
		s.mu.Unlock()
		for _, sub := range subs {
			sub.Cancel()
		}
		return
	}
	s.attendanceSubs = subs
	s.days = days
	s.fetching = false
	s.mu.Unlock()
}

// forwardAttendance funnels one attendance feed into the shared coalescing
// channel. Exits when the subscription is cancelled.
func (s *Synchronizer) forwardAttendance(sub *event.Subscription) {
	defer s.wg.Done()
	for range sub.C {
		select {
		case s.attendanceCh <- struct{}{}:
		default:
			// A recount is already pending; it will read fresh state.
		}
	}
}

// rebuildCounts replaces the attendance-count map from store snapshots of
// every currently known event.
func (s *Synchronizer) rebuildCounts(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.attendanceSubs))
	for id := range s.attendanceSubs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	counts := make(map[string]int, len(ids))
	for _, id := range ids {
		records, err := s.store.ListAttendance(ctx, id)
		if err != nil {
			s.logger.Error("failed to list attendance", "error", err, "event_id", id)
			continue
		}
		counts[id] = len(records)
	}

	s.mu.Lock()
	s.counts = counts
	s.mu.Unlock()
}

func (s *Synchronizer) cancelAttendanceSubs() {
	s.mu.Lock()
	subs := s.attendanceSubs
	s.attendanceSubs = make(map[string]*event.Subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func (s *Synchronizer) notify() {
	if s.onChange != nil {
		s.onChange(s.Snapshot())
	}
}

// Snapshot returns a copy of the current view.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make(map[string][]*event.Event, len(s.days))
	for key, evs := range s.days {
		days[key] = append([]*event.Event(nil), evs...)
	}
	counts := make(map[string]int, len(s.counts))
	for id, n := range s.counts {
		counts[id] = n
	}
	return Snapshot{Days: days, Counts: counts, Fetching: s.fetching}
}

// EventsOn returns the time-sorted events for one calendar day.
func (s *Synchronizer) EventsOn(dateKey string) []*event.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*event.Event(nil), s.days[dateKey]...)
}

// Count returns the live attendance count for an event.
func (s *Synchronizer) Count(eventID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[eventID]
}

// Fetching reports whether the first snapshot is still outstanding.
func (s *Synchronizer) Fetching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetching
}

// groupByDay buckets events by their date key and sorts each bucket by
// ascending time string. The sort is stable and events without a time
// keep their arrival order relative to everything else, which makes the
// grouping deterministic for a given store order.
func groupByDay(events []*event.Event) map[string][]*event.Event {
	days := make(map[string][]*event.Event)
	for _, ev := range events {
		days[ev.Date] = append(days[ev.Date], ev)
	}
	for _, dayEvents := range days {
		sort.SliceStable(dayEvents, func(i, j int) bool {
			if dayEvents[i].Time == "" || dayEvents[j].Time == "" {
				return false
			}
			return dayEvents[i].Time < dayEvents[j].Time
		})
	}
	return days
}
