package calendarview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/connectro/connect/internal/auth"
	"github.com/connectro/connect/internal/event"
)

func testClaims(uid string) *auth.Claims {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: uid},
		RoleClaims:       auth.ClaimsForRole(auth.RoleAdolescent),
	}
}

func seedEvent(t *testing.T, store event.Store, title, date, timeOfDay string) *event.Event {
	t.Helper()
	ev := &event.Event{
		Title:     title,
		Date:      date,
		Time:      timeOfDay,
		CreatedBy: "seed",
		CreatedAt: time.Now(),
	}
	if err := store.CreateEvent(context.Background(), ev); err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	return ev
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestGroupByDaySortsByTime(t *testing.T) {
	events := []*event.Event{
		{ID: "b", Date: "2024-05-01", Time: "14:30"},
		{ID: "a", Date: "2024-05-01", Time: "09:00"},
		{ID: "c", Date: "2024-05-02", Time: "10:00"},
	}

	days := groupByDay(events)

	day := days["2024-05-01"]
	if len(day) != 2 {
		t.Fatalf("events on 2024-05-01 = %d, want 2", len(day))
	}
	if day[0].Time != "09:00" || day[1].Time != "14:30" {
		t.Errorf("day order = [%s, %s], want [09:00, 14:30]", day[0].Time, day[1].Time)
	}
	if len(days["2024-05-02"]) != 1 {
		t.Errorf("events on 2024-05-02 = %d, want 1", len(days["2024-05-02"]))
	}
}

func TestGroupByDayUntimedEventsKeepArrivalOrder(t *testing.T) {
	events := []*event.Event{
		{ID: "first", Date: "2024-05-01"},
		{ID: "timed", Date: "2024-05-01", Time: "08:00"},
		{ID: "second", Date: "2024-05-01"},
	}

	// The grouping must be deterministic: repeated runs over the same
	// arrival order produce the same result, with untimed events pinned
	// to their arrival positions.
	want := []string{"first", "timed", "second"}
	for i := 0; i < 5; i++ {
		days := groupByDay(events)
		day := days["2024-05-01"]
		for j, ev := range day {
			if ev.ID != want[j] {
				t.Fatalf("run %d: day order[%d] = %s, want %s", i, j, ev.ID, want[j])
			}
		}
	}
}

func TestStartRequiresIdentity(t *testing.T) {
	s := New(event.NewInMemoryStore(), nil, nil)

	if err := s.Start(context.Background(), nil); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Start(nil) error = %v, want ErrNoIdentity", err)
	}
	if err := s.Start(context.Background(), &auth.Claims{}); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("Start(empty claims) error = %v, want ErrNoIdentity", err)
	}

	// Once an identity exists the same synchronizer can start.
	if err := s.Start(context.Background(), testClaims("user-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background(), testClaims("user-1")); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestSynchronizerTracksStore(t *testing.T) {
	store := event.NewInMemoryStore()
	ctx := context.Background()

	seedEvent(t, store, "Dimineata", "2024-05-01", "09:00")

	s := New(store, nil, nil)
	if err := s.Start(ctx, testClaims("user-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if s.Fetching() {
		t.Error("Fetching() = true after initial snapshot")
	}
	if got := len(s.EventsOn("2024-05-01")); got != 1 {
		t.Fatalf("EventsOn() = %d events, want 1", got)
	}

	// A later write shows up without polling by the consumer.
	seedEvent(t, store, "Seara", "2024-05-01", "19:00")
	waitFor(t, func() bool { return len(s.EventsOn("2024-05-01")) == 2 })

	day := s.EventsOn("2024-05-01")
	if day[0].Time != "09:00" || day[1].Time != "19:00" {
		t.Errorf("day order = [%s, %s], want [09:00, 19:00]", day[0].Time, day[1].Time)
	}
}

func TestSynchronizerCountsAttendance(t *testing.T) {
	store := event.NewInMemoryStore()
	ctx := context.Background()
	ev := seedEvent(t, store, "Picnic", "2024-08-01", "")

	s := New(store, nil, nil)
	if err := s.Start(ctx, testClaims("user-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if got := s.Count(ev.ID); got != 0 {
		t.Fatalf("Count() = %d, want 0", got)
	}

	for i, uid := range []string{"u1", "u2", "u3"} {
		a := &event.Attendance{UID: uid, UserName: "User", Timestamp: time.Now()}
		if err := store.UpsertAttendance(ctx, ev.ID, a); err != nil {
			t.Fatalf("UpsertAttendance() error = %v", err)
		}
		want := i + 1
		waitFor(t, func() bool { return s.Count(ev.ID) == want })
	}

	// Opting out shrinks the live count.
	if err := store.DeleteAttendance(ctx, ev.ID, "u2"); err != nil {
		t.Fatalf("DeleteAttendance() error = %v", err)
	}
	waitFor(t, func() bool { return s.Count(ev.ID) == 2 })
}

func TestSynchronizerResubscribesOnEventChanges(t *testing.T) {
	store := event.NewInMemoryStore()
	ctx := context.Background()
	ev1 := seedEvent(t, store, "Unu", "2024-05-01", "")
	ev2 := seedEvent(t, store, "Doi", "2024-05-02", "")

	s := New(store, nil, nil)
	if err := s.Start(ctx, testClaims("user-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// One event-collection subscription plus one attendance subscription
	// per known event.
	waitFor(t, func() bool { return store.Notifier().SubscriberCount() == 3 })

	// Deleting an event must also drop its attendance listener instead of
	// leaking it.
	if err := store.DeleteEvent(ctx, ev1.ID); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	waitFor(t, func() bool { return store.Notifier().SubscriberCount() == 2 })

	// The remaining event still receives attendance updates after the
	// resubscription cycle.
	a := &event.Attendance{UID: "u1", UserName: "User", Timestamp: time.Now()}
	if err := store.UpsertAttendance(ctx, ev2.ID, a); err != nil {
		t.Fatalf("UpsertAttendance() error = %v", err)
	}
	waitFor(t, func() bool { return s.Count(ev2.ID) == 1 })

	// Teardown releases everything.
	s.Stop()
	if got := store.Notifier().SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() after Stop = %d, want 0", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := event.NewInMemoryStore()
	seedEvent(t, store, "Unu", "2024-05-01", "")

	s := New(store, nil, nil)
	if err := s.Start(context.Background(), testClaims("user-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	snap := s.Snapshot()
	delete(snap.Days, "2024-05-01")
	snap.Counts["bogus"] = 99

	if got := len(s.EventsOn("2024-05-01")); got != 1 {
		t.Errorf("mutating a snapshot changed the view: EventsOn() = %d events", got)
	}
	if got := s.Count("bogus"); got != 0 {
		t.Errorf("mutating a snapshot changed counts: Count() = %d", got)
	}
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	store := event.NewInMemoryStore()
	snaps := make(chan Snapshot, 16)

	s := New(store, nil, func(snap Snapshot) { snaps <- snap })
	if err := s.Start(context.Background(), testClaims("user-1")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	// The initial snapshot arrives even with an empty store.
	select {
	case snap := <-snaps:
		if snap.Fetching {
			t.Error("initial snapshot still marked fetching")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	seedEvent(t, store, "Unu", "2024-05-01", "")
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-snaps:
			if len(snap.Days["2024-05-01"]) == 1 {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot containing the new event")
		}
	}
}
