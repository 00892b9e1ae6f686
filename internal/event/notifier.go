package event

import "sync"

// Subscription is a handle on a live change feed. C receives a signal
// whenever the subscribed collection changes; the payload is intentionally
// empty so consumers always re-read a full snapshot instead of patching
// state incrementally. Cancel must be called when the consumer is done or
// before re-subscribing, otherwise the listener leaks.
type Subscription struct {
	C <-chan struct{}

	cancelOnce sync.Once
	cancel     func()
}

// Cancel detaches the subscription from its feed. Safe to call more than
// once; the channel is closed after the first call.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(s.cancel)
}

// Notifier is the change-notification hub for the event store. The event
// collection is one topic; each event's attendance sub-collection is its
// own topic keyed by event id.
//
// Signals coalesce: each subscriber channel is buffered with capacity one
// and publishing never blocks, so a burst of writes may deliver a single
// signal. That is sound because consumers rebuild from snapshots.
type Notifier struct {
	mu     sync.Mutex
	nextID int
	topics map[string]map[int]chan struct{}
}

// Topic key for the top-level event collection; attendance topics are
// prefixed with the event id.
const eventsTopic = "events"

func attendanceTopic(eventID string) string {
	return "attendance:" + eventID
}

// NewNotifier creates an empty notification hub.
func NewNotifier() *Notifier {
	return &Notifier{topics: make(map[string]map[int]chan struct{})}
}

func (n *Notifier) subscribe(topic string) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.topics[topic] == nil {
		n.topics[topic] = make(map[int]chan struct{})
	}
	id := n.nextID
	n.nextID++

	ch := make(chan struct{}, 1)
	n.topics[topic][id] = ch

	return &Subscription{
		C: ch,
		cancel: func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			if subs, ok := n.topics[topic]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(n.topics, topic)
				}
			}
		},
	}
}

func (n *Notifier) publish(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.topics[topic] {
		select {
		case ch <- struct{}{}:
		default:
			// A signal is already pending; the subscriber will rebuild
			// from the latest snapshot anyway.
		}
	}
}

// SubscribeEvents returns a feed of event-collection changes.
func (n *Notifier) SubscribeEvents() *Subscription {
	return n.subscribe(eventsTopic)
}

// SubscribeAttendance returns a feed of attendance changes for one event.
func (n *Notifier) SubscribeAttendance(eventID string) *Subscription {
	return n.subscribe(attendanceTopic(eventID))
}

// PublishEvents signals a change in the event collection.
func (n *Notifier) PublishEvents() {
	n.publish(eventsTopic)
}

// PublishAttendance signals a change in one event's attendance records.
func (n *Notifier) PublishAttendance(eventID string) {
	n.publish(attendanceTopic(eventID))
}

// SubscriberCount reports the number of live subscriptions on the event
// topic plus all attendance topics. Used by tests and metrics to verify
// the cancellation discipline.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for _, subs := range n.topics {
		total += len(subs)
	}
	return total
}
