package taskengine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/mashiike/taskengine/a2a"
)

// EventStream error variables
var (
	// ErrEventStreamClosed is returned when publishing to or subscribing on a closed stream
	ErrEventStreamClosed = errors.New("event stream is closed")
)

// Event is a task event together with the tenant that owns the task.
type Event struct {
	Tenant    string
	TaskEvent a2a.TaskEvent
}

// Matches reports whether the event belongs to the task (tenant, taskID).
func (e Event) Matches(tenant, taskID string) bool {
	return e.TaskEvent != nil && e.Tenant == tenant && e.TaskEvent.GetTaskID() == taskID
}

type eventEnvelope struct {
	Tenant string             `json:"tenant,omitempty"`
	Event  a2a.StreamResponse `json:"event"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	if e.TaskEvent == nil {
		return nil, errors.New("event has no task event")
	}
	return json.Marshal(eventEnvelope{Tenant: e.Tenant, Event: a2a.NewStreamResponse(e.TaskEvent)})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	ev := env.Event.Event()
	if ev == nil {
		return errors.New("event envelope carries no task event")
	}
	e.Tenant = env.Tenant
	e.TaskEvent = ev
	return nil
}

//go:generate go tool mockgen -source=event_stream.go -destination=mock_event_stream_test.go -package=taskengine

// EventStream is a multicast channel of task events. Subscribers receive only
// events published after they subscribed, and filter them themselves.
// Publish never blocks on slow subscribers.
type EventStream interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context) (*Subscription, error)
}

// Subscription delivers events to one subscriber until closed.
type Subscription struct {
	events  <-chan Event
	once    sync.Once
	closeFn func()
}

// NewSubscription wraps events. closeFn is called once by Close and must
// eventually close events.
func NewSubscription(events <-chan Event, closeFn func()) *Subscription {
	return &Subscription{events: events, closeFn: closeFn}
}

// Events returns the delivery channel. It is closed after Close or when the stream shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}

// MemoryEventStream implements EventStream in process memory.
// Each subscriber owns an unbounded FIFO buffer drained by its own goroutine,
// so a slow subscriber grows its buffer instead of blocking publishers.
type MemoryEventStream struct {
	mu          sync.RWMutex
	subscribers map[*memorySubscriber]struct{}
	closed      bool
}

type memorySubscriber struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
	out    chan Event
	done   chan struct{}
	once   sync.Once
}

// NewMemoryEventStream creates an empty MemoryEventStream.
func NewMemoryEventStream() *MemoryEventStream {
	return &MemoryEventStream{
		subscribers: make(map[*memorySubscriber]struct{}),
	}
}

func (s *MemoryEventStream) Publish(ctx context.Context, event Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrEventStreamClosed
	}
	for sub := range s.subscribers {
		sub.push(event)
	}
	return nil
}

// Subscribe registers a subscriber. The subscription is closed when ctx is done.
func (s *MemoryEventStream) Subscribe(ctx context.Context) (*Subscription, error) {
	sub := &memorySubscriber{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrEventStreamClosed
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go sub.pump()
	stop := func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		sub.stop()
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-sub.done:
		}
	}()
	return NewSubscription(sub.out, stop), nil
}

// Close closes every subscription and rejects further use.
func (s *MemoryEventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for sub := range s.subscribers {
		sub.stop()
	}
	clear(s.subscribers)
	return nil
}

func (sub *memorySubscriber) push(event Event) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, event)
	sub.mu.Unlock()
	select {
	case sub.notify <- struct{}{}:
	default:
	}
}

func (sub *memorySubscriber) stop() {
	sub.once.Do(func() { close(sub.done) })
}

func (sub *memorySubscriber) pump() {
	defer close(sub.out)
	for {
		select {
		case <-sub.done:
			return
		case <-sub.notify:
		}
		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			event := sub.queue[0]
			sub.queue[0] = Event{}
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			select {
			case sub.out <- event:
			case <-sub.done:
				return
			}
		}
	}
}
