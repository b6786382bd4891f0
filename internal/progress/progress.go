// Package progress is a per-job publish/subscribe bus for progress events.
// Subscribers first receive the latest known event, then live events in
// order, and their channel is closed once the job's topic is closed.
package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Event represents a progress event
type Event struct {
	JobID     string    `json:"job_id"`
	Seq       uint64    `json:"seq"`
	Stage     string    `json:"stage"`
	Progress  float64   `json:"progress"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Bus fans progress events out to subscribers, one topic per job.
type Bus struct {
	mu     sync.Mutex
	topics map[string]*topic
}

type topic struct {
	seq    uint64
	latest *Event
	subs   map[*subscriber]struct{}
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[string]*topic)}
}

func (b *Bus) topic(jobID string) *topic {
	t, ok := b.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[*subscriber]struct{})}
		b.topics[jobID] = t
	}
	return t
}

// Publish stamps the event with the job id and the next sequence number,
// raises its progress to at least the previous event's and delivers it to
// every subscriber without waiting for them. It returns the stamped event,
// or false when the topic is closed.
func (b *Bus) Publish(jobID string, e Event) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(jobID)
	if t.closed {
		return Event{}, false
	}

	t.seq++
	e.JobID = jobID
	e.Seq = t.seq
	e.Progress = min(max(e.Progress, 0), 100)
	if t.latest != nil && e.Progress < t.latest.Progress {
		e.Progress = t.latest.Progress
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	t.latest = &e

	for s := range t.subs {
		s.push(e)
	}
	return e, true
}

// Subscribe returns the job's events: the latest one if any, then every
// later one in order. The channel is closed after the topic is closed or
// when ctx is done.
func (b *Bus) Subscribe(ctx context.Context, jobID string) <-chan Event {
	s := newSubscriber()

	b.mu.Lock()
	t := b.topic(jobID)
	if t.latest != nil {
		s.push(*t.latest)
	}
	if t.closed {
		s.close()
	} else {
		t.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	go s.pump(ctx, func() { b.unsubscribe(jobID, s) })
	return s.out
}

func (b *Bus) unsubscribe(jobID string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[jobID]; ok {
		delete(t.subs, s)
	}
}

// Close ends the job's topic. Current subscribers drain what is queued and
// see their channel closed; later subscribers get the final event only.
func (b *Bus) Close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(jobID)
	if t.closed {
		return
	}
	t.closed = true
	for s := range t.subs {
		s.close()
	}
	t.subs = map[*subscriber]struct{}{}
}

// Latest returns the most recent event published for the job.
func (b *Bus) Latest(jobID string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok || t.latest == nil {
		return Event{}, false
	}
	return *t.latest, true
}

// subscriber buffers events in an unbounded queue so publishers never block
// on a slow reader.
type subscriber struct {
	mu     sync.Mutex
	queue  []Event
	closed bool
	wake   chan struct{}
	out    chan Event
}

func newSubscriber() *subscriber {
	return &subscriber{
		wake: make(chan struct{}, 1),
		out:  make(chan Event),
	}
}

func (s *subscriber) push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.notify()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notify()
}

func (s *subscriber) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves queued events to out until the queue is drained after close, or
// ctx is done.
func (s *subscriber) pump(ctx context.Context, unsubscribe func()) {
	defer close(s.out)
	defer unsubscribe()

	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- e:
		case <-ctx.Done():
			return
		}
	}
}

// MarshalJSON implements json.Marshaler for Event
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Alias:     (*Alias)(&e),
	})
}

// UnmarshalJSON implements json.Unmarshaler for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		return err
	}
	e.Timestamp = t
	return nil
}
