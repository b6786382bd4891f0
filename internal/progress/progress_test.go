package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timeout:
			t.Fatalf("channel not closed, got %d events", len(events))
			return nil
		}
	}
}

func TestPublishStampsSequenceAndClampsProgress(t *testing.T) {
	bus := NewBus()

	first, ok := bus.Publish("job", Event{Stage: "a", Progress: 40})
	require.True(t, ok)
	second, _ := bus.Publish("job", Event{Stage: "b", Progress: 20})
	third, _ := bus.Publish("job", Event{Stage: "c", Progress: 150})
	other, _ := bus.Publish("other", Event{Progress: -5})

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "job", first.JobID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, 40.0, second.Progress)
	assert.Equal(t, 100.0, third.Progress)
	assert.Equal(t, uint64(1), other.Seq)
	assert.Equal(t, 0.0, other.Progress)

	latest, ok := bus.Latest("job")
	require.True(t, ok)
	assert.Equal(t, third, latest)
}

func TestSubscribeCatchUp(t *testing.T) {
	bus := NewBus()
	bus.Publish("job", Event{Stage: "a", Progress: 20})
	bus.Publish("job", Event{Stage: "b", Progress: 40})

	ch := bus.Subscribe(context.Background(), "job")
	bus.Publish("job", Event{Stage: "c", Progress: 60})
	bus.Close("job")

	events := collect(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].Stage, "first event is the latest known one")
	assert.Equal(t, 40.0, events[0].Progress)
	assert.Equal(t, "c", events[1].Stage)
}

func TestSubscribeBeforeFirstEvent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(context.Background(), "job")

	bus.Publish("job", Event{Stage: "a", Progress: 20})
	bus.Close("job")

	events := collect(t, ch)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(1), events[0].Seq)
}

func TestClosedTopic(t *testing.T) {
	bus := NewBus()
	bus.Publish("job", Event{Stage: "done", Progress: 100})
	bus.Close("job")
	bus.Close("job")

	_, ok := bus.Publish("job", Event{Progress: 100})
	assert.False(t, ok)

	events := collect(t, bus.Subscribe(context.Background(), "job"))
	require.Len(t, events, 1)
	assert.Equal(t, "done", events[0].Stage)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(context.Background(), "job")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			bus.Publish("job", Event{Progress: float64(i % 101)})
		}
		bus.Close("job")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publisher blocked on an unread subscriber")
	}

	events := collect(t, ch)
	require.Len(t, events, 10000)
	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestSubscriberContextCancel(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx, "job")
	cancel()

	collect(t, ch)

	_, ok := bus.Publish("job", Event{Progress: 10})
	assert.True(t, ok)
}

func TestConcurrentSubscribersSeeMonotonicEvents(t *testing.T) {
	bus := NewBus()
	const subscribers = 8

	var wg sync.WaitGroup
	results := make([][]Event, subscribers)
	for i := 0; i < subscribers; i++ {
		ch := bus.Subscribe(context.Background(), "job")
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = collect(t, ch)
		}()
	}

	var pub sync.WaitGroup
	for p := 0; p < 4; p++ {
		pub.Add(1)
		go func() {
			defer pub.Done()
			for i := 0; i < 100; i++ {
				bus.Publish("job", Event{Stage: fmt.Sprintf("p%d", p), Progress: float64(i)})
			}
		}()
	}
	pub.Wait()
	bus.Close("job")
	wg.Wait()

	for _, events := range results {
		require.Len(t, events, 400)
		for i := 1; i < len(events); i++ {
			assert.Greater(t, events[i].Seq, events[i-1].Seq)
			assert.GreaterOrEqual(t, events[i].Progress, events[i-1].Progress)
		}
	}
}

func TestEventJSON(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 500, time.UTC)
	e := Event{JobID: "job", Seq: 3, Stage: "outlier_handling", Progress: 60, Status: "processing", Timestamp: ts}

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"2024-05-01T12:30:00.0000005Z"`)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, e.Seq, decoded.Seq)
	assert.True(t, ts.Equal(decoded.Timestamp))
	assert.Equal(t, e.Stage, decoded.Stage)
}
