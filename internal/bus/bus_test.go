package bus

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := NewEventBus()

	got := make(chan Event, 1)
	b.Subscribe(EventTypeRunCreated, func(e Event) {
		got <- e
	})

	b.Publish(Event{Type: EventTypeRunCreated, Data: map[string]any{"run_id": "20260314_092653"}})

	select {
	case e := <-got:
		assert.Equal(t, EventTypeRunCreated, e.Type)
		assert.Equal(t, "20260314_092653", e.Data["run_id"])
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPublishOnlyReachesMatchingType(t *testing.T) {
	b := NewEventBus()

	var calls atomic.Int32
	b.Subscribe(EventTypeRunFailed, func(e Event) {
		calls.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeStageChanged})
	b.PublishSync(Event{Type: EventTypeRunFailed})

	assert.Equal(t, int32(1), calls.Load())
}

func TestSubscribeMultiple(t *testing.T) {
	b := NewEventBus()

	var calls atomic.Int32
	b.SubscribeMultiple([]EventType{EventTypeLineSynthesized, EventTypeLineSilence}, func(e Event) {
		calls.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeLineSynthesized})
	b.PublishSync(Event{Type: EventTypeLineSilence})
	b.PublishSync(Event{Type: EventTypeRenderStarted})

	assert.Equal(t, int32(2), calls.Load())
}

func TestPublishSyncWaitsForHandlers(t *testing.T) {
	b := NewEventBus()

	var done atomic.Bool
	b.Subscribe(EventTypeRenderFinished, func(e Event) {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	})

	b.PublishSync(Event{Type: EventTypeRenderFinished})
	assert.True(t, done.Load())
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := NewEventBus()

	// Must not panic or block
	b.Publish(Event{Type: EventTypeVideoUploaded})
	b.PublishSync(Event{Type: EventTypePostPublished})
}

func TestClear(t *testing.T) {
	b := NewEventBus()

	var calls atomic.Int32
	b.Subscribe(EventTypeRunResumed, func(e Event) {
		calls.Add(1)
	})

	b.PublishSync(Event{Type: EventTypeRunResumed})
	b.Clear()
	b.PublishSync(Event{Type: EventTypeRunResumed})

	assert.Equal(t, int32(1), calls.Load())
}

func TestConcurrentPublish(t *testing.T) {
	b := NewEventBus()

	var calls atomic.Int32
	b.Subscribe(EventTypeScriptGenerated, func(e Event) {
		calls.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.PublishSync(Event{Type: EventTypeScriptGenerated})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), calls.Load())
}
