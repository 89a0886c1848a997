package events

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ticker-orchestrator/internal/domain"
)

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.Subscribe(func(domain.Event) { order = append(order, "first") })
	bus.Subscribe(func(domain.Event) { order = append(order, "second") })

	bus.Publish(domain.Event{Type: domain.EventSignalProcessed})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_PreservesPerTickerOrder(t *testing.T) {
	bus := NewBus()

	var got []int64
	bus.Subscribe(func(e domain.Event) {
		if e.Ticker == "SPY" {
			got = append(got, e.Timestamp)
		}
	})

	for ts := int64(1); ts <= 5; ts++ {
		bus.Publish(domain.Event{Type: domain.EventSignalProcessed, Ticker: "SPY", Timestamp: ts})
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got)
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()

	// Must not panic.
	bus.Publish(domain.Event{Type: domain.EventWorkerFailed, WorkerID: "worker-1"})
}

func TestBus_SubscriberAddedMidStream(t *testing.T) {
	bus := NewBus()

	var count int
	bus.Publish(domain.Event{Type: domain.EventSignalProcessed})

	bus.Subscribe(func(domain.Event) { count++ })
	bus.Publish(domain.Event{Type: domain.EventSignalProcessed})

	assert.Equal(t, 1, count)
}
