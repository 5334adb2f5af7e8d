package state

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type EventType int

const (
	EventUnkown EventType = iota
	IndexerConnected
	IndexerDisconnected
	ErrorRaised
	CommandHandled
)

func (e EventType) String() string {
	return [...]string{"EventUnkown", "IndexerConnected", "IndexerDisconnected", "ErrorRaised", "CommandHandled"}[e]
}

// Publisher is the write side of the bus, handed to components that only emit events.
type Publisher interface {
	Publish(eventType EventType, data interface{})
}

type EventBus struct {
	subscribers map[string][]chan interface{}
	mu          sync.RWMutex
}

var _ Publisher = (*EventBus)(nil)

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan interface{}),
	}
}

func (eb *EventBus) Subscribe(eventType EventType, ch chan interface{}) {
	if ch == nil {
		panic("channel == nil")
	}
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType.String()] = append(eb.subscribers[eventType.String()], ch)
}

// Publish never blocks: a subscriber whose buffer is full misses this event but stays subscribed.
func (eb *EventBus) Publish(eventType EventType, data interface{}) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.subscribers[eventType.String()] {
		select {
		case ch <- data:
		default:
			log.Debugf("Event %s dropped for a busy subscriber", eventType)
		}
	}
}

func (eb *EventBus) Unsubscribe(eventType EventType, ch chan interface{}) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscribers, ok := eb.subscribers[eventType.String()]
	if !ok {
		return
	}

	for i, subscriber := range subscribers {
		if subscriber == ch {
			eb.subscribers[eventType.String()] = append(subscribers[:i:i], subscribers[i+1:]...)
			break
		}
	}
	if len(eb.subscribers[eventType.String()]) == 0 {
		delete(eb.subscribers, eventType.String())
	}
}
