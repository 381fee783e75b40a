package realtime

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 16

// Dispatcher fans messages out to in-process subscribers of a channel. Slow subscribers drop
// messages instead of blocking publishers; clients recover by refetching the counter.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type subscriber struct {
	id     int64
	stream chan Message
}

// NewDispatcher constructs a dispatcher whose subscriber streams buffer bufferSize messages.
func NewDispatcher(bufferSize int) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  bufferSize,
		clock:       time.Now,
	}
}

// Subscribe registers a stream for channel until ctx ends or the returned cleanup is called.
func (d *Dispatcher) Subscribe(ctx context.Context, channel string) (<-chan Message, func()) {
	if channel == "" {
		ch := make(chan Message)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Message, d.bufferSize),
	}
	d.registerSubscriber(channel, sub)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(channel, sub.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Broadcast serializes event and publishes it to local subscribers.
func (d *Dispatcher) Broadcast(_ context.Context, event Event) error {
	message, err := NewMessage(event, d.clock())
	if err != nil {
		return err
	}
	d.Publish(message)
	return nil
}

// Publish delivers an already serialized message to local subscribers.
func (d *Dispatcher) Publish(message Message) {
	if message.Channel == "" || message.Event == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.Channel]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		copies = append(copies, sub)
	}
	d.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- message:
		default:
		}
	}
}

// subscriberCount returns the number of live subscriptions on channel.
func (d *Dispatcher) subscriberCount(channel string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[channel])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) registerSubscriber(channel string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[channel]; !ok {
		d.subscribers[channel] = make(map[int64]*subscriber)
	}
	d.subscribers[channel][sub.id] = sub
}

func (d *Dispatcher) unregisterSubscriber(channel string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[channel]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, channel)
		}
	}
	d.mu.Unlock()
}
