package events

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("event bus closed")

const defaultBufferSize = 64

type subscription struct {
	id      string
	types   map[EventType]struct{}
	handler EventHandler
	queue   chan Event
	done    chan struct{}
}

func (s *subscription) matches(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// MemoryBus delivers events in-process. Each subscriber has its own queue
// and goroutine, so a slow handler never blocks publishers; events for a
// full queue are dropped and logged.
type MemoryBus struct {
	mu         sync.RWMutex
	subs       map[string]*subscription
	closed     bool
	bufferSize int
	logger     hclog.Logger
	wg         sync.WaitGroup
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus(logger hclog.Logger) *MemoryBus {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &MemoryBus{
		subs:       make(map[string]*subscription),
		bufferSize: defaultBufferSize,
		logger:     logger,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	for _, s := range b.subs {
		if !s.matches(event.Type) {
			continue
		}
		select {
		case s.queue <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber", "subscription", s.id, "type", event.Type)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(handler EventHandler, types ...EventType) string {
	s := &subscription{
		id:      uuid.NewString(),
		types:   make(map[EventType]struct{}, len(types)),
		handler: handler,
		queue:   make(chan Event, b.bufferSize),
		done:    make(chan struct{}),
	}
	for _, t := range types {
		s.types[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.done)
		return s.id
	}
	b.subs[s.id] = s
	b.wg.Add(1)
	go b.run(s)
	return s.id
}

func (b *MemoryBus) run(s *subscription) {
	defer b.wg.Done()
	for {
		select {
		case e := <-s.queue:
			b.deliver(s, e)
		case <-s.done:
			// drain what was queued before the stop
			for {
				select {
				case e := <-s.queue:
					b.deliver(s, e)
				default:
					return
				}
			}
		}
	}
}

func (b *MemoryBus) deliver(s *subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "subscription", s.id, "type", e.Type, "panic", r)
		}
	}()
	s.handler(context.Background(), e)
}

func (b *MemoryBus) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if ok {
		close(s.done)
	}
}

func (b *MemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, s := range subs {
		close(s.done)
	}
	b.wg.Wait()
}
