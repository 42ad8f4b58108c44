package events

import (
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/robertov8/gspeech/internal/metrics"
)

const (
	dropNoSubscriber = "no_subscriber"
	dropBufferFull   = "buffer_full"
)

// Publisher is what producers depend on. Publish never blocks and never
// fails; it returns the number of subscribers that received the message.
type Publisher interface {
	Publish(msg Message) int
}

// Bus is an at-most-once broadcast topic with zero or more subscribers.
// A message published while nobody listens, or to a subscriber whose
// buffer is full, is dropped for that subscriber and counted.
type Bus struct {
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
	mu     sync.RWMutex

	published atomic.Uint64
	dropped   atomic.Uint64

	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Subscription receives messages from a Bus until closed
type Subscription struct {
	id   uint64
	ch   chan Message
	bus  *Bus
	once sync.Once
}

// BusStats represents bus statistics
type BusStats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// NewBus creates a bus whose subscribers each buffer up to buffer messages
func NewBus(buffer int, m *metrics.Metrics, logger *slog.Logger) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bus{
		subs:    make(map[uint64]*Subscription),
		buffer:  buffer,
		metrics: m,
		logger:  logger,
	}
}

// Subscribe registers a new subscriber. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{
		ch:  make(chan Message, b.buffer),
		bus: b,
	}
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}

	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.reportSubscribers()

	return sub
}

// Publish delivers msg to every subscriber without blocking
func (b *Bus) Publish(msg Message) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	b.published.Add(1)
	if b.metrics != nil {
		b.metrics.RecordMessagePublished(string(msg.Type))
	}

	if len(b.subs) == 0 || b.closed {
		b.drop(msg, dropNoSubscriber)
		return 0
	}

	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			b.drop(msg, dropBufferFull)
		}
	}
	return delivered
}

func (b *Bus) drop(msg Message, reason string) {
	b.dropped.Add(1)
	if b.metrics != nil {
		b.metrics.RecordMessageDropped(string(msg.Type), reason)
	}
	b.logger.Debug("Message dropped",
		slog.String("type", string(msg.Type)),
		slog.String("reason", reason),
		slog.Uint64("generation", msg.Generation))
}

// Stats returns current bus statistics
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BusStats{
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: len(b.subs),
	}
}

// Close detaches and closes every subscription
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
	b.reportSubscribers()
}

// reportSubscribers must be called with b.mu held
func (b *Bus) reportSubscribers() {
	if b.metrics != nil {
		b.metrics.SetSubscribers(len(b.subs))
	}
}

// C returns the delivery channel. It is closed by Close or Bus.Close.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close detaches the subscription from its bus
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s.id)
	s.bus.reportSubscribers()
	s.once.Do(func() { close(s.ch) })
}
