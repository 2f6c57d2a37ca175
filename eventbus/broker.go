package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config holds broker tuning knobs.
type Config struct {
	HeartbeatInterval time.Duration // default: 30s
	ReaperInterval    time.Duration // default: 5m
	IdleTimeout       time.Duration // default: 10m
	SendTimeout       time.Duration // bound on a stalled subscriber write, default: 1s
	BufferSize        int           // per-subscriber channel buffer, default: 16
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ReaperInterval:    5 * time.Minute,
		IdleTimeout:       10 * time.Minute,
		SendTimeout:       time.Second,
		BufferSize:        16,
	}
}

// Broker is an in-process publish/subscribe fan-out for invalidation events.
// It is an explicit service object: construct one at process start and pass
// it to anything that publishes or subscribes.
//
// The broker is single-process by design. In a horizontally scaled
// deployment a publish on one instance does not reach subscribers connected
// to another; clients cover that gap by polling the metadata registry.
// Delivery is best-effort with no replay buffer and no acknowledgement.
type Broker struct {
	config Config

	mu          sync.RWMutex
	subscribers map[string]*Subscriber

	// publishMu serializes fan-outs so that events published for the same
	// tenant reach each subscriber in publish order.
	publishMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBroker creates a broker and starts its heartbeat and reaper loops.
func NewBroker(config Config) *Broker {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.ReaperInterval <= 0 {
		config.ReaperInterval = 5 * time.Minute
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 10 * time.Minute
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = time.Second
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 16
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		config:      config,
		subscribers: make(map[string]*Subscriber),
		ctx:         ctx,
		cancel:      cancel,
	}

	b.wg.Add(2)
	go b.heartbeatLoop()
	go b.reaperLoop()

	return b
}

// Subscribe registers a new ACTIVE subscriber for the tenant and returns it.
func (b *Broker) Subscribe(tenantID, userID string) *Subscriber {
	now := time.Now()
	sub := &Subscriber{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		UserID:       userID,
		ConnectedAt:  now,
		ch:           make(chan Event, b.config.BufferSize),
		done:         make(chan struct{}),
		state:        StateConnecting,
		lastActivity: now,
	}
	sub.activate()

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()

	slog.Debug("subscriber registered", "subscriber_id", sub.ID, "tenant_id", tenantID)
	return sub
}

// Unsubscribe removes and closes a subscriber. It is idempotent and safe to
// call on disconnect, from the reaper, or both.
func (b *Broker) Unsubscribe(subscriberID string) {
	b.remove(subscriberID, StateClosed)
}

func (b *Broker) remove(subscriberID string, to State) {
	b.mu.Lock()
	sub, ok := b.subscribers[subscriberID]
	if ok {
		delete(b.subscribers, subscriberID)
	}
	b.mu.Unlock()

	if ok {
		sub.terminate(to)
	}
}

// Publish fans an event out synchronously to every ACTIVE subscriber of the
// tenant, in publish order per subscriber. One subscriber failing (stalled
// or gone) moves only that subscriber to ERRORED and unregisters it; the
// remaining subscribers still receive the event. Returns the number of
// successful deliveries.
func (b *Broker) Publish(tenantID string, eventType EventType, pattern string, metadata map[string]any) int {
	event := Event{
		Type:      eventType,
		Pattern:   pattern,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	delivered := 0
	for _, sub := range b.snapshot(tenantID) {
		if sub.send(event, b.config.SendTimeout) {
			delivered++
			continue
		}
		slog.Warn("subscriber delivery failed, dropping subscriber",
			"subscriber_id", sub.ID, "tenant_id", sub.TenantID)
		b.remove(sub.ID, StateErrored)
	}
	return delivered
}

// SubscriberCount returns the number of registered subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close stops the background loops and closes every subscriber.
func (b *Broker) Close() {
	b.cancel()
	b.wg.Wait()

	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.subscribers = make(map[string]*Subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.terminate(StateClosed)
	}
}

// snapshot returns the subscribers matching the tenant. An empty tenantID
// matches everyone (heartbeat).
func (b *Broker) snapshot(tenantID string) []*Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := make([]*Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if tenantID == "" || sub.TenantID == tenantID {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (b *Broker) heartbeatLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.heartbeat()
		}
	}
}

// heartbeat pushes a liveness event to every ACTIVE subscriber regardless of
// business activity. A subscriber that stops draining its channel stops
// accepting heartbeats, so its lastActivity stalls and the reaper picks it
// up.
func (b *Broker) heartbeat() {
	event := Event{Type: EventHeartbeat, Timestamp: time.Now().UTC()}

	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	for _, sub := range b.snapshot("") {
		if !sub.send(event, b.config.SendTimeout) {
			slog.Warn("heartbeat delivery failed, dropping subscriber", "subscriber_id", sub.ID)
			b.remove(sub.ID, StateErrored)
		}
	}
}

func (b *Broker) reaperLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.reap()
		}
	}
}

// reap closes and unregisters every subscriber with no delivered activity
// inside the idle window.
func (b *Broker) reap() {
	cutoff := time.Now().Add(-b.config.IdleTimeout)

	for _, sub := range b.snapshot("") {
		if sub.isIdle(cutoff) {
			slog.Info("reaping idle subscriber",
				"subscriber_id", sub.ID, "tenant_id", sub.TenantID,
				"last_activity", sub.LastActivity())
			b.remove(sub.ID, StateReaped)
		}
	}
}
