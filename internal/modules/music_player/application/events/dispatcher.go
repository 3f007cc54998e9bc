package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/sglre6355/sgrlink/internal/modules/music_player/domain"
)

// DefaultErrorBufferSize is the default buffer size of the handler error channel.
const DefaultErrorBufferSize = 64

// Handler receives dispatched events. A returned error is reported on the
// dispatcher's error channel and does not stop delivery.
type Handler func(ctx context.Context, event domain.Event) error

// Interceptor sees every event before the handlers. It may return an enriched
// event, or nil to drop it.
type Interceptor func(ctx context.Context, event domain.Event) domain.Event

// HandlerError describes a failed or panicking handler invocation.
type HandlerError struct {
	SubscriptionID uuid.UUID // uuid.Nil for the interceptor
	Event          domain.Event
	Err            error
}

func (e HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed on %s event: %v", e.SubscriptionID, e.Event.Kind(), e.Err)
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

type subscription struct {
	id      uuid.UUID
	kinds   map[domain.EventKind]bool // nil receives every kind
	handler Handler
}

// laneKey identifies an ordered delivery lane: one per guild, plus one per
// node for node-level events.
type laneKey struct {
	guildID snowflake.ID
	node    string
}

type lane struct {
	pending []domain.Event
}

// Dispatcher fans node events out to handlers. Events of one guild are delivered
// in publish order; different guilds are delivered concurrently.
type Dispatcher struct {
	subMu         sync.RWMutex
	subscriptions []subscription
	interceptor   Interceptor

	laneMu sync.Mutex
	idle   *sync.Cond
	lanes  map[laneKey]*lane
	active int
	closed bool

	errors chan HandlerError
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher creates a new Dispatcher with the given error buffer size.
func NewDispatcher(errorBufferSize int) *Dispatcher {
	if errorBufferSize <= 0 {
		errorBufferSize = DefaultErrorBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		lanes:  make(map[laneKey]*lane),
		errors: make(chan HandlerError, errorBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	d.idle = sync.NewCond(&d.laneMu)
	return d
}

// SetInterceptor installs fn as the interceptor. Only one interceptor is kept.
func (d *Dispatcher) SetInterceptor(fn Interceptor) {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.interceptor = fn
}

// Subscribe registers handler for the given kinds, or for every kind when none
// are given. The returned id can be passed to Unsubscribe.
func (d *Dispatcher) Subscribe(handler Handler, kinds ...domain.EventKind) uuid.UUID {
	sub := subscription{
		id:      uuid.New(),
		handler: handler,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[domain.EventKind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}

	d.subMu.Lock()
	defer d.subMu.Unlock()
	d.subscriptions = append(d.subscriptions, sub)
	return sub.id
}

// Unsubscribe removes a subscription. It returns false if id is unknown.
func (d *Dispatcher) Unsubscribe(id uuid.UUID) bool {
	d.subMu.Lock()
	defer d.subMu.Unlock()

	for i, sub := range d.subscriptions {
		if sub.id == id {
			d.subscriptions = append(d.subscriptions[:i:i], d.subscriptions[i+1:]...)
			return true
		}
	}
	return false
}

// Errors returns the channel handler failures are reported on.
// It is closed by Close.
func (d *Dispatcher) Errors() <-chan HandlerError {
	return d.errors
}

// Publish queues event on its lane. It never blocks on handlers.
func (d *Dispatcher) Publish(event domain.Event) {
	key := laneKey{guildID: event.Guild()}
	if key.guildID == 0 {
		key.node = event.Node()
	}

	d.laneMu.Lock()
	defer d.laneMu.Unlock()

	if d.closed {
		slog.Warn("attempted to publish to closed dispatcher", "type", event.Kind())
		return
	}

	l, ok := d.lanes[key]
	if ok {
		l.pending = append(l.pending, event)
		return
	}

	l = &lane{pending: []domain.Event{event}}
	d.lanes[key] = l
	d.active++
	go d.drain(key, l)
}

// Flush blocks until every published event has been delivered.
func (d *Dispatcher) Flush() {
	d.laneMu.Lock()
	defer d.laneMu.Unlock()
	for d.active > 0 {
		d.idle.Wait()
	}
}

// Close delivers the events already published, then stops the dispatcher and
// closes the error channel. Publishing after Close drops the event.
func (d *Dispatcher) Close() {
	d.laneMu.Lock()
	if d.closed {
		d.laneMu.Unlock()
		return
	}
	d.closed = true
	for d.active > 0 {
		d.idle.Wait()
	}
	d.laneMu.Unlock()

	d.cancel()
	close(d.errors)

	slog.Debug("event dispatcher closed")
}

func (d *Dispatcher) drain(key laneKey, l *lane) {
	for {
		d.laneMu.Lock()
		if len(l.pending) == 0 {
			delete(d.lanes, key)
			d.active--
			if d.active == 0 {
				d.idle.Broadcast()
			}
			d.laneMu.Unlock()
			return
		}
		event := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		d.laneMu.Unlock()

		d.deliver(event)
	}
}

func (d *Dispatcher) deliver(event domain.Event) {
	d.subMu.RLock()
	interceptor := d.interceptor
	subs := make([]subscription, len(d.subscriptions))
	copy(subs, d.subscriptions)
	d.subMu.RUnlock()

	if interceptor != nil {
		event = d.intercept(interceptor, event)
		if event == nil {
			return
		}
	}

	for _, sub := range subs {
		if sub.kinds != nil && !sub.kinds[event.Kind()] {
			continue
		}
		if err := d.invoke(sub.handler, event); err != nil {
			d.report(HandlerError{SubscriptionID: sub.id, Event: event, Err: err})
		}
	}
}

func (d *Dispatcher) intercept(fn Interceptor, event domain.Event) (out domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.report(HandlerError{Event: event, Err: fmt.Errorf("interceptor panic: %v", r)})
			out = event
		}
	}()
	return fn(d.ctx, event)
}

func (d *Dispatcher) invoke(h Handler, event domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(d.ctx, event)
}

// report is non-blocking: if the error buffer is full the error is only logged.
func (d *Dispatcher) report(herr HandlerError) {
	slog.Warn("event handler failed",
		"type", herr.Event.Kind(),
		"guild", herr.Event.Guild(),
		"subscription", herr.SubscriptionID,
		"error", herr.Err,
	)

	select {
	case d.errors <- herr:
	default:
		slog.Warn("handler error buffer full, dropping error", "type", herr.Event.Kind())
	}
}
