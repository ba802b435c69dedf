// Package realtime fans committed entity changes out to in-process
// subscribers and Server-Sent Events clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/staykeep/internal/entity"
	"github.com/starford/staykeep/internal/models"
	"github.com/starford/staykeep/internal/scope"
)

// Event is one message on the stream. Table is empty for events that are
// not tied to a table; those reach every subscriber. PropertyID is the
// property the event belongs to, if any.
type Event struct {
	Name       string
	Table      string
	PropertyID *string
	Data       any
}

// ChangeEvent wraps a committed change as a stream event. A property row
// belongs to itself.
func ChangeEvent(c entity.Change) Event {
	pid := c.PropertyID
	if c.Table == models.TableProperties {
		id := c.ID
		pid = &id
	}
	return Event{Name: c.EventName(), Table: c.Table, PropertyID: pid, Data: c}
}

type subscriber struct {
	ch     chan Event
	tables map[string]struct{}
	access scope.Restriction
}

func (s *subscriber) wants(e Event) bool {
	if !s.access.Allows(e.PropertyID) {
		return false
	}
	if len(s.tables) == 0 || e.Table == "" {
		return true
	}
	_, ok := s.tables[e.Table]
	return ok
}

type accessKey struct{}

// WithAccess limits the SSE stream served for ctx to events of the given
// properties.
func WithAccess(ctx context.Context, acc scope.Restriction) context.Context {
	return context.WithValue(ctx, accessKey{}, acc)
}

func accessFrom(ctx context.Context) scope.Restriction {
	acc, _ := ctx.Value(accessKey{}).(scope.Restriction)
	return acc
}

// Broker manages subscribers and broadcasts events.
//
// A single internal loop owns the subscriber set. Public methods talk to it
// through channels, so no mutexes are required.
type Broker struct {
	keepAlive time.Duration
	onDrop    func(Event)

	subscribeCh   chan *subscriber
	unsubscribeCh chan chan Event
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithKeepAlive sets the interval of SSE comment frames.
func WithKeepAlive(d time.Duration) BrokerOption {
	return func(b *Broker) { b.keepAlive = d }
}

// WithDropHook registers fn to run when a slow subscriber misses an event.
// fn runs on the broker loop and must not block.
func WithDropHook(fn func(Event)) BrokerOption {
	return func(b *Broker) { b.onDrop = fn }
}

// NewBroker starts a broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		keepAlive:     25 * time.Second,
		subscribeCh:   make(chan *subscriber),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan Event]*subscriber)

	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case s := <-b.subscribeCh:
			subs[s.ch] = s

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case e := <-b.publishCh:
			for ch, s := range subs {
				if !s.wants(e) {
					continue
				}
				select {
				case ch <- e:
				default:
					// Subscriber buffer full; skip to avoid blocking the loop.
					if b.onDrop != nil {
						b.onDrop(e)
					}
				}
			}

		case resp := <-b.countReqCh:
			resp <- len(subs)
		}
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Join registers a subscriber for tables (all when empty).
func (b *Broker) Join(tables ...string) chan Event {
	return b.JoinRestricted(nil, tables...)
}

// JoinRestricted is Join for a subscriber that may only see events of the
// properties acc allows.
func (b *Broker) JoinRestricted(acc scope.Restriction, tables ...string) chan Event {
	s := &subscriber{ch: make(chan Event, 64), access: acc}
	if len(tables) > 0 {
		s.tables = make(map[string]struct{}, len(tables))
		for _, t := range tables {
			s.tables[t] = struct{}{}
		}
	}
	if b.closed.Load() {
		close(s.ch)
		return s.ch
	}
	select {
	case b.subscribeCh <- s:
	case <-b.stopped:
		close(s.ch)
	}
	return s.ch
}

// Leave removes a subscriber and closes its channel.
func (b *Broker) Leave(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of subscribers.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues an event for broadcast.
func (b *Broker) Publish(e Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- e:
	case <-b.stopped:
	}
}

// PublishChange is a store change hook.
func (b *Broker) PublishChange(c entity.Change) {
	b.Publish(ChangeEvent(c))
}

var _ entity.Feed = (*Broker)(nil)

// Subscribe implements entity.Feed for in-process consumers.
func (b *Broker) Subscribe(ctx context.Context, tables ...string) (<-chan entity.Change, error) {
	if b.closed.Load() {
		return nil, fmt.Errorf("realtime: broker closed")
	}
	in := b.Join(tables...)
	out := make(chan entity.Change, 16)
	go func() {
		defer close(out)
		defer b.Leave(in)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-in:
				if !ok {
					return
				}
				c, isChange := e.Data.(entity.Change)
				if !isChange {
					continue
				}
				select {
				case out <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// ServeHTTP is the SSE endpoint. The optional "tables" query parameter is a
// comma-separated table filter. A restriction set with WithAccess on the
// request context narrows the stream further.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var tables []string
	if raw := r.URL.Query().Get("tables"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tables = append(tables, t)
			}
		}
	}

	ch := b.JoinRestricted(accessFrom(r.Context()), tables...)
	defer b.Leave(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case e, ok := <-ch:
			if !ok {
				return
			}
			frame, err := Encode(e)
			if err != nil {
				continue
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}

// Encode renders e as an SSE frame.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, payload)), nil
}
