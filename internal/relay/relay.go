// Package relay fans decoded push events out to independent subscribers.
package relay

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/chklst/deploysync/internal/events"
)

// Handler receives one event. It runs on the publisher's goroutine.
type Handler func(events.Event)

// Relay is an in-process publish point. The subscriber list is copied on
// write so Publish never holds the lock while handlers run.
type Relay struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs []*Subscription
}

// Subscription is one registered handler.
type Subscription struct {
	ID    ulid.ULID
	Name  string
	Kinds []events.Kind

	relay   *Relay
	filter  map[events.Kind]struct{}
	handler Handler
}

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Kinds []string `json:"kinds"`
}

func New(logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{logger: logger}
}

// Subscribe registers handler for the given kinds, or for every kind when none
// are given. Events published before this call are never replayed.
func (r *Relay) Subscribe(name string, handler Handler, kinds ...events.Kind) *Subscription {
	sub := &Subscription{
		ID:      ulid.Make(),
		Name:    name,
		Kinds:   slices.Clone(kinds),
		relay:   r,
		handler: handler,
	}
	if len(kinds) > 0 {
		sub.filter = make(map[events.Kind]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.filter[kind] = struct{}{}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next := slices.Clone(r.subs)
	r.subs = append(next, sub)
	return sub
}

// Unsubscribe removes the subscription. Calling it twice is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.relay == nil {
		return
	}
	r := s.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.subs, s)
	if i < 0 {
		return
	}
	next := slices.Clone(r.subs)
	r.subs = slices.Delete(next, i, i+1)
}

func (s *Subscription) wants(kind events.Kind) bool {
	if s.filter == nil {
		return true
	}
	_, ok := s.filter[kind]
	return ok
}

// Publish delivers ev once to every matching subscriber and returns how many
// received it. A panicking handler is logged and does not stop delivery.
func (r *Relay) Publish(ev events.Event) int {
	r.mu.Lock()
	subs := r.subs
	r.mu.Unlock()

	delivered := 0
	for _, sub := range subs {
		if !sub.wants(ev.Kind) {
			continue
		}
		if r.deliver(sub, ev) {
			delivered++
		}
	}
	return delivered
}

func (r *Relay) deliver(sub *Subscription, ev events.Event) (ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("event handler panicked", "subscriber", sub.Name, "kind", ev.String(), "panic", fmt.Sprint(recovered))
			ok = false
		}
	}()
	sub.handler(ev)
	return true
}

// Subscriptions lists current subscriptions in registration order.
func (r *Relay) Subscriptions() []SubscriptionInfo {
	r.mu.Lock()
	subs := r.subs
	r.mu.Unlock()

	out := make([]SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		kinds := make([]string, 0, len(sub.Kinds))
		for _, kind := range sub.Kinds {
			kinds = append(kinds, kind.String())
		}
		out = append(out, SubscriptionInfo{ID: sub.ID.String(), Name: sub.Name, Kinds: kinds})
	}
	return out
}

func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}
