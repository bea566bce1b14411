package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/relay"
)

// Document caches a singleton resource such as the library presets or the
// application settings.
type Document[T any] struct {
	res        Resource
	req        Requester
	logger     *slog.Logger
	status     *tracker
	saveMethod string

	// normalize is applied to every value before it is cached.
	normalize func(T) T
	// clone copies a value so readers never share mutable state with the cache.
	clone func(T) T
	// resetOnEmpty makes an empty fetch response restore the initial value
	// instead of keeping the cached one.
	resetOnEmpty bool

	initial T

	mu      sync.RWMutex
	value   T
	fetched bool

	subMu sync.Mutex
	sub   *relay.Subscription
}

func newDocument[T any](res Resource, initial T, saveMethod string, req Requester, opts Options) *Document[T] {
	logger := opts.logger().With("store", res.Name)
	return &Document[T]{
		res:        res,
		req:        req,
		logger:     logger,
		status:     newTracker(res.Name, logger, opts.Metrics),
		saveMethod: saveMethod,
		value:      initial,
		initial:    initial,
	}
}

// Fetch loads the document and replaces the cached value with the response.
// An empty or null response keeps the current value, or restores the initial
// one when resetOnEmpty is set.
func (d *Document[T]) Fetch(ctx context.Context) (err error) {
	done := d.status.begin("fetch")
	defer func() { done(err, "Failed to fetch "+d.res.Plural) }()

	var out *T
	if err := d.req.Get(ctx, d.res.Path, &out); err != nil {
		return fmt.Errorf("fetch %s: %w", d.res.Plural, err)
	}

	d.mu.Lock()
	switch {
	case out != nil:
		d.value = d.prepare(*out)
	case d.resetOnEmpty:
		d.value = d.prepare(d.copy(d.initial))
	}
	d.fetched = true
	d.mu.Unlock()
	return nil
}

// Save sends next as the whole document and caches the server's reply, or
// next itself when the reply is empty. On failure the cached value is kept.
func (d *Document[T]) Save(ctx context.Context, next T) (saved T, err error) {
	done := d.status.begin("save")
	defer func() { done(err, "Failed to save "+d.res.Singular) }()

	out := d.copy(next)
	var reqErr error
	switch d.saveMethod {
	case http.MethodPost:
		reqErr = d.req.Post(ctx, d.res.Path, next, &out)
	default:
		reqErr = d.req.Put(ctx, d.res.Path, next, &out)
	}
	if reqErr != nil {
		var zero T
		return zero, fmt.Errorf("save %s: %w", d.res.Singular, reqErr)
	}

	out = d.prepare(out)
	d.mu.Lock()
	d.value = out
	d.mu.Unlock()
	return d.copy(out), nil
}

// ApplyUpdated replaces the cached value with a pushed one. Pushes that arrive
// before the first Fetch are ignored.
func (d *Document[T]) ApplyUpdated(value T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.fetched {
		return false
	}
	d.value = d.prepare(value)
	return true
}

func (d *Document[T]) Apply(ev events.Event) {
	if ev.Kind.Family() != d.res.Family || ev.Kind.Action() != events.ActionUpdated {
		return
	}
	value, err := events.Payload[T](ev)
	if err != nil {
		d.logger.Warn("ignoring push event", "kind", ev.String(), "err", err)
		return
	}
	applied := d.ApplyUpdated(value)
	d.logger.Debug("push event reconciled", "kind", ev.String(), "applied", applied)
}

func (d *Document[T]) Attach(r *relay.Relay) {
	sub := r.Subscribe(d.res.Name, d.Apply, events.For(d.res.Family, events.ActionUpdated))
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if d.sub != nil {
		d.sub.Unsubscribe()
	}
	d.sub = sub
}

func (d *Document[T]) Detach() {
	d.subMu.Lock()
	sub := d.sub
	d.sub = nil
	d.subMu.Unlock()
	sub.Unsubscribe()
}

func (d *Document[T]) Name() string {
	return d.res.Name
}

// Value returns a copy of the cached document.
func (d *Document[T]) Value() T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.copy(d.value)
}

func (d *Document[T]) Fetched() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.fetched
}

func (d *Document[T]) Loading() bool {
	return d.status.loading()
}

func (d *Document[T]) Err() string {
	return d.status.lastError()
}

func (d *Document[T]) OnStatus(fn func(Status)) {
	d.status.onStatus(fn)
}

func (d *Document[T]) OnError(fn func(message string)) {
	d.status.onFailure(fn)
}

// set changes the cached value locally without contacting the server.
func (d *Document[T]) set(fn func(*T)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := d.copy(d.value)
	fn(&next)
	d.value = d.prepare(next)
}

func (d *Document[T]) prepare(value T) T {
	if d.normalize != nil {
		value = d.normalize(value)
	}
	return value
}

func (d *Document[T]) copy(value T) T {
	if d.clone != nil {
		return d.clone(value)
	}
	return value
}
