// Package store keeps local copies of server-owned collections consistent with
// CRUD responses and push events.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/metrics"
	"github.com/chklst/deploysync/internal/model"
	"github.com/chklst/deploysync/internal/relay"
)

// ErrNotFetched is returned by operations that need an authoritative copy
// before the first successful Fetch.
var ErrNotFetched = errors.New("store not fetched")

// Requester is the part of the request facade the stores use.
type Requester interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, in, out any) error
	Put(ctx context.Context, path string, in, out any) error
	Delete(ctx context.Context, path string) error
}

// Resource names one entity family and where it lives on the server.
type Resource struct {
	// Name labels logs, metrics and subscriptions.
	Name     string
	Plural   string
	Singular string
	Path     string
	Family   events.Family
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// Synchronizer is the cache for one collection family. The collection lock is
// never held across a request.
type Synchronizer[T model.Entity] struct {
	res     Resource
	req     Requester
	logger  *slog.Logger
	metrics *metrics.Metrics
	status  *tracker

	// sort orders a freshly fetched listing.
	sort func([]T)
	// merge combines a cached entry with its replacement.
	merge func(cached, incoming T) T

	mu      sync.RWMutex
	items   Collection[T]
	fetched bool

	subMu sync.Mutex
	subs  []*relay.Subscription
}

func NewSynchronizer[T model.Entity](res Resource, req Requester, opts Options) *Synchronizer[T] {
	logger := opts.logger().With("store", res.Name)
	return &Synchronizer[T]{
		res:     res,
		req:     req,
		logger:  logger,
		metrics: opts.Metrics,
		status:  newTracker(res.Name, logger, opts.Metrics),
	}
}

func (s *Synchronizer[T]) Name() string {
	return s.res.Name
}

// Fetch replaces the collection with the server listing. On failure the
// collection is left as it was.
func (s *Synchronizer[T]) Fetch(ctx context.Context) (err error) {
	done := s.status.begin("fetch")
	defer func() { done(err, "Failed to fetch "+s.res.Plural) }()

	var listing []T
	if err := s.req.Get(ctx, s.res.Path, &listing); err != nil {
		return fmt.Errorf("fetch %s: %w", s.res.Plural, err)
	}
	if s.sort != nil {
		s.sort(listing)
	}

	s.mu.Lock()
	s.items.Replace(listing)
	s.fetched = true
	n := s.items.Len()
	s.mu.Unlock()

	s.metrics.StoreSize(s.res.Name, n)
	return nil
}

// Create posts item and appends the server's copy. A response without an
// identity is returned but not cached.
func (s *Synchronizer[T]) Create(ctx context.Context, item T) (created T, err error) {
	done := s.status.begin("create")
	defer func() { done(err, "Failed to create "+s.res.Singular) }()

	if err := s.req.Post(ctx, s.res.Path, item, &created); err != nil {
		var zero T
		return zero, fmt.Errorf("create %s: %w", s.res.Singular, err)
	}
	s.change(func(c *Collection[T]) bool { return c.Append(created) })
	return created, nil
}

// Update sends a partial field set for id and replaces the cached entry with
// the server's copy. Nothing is added when id is not cached.
func (s *Synchronizer[T]) Update(ctx context.Context, id int64, patch any) (updated T, err error) {
	done := s.status.begin("update")
	defer func() { done(err, "Failed to update "+s.res.Singular) }()

	if err := s.req.Put(ctx, s.itemPath(id), patch, &updated); err != nil {
		var zero T
		return zero, fmt.Errorf("update %s %d: %w", s.res.Singular, id, err)
	}
	s.change(func(c *Collection[T]) bool { return s.replaceLocked(c, id, updated) })
	return updated, nil
}

func (s *Synchronizer[T]) Delete(ctx context.Context, id int64) (err error) {
	done := s.status.begin("delete")
	defer func() { done(err, "Failed to delete "+s.res.Singular) }()

	if err := s.req.Delete(ctx, s.itemPath(id)); err != nil {
		return fmt.Errorf("delete %s %d: %w", s.res.Singular, id, err)
	}
	s.change(func(c *Collection[T]) bool { return c.Remove(id) })
	return nil
}

// ApplyCreated inserts a pushed entity at the front. It is a no-op when the
// identity is missing or already cached.
func (s *Synchronizer[T]) ApplyCreated(item T) bool {
	return s.change(func(c *Collection[T]) bool { return c.Prepend(item) })
}

// ApplyUpdated replaces the cached entry in place; absent entries are ignored.
func (s *Synchronizer[T]) ApplyUpdated(item T) bool {
	id, ok := item.Identity()
	if !ok {
		return false
	}
	return s.change(func(c *Collection[T]) bool { return s.replaceLocked(c, id, item) })
}

func (s *Synchronizer[T]) ApplyDeleted(id int64) bool {
	return s.change(func(c *Collection[T]) bool { return c.Remove(id) })
}

// Apply reconciles one push event of this store's family.
func (s *Synchronizer[T]) Apply(ev events.Event) {
	if ev.Kind.Family() != s.res.Family {
		return
	}
	item, err := events.Payload[T](ev)
	if err != nil {
		s.logger.Warn("ignoring push event", "kind", ev.String(), "err", err)
		return
	}

	var applied bool
	switch ev.Kind.Action() {
	case events.ActionCreated:
		applied = s.ApplyCreated(item)
	case events.ActionUpdated:
		applied = s.ApplyUpdated(item)
	case events.ActionDeleted:
		if id, ok := item.Identity(); ok {
			applied = s.ApplyDeleted(id)
		}
	case events.ActionUnknown:
		return
	}
	s.logger.Debug("push event reconciled", "kind", ev.String(), "applied", applied)
}

// Attach subscribes the store to its family's events on r.
func (s *Synchronizer[T]) Attach(r *relay.Relay) {
	s.subscribe(r.Subscribe(s.res.Name, s.Apply, events.KindsOf(s.res.Family)...))
}

// Detach drops every subscription made by Attach.
func (s *Synchronizer[T]) Detach() {
	s.subMu.Lock()
	subs := s.subs
	s.subs = nil
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (s *Synchronizer[T]) subscribe(sub *relay.Subscription) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, sub)
}

// Items returns the cached entities in order. The slice is a copy; nested
// values are shared and must not be modified.
func (s *Synchronizer[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Items()
}

func (s *Synchronizer[T]) Get(id int64) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Get(id)
}

func (s *Synchronizer[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items.Len()
}

// Fetched reports whether a Fetch has succeeded, making the collection authoritative.
func (s *Synchronizer[T]) Fetched() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetched
}

// Loading reports whether any operation of the store is in flight.
func (s *Synchronizer[T]) Loading() bool {
	return s.status.loading()
}

// Err returns the message of the last failed operation, or "".
func (s *Synchronizer[T]) Err() string {
	return s.status.lastError()
}

func (s *Synchronizer[T]) OnStatus(fn func(Status)) {
	s.status.onStatus(fn)
}

// OnError registers fn to receive the message of every failed operation.
func (s *Synchronizer[T]) OnError(fn func(message string)) {
	s.status.onFailure(fn)
}

// modify rewrites the cached entry id with fn. fn reports whether it changed anything.
func (s *Synchronizer[T]) modify(id int64, fn func(T) (T, bool)) bool {
	return s.change(func(c *Collection[T]) bool {
		cached, ok := c.Get(id)
		if !ok {
			return false
		}
		next, changed := fn(cached)
		if !changed {
			return false
		}
		return c.Set(next)
	})
}

func (s *Synchronizer[T]) replaceLocked(c *Collection[T], id int64, incoming T) bool {
	cached, ok := c.Get(id)
	if !ok {
		return false
	}
	if s.merge != nil {
		incoming = s.merge(cached, incoming)
	}
	if incomingID, ok := incoming.Identity(); !ok || incomingID != id {
		return false
	}
	return c.Set(incoming)
}

func (s *Synchronizer[T]) change(fn func(*Collection[T]) bool) bool {
	s.mu.Lock()
	changed := fn(&s.items)
	n := s.items.Len()
	s.mu.Unlock()
	if changed {
		s.metrics.StoreSize(s.res.Name, n)
	}
	return changed
}

func (s *Synchronizer[T]) itemPath(id int64) string {
	return s.res.Path + "/" + strconv.FormatInt(id, 10)
}
