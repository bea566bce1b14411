package store

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chklst/deploysync/internal/api"
	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/relay"
)

type item struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

func (i item) Identity() (int64, bool) { return i.ID, i.ID > 0 }

var itemResource = Resource{
	Name:     "items",
	Plural:   "items",
	Singular: "item",
	Path:     "/items",
	Family:   events.FamilyDeployment,
}

func newItems(t *testing.T, fake *fakeAPI) *Synchronizer[item] {
	t.Helper()
	return NewSynchronizer[item](itemResource, fake, testOptions(t))
}

func fetched(t *testing.T, fake *fakeAPI, listing []item) *Synchronizer[item] {
	t.Helper()
	fake.reply(http.MethodGet, "/items", listing)
	s := newItems(t, fake)
	require.NoError(t, s.Fetch(context.Background()))
	return s
}

func ids(items []item) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestFetchThenPushedUpdateThenDuplicateCreate(t *testing.T) {
	fake := newFakeAPI()
	s := newItems(t, fake)
	assert.Empty(t, s.Items())
	assert.False(t, s.Fetched())

	fake.reply(http.MethodGet, "/items", []item{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}})
	require.NoError(t, s.Fetch(context.Background()))
	if diff := cmp.Diff([]item{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}, s.Items()); diff != "" {
		t.Fatalf("after fetch (-want +got):\n%s", diff)
	}
	assert.True(t, s.Fetched())

	s.Apply(mustEvent(t, events.KindDeploymentUpdated, item{ID: 2, Name: "B2"}))
	if diff := cmp.Diff([]item{{ID: 1, Name: "A"}, {ID: 2, Name: "B2"}}, s.Items()); diff != "" {
		t.Fatalf("after update event (-want +got):\n%s", diff)
	}

	s.Apply(mustEvent(t, events.KindDeploymentCreated, item{ID: 1, Name: "A"}))
	assert.Equal(t, 2, s.Len())
}

func TestFailedUpdateKeepsCollectionAndSetsError(t *testing.T) {
	fake := newFakeAPI()
	s := fetched(t, fake, []item{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}})
	s.ApplyUpdated(item{ID: 2, Name: "B2"})

	fake.fail(http.MethodPut, "/items/2", http.StatusInternalServerError)
	_, err := s.Update(context.Background(), 2, map[string]string{"name": "B3"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, api.StatusCode(err))

	if diff := cmp.Diff([]item{{ID: 1, Name: "A"}, {ID: 2, Name: "B2"}}, s.Items()); diff != "" {
		t.Fatalf("collection changed after failed update (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Failed to update item", s.Err())
}

func TestApplyCreatedIsIdempotent(t *testing.T) {
	s := fetched(t, newFakeAPI(), []item{{ID: 1, Name: "A"}})

	assert.True(t, s.ApplyCreated(item{ID: 5, Name: "E"}))
	first := s.Items()
	assert.False(t, s.ApplyCreated(item{ID: 5, Name: "E"}))
	assert.Equal(t, first, s.Items())
	assert.Equal(t, []int64{5, 1}, ids(s.Items()), "pushed creations go first")

	assert.False(t, s.ApplyCreated(item{Name: "unsaved"}))
	assert.Equal(t, 2, s.Len())
}

func TestUpdateAndDeleteNeverMaterialize(t *testing.T) {
	s := fetched(t, newFakeAPI(), []item{{ID: 1, Name: "A"}})

	assert.False(t, s.ApplyUpdated(item{ID: 9, Name: "ghost"}))
	assert.False(t, s.ApplyDeleted(9))
	s.Apply(mustEvent(t, events.KindDeploymentUpdated, item{ID: 8, Name: "ghost"}))

	assert.Equal(t, []int64{1}, ids(s.Items()))
}

func TestUpdatePreservesPosition(t *testing.T) {
	fake := newFakeAPI()
	listing := []item{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}, {ID: 4, Name: "d"}, {ID: 5, Name: "e"}}
	s := fetched(t, fake, listing)

	s.ApplyUpdated(item{ID: 3, Name: "c2"})
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(s.Items()))

	fake.reply(http.MethodPut, "/items/4", item{ID: 4, Name: "d2"})
	updated, err := s.Update(context.Background(), 4, map[string]string{"name": "d2"})
	require.NoError(t, err)
	assert.Equal(t, "d2", updated.Name)

	got := s.Items()
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, ids(got))
	assert.Equal(t, "c2", got[2].Name)
	assert.Equal(t, "d2", got[3].Name)
}

func TestUpdateResponseForUncachedIDIsDiscarded(t *testing.T) {
	fake := newFakeAPI()
	s := fetched(t, fake, []item{{ID: 1, Name: "A"}})
	fake.reply(http.MethodPut, "/items/7", item{ID: 7, Name: "G"})

	updated, err := s.Update(context.Background(), 7, map[string]string{"name": "G"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), updated.ID)
	assert.Equal(t, []int64{1}, ids(s.Items()))
}

func TestCreateAppendsOnlyCommittedEntities(t *testing.T) {
	fake := newFakeAPI()
	s := fetched(t, fake, []item{{ID: 1, Name: "A"}})

	fake.on(http.MethodPost, "/items", func(in any) (any, error) {
		return item{ID: 2, Name: in.(item).Name}, nil
	})
	created, err := s.Create(context.Background(), item{Name: "B"})
	require.NoError(t, err)
	assert.Equal(t, item{ID: 2, Name: "B"}, created)
	assert.Equal(t, []int64{1, 2}, ids(s.Items()), "created entities go last")

	s.Apply(mustEvent(t, events.KindDeploymentCreated, item{ID: 2, Name: "B"}))
	assert.Equal(t, []int64{1, 2}, ids(s.Items()), "own creation echoed by the server is ignored")

	fake.reply(http.MethodPost, "/items", item{Name: "pending"})
	pending, err := s.Create(context.Background(), item{Name: "pending"})
	require.NoError(t, err)
	assert.Equal(t, "pending", pending.Name)
	assert.Equal(t, 2, s.Len())
}

func TestDelete(t *testing.T) {
	fake := newFakeAPI()
	s := fetched(t, fake, []item{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}})
	fake.reply(http.MethodDelete, "/items/1", nil)
	fake.reply(http.MethodDelete, "/items/42", nil)

	require.NoError(t, s.Delete(context.Background(), 1))
	require.NoError(t, s.Delete(context.Background(), 42))
	assert.Equal(t, []int64{2}, ids(s.Items()))

	fake.fail(http.MethodDelete, "/items/2", http.StatusConflict)
	require.Error(t, s.Delete(context.Background(), 2))
	assert.Equal(t, []int64{2}, ids(s.Items()))
	assert.Equal(t, "Failed to delete item", s.Err())
}

func TestFetchFailureLeavesCollection(t *testing.T) {
	fake := newFakeAPI()
	s := fetched(t, fake, []item{{ID: 1, Name: "A"}})

	fake.fail(http.MethodGet, "/items", http.StatusBadGateway)
	require.Error(t, s.Fetch(context.Background()))
	assert.Equal(t, []int64{1}, ids(s.Items()))
	assert.Equal(t, "Failed to fetch items", s.Err())

	fake.reply(http.MethodGet, "/items", []item{{ID: 3, Name: "C"}, {Name: "unsaved"}, {ID: 3, Name: "dup"}})
	require.NoError(t, s.Fetch(context.Background()))
	assert.Empty(t, s.Err(), "a new operation clears the last error")
	assert.Equal(t, []item{{ID: 3, Name: "C"}}, s.Items())
}

func TestLoadingFlagSymmetry(t *testing.T) {
	fake := newFakeAPI()
	s := fetched(t, fake, []item{{ID: 1, Name: "A"}})
	var log statusLog
	s.OnStatus(log.record)
	var failures []string
	s.OnError(func(msg string) { failures = append(failures, msg) })

	fake.reply(http.MethodPost, "/items", item{ID: 2, Name: "B"})
	fake.fail(http.MethodPut, "/items/2", http.StatusBadRequest)
	fake.reply(http.MethodDelete, "/items/2", nil)

	ctx := context.Background()
	_, _ = s.Create(ctx, item{Name: "B"})
	_, _ = s.Update(ctx, 2, item{Name: "x"})
	_ = s.Delete(ctx, 2)
	_ = s.Fetch(ctx)

	entries := log.all()
	require.Len(t, entries, 8)
	for i := 0; i < len(entries); i += 2 {
		assert.True(t, entries[i].Loading, "entry %d", i)
		assert.False(t, entries[i+1].Loading, "entry %d", i+1)
		assert.Equal(t, entries[i].Op, entries[i+1].Op)
	}
	assert.Equal(t, "Failed to update item", entries[3].Err)
	assert.Equal(t, []string{"Failed to update item"}, failures)
	assert.False(t, s.Loading())
}

func TestLoadingWhileInFlight(t *testing.T) {
	fake := newFakeAPI()
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	fake.on(http.MethodGet, "/items", func(any) (any, error) {
		entered <- struct{}{}
		<-release
		return []item{{ID: 1, Name: "A"}}, nil
	})
	s := newItems(t, fake)

	errs := make(chan error, 2)
	go func() { errs <- s.Fetch(context.Background()) }()
	go func() { errs <- s.Fetch(context.Background()) }()
	<-entered
	<-entered
	assert.True(t, s.Loading())

	release <- struct{}{}
	require.NoError(t, <-errs)
	assert.True(t, s.Loading(), "one call finishing must not clear the other's flag")

	close(release)
	require.NoError(t, <-errs)
	assert.False(t, s.Loading())
}

func TestAttachReconcilesFamilyEvents(t *testing.T) {
	s := fetched(t, newFakeAPI(), []item{{ID: 1, Name: "A"}})
	r := relay.New(testOptions(t).Logger)
	s.Attach(r)

	r.Publish(mustEvent(t, events.KindDeploymentCreated, item{ID: 2, Name: "B"}))
	r.Publish(mustEvent(t, events.KindProjectCreated, item{ID: 3, Name: "other family"}))
	r.Publish(events.Event{Kind: events.KindDeploymentUpdated, Name: "deployment_updated", Data: []byte(`[1]`)})
	r.Publish(mustEvent(t, events.KindDeploymentDeleted, item{ID: 1}))
	assert.Equal(t, []int64{2}, ids(s.Items()))

	s.Detach()
	assert.Equal(t, 0, r.Len())
	r.Publish(mustEvent(t, events.KindDeploymentCreated, item{ID: 4, Name: "D"}))
	assert.Equal(t, []int64{2}, ids(s.Items()))
}

func TestCanceledContext(t *testing.T) {
	fake := newFakeAPI()
	fake.reply(http.MethodGet, "/items", []item{{ID: 1}})
	s := newItems(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := s.Fetch(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, s.Fetched())
}

func mustEvent(t *testing.T, kind events.Kind, payload any) events.Event {
	t.Helper()
	ev, err := events.New(kind, payload)
	require.NoError(t, err)
	return ev
}
