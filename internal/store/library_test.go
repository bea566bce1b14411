package store

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chklst/deploysync/internal/events"
	"github.com/chklst/deploysync/internal/model"
)

func TestLibraryStartsEmptyAndNeverNull(t *testing.T) {
	l := NewLibrary(newFakeAPI(), testOptions(t))
	presets := l.Value()
	assert.NotNil(t, presets.Developers)
	assert.NotNil(t, presets.Environments)

	raw, err := json.Marshal(presets)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "null")
}

func TestLibraryAddRemoveCommitsOnSuccess(t *testing.T) {
	fake := newFakeAPI()
	fake.reply(http.MethodGet, "/library", model.LibraryPresets{ID: 1, Developers: []string{"asha"}})
	fake.on(http.MethodPut, "/library", func(in any) (any, error) { return in, nil })
	l := NewLibrary(fake, testOptions(t))
	ctx := context.Background()
	require.NoError(t, l.Fetch(ctx))

	require.NoError(t, l.AddDeveloper(ctx, "ravi"))
	require.NoError(t, l.AddDeveloper(ctx, "ravi"))
	require.NoError(t, l.AddBuildServer(ctx, "build-01"))
	require.NoError(t, l.AddDeployServer(ctx, "app-01"))
	require.NoError(t, l.AddEnvironment(ctx, " uat "))
	require.NoError(t, l.RemoveDeveloper(ctx, "asha"))
	require.NoError(t, l.RemoveEnvironment(ctx, "prod"))

	presets := l.Value()
	assert.Equal(t, []string{"ravi"}, presets.Developers)
	assert.Equal(t, []string{"build-01"}, presets.BuildServers)
	assert.Equal(t, []string{"app-01"}, presets.DeployServers)
	assert.Equal(t, []string{"uat"}, presets.Environments)

	puts := 0
	for _, c := range fake.Calls() {
		if c.Method == http.MethodPut {
			puts++
		}
	}
	assert.Equal(t, 7, puts, "every edit is saved, including ones that change nothing")
}

func TestLibraryNoOpEditReportsOneLoadingCycle(t *testing.T) {
	fake := newFakeAPI()
	fake.reply(http.MethodGet, "/library", model.LibraryPresets{ID: 1, Developers: []string{"asha"}})
	fake.on(http.MethodPut, "/library", func(in any) (any, error) { return in, nil })
	l := NewLibrary(fake, testOptions(t))
	ctx := context.Background()
	require.NoError(t, l.Fetch(ctx))

	var log statusLog
	l.OnStatus(log.record)
	require.NoError(t, l.AddDeveloper(ctx, "asha"))
	require.NoError(t, l.RemoveEnvironment(ctx, "prod"))

	entries := log.all()
	require.Len(t, entries, 4)
	for i := 0; i < len(entries); i += 2 {
		assert.True(t, entries[i].Loading)
		assert.False(t, entries[i+1].Loading)
		assert.Equal(t, "save", entries[i].Op)
	}
	assert.Equal(t, []string{"asha"}, l.Value().Developers)
	assert.False(t, l.Loading())
}

func TestLibraryFetchReplacesCachedPresets(t *testing.T) {
	fake := newFakeAPI()
	fake.reply(http.MethodGet, "/library", model.LibraryPresets{ID: 1, Developers: []string{"asha"}, Environments: []string{"prod"}})
	l := NewLibrary(fake, testOptions(t))
	ctx := context.Background()
	require.NoError(t, l.Fetch(ctx))

	fake.on(http.MethodGet, "/library", func(any) (any, error) {
		return json.RawMessage(`{"id":1,"developers":["ravi"]}`), nil
	})
	require.NoError(t, l.Fetch(ctx))
	assert.Equal(t, []string{"ravi"}, l.Value().Developers)
	assert.Empty(t, l.Value().Environments, "fields missing from the reply are not carried over")
	assert.NotNil(t, l.Value().Environments)

	fake.on(http.MethodGet, "/library", func(any) (any, error) { return json.RawMessage(`null`), nil })
	require.NoError(t, l.Fetch(ctx))
	assert.Equal(t, model.LibraryPresets{}.Normalize(), l.Value())
}

func TestLibraryFailedSaveLeavesPresets(t *testing.T) {
	fake := newFakeAPI()
	fake.reply(http.MethodGet, "/library", model.LibraryPresets{ID: 1, BuildServers: []string{"build-01"}})
	fake.fail(http.MethodPut, "/library", http.StatusInternalServerError)
	l := NewLibrary(fake, testOptions(t))
	ctx := context.Background()
	require.NoError(t, l.Fetch(ctx))

	require.Error(t, l.AddBuildServer(ctx, "build-02"))
	require.Error(t, l.RemoveBuildServer(ctx, "build-01"))
	assert.Equal(t, []string{"build-01"}, l.Value().BuildServers)
	assert.Equal(t, "Failed to save presets", l.Err())
}

func TestLibraryUpdatedEventNeedsFetch(t *testing.T) {
	fake := newFakeAPI()
	fake.reply(http.MethodGet, "/library", model.LibraryPresets{ID: 1})
	l := NewLibrary(fake, testOptions(t))

	pushed := mustEvent(t, events.KindLibraryUpdated, model.LibraryPresets{ID: 1, Environments: []string{"prod"}})
	l.Apply(pushed)
	assert.Empty(t, l.Value().Environments)

	require.NoError(t, l.Fetch(context.Background()))
	l.Apply(pushed)
	assert.Equal(t, []string{"prod"}, l.Value().Environments)
	assert.NotNil(t, l.Value().Developers)
}

func TestLibraryValueIsACopy(t *testing.T) {
	fake := newFakeAPI()
	fake.reply(http.MethodGet, "/library", model.LibraryPresets{ID: 1, Developers: []string{"asha"}})
	l := NewLibrary(fake, testOptions(t))
	require.NoError(t, l.Fetch(context.Background()))

	presets := l.Value()
	presets.Developers[0] = "changed"
	assert.Equal(t, []string{"asha"}, l.Value().Developers)
}
