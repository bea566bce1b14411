package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/chklst/deploysync/internal/api"
)

type route func(in any) (any, error)

// fakeAPI answers requests from registered routes and records every call.
type fakeAPI struct {
	mu     sync.Mutex
	routes map[string]route
	calls  []call
}

type call struct {
	Method string
	Path   string
	Body   string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{routes: map[string]route{}}
}

func (f *fakeAPI) on(method, path string, fn route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *fakeAPI) reply(method, path string, resp any) {
	f.on(method, path, func(any) (any, error) { return resp, nil })
}

func (f *fakeAPI) fail(method, path string, status int) {
	f.on(method, path, func(any) (any, error) {
		return nil, &api.StatusError{Method: method, Path: path, Status: status}
	})
}

func (f *fakeAPI) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call{}, f.calls...)
}

func (f *fakeAPI) Get(ctx context.Context, path string, out any) error {
	return f.do(ctx, http.MethodGet, path, nil, out)
}

func (f *fakeAPI) Post(ctx context.Context, path string, in, out any) error {
	return f.do(ctx, http.MethodPost, path, in, out)
}

func (f *fakeAPI) Put(ctx context.Context, path string, in, out any) error {
	return f.do(ctx, http.MethodPut, path, in, out)
}

func (f *fakeAPI) Delete(ctx context.Context, path string) error {
	return f.do(ctx, http.MethodDelete, path, nil, nil)
}

func (f *fakeAPI) do(ctx context.Context, method, path string, in, out any) error {
	body := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = string(raw)
	}

	f.mu.Lock()
	fn := f.routes[method+" "+path]
	f.calls = append(f.calls, call{Method: method, Path: path, Body: body})
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if fn == nil {
		return &api.StatusError{Method: method, Path: path, Status: http.StatusNotFound}
	}
	resp, err := fn(in)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// statusLog collects OnStatus transitions.
type statusLog struct {
	mu      sync.Mutex
	entries []Status
}

func (l *statusLog) record(s Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, s)
}

func (l *statusLog) all() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Status{}, l.entries...)
}
