package store

import (
	"log/slog"
	"sync"

	"github.com/chklst/deploysync/internal/metrics"
)

// Status is one loading transition of a store operation. Every public
// operation reports exactly one Loading=true and one Loading=false status.
type Status struct {
	Store   string
	Op      string
	Loading bool
	Err     string
}

type tracker struct {
	store   string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	inflight  int
	err       string
	observers []func(Status)
	onError   []func(string)
}

func newTracker(store string, logger *slog.Logger, m *metrics.Metrics) *tracker {
	return &tracker{store: store, logger: logger, metrics: m}
}

// begin marks op as in flight and clears the last error. The returned func
// must be deferred; it records the outcome and reports message on failure.
func (t *tracker) begin(op string) func(err error, message string) {
	t.mu.Lock()
	t.inflight++
	t.err = ""
	observers := snapshot(t.observers)
	t.mu.Unlock()

	for _, fn := range observers {
		fn(Status{Store: t.store, Op: op, Loading: true})
	}

	return func(err error, message string) {
		t.mu.Lock()
		t.inflight--
		if err != nil {
			t.err = message
		}
		current := t.err
		observers := snapshot(t.observers)
		onError := snapshot(t.onError)
		t.mu.Unlock()

		t.metrics.StoreOp(t.store, op, err)
		if err != nil {
			t.logger.Error("store operation failed", "store", t.store, "op", op, "err", err)
		}
		for _, fn := range observers {
			fn(Status{Store: t.store, Op: op, Loading: false, Err: current})
		}
		if err != nil {
			for _, fn := range onError {
				fn(message)
			}
		}
	}
}

func (t *tracker) loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight > 0
}

func (t *tracker) lastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *tracker) onStatus(fn func(Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

func (t *tracker) onFailure(fn func(string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onError = append(t.onError, fn)
}

func snapshot[F any](fns []F) []F {
	if len(fns) == 0 {
		return nil
	}
	return append([]F{}, fns...)
}
