// Package session wires the push channel, the relay and the cache stores
// into one client.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/chklst/deploysync/internal/api"
	"github.com/chklst/deploysync/internal/config"
	"github.com/chklst/deploysync/internal/metrics"
	"github.com/chklst/deploysync/internal/relay"
	"github.com/chklst/deploysync/internal/store"
	"github.com/chklst/deploysync/internal/toast"
	"github.com/chklst/deploysync/internal/transport"
)

// Session owns one synchronized client. Stores are fetched once on Start and
// then kept current by push events.
type Session struct {
	Client      *api.Client
	Channel     *transport.Channel
	Relay       *relay.Relay
	Deployments *store.Deployments
	Projects    *store.Projects
	Library     *store.Library
	Settings    *store.Settings
	Toasts      *toast.Notifier
	Metrics     *metrics.Metrics

	logger   *slog.Logger
	resync   bool
	limiter  *rate.Limiter
	resyncCh chan struct{}

	mu        sync.Mutex
	connected bool
	attached  bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// New builds a session from cfg. reg may be nil to skip metrics registration.
func New(cfg config.Config, logger *slog.Logger, reg prometheus.Registerer) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint, err := transport.Endpoint(cfg.Origin, cfg.PushPath)
	if err != nil {
		return nil, fmt.Errorf("push endpoint: %w", err)
	}

	m := metrics.New(reg)
	client := api.NewClient(
		cfg.APIBaseURL(),
		api.WithToken(cfg.Token),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(logger),
	)
	opts := store.Options{Logger: logger, Metrics: m}
	bus := relay.New(logger)

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	s := &Session{
		Client:      client,
		Relay:       bus,
		Deployments: store.NewDeployments(client, opts),
		Projects:    store.NewProjects(client, opts),
		Library:     store.NewLibrary(client, opts),
		Settings:    store.NewSettings(client, opts),
		Toasts:      toast.New(cfg.ToastDuration, logger),
		Metrics:     m,
		logger:      logger,
		resync:      cfg.ResyncOnReconnect,
		resyncCh:    make(chan struct{}, 1),
	}
	if cfg.ResyncInterval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(cfg.ResyncInterval), 1)
	} else {
		s.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	s.Channel = transport.NewChannel(endpoint, bus, logger,
		transport.WithReconnectDelay(cfg.ReconnectDelay),
		transport.WithPingInterval(cfg.PingInterval),
		transport.WithHeader(header),
		transport.WithMetrics(m),
	)
	s.Channel.OnStateChange(s.onState)

	s.attachStores()

	s.Deployments.OnError(s.toastError)
	s.Projects.OnError(s.toastError)
	s.Library.OnError(s.toastError)
	s.Settings.OnError(s.toastError)
	return s, nil
}

// Start fetches every store, opens the push channel and starts the resync
// loop. A failed fetch is reported but does not keep the channel closed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	if !s.attached {
		s.attachStores()
	}
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.resyncLoop(loopCtx)
	}()

	err := s.FetchAll(ctx)
	s.Channel.Connect()
	return err
}

// FetchAll refreshes every store concurrently and returns the first failure.
func (s *Session) FetchAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.Deployments.Fetch(ctx) })
	g.Go(func() error { return s.Projects.Fetch(ctx) })
	g.Go(func() error { return s.Library.Fetch(ctx) })
	g.Go(func() error { return s.Settings.Fetch(ctx) })
	return g.Wait()
}

// Stop closes the channel and waits for the resync loop. Stores keep their
// contents; subscriptions are dropped until the next Start.
func (s *Session) Stop() {
	s.Channel.Disconnect()

	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	if s.attached {
		s.detachStores()
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// attachStores subscribes every store to the relay. Callers hold mu,
// except New which runs before the session is shared.
func (s *Session) attachStores() {
	s.Deployments.Attach(s.Relay)
	s.Projects.Attach(s.Relay)
	s.Library.Attach(s.Relay)
	s.Settings.Attach(s.Relay)
	s.attached = true
}

func (s *Session) detachStores() {
	s.Deployments.Detach()
	s.Projects.Detach()
	s.Library.Detach()
	s.Settings.Detach()
	s.attached = false
}

// Run starts the session and blocks until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		s.logger.Warn("initial fetch failed", "err", err)
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

// TriggerResync requests a FetchAll. Requests made while one is pending coalesce.
func (s *Session) TriggerResync() {
	select {
	case s.resyncCh <- struct{}{}:
	default:
	}
}

func (s *Session) onState(state transport.State) {
	if state != transport.StateConnected {
		return
	}
	s.mu.Lock()
	reconnected := s.connected
	s.connected = true
	s.mu.Unlock()

	if reconnected && s.resync {
		s.logger.Info("push channel re-established, resynchronizing")
		s.TriggerResync()
	}
}

func (s *Session) resyncLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resyncCh:
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.FetchAll(ctx); err != nil {
			s.logger.Warn("resync failed", "err", err)
		}
	}
}

func (s *Session) toastError(message string) {
	s.Toasts.Error(message)
}
