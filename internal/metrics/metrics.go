// Package metrics holds the prometheus collectors for push channel and store activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "deploysync"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	eventsReceived  *prometheus.CounterVec
	decodeFailures  prometheus.Counter
	reconnects      prometheus.Counter
	connectionState prometheus.Gauge
	storeOps        *prometheus.CounterVec
	storeSize       *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "events_received",
			Help:      "Number of push events decoded, by kind",
		}, []string{
			"kind",
		}),
		decodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "decode_failures",
			Help:      "Number of push frames discarded because they could not be decoded",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "reconnects_scheduled",
			Help:      "Number of reconnection attempts scheduled after a lost connection",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "connection_state",
			Help:      "Push connection state: 0 disconnected, 1 connecting, 2 connected",
		}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations",
			Help:      "Number of cache store operations, by store, operation and result",
		}, []string{
			"store",
			"op",
			"result",
		}),
		storeSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "entries",
			Help:      "Number of cached entries per store",
		}, []string{
			"store",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.eventsReceived, m.decodeFailures, m.reconnects, m.connectionState, m.storeOps, m.storeSize)
	}
	return m
}

func (m *Metrics) EventReceived(kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.decodeFailures.Inc()
}

func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) ConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

// StoreOp records one finished store operation.
func (m *Metrics) StoreOp(store, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOps.WithLabelValues(store, op, result).Inc()
}

func (m *Metrics) StoreSize(store string, n int) {
	if m == nil {
		return
	}
	m.storeSize.WithLabelValues(store).Set(float64(n))
}
