package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EventReceived("deployment_created")
	m.EventReceived("deployment_created")
	m.DecodeFailed()
	m.ReconnectScheduled()
	m.ConnectionState(2)
	m.StoreOp("deployments", "fetch", nil)
	m.StoreOp("deployments", "fetch", errors.New("down"))
	m.StoreSize("projects", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.eventsReceived.WithLabelValues("deployment_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodeFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("deployments", "fetch", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeOps.WithLabelValues("deployments", "fetch", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.storeSize.WithLabelValues("projects")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.EventReceived("x")
		m.DecodeFailed()
		m.ReconnectScheduled()
		m.ConnectionState(1)
		m.StoreOp("s", "op", nil)
		m.StoreSize("s", 1)
	})
}
