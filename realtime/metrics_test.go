package realtime

import (
	"testing"
	"time"

	"github.com/Thejuampi/realtime-client-go/realtime/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsTrackTransportActivity(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	harness := newTransportHarness(t, func(options *Options) { options.Metrics = metrics })

	require.NoError(t, harness.transport.Publish("orders", "created", 1))
	require.NoError(t, harness.transport.Publish("orders", "created", 2))
	harness.sync()
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.queueDepth))

	socket := harness.connect(t, "session-1")
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.queueDepth))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.framesSent.WithLabelValues(string(protocol.EventMessage))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.framesReceived.WithLabelValues(string(protocol.EventConnected))))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.stateTransitions.WithLabelValues("connected")))

	harness.transport.loop.post(func() { harness.transport.onSocketMessage(harness.transport.socketGen, []byte("{")) })
	harness.sync()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.decodeErrors))

	socket.drop()
	harness.sync()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.reconnects))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.stateTransitions.WithLabelValues("connecting")))

	harness.clock.Advance(200 * time.Millisecond)
	harness.sync()
	next := harness.dialer.next(t)
	next.failSends(assert.AnError)
	next.accept()
	next.serve(t, harness.codec, protocol.EventConnected, protocol.Connected{SessionID: "session-1"})
	harness.sync()
	require.NoError(t, harness.transport.Publish("orders", "created", 3))
	harness.sync()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.framesDropped.WithLabelValues(string(protocol.EventMessage))))

	count, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.Greater(t, count, 0)
}

func TestNilMetricsAreIgnored(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.frameSent(protocol.EventMessage)
		metrics.frameReceived(protocol.EventMessage)
		metrics.frameDropped(protocol.EventMessage)
		metrics.decodeError()
		metrics.reconnectScheduled()
		metrics.setQueueDepth(3)
		metrics.stateChanged(StateConnected)
	})
}

func TestNewMetricsWithoutRegisterer(t *testing.T) {
	metrics := NewMetrics(nil)
	metrics.reconnectScheduled()
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.reconnects))
}
