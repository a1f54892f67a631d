package congestion

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"crperf-go/metrics"
)

var noECN logging.ECN

func fillWindow(c *Controller) {
	now := time.Now()
	for pn := int64(0); pn < 10; pn++ {
		c.OnPacketSent(pn, testMDS, true, now)
	}
}

func TestControllerWaitReturnsImmediately(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewController(nil)
	n, err := c.Wait(context.Background(), 5000)
	require.NoError(t, err)
	assert.Equal(t, 5000, n)
	// the first write reserved part of the window
	n, err = c.Wait(context.Background(), 100_000)
	require.NoError(t, err)
	assert.Equal(t, InitialWindow(testMDS)-5000, n)
}

func TestControllerWaitBlocksUntilAck(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewController(nil)
	c.SetStallTimeout(10 * time.Second)
	fillWindow(c)
	assert.Zero(t, c.Snapshot().Cwnd-c.Snapshot().BytesInFlight)

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		c.OnPacketAcked(0, time.Now())
	}()
	start := time.Now()
	n, err := c.Wait(context.Background(), testMDS)
	require.NoError(t, err)
	assert.Equal(t, testMDS, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	<-done
}

func TestControllerWaitStalls(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewController(nil)
	c.SetStallTimeout(30 * time.Millisecond)
	fillWindow(c)
	before := testutil.ToFloat64(metrics.WriteStalls)
	start := time.Now()
	n, err := c.Wait(context.Background(), 4000)
	require.NoError(t, err)
	assert.Equal(t, 4000, n)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.WriteStalls))
}

func TestControllerWaitCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewController(nil)
	c.SetStallTimeout(10 * time.Second)
	fillWindow(c)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx, testMDS)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestControllerCloseReleasesWriters(t *testing.T) {
	defer goleak.VerifyNone(t)
	c := NewController(nil)
	c.SetStallTimeout(10 * time.Second)
	fillWindow(c)
	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Close()
	}()
	n, err := c.Wait(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	assert.Zero(t, c.Snapshot().BytesInFlight)
}

func TestControllerTracer(t *testing.T) {
	c := NewController(&SenderConfig{Algorithm: AlgorithmNewReno})
	tracer := c.Tracer()
	for pn := logging.PacketNumber(0); pn < 10; pn++ {
		tracer.SentShortHeaderPacket(&logging.ShortHeader{PacketNumber: pn}, testMDS, noECN, nil, []logging.Frame{&logging.PingFrame{}})
	}
	// acks only are not tracked
	tracer.SentShortHeaderPacket(&logging.ShortHeader{PacketNumber: 10}, 50, noECN, &logging.AckFrame{}, nil)
	assert.Equal(t, 10*testMDS, c.Snapshot().BytesInFlight)

	rttStats := &logging.RTTStats{}
	rttStats.UpdateRTT(40*time.Millisecond, 0, time.Now())
	tracer.UpdatedMetrics(rttStats, 30_000, 12_520, 10)
	tracer.UpdatedMetrics(rttStats, 20_000, 12_520, 10)

	tracer.AcknowledgedPacket(logging.Encryption1RTT, 0)
	tracer.AcknowledgedPacket(logging.EncryptionHandshake, 1)
	tracer.LostPacket(logging.Encryption1RTT, 2, logging.PacketLossReorderingThreshold)
	snapshot := c.Snapshot()
	assert.Equal(t, 8*testMDS, snapshot.BytesInFlight)
	// slow start grew the window by one packet before the loss halved it
	assert.Equal(t, (InitialWindow(testMDS)+testMDS)/2, snapshot.Cwnd)
	assert.Equal(t, 40*time.Millisecond, snapshot.MinRTT)
	assert.Equal(t, 20_000, snapshot.TransportCwnd)

	// a rising ECN-CE count is a congestion signal, but not twice in the same recovery period
	tracer.ReceivedShortHeaderPacket(&logging.ShortHeader{}, 100, noECN, []logging.Frame{
		&logging.AckFrame{AckRanges: []logging.AckRange{{Smallest: 3, Largest: 5}}, ECNCE: 1},
	})
	assert.Equal(t, (InitialWindow(testMDS)+testMDS)/2, c.Snapshot().Cwnd)

	observed, ok := c.Observed()
	require.True(t, ok)
	assert.Equal(t, SavedParameters{RTT: 40 * time.Millisecond, Cwnd: 30_000, Enabled: true}, observed)

	tracer.Close()
	assert.Zero(t, c.Snapshot().BytesInFlight)
}

func TestControllerSaveParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.json")
	c := NewController(nil)
	assert.ErrorIs(t, c.SaveParameters(path), ErrSeedMissing)

	c.OnMetricsUpdated(RTTSample{Min: 50 * time.Millisecond, Smoothed: 60 * time.Millisecond}, 64_000, 0)
	require.NoError(t, c.SaveParameters(path))
	saved, err := LoadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, &SavedParameters{RTT: 50 * time.Millisecond, Cwnd: 64_000, Enabled: true}, saved)
}

func TestLoadParametersErrors(t *testing.T) {
	_, err := LoadParameters(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	c := NewController(nil)
	assert.False(t, r.Register(context.Background(), c))
	ctx := context.WithValue(context.Background(), quic.ConnectionTracingKey, uint64(7))
	assert.True(t, r.Register(ctx, c))
	assert.Equal(t, 1, r.Len())
	assert.Same(t, c, r.LookupContext(ctx))
	assert.Nil(t, r.LookupContext(context.Background()))
	r.Remove(ctx)
	assert.Zero(t, r.Len())
}
