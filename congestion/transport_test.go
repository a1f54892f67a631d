package congestion

import (
	"context"
	"crypto/tls"
	"math"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crperf-go/common"
)

// same field layout as the quic-go connection, sent packet handler and cubic sender
type fakeByteCount int64

type fakeSendAlgorithm interface {
	GetCongestionWindow() fakeByteCount
}

type fakeCubicSender struct {
	reno               bool
	congestionWindow   fakeByteCount
	slowStartThreshold fakeByteCount
	maxDatagramSize    fakeByteCount
}

func (s *fakeCubicSender) GetCongestionWindow() fakeByteCount { return s.congestionWindow }

type fakeSentPacketHandler struct {
	congestion fakeSendAlgorithm
}

type fakePacketHandler interface{}

type fakeConnection struct {
	sentPacketHandler fakePacketHandler
}

const fakeInitialSsthresh = math.MaxInt64 / 2

func newFakeConnection() (*fakeConnection, *fakeCubicSender) {
	sender := &fakeCubicSender{
		congestionWindow:   32 * testMDS,
		slowStartThreshold: fakeInitialSsthresh,
		maxDatagramSize:    testMDS,
	}
	return &fakeConnection{sentPacketHandler: &fakeSentPacketHandler{congestion: sender}}, sender
}

func TestTransportWindow(t *testing.T) {
	conn, sender := newFakeConnection()
	w, err := NewTransportWindow(conn)
	require.NoError(t, err)
	assert.Equal(t, 32*testMDS, w.Cwnd())

	w.SetCwnd(100_000)
	assert.Equal(t, fakeByteCount(100_000), sender.congestionWindow)
	w.SetCwnd(1)
	assert.Equal(t, fakeByteCount(2*testMDS), sender.congestionWindow)
	w.SetCwnd(math.MaxInt32)
	assert.Equal(t, fakeByteCount(10000*testMDS), sender.congestionWindow)

	w.Hold(200_000)
	assert.True(t, w.Held())
	assert.Equal(t, fakeByteCount(200_000), sender.congestionWindow)
	assert.Equal(t, fakeByteCount(200_000), sender.slowStartThreshold)
	w.Hold(150_000)
	assert.Equal(t, fakeByteCount(150_000), sender.slowStartThreshold)
	w.Release()
	assert.False(t, w.Held())
	assert.Equal(t, fakeByteCount(fakeInitialSsthresh), sender.slowStartThreshold)
	assert.Equal(t, fakeByteCount(150_000), sender.congestionWindow)

	w.Hold(50_000)
	w.SetSsthresh(80_000)
	assert.False(t, w.Held())
	w.Release()
	assert.Equal(t, fakeByteCount(80_000), sender.slowStartThreshold)

	assert.True(t, w.SetReno(true))
	assert.True(t, sender.reno)
}

func TestTransportWindowUnsupportedLayout(t *testing.T) {
	for name, conn := range map[string]any{
		"nil":          nil,
		"no handler":   &struct{ other int }{},
		"nil handler":  &fakeConnection{},
		"no sender":    &fakeConnection{sentPacketHandler: &fakeSentPacketHandler{}},
		"wrong fields": &fakeConnection{sentPacketHandler: &struct{ congestion *struct{ congestionWindow int32 } }{&struct{ congestionWindow int32 }{}}},
	} {
		_, err := NewTransportWindow(conn)
		assert.ErrorIs(t, err, ErrTransportWindowUnsupported, name)
	}
}

func attachFakeTransport(t *testing.T, c *Controller) *fakeCubicSender {
	conn, sender := newFakeConnection()
	w, err := NewTransportWindow(conn)
	require.NoError(t, err)
	c.AttachTransport(w)
	require.True(t, c.TransportAttached())
	c.OnMetricsUpdated(testRTT, w.Cwnd(), 0)
	return sender
}

func TestControllerJumpsTransportWindow(t *testing.T) {
	now := time.Now()
	c := NewController(&SenderConfig{Algorithm: AlgorithmNewReno, Saved: testSeed()})
	sender := attachFakeTransport(t, c)
	assert.True(t, sender.reno)

	for pn := int64(0); pn < 10; pn++ {
		c.OnPacketSent(pn, testMDS, true, now)
	}
	for pn := int64(0); pn < 10; pn++ {
		c.OnPacketAcked(pn, now)
	}
	// nothing is written before quic-go finished processing the ack
	assert.Equal(t, fakeByteCount(32*testMDS), sender.congestionWindow)
	c.OnMetricsUpdated(testRTT, int(sender.congestionWindow), 0)
	assert.Equal(t, fakeByteCount(100_000), sender.congestionWindow)
	assert.Equal(t, fakeByteCount(100_000), sender.slowStartThreshold)
	assert.Equal(t, 100_000, c.Snapshot().TransportCwnd)

	for pn := int64(10); pn < 50; pn++ {
		c.OnPacketSent(pn, testMDS, true, now)
	}
	c.OnPacketAcked(10, now)
	c.OnMetricsUpdated(testRTT, int(sender.congestionWindow), 0)
	assert.Equal(t, PhaseValidating, c.Snapshot().Phase)
	assert.Equal(t, fakeByteCount(40*testMDS), sender.congestionWindow)
	assert.Equal(t, fakeByteCount(40*testMDS), sender.slowStartThreshold)

	for pn := int64(11); pn < 50; pn++ {
		c.OnPacketAcked(pn, now)
	}
	c.OnMetricsUpdated(testRTT, int(sender.congestionWindow), 0)
	assert.Equal(t, PhaseNormal, c.Snapshot().Phase)
	assert.Equal(t, fakeByteCount(fakeInitialSsthresh), sender.slowStartThreshold)

	observed, ok := c.Observed()
	require.True(t, ok)
	assert.Equal(t, 100_000, observed.Cwnd)
}

func TestControllerRetreatsTransportWindow(t *testing.T) {
	now := time.Now()
	c := NewController(&SenderConfig{Algorithm: AlgorithmNewReno, Saved: testSeed()})
	sender := attachFakeTransport(t, c)
	for pn := int64(0); pn < 10; pn++ {
		c.OnPacketSent(pn, testMDS, true, now)
		c.OnPacketAcked(pn, now)
	}
	for pn := int64(10); pn < 50; pn++ {
		c.OnPacketSent(pn, testMDS, true, now)
	}
	c.OnPacketLost(12, now)
	c.OnMetricsUpdated(testRTT, int(sender.congestionWindow), 0)
	assert.Equal(t, PhaseSafeRetreat, c.Snapshot().Phase)
	// half of the pipe size, the window of the tenth acknowledgment
	assert.Equal(t, fakeByteCount((InitialWindow(testMDS)+9*testMDS)/2), sender.congestionWindow)
	assert.Equal(t, sender.congestionWindow, sender.slowStartThreshold)

	for pn := int64(13); pn < 50; pn++ {
		c.OnPacketAcked(pn, now)
	}
	c.OnMetricsUpdated(testRTT, int(sender.congestionWindow), 0)
	assert.Equal(t, PhaseNormal, c.Snapshot().Phase)
	assert.Equal(t, fakeByteCount(InitialWindow(testMDS)+46*testMDS), sender.slowStartThreshold)
	assert.False(t, sender.congestionWindow > sender.slowStartThreshold)
}

func TestControllerLeavesTransportWithoutSeed(t *testing.T) {
	now := time.Now()
	c := NewController(&SenderConfig{Saved: &SavedParameters{RTT: time.Hour, Cwnd: 200_000, Enabled: true}})
	sender := attachFakeTransport(t, c)
	for pn := int64(0); pn < 10; pn++ {
		c.OnPacketSent(pn, testMDS, true, now)
		c.OnPacketAcked(pn, now)
	}
	c.OnMetricsUpdated(testRTT, int(sender.congestionWindow), 0)
	assert.Equal(t, fakeByteCount(32*testMDS), sender.congestionWindow)
	assert.Equal(t, fakeByteCount(fakeInitialSsthresh), sender.slowStartThreshold)
	assert.False(t, sender.reno)
}

func TestControllerKeepsFirstTransport(t *testing.T) {
	c := NewController(nil)
	first, _ := newFakeConnection()
	second, _ := newFakeConnection()
	w1, err := NewTransportWindow(first)
	require.NoError(t, err)
	w2, err := NewTransportWindow(second)
	require.NoError(t, err)
	c.AttachTransport(w1)
	c.AttachTransport(w2)
	assert.Same(t, w1, c.transport)
}

func TestTransportWindowOfQuicGoConnection(t *testing.T) {
	registry := NewRegistry()
	quicConfig := &quic.Config{
		Tracer: func(ctx context.Context, _ logging.Perspective, _ quic.ConnectionID) *logging.ConnectionTracer {
			c := NewController(nil)
			registry.Register(ctx, c)
			return c.Tracer()
		},
	}
	listener, err := quic.ListenAddr("127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{common.GenerateCert()},
		NextProtos:   []string{"crperf-test"},
	}, quicConfig)
	require.NoError(t, err)
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clientConn, err := quic.DialAddr(ctx, listener.Addr().String(), &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{"crperf-test"},
	}, quicConfig)
	require.NoError(t, err)
	defer clientConn.CloseWithError(0, "")
	serverConn, err := listener.Accept(ctx)
	require.NoError(t, err)
	defer serverConn.CloseWithError(0, "")

	for _, conn := range []quic.Connection{clientConn, serverConn} {
		assert.NotNil(t, registry.Lookup(conn))
		_, err := NewTransportWindow(conn)
		assert.NoError(t, err)
	}
}
